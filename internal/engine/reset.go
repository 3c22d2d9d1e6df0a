package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"routinepet/internal/domain"
	"routinepet/internal/events"
	"routinepet/internal/failure"
	"routinepet/internal/repo"
	"routinepet/internal/stage"
)

// ResetMissions clears the actor's completion history and puts the pet back
// on the baseline stage, then returns today's snapshot. It never creates a pet.
//
// An error means nothing was reset. Once the reset has committed, a failed
// snapshot read is only logged and the result falls back to the baseline pet
// with an empty mission list.
func (e Engine) ResetMissions(ctx context.Context, actorID string) (domain.RoutineSnapshot, error) {
	deleted, base, err := e.resetMissions(ctx, actorID)
	if err != nil {
		fe := failure.From(err)
		e.logFailure("mission reset", fe, zap.String("actor_id", actorID))
		return domain.RoutineSnapshot{}, fe
	}
	e.logger().Info("missions reset", zap.String("actor_id", actorID), zap.Int64("deleted", deleted))
	today := e.Today()
	snap, err := e.Snapshot(ctx, actorID, today)
	if err != nil {
		e.logger().Warn("snapshot after reset failed", zap.String("actor_id", actorID), zap.Error(err))
		pet := base.Snapshot(base.Current.MinTotalExp)
		preview := pet
		return domain.RoutineSnapshot{
			Date:         today,
			Pet:          &pet,
			Missions:     []domain.MissionWithStatus{},
			ResetPreview: &preview,
		}, nil
	}
	return snap, nil
}

func (e Engine) resetMissions(ctx context.Context, actorID string) (int64, stage.Resolution, error) {
	var base stage.Resolution
	if err := requireActor(actorID); err != nil {
		return 0, base, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, base, fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback()

	catalog, err := e.Repo.ListStagesTx(ctx, tx)
	if err != nil {
		return 0, base, loadErr("stages", err)
	}
	base, err = stage.Baseline(catalog)
	if err != nil {
		return 0, base, stageFailure(err)
	}
	if _, err := e.Repo.GetPetTx(ctx, tx, actorID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return 0, base, failure.New(failure.ReasonPetNotFound, "actor %s", actorID)
		}
		return 0, base, loadErr("pet", err)
	}
	deleted, err := e.Repo.DeleteCompletionsTx(ctx, tx, actorID)
	if err != nil {
		return 0, base, fmt.Errorf("delete completions: %w", err)
	}
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.SetPetProgressTx(ctx, tx, actorID, base.Current.MinTotalExp, base.Current.ID, now); err != nil {
		return 0, base, fmt.Errorf("reset pet: %w", err)
	}
	if err := e.events().Append(ctx, tx, events.TypeMissionsReset, "pet", actorID, actorID, events.EventPayload{
		"deleted":   deleted,
		"stage_id":  base.Current.ID,
		"total_exp": base.Current.MinTotalExp,
	}); err != nil {
		return 0, base, err
	}
	if err := tx.Commit(); err != nil {
		return 0, base, fmt.Errorf("commit reset: %w", err)
	}
	return deleted, base, nil
}
