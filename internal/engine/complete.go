package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"routinepet/internal/domain"
	"routinepet/internal/eligibility"
	"routinepet/internal/events"
	"routinepet/internal/failure"
	"routinepet/internal/repo"
	"routinepet/internal/stage"
)

// CompleteMission completes missionID for actorID on referenceDate
// (YYYY-MM-DD). Eligibility, the ledger insert, the EXP award and the stage
// recompute commit together or not at all. Every returned error is a
// *failure.Error.
func (e Engine) CompleteMission(ctx context.Context, actorID, missionID, referenceDate string) (domain.CompletionResult, error) {
	fields := []zap.Field{
		zap.String("actor_id", actorID),
		zap.String("mission_id", missionID),
		zap.String("date", referenceDate),
	}
	res, err := e.completeMission(ctx, actorID, missionID, referenceDate)
	if err != nil {
		fe := failure.From(err)
		e.logFailure("mission completion", fe, fields...)
		return domain.CompletionResult{}, fe
	}
	e.logger().Info("mission completed", append(fields,
		zap.Int("earned_exp", res.EarnedExp),
		zap.Int("total_exp", res.TotalExp),
		zap.Bool("stage_changed", res.StageChanged),
	)...)
	return res, nil
}

func (e Engine) completeMission(ctx context.Context, actorID, missionID, referenceDate string) (domain.CompletionResult, error) {
	if err := requireActor(actorID); err != nil {
		return domain.CompletionResult{}, err
	}
	if missionID == "" {
		return domain.CompletionResult{}, failure.New(failure.ReasonValidation, "mission id is required")
	}
	if _, err := eligibility.ParseDate(referenceDate); err != nil {
		return domain.CompletionResult{}, failure.Wrap(failure.ReasonValidation, err)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CompletionResult{}, fmt.Errorf("begin completion: %w", err)
	}
	defer tx.Rollback()

	mission, err := e.Repo.GetMissionTx(ctx, tx, missionID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.CompletionResult{}, failure.New(failure.ReasonMissionNotFound, "mission %s", missionID)
	}
	if err != nil {
		return domain.CompletionResult{}, loadErr("mission", err)
	}
	history, err := e.Repo.ListCompletionsTx(ctx, tx, actorID, missionID)
	if err != nil {
		return domain.CompletionResult{}, loadErr("completions", err)
	}
	key, err := eligibility.Check(mission, referenceDate, history)
	if err != nil {
		return domain.CompletionResult{}, err
	}
	pet, err := e.Repo.GetPetTx(ctx, tx, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.CompletionResult{}, failure.New(failure.ReasonPetNotFound, "actor %s", actorID)
	}
	if err != nil {
		return domain.CompletionResult{}, loadErr("pet", err)
	}
	catalog, err := e.Repo.ListStagesTx(ctx, tx)
	if err != nil {
		return domain.CompletionResult{}, loadErr("stages", err)
	}

	now := e.now().UTC().Format(time.RFC3339)
	record := domain.Completion{
		ID:            uuid.NewString(),
		ActorID:       actorID,
		MissionID:     mission.ID,
		CompletionRef: key,
		CompletedOn:   referenceDate,
		CompletedAt:   now,
		RewardExp:     mission.RewardExp,
	}
	if err := e.Repo.InsertCompletionTx(ctx, tx, record); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return domain.CompletionResult{}, failure.New(failure.ReasonAlreadyDone, "mission %s already recorded for %s", mission.ID, key)
		}
		return domain.CompletionResult{}, fmt.Errorf("record completion: %w", err)
	}

	totalExp := pet.TotalExp + mission.RewardExp
	resolved, err := stage.Resolve(catalog, totalExp)
	if err != nil {
		return domain.CompletionResult{}, stageFailure(err)
	}
	if err := e.Repo.UpdatePetProgressTx(ctx, tx, actorID, pet.TotalExp, totalExp, resolved.Current.ID, now); err != nil {
		return domain.CompletionResult{}, fmt.Errorf("update pet: %w", err)
	}

	completed := len(history) + 1
	res := domain.CompletionResult{
		MissionID:          mission.ID,
		CompletionRef:      key,
		EarnedExp:          mission.RewardExp,
		TotalExp:           totalExp,
		OldStageID:         pet.CurrentStageID,
		NewStageID:         resolved.Current.ID,
		StageChanged:       pet.CurrentStageID != resolved.Current.ID,
		NextStageThreshold: resolved.NextThreshold(),
		CompletedCount:     completed,
		RemainingCount:     eligibility.Remaining(mission, completed),
	}
	if err := e.events().Append(ctx, tx, events.TypeMissionCompleted, "mission", mission.ID, actorID, events.EventPayload{
		"completion_ref": key,
		"date":           referenceDate,
		"earned_exp":     res.EarnedExp,
		"total_exp":      res.TotalExp,
		"old_stage":      res.OldStageID,
		"new_stage":      res.NewStageID,
	}); err != nil {
		return domain.CompletionResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CompletionResult{}, fmt.Errorf("commit completion: %w", err)
	}
	return res, nil
}
