package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"routinepet/internal/domain"
	"routinepet/internal/eligibility"
	"routinepet/internal/failure"
	"routinepet/internal/repo"
	"routinepet/internal/stage"
)

// Snapshot assembles the dashboard read model for actorID on date today:
// missions available that day with their completion status, the pet's stage
// progress and the reset preview. A missing pet yields a nil Pet.
func (e Engine) Snapshot(ctx context.Context, actorID, today string) (domain.RoutineSnapshot, error) {
	snap, err := e.snapshot(ctx, actorID, today)
	if err != nil {
		return domain.RoutineSnapshot{}, failure.From(err)
	}
	return snap, nil
}

func (e Engine) snapshot(ctx context.Context, actorID, today string) (domain.RoutineSnapshot, error) {
	if err := requireActor(actorID); err != nil {
		return domain.RoutineSnapshot{}, err
	}
	if _, err := eligibility.ParseDate(today); err != nil {
		return domain.RoutineSnapshot{}, failure.Wrap(failure.ReasonValidation, err)
	}
	missions, err := e.Repo.ListMissions(ctx)
	if err != nil {
		return domain.RoutineSnapshot{}, loadErr("missions", err)
	}
	doneToday, err := e.Repo.CompletedOn(ctx, actorID, today)
	if err != nil {
		return domain.RoutineSnapshot{}, loadErr("completions", err)
	}
	counts, err := e.Repo.CompletionCounts(ctx, actorID)
	if err != nil {
		return domain.RoutineSnapshot{}, loadErr("completion counts", err)
	}
	catalog, err := e.Repo.ListStages(ctx)
	if err != nil {
		return domain.RoutineSnapshot{}, loadErr("stages", err)
	}

	snap := domain.RoutineSnapshot{Date: today, Missions: []domain.MissionWithStatus{}}
	for _, m := range missions {
		if !m.IsActive || today < m.ActiveFrom || today > m.ActiveTo {
			continue
		}
		snap.Missions = append(snap.Missions, domain.MissionWithStatus{
			ID:             m.ID,
			Title:          m.Title,
			Type:           m.Type,
			RewardExp:      m.RewardExp,
			Period:         m.Period,
			CompletedToday: doneToday[m.ID],
			CompletedCount: counts[m.ID],
			RemainingCount: eligibility.Remaining(m, counts[m.ID]),
		})
	}

	if base, err := stage.Baseline(catalog); err == nil {
		preview := base.Snapshot(base.Current.MinTotalExp)
		snap.ResetPreview = &preview
	}

	pet, err := e.Repo.GetPet(ctx, actorID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return snap, nil
	case err != nil:
		return domain.RoutineSnapshot{}, loadErr("pet", err)
	}
	petSnap, err := e.petSnapshot(pet, catalog)
	if err != nil {
		return domain.RoutineSnapshot{}, err
	}
	snap.Pet = &petSnap
	return snap, nil
}

func (e Engine) petSnapshot(pet domain.Pet, catalog []domain.Stage) (domain.PetSnapshot, error) {
	if len(catalog) == 0 {
		return domain.PetSnapshot{
			TotalExp:  pet.TotalExp,
			StageID:   pet.CurrentStageID,
			StageName: fmt.Sprintf("Stage %d", pet.CurrentStageID),
		}, nil
	}
	res, err := stage.Resolve(catalog, pet.TotalExp)
	if err != nil {
		return domain.PetSnapshot{}, stageFailure(err)
	}
	if res.Current.ID != pet.CurrentStageID {
		e.logger().Warn("pet stage out of sync with exp",
			zap.String("actor_id", pet.ActorID),
			zap.Int64("stored_stage", pet.CurrentStageID),
			zap.Int64("resolved_stage", res.Current.ID))
	}
	return res.Snapshot(pet.TotalExp), nil
}
