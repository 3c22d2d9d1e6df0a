package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"routinepet/internal/config"
	"routinepet/internal/domain"
	"routinepet/internal/events"
	"routinepet/internal/repo"
	"routinepet/internal/stage"
)

// SeedResult reports what a seed pass wrote.
type SeedResult struct {
	ActorID    string `json:"actor_id"`
	Stages     int    `json:"stages"`
	Missions   int    `json:"missions"`
	PetCreated bool   `json:"pet_created"`
	Restaged   int    `json:"restaged"`
}

// ResolveConfig prefers routinepet.yml in the workspace and falls back to the
// built-in catalog. actorOverride replaces the configured demo actor.
func ResolveConfig(workspace, actorOverride string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default("demo-user")
	}
	if actorOverride != "" {
		cfg.Actor.ID = actorOverride
	}
	return cfg, nil
}

// Seed upserts the stage and mission catalog from cfg and makes sure the
// configured actor owns a pet. Existing pets keep their EXP; their stage is
// re-resolved against the new thresholds in the same transaction.
func Seed(ctx context.Context, r repo.Repo, w events.Writer, cfg *config.Config, now time.Time) (SeedResult, error) {
	if cfg == nil {
		return SeedResult{}, fmt.Errorf("seed: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return SeedResult{}, err
	}
	ts := now.UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return SeedResult{}, err
	}
	defer tx.Rollback()

	stages := cfg.DomainStages()
	if err := r.UpsertStagesTx(ctx, tx, stages, ts); err != nil {
		return SeedResult{}, fmt.Errorf("upsert stages: %w", err)
	}
	missions := cfg.DomainMissions()
	for _, m := range missions {
		m.CreatedAt, m.UpdatedAt = ts, ts
		if err := r.UpsertMissionTx(ctx, tx, m); err != nil {
			return SeedResult{}, fmt.Errorf("upsert mission %s: %w", m.ID, err)
		}
	}
	res := SeedResult{ActorID: cfg.Actor.ID, Stages: len(stages), Missions: len(missions)}
	if err := w.Append(ctx, tx, events.TypeCatalogSeeded, "catalog", "", cfg.Actor.ID, events.EventPayload{
		"stages":   res.Stages,
		"missions": res.Missions,
	}); err != nil {
		return SeedResult{}, err
	}

	catalog, err := r.ListStagesTx(ctx, tx)
	if err != nil {
		return SeedResult{}, err
	}
	restaged, err := restagePets(ctx, r, w, tx, catalog, ts)
	if err != nil {
		return SeedResult{}, err
	}
	res.Restaged = restaged
	created, err := ensurePet(ctx, r, w, tx, cfg.Actor.ID, catalog, ts)
	if err != nil {
		return SeedResult{}, err
	}
	res.PetCreated = created
	if err := tx.Commit(); err != nil {
		return SeedResult{}, err
	}
	return res, nil
}

// restagePets rewrites current_stage_id for every pet whose stored stage no
// longer matches its EXP under catalog.
func restagePets(ctx context.Context, r repo.Repo, w events.Writer, tx *sql.Tx, catalog []domain.Stage, ts string) (int, error) {
	pets, err := r.ListPetsTx(ctx, tx)
	if err != nil {
		return 0, fmt.Errorf("list pets: %w", err)
	}
	n := 0
	for _, p := range pets {
		res, err := stage.Resolve(catalog, p.TotalExp)
		if err != nil {
			return 0, err
		}
		if res.Current.ID == p.CurrentStageID {
			continue
		}
		if err := r.SetPetProgressTx(ctx, tx, p.ActorID, p.TotalExp, res.Current.ID, ts); err != nil {
			return 0, fmt.Errorf("restage pet %s: %w", p.ID, err)
		}
		if err := w.Append(ctx, tx, events.TypePetRestaged, "pet", p.ID, p.ActorID, events.EventPayload{
			"old_stage_id": p.CurrentStageID,
			"stage_id":     res.Current.ID,
			"total_exp":    p.TotalExp,
		}); err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

// ensurePet creates a baseline pet for actorID unless one exists.
func ensurePet(ctx context.Context, r repo.Repo, w events.Writer, tx *sql.Tx, actorID string, catalog []domain.Stage, ts string) (bool, error) {
	if _, err := r.GetPetTx(ctx, tx, actorID); err == nil {
		return false, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return false, err
	}
	base, err := stage.Baseline(catalog)
	if err != nil {
		return false, err
	}
	pet := domain.Pet{
		ID:             uuid.NewString(),
		ActorID:        actorID,
		TotalExp:       base.Current.MinTotalExp,
		CurrentStageID: base.Current.ID,
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
	if err := r.InsertPetTx(ctx, tx, pet); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return false, nil
		}
		return false, fmt.Errorf("insert pet: %w", err)
	}
	if err := w.Append(ctx, tx, events.TypePetCreated, "pet", pet.ID, actorID, events.EventPayload{
		"stage_id": pet.CurrentStageID,
	}); err != nil {
		return false, err
	}
	return true, nil
}
