package app_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"routinepet/internal/app"
	"routinepet/internal/config"
	"routinepet/internal/engine"
	"routinepet/internal/events"
	"routinepet/internal/repo"
)

const actor = "demo-user"

func fixedNow() time.Time { return time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC) }

func openWorkspace(t *testing.T) (repo.Repo, context.Context) {
	t.Helper()
	ctx := context.Background()
	conn, err := app.Open(ctx, t.TempDir(), actor, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("open workspace: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return repo.Repo{DB: conn}, ctx
}

func setPet(t *testing.T, r repo.Repo, ctx context.Context, exp int, stageID int64) {
	t.Helper()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	if err := r.SetPetProgressTx(ctx, tx, actor, exp, stageID, "2024-03-10T00:00:00Z"); err != nil {
		t.Fatalf("set pet: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func reseed(t *testing.T, r repo.Repo, ctx context.Context, cfg *config.Config) app.SeedResult {
	t.Helper()
	res, err := app.Seed(ctx, r, events.Writer{Now: fixedNow}, cfg, fixedNow())
	if err != nil {
		t.Fatalf("reseed: %v", err)
	}
	return res
}

func TestSeedCreatesPetOnce(t *testing.T) {
	r, ctx := openWorkspace(t)
	res := reseed(t, r, ctx, config.Default(actor))
	if res.PetCreated || res.Restaged != 0 {
		t.Fatalf("second seed should be a no-op for the pet: %+v", res)
	}
	pet, err := r.GetPet(ctx, actor)
	if err != nil {
		t.Fatalf("get pet: %v", err)
	}
	if pet.TotalExp != 0 || pet.CurrentStageID != 1 {
		t.Fatalf("pet = %d on stage %d", pet.TotalExp, pet.CurrentStageID)
	}
}

func TestReseedMovedThresholdRestagesPet(t *testing.T) {
	r, ctx := openWorkspace(t)
	setPet(t, r, ctx, 60, 2)

	cfg := config.Default(actor)
	cfg.Stages[1].MinTotalExp = 100
	res := reseed(t, r, ctx, cfg)
	if res.Restaged != 1 {
		t.Fatalf("restaged = %d, want 1", res.Restaged)
	}
	pet, err := r.GetPet(ctx, actor)
	if err != nil {
		t.Fatalf("get pet: %v", err)
	}
	if pet.TotalExp != 60 || pet.CurrentStageID != 1 {
		t.Fatalf("pet = %d on stage %d, want 60 on stage 1", pet.TotalExp, pet.CurrentStageID)
	}

	eng := engine.New(r.DB, zaptest.NewLogger(t))
	eng.Now = fixedNow
	out, err := eng.CompleteMission(ctx, actor, "morning-check-in", "2024-03-10")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out.OldStageID != 1 || out.NewStageID != 1 || out.StageChanged {
		t.Fatalf("completion after reseed reported a stage move: %+v", out)
	}

	evts, err := r.LatestEvents(ctx, actor, 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	found := false
	for _, e := range evts {
		if e.Type == events.TypePetRestaged {
			found = true
		}
	}
	if !found {
		t.Fatalf("no %s event in %+v", events.TypePetRestaged, evts)
	}
}

func TestReseedSwappedThresholds(t *testing.T) {
	r, ctx := openWorkspace(t)
	setPet(t, r, ctx, 60, 2)

	cfg := config.Default(actor)
	cfg.Stages[1].MinTotalExp, cfg.Stages[2].MinTotalExp = cfg.Stages[2].MinTotalExp, cfg.Stages[1].MinTotalExp
	reseed(t, r, ctx, cfg)

	stages, err := r.ListStages(ctx)
	if err != nil {
		t.Fatalf("list stages: %v", err)
	}
	want := []struct {
		id  int64
		min int
	}{{1, 0}, {3, 50}, {2, 150}}
	if len(stages) != len(want) {
		t.Fatalf("stages = %+v", stages)
	}
	for i, w := range want {
		if stages[i].ID != w.id || stages[i].MinTotalExp != w.min {
			t.Fatalf("stage[%d] = %d@%d, want %d@%d", i, stages[i].ID, stages[i].MinTotalExp, w.id, w.min)
		}
	}
	pet, err := r.GetPet(ctx, actor)
	if err != nil {
		t.Fatalf("get pet: %v", err)
	}
	if pet.CurrentStageID != 3 {
		t.Fatalf("pet stage = %d, want 3 after swap", pet.CurrentStageID)
	}
}

func TestReseedRejectsSharedThreshold(t *testing.T) {
	r, ctx := openWorkspace(t)
	cfg := config.Default(actor)
	cfg.Stages[2].MinTotalExp = cfg.Stages[1].MinTotalExp
	if _, err := app.Seed(ctx, r, events.Writer{Now: fixedNow}, cfg, fixedNow()); err == nil {
		t.Fatal("expected validation error for shared threshold")
	}
	stages, err := r.ListStages(ctx)
	if err != nil {
		t.Fatalf("list stages: %v", err)
	}
	if len(stages) != 3 || stages[1].MinTotalExp != 50 {
		t.Fatalf("catalog changed after rejected seed: %+v", stages)
	}
}
