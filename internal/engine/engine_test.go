package engine_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"routinepet/internal/app"
	"routinepet/internal/config"
	"routinepet/internal/db"
	"routinepet/internal/engine"
	"routinepet/internal/events"
	"routinepet/internal/failure"
	"routinepet/internal/migrate"
)

const actor = "demo-user"

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func fixedNow() time.Time { return time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC) }

func openStore(t *testing.T) (engine.Engine, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, zaptest.NewLogger(t))
	eng.Now = fixedNow
	return eng, ctx
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	eng, ctx := openStore(t)
	if _, err := app.Seed(ctx, eng.Repo, events.Writer{Now: fixedNow}, config.Default(actor), fixedNow()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

// setExp moves the pet to exp on stageID directly in the store.
func (env testEnv) setExp(t *testing.T, exp int, stageID int64) {
	t.Helper()
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	if err := env.Engine.Repo.SetPetProgressTx(env.Ctx, tx, actor, exp, stageID, "2024-03-10T00:00:00Z"); err != nil {
		t.Fatalf("set exp: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func (env testEnv) pet(t *testing.T) (int, int64) {
	t.Helper()
	p, err := env.Engine.Repo.GetPet(env.Ctx, actor)
	if err != nil {
		t.Fatalf("get pet: %v", err)
	}
	return p.TotalExp, p.CurrentStageID
}

func TestCompleteMissionCrossesStage(t *testing.T) {
	env := newTestEnv(t)
	env.setExp(t, 40, 1)
	res, err := env.Engine.CompleteMission(env.Ctx, actor, "evening-walk", "2024-03-10")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.EarnedExp != 20 || res.TotalExp != 60 {
		t.Fatalf("exp = +%d -> %d, want +20 -> 60", res.EarnedExp, res.TotalExp)
	}
	if res.OldStageID != 1 || res.NewStageID != 2 || !res.StageChanged {
		t.Fatalf("unexpected stage transition %+v", res)
	}
	if res.NextStageThreshold == nil || *res.NextStageThreshold != 150 {
		t.Fatalf("next threshold = %v, want 150", res.NextStageThreshold)
	}
	if res.CompletedCount != 1 || res.RemainingCount != 0 {
		t.Fatalf("counts = %d/%d", res.CompletedCount, res.RemainingCount)
	}
	if exp, stageID := env.pet(t); exp != 60 || stageID != 2 {
		t.Fatalf("stored pet = %d on stage %d", exp, stageID)
	}
}

func TestCompleteMissionWithinStage(t *testing.T) {
	env := newTestEnv(t)
	env.setExp(t, 60, 2)
	res, err := env.Engine.CompleteMission(env.Ctx, actor, "morning-check-in", "2024-03-10")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.TotalExp != 65 || res.StageChanged || res.NewStageID != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestCompleteMissionTwiceSameDay(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CompleteMission(env.Ctx, actor, "drink-water", "2024-03-10"); err != nil {
		t.Fatalf("first: %v", err)
	}
	_, err := env.Engine.CompleteMission(env.Ctx, actor, "drink-water", "2024-03-10")
	if !failure.Is(err, failure.ReasonAlreadyDone) {
		t.Fatalf("expected already_completed, got %v", err)
	}
	if exp, _ := env.pet(t); exp != 10 {
		t.Fatalf("exp = %d, duplicate must not award", exp)
	}
	if _, err := env.Engine.CompleteMission(env.Ctx, actor, "drink-water", "2024-03-11"); err != nil {
		t.Fatalf("next day: %v", err)
	}
}

func TestCompleteOnceMissionLimit(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.CompleteMission(env.Ctx, actor, "first-routine", "2024-03-10")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if res.CompletionRef != "once#1" || res.RemainingCount != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	_, err = env.Engine.CompleteMission(env.Ctx, actor, "first-routine", "2024-03-11")
	if !failure.Is(err, failure.ReasonLimitReached) {
		t.Fatalf("expected completion_limit_reached, got %v", err)
	}
}

func TestCompleteEventMissionCounts(t *testing.T) {
	env := newTestEnv(t)
	for i, day := range []string{"2024-03-10", "2024-03-11", "2024-03-12"} {
		res, err := env.Engine.CompleteMission(env.Ctx, actor, "spring-festival", day)
		if err != nil {
			t.Fatalf("completion %d: %v", i+1, err)
		}
		if res.CompletedCount != i+1 || res.RemainingCount != 2-i {
			t.Fatalf("completion %d counts = %d/%d", i+1, res.CompletedCount, res.RemainingCount)
		}
	}
	_, err := env.Engine.CompleteMission(env.Ctx, actor, "spring-festival", "2024-03-13")
	if !failure.Is(err, failure.ReasonLimitReached) {
		t.Fatalf("expected completion_limit_reached, got %v", err)
	}
}

func TestCompleteMissionRejections(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name    string
		actor   string
		mission string
		date    string
		want    failure.Reason
	}{
		{"bad date", actor, "drink-water", "2024-3-10", failure.ReasonValidation},
		{"missing actor", "", "drink-water", "2024-03-10", failure.ReasonValidation},
		{"unknown mission", actor, "nope", "2024-03-10", failure.ReasonMissionNotFound},
		{"before window", actor, "spring-festival", "2024-02-28", failure.ReasonOutOfWindow},
		{"no pet", "stranger", "drink-water", "2024-03-10", failure.ReasonPetNotFound},
	}
	for _, tc := range cases {
		_, err := env.Engine.CompleteMission(env.Ctx, tc.actor, tc.mission, tc.date)
		if got := failure.ReasonOf(err); got != tc.want {
			t.Fatalf("%s: reason = %q, want %q (%v)", tc.name, got, tc.want, err)
		}
	}
	if exp, _ := env.pet(t); exp != 0 {
		t.Fatalf("rejections must not award exp, got %d", exp)
	}
}

func TestCompleteInactiveMission(t *testing.T) {
	env := newTestEnv(t)
	m, err := env.Engine.Repo.GetMission(env.Ctx, "drink-water")
	if err != nil {
		t.Fatal(err)
	}
	m.IsActive = false
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.Repo.UpsertMissionTx(env.Ctx, tx, m); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.CompleteMission(env.Ctx, actor, "drink-water", "2024-03-10")
	if !failure.Is(err, failure.ReasonInactive) {
		t.Fatalf("expected mission_inactive, got %v", err)
	}
}

func TestResetMissions(t *testing.T) {
	env := newTestEnv(t)
	env.setExp(t, 140, 2)
	for _, id := range []string{"evening-walk", "first-routine"} {
		if _, err := env.Engine.CompleteMission(env.Ctx, actor, id, "2024-03-10"); err != nil {
			t.Fatalf("complete %s: %v", id, err)
		}
	}
	snap, err := env.Engine.ResetMissions(env.Ctx, actor)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if exp, stageID := env.pet(t); exp != 0 || stageID != 1 {
		t.Fatalf("pet after reset = %d on stage %d", exp, stageID)
	}
	if snap.Pet == nil || snap.Pet.StageName != "Egg" || snap.Pet.TotalExp != 0 {
		t.Fatalf("unexpected snapshot pet %+v", snap.Pet)
	}
	for _, m := range snap.Missions {
		if m.CompletedToday || m.CompletedCount != 0 {
			t.Fatalf("mission %s still shows progress after reset", m.ID)
		}
	}
	n, err := env.Engine.Repo.CountCompletions(env.Ctx, actor, "first-routine")
	if err != nil || n != 0 {
		t.Fatalf("completions after reset = %d (%v)", n, err)
	}
	if _, err := env.Engine.CompleteMission(env.Ctx, actor, "first-routine", "2024-03-10"); err != nil {
		t.Fatalf("once mission should be available again: %v", err)
	}
}

func TestResetWithoutCatalog(t *testing.T) {
	eng, ctx := openStore(t)
	_, err := eng.ResetMissions(ctx, actor)
	if !failure.Is(err, failure.ReasonNoStageCatalog) {
		t.Fatalf("expected no_stage_catalog, got %v", err)
	}
}

func TestResetUnknownActor(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.ResetMissions(env.Ctx, "stranger")
	if !failure.Is(err, failure.ReasonPetNotFound) {
		t.Fatalf("expected pet_not_found, got %v", err)
	}
}

func TestResetSnapshotReadFails(t *testing.T) {
	env := newTestEnv(t)
	env.setExp(t, 60, 2)
	// Renaming keeps the user_missions foreign key valid but breaks the
	// snapshot's mission listing.
	if _, err := env.Engine.DB.ExecContext(env.Ctx, `ALTER TABLE missions RENAME TO missions_archived`); err != nil {
		t.Fatalf("rename missions: %v", err)
	}
	snap, err := env.Engine.ResetMissions(env.Ctx, actor)
	if err != nil {
		t.Fatalf("committed reset reported failure: %v", err)
	}
	if snap.Pet == nil || snap.Pet.TotalExp != 0 || snap.Pet.StageID != 1 {
		t.Fatalf("fallback pet = %+v", snap.Pet)
	}
	if snap.Date != "2024-03-10" || snap.Missions == nil || len(snap.Missions) != 0 {
		t.Fatalf("fallback snapshot = %+v", snap)
	}
	if exp, stageID := env.pet(t); exp != 0 || stageID != 1 {
		t.Fatalf("pet after reset = %d on stage %d", exp, stageID)
	}
}

func TestCompleteMissionRollsBackOnLateFailure(t *testing.T) {
	env := newTestEnv(t)
	env.setExp(t, 40, 1)
	// The event append is the last write before commit.
	if _, err := env.Engine.DB.ExecContext(env.Ctx, `DROP TABLE events`); err != nil {
		t.Fatalf("drop events: %v", err)
	}
	_, err := env.Engine.CompleteMission(env.Ctx, actor, "evening-walk", "2024-03-10")
	if !failure.Is(err, failure.ReasonStorage) {
		t.Fatalf("expected storage_error, got %v", err)
	}
	n, err := env.Engine.Repo.CountCompletions(env.Ctx, actor, "evening-walk")
	if err != nil || n != 0 {
		t.Fatalf("ledger rows = %d (%v), want 0", n, err)
	}
	if exp, stageID := env.pet(t); exp != 40 || stageID != 1 {
		t.Fatalf("pet = %d on stage %d, want 40 on stage 1", exp, stageID)
	}
}

func TestSnapshot(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CompleteMission(env.Ctx, actor, "drink-water", "2024-03-10"); err != nil {
		t.Fatal(err)
	}
	snap, err := env.Engine.Snapshot(env.Ctx, actor, "2024-03-10")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Pet == nil || snap.Pet.TotalExp != 10 || snap.Pet.NextStageMin == nil || *snap.Pet.NextStageMin != 50 {
		t.Fatalf("unexpected pet %+v", snap.Pet)
	}
	if snap.ResetPreview == nil || snap.ResetPreview.StageID != 1 {
		t.Fatalf("unexpected reset preview %+v", snap.ResetPreview)
	}
	found := false
	for _, m := range snap.Missions {
		if m.ID == "drink-water" {
			found = true
			if !m.CompletedToday || m.CompletedCount != 1 {
				t.Fatalf("drink-water status %+v", m)
			}
		}
	}
	if !found {
		t.Fatalf("drink-water missing from snapshot")
	}

	// The festival window opens on March 1st.
	early, err := env.Engine.Snapshot(env.Ctx, actor, "2024-02-10")
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range early.Missions {
		if m.ID == "spring-festival" {
			t.Fatalf("festival listed outside its window")
		}
		if m.CompletedToday {
			t.Fatalf("%s marked done on another day", m.ID)
		}
	}

	other, err := env.Engine.Snapshot(env.Ctx, "stranger", "2024-03-10")
	if err != nil {
		t.Fatal(err)
	}
	if other.Pet != nil {
		t.Fatalf("expected no pet for unknown actor")
	}
}

func TestConcurrentSameMission(t *testing.T) {
	env := newTestEnv(t)
	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		dupes     int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Engine.CompleteMission(env.Ctx, actor, "evening-walk", "2024-03-10")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case failure.Is(err, failure.ReasonAlreadyDone):
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if successes != 1 || dupes != workers-1 {
		t.Fatalf("successes=%d dupes=%d", successes, dupes)
	}
	if exp, _ := env.pet(t); exp != 20 {
		t.Fatalf("exp = %d, want a single award of 20", exp)
	}
}

func TestConcurrentDifferentMissions(t *testing.T) {
	env := newTestEnv(t)
	missions := []string{"morning-check-in", "drink-water", "evening-walk", "first-routine", "spring-festival"}
	var wg sync.WaitGroup
	errs := make(chan error, len(missions))
	for _, id := range missions {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := env.Engine.CompleteMission(env.Ctx, actor, id, "2024-03-10"); err != nil {
				errs <- err
			}
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("completion failed: %v", err)
	}
	exp, stageID := env.pet(t)
	if exp != 80 || stageID != 2 {
		t.Fatalf("pet = %d on stage %d, want 80 on stage 2", exp, stageID)
	}
}

func TestCompletionEventsRecorded(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CompleteMission(env.Ctx, actor, "drink-water", "2024-03-10"); err != nil {
		t.Fatal(err)
	}
	evs, err := env.Engine.Repo.LatestEvents(env.Ctx, actor, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 1 || evs[0].Type != events.TypeMissionCompleted || evs[0].EntityID != "drink-water" {
		t.Fatalf("unexpected events %+v", evs)
	}
	if !strings.Contains(evs[0].Payload, `"total_exp":10`) {
		t.Fatalf("payload = %s", evs[0].Payload)
	}
}
