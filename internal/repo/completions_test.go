package repo_test

import (
	"context"
	"errors"
	"testing"

	"routinepet/internal/db"
	"routinepet/internal/domain"
	"routinepet/internal/migrate"
	"routinepet/internal/repo"
)

func openRepo(t *testing.T) (repo.Repo, context.Context) {
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
	r := repo.Repo{DB: conn}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	if err := r.UpsertMissionTx(ctx, tx, domain.Mission{
		ID: "drink-water", Title: "Drink water", Type: "check_in", RewardExp: 10,
		Period: domain.PeriodDaily, ActiveFrom: "2024-01-01", ActiveTo: "2099-12-31",
		IsActive: true, MaxCompletions: 1,
		CreatedAt: "2024-03-10T00:00:00Z", UpdatedAt: "2024-03-10T00:00:00Z",
	}); err != nil {
		t.Fatalf("insert mission: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	return r, ctx
}

func completion(id, ref string) domain.Completion {
	return domain.Completion{
		ID: id, ActorID: "demo-user", MissionID: "drink-water", CompletionRef: ref,
		CompletedOn: "2024-03-10", CompletedAt: "2024-03-10T08:00:00Z", RewardExp: 10,
	}
}

func insert(t *testing.T, r repo.Repo, ctx context.Context, c domain.Completion) error {
	t.Helper()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	if err := r.InsertCompletionTx(ctx, tx, c); err != nil {
		return err
	}
	return tx.Commit()
}

func TestInsertCompletionDuplicateRef(t *testing.T) {
	r, ctx := openRepo(t)
	if err := insert(t, r, ctx, completion("c1", "2024-03-10")); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := insert(t, r, ctx, completion("c2", "2024-03-10"))
	if !errors.Is(err, repo.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	n, err := r.CountCompletions(ctx, "demo-user", "drink-water")
	if err != nil || n != 1 {
		t.Fatalf("count = %d (%v), want 1", n, err)
	}
}

func TestInsertCompletionOtherRef(t *testing.T) {
	r, ctx := openRepo(t)
	if err := insert(t, r, ctx, completion("c1", "2024-03-10")); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := insert(t, r, ctx, completion("c2", "2024-03-11")); err != nil {
		t.Fatalf("next day insert: %v", err)
	}
	n, err := r.CountCompletions(ctx, "demo-user", "drink-water")
	if err != nil || n != 2 {
		t.Fatalf("count = %d (%v), want 2", n, err)
	}
}
