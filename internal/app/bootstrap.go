package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"routinepet/internal/db"
	"routinepet/internal/events"
	"routinepet/internal/migrate"
	"routinepet/internal/repo"
)

// Open prepares a workspace for use: it creates the data directory, opens the
// store, applies migrations and seeds the catalog the first time around.
func Open(ctx context.Context, workspace, actorOverride string, log *zap.Logger) (*sql.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	version, err := migrate.Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Debug("store ready", zap.String("path", db.Path(workspace)), zap.Int("schema_version", version))

	r := repo.Repo{DB: conn}
	stages, err := r.ListStages(ctx)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if len(stages) > 0 {
		return conn, nil
	}
	cfg, err := ResolveConfig(workspace, actorOverride)
	if err != nil {
		conn.Close()
		return nil, err
	}
	res, err := Seed(ctx, r, events.Writer{Now: time.Now}, cfg, time.Now())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("seed: %w", err)
	}
	log.Info("catalog seeded",
		zap.String("actor_id", res.ActorID),
		zap.Int("stages", res.Stages),
		zap.Int("missions", res.Missions),
		zap.Bool("pet_created", res.PetCreated))
	return conn, nil
}
