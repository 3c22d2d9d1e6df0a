package repo

import (
	"context"
	"strings"

	"routinepet/internal/domain"
)

// ListEvents returns events after afterID in ascending order, optionally for one actor.
func (r Repo) ListEvents(ctx context.Context, actorID string, afterID int64, limit int) ([]domain.Event, error) {
	clauses := []string{"id > ?"}
	args := []any{afterID}
	if actorID != "" {
		clauses = append(clauses, "actor_id=?")
		args = append(args, actorID)
	}
	query := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY id ASC`
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEvents returns the newest limit events, oldest first.
func (r Repo) LatestEvents(ctx context.Context, actorID string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	var floor int64
	query := `SELECT COALESCE(MIN(id), 1) - 1 FROM (SELECT id FROM events`
	args := []any{}
	if actorID != "" {
		query += ` WHERE actor_id=?`
		args = append(args, actorID)
	}
	query += ` ORDER BY id DESC LIMIT ?)`
	args = append(args, limit)
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&floor); err != nil {
		return nil, err
	}
	return r.ListEvents(ctx, actorID, floor, limit)
}
