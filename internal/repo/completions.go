package repo

import (
	"context"
	"database/sql"

	"routinepet/internal/domain"
)

// InsertCompletionTx records one completion. A second record for the same
// (actor, mission, completion_ref) fails with ErrDuplicate.
func (r Repo) InsertCompletionTx(ctx context.Context, tx *sql.Tx, c domain.Completion) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO user_missions(id,user_id,mission_id,completion_ref,completed_on,completed_at,reward_exp) VALUES (?,?,?,?,?,?,?)`,
		c.ID, c.ActorID, c.MissionID, c.CompletionRef, c.CompletedOn, c.CompletedAt, c.RewardExp)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// ListCompletionsTx returns the actor's completions of one mission, oldest first.
func (r Repo) ListCompletionsTx(ctx context.Context, tx *sql.Tx, actorID, missionID string) ([]domain.Completion, error) {
	rows, err := r.on(tx).QueryContext(ctx, `SELECT id,user_id,mission_id,completion_ref,completed_on,completed_at,reward_exp
FROM user_missions WHERE user_id=? AND mission_id=? ORDER BY completed_at ASC, id ASC`, actorID, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Completion
	for rows.Next() {
		var c domain.Completion
		if err := rows.Scan(&c.ID, &c.ActorID, &c.MissionID, &c.CompletionRef, &c.CompletedOn, &c.CompletedAt, &c.RewardExp); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) CountCompletions(ctx context.Context, actorID, missionID string) (int, error) {
	return r.CountCompletionsTx(ctx, nil, actorID, missionID)
}

func (r Repo) CountCompletionsTx(ctx context.Context, tx *sql.Tx, actorID, missionID string) (int, error) {
	var n int
	err := r.on(tx).QueryRowContext(ctx, `SELECT count(*) FROM user_missions WHERE user_id=? AND mission_id=?`, actorID, missionID).Scan(&n)
	return n, err
}

// CompletionCounts returns the actor's completion count per mission id.
func (r Repo) CompletionCounts(ctx context.Context, actorID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT mission_id, count(*) FROM user_missions WHERE user_id=? GROUP BY mission_id`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		res[id] = n
	}
	return res, rows.Err()
}

// CompletedOn returns the set of mission ids the actor completed on date.
func (r Repo) CompletedOn(ctx context.Context, actorID, date string) (map[string]bool, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT DISTINCT mission_id FROM user_missions WHERE user_id=? AND completed_on=?`, actorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res[id] = true
	}
	return res, rows.Err()
}

// DeleteCompletionsTx removes every completion of the actor and reports how many went.
func (r Repo) DeleteCompletionsTx(ctx context.Context, tx *sql.Tx, actorID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM user_missions WHERE user_id=?`, actorID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
