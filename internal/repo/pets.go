package repo

import (
	"context"
	"database/sql"

	"routinepet/internal/domain"
)

func (r Repo) GetPet(ctx context.Context, actorID string) (domain.Pet, error) {
	return r.GetPetTx(ctx, nil, actorID)
}

func (r Repo) GetPetTx(ctx context.Context, tx *sql.Tx, actorID string) (domain.Pet, error) {
	var p domain.Pet
	err := r.on(tx).QueryRowContext(ctx, `SELECT id,user_id,total_exp,current_stage_id,created_at,updated_at FROM pets WHERE user_id=?`, actorID).
		Scan(&p.ID, &p.ActorID, &p.TotalExp, &p.CurrentStageID, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) InsertPetTx(ctx context.Context, tx *sql.Tx, p domain.Pet) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO pets(id,user_id,total_exp,current_stage_id,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		p.ID, p.ActorID, p.TotalExp, p.CurrentStageID, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// UpdatePetProgressTx writes exp and stage together, but only if total_exp
// still equals expectedExp. A stale read yields ErrConflict.
func (r Repo) UpdatePetProgressTx(ctx context.Context, tx *sql.Tx, actorID string, expectedExp, totalExp int, stageID int64, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE pets SET total_exp=?, current_stage_id=?, updated_at=? WHERE user_id=? AND total_exp=?`,
		totalExp, stageID, now, actorID, expectedExp)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// SetPetProgressTx overwrites exp and stage. Used by reset.
func (r Repo) SetPetProgressTx(ctx context.Context, tx *sql.Tx, actorID string, totalExp int, stageID int64, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE pets SET total_exp=?, current_stage_id=?, updated_at=? WHERE user_id=?`,
		totalExp, stageID, now, actorID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPetsTx returns every pet, ordered by actor.
func (r Repo) ListPetsTx(ctx context.Context, tx *sql.Tx) ([]domain.Pet, error) {
	rows, err := r.on(tx).QueryContext(ctx, `SELECT id,user_id,total_exp,current_stage_id,created_at,updated_at FROM pets ORDER BY user_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Pet
	for rows.Next() {
		var p domain.Pet
		if err := rows.Scan(&p.ID, &p.ActorID, &p.TotalExp, &p.CurrentStageID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
