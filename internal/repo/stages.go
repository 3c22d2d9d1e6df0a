package repo

import (
	"context"
	"database/sql"

	"routinepet/internal/domain"
)

func (r Repo) ListStages(ctx context.Context) ([]domain.Stage, error) {
	return r.ListStagesTx(ctx, nil)
}

// ListStagesTx returns the stage catalog ascending by minimum EXP.
func (r Repo) ListStagesTx(ctx context.Context, tx *sql.Tx) ([]domain.Stage, error) {
	rows, err := r.on(tx).QueryContext(ctx, `SELECT id,name,min_total_exp,COALESCE(animation_key,''),COALESCE(image_url,'') FROM pet_stages ORDER BY min_total_exp ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Stage
	for rows.Next() {
		var s domain.Stage
		if err := rows.Scan(&s.ID, &s.Name, &s.MinTotalExp, &s.AnimationKey, &s.ImageURL); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) UpsertStageTx(ctx context.Context, tx *sql.Tx, s domain.Stage, now string) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO pet_stages(id,name,min_total_exp,animation_key,image_url,created_at,updated_at) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, min_total_exp=excluded.min_total_exp,
  animation_key=excluded.animation_key, image_url=excluded.image_url, updated_at=excluded.updated_at`,
		s.ID, s.Name, s.MinTotalExp, nullable(s.AnimationKey), nullable(s.ImageURL), now, now)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// UpsertStagesTx writes a whole catalog. Thresholds are first parked above
// every stored and incoming value, so swapping two stages' thresholds never
// trips UNIQUE(min_total_exp) halfway through.
func (r Repo) UpsertStagesTx(ctx context.Context, tx *sql.Tx, stages []domain.Stage, now string) error {
	var top int
	if err := r.on(tx).QueryRowContext(ctx, `SELECT COALESCE(MAX(min_total_exp),0) FROM pet_stages`).Scan(&top); err != nil {
		return err
	}
	for _, s := range stages {
		top = max(top, s.MinTotalExp)
	}
	offset := top + 1
	for _, s := range stages {
		parked := s
		parked.MinTotalExp += offset
		if err := r.UpsertStageTx(ctx, tx, parked, now); err != nil {
			return err
		}
	}
	for _, s := range stages {
		if err := r.UpsertStageTx(ctx, tx, s, now); err != nil {
			return err
		}
	}
	return nil
}
