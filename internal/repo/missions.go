package repo

import (
	"context"
	"database/sql"

	"routinepet/internal/domain"
)

const missionColumns = `id,title,COALESCE(description,''),type,reward_exp,period,active_from,active_to,is_active,max_completions,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMission(row rowScanner) (domain.Mission, error) {
	var (
		m        domain.Mission
		period   string
		isActive int
	)
	err := row.Scan(&m.ID, &m.Title, &m.Description, &m.Type, &m.RewardExp, &period,
		&m.ActiveFrom, &m.ActiveTo, &isActive, &m.MaxCompletions, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	m.Period = domain.Period(period)
	m.IsActive = isActive != 0
	return m, err
}

func (r Repo) GetMission(ctx context.Context, id string) (domain.Mission, error) {
	return r.GetMissionTx(ctx, nil, id)
}

func (r Repo) GetMissionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Mission, error) {
	return scanMission(r.on(tx).QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE id=?`, id))
}

// ListMissions returns every mission ordered by title.
func (r Repo) ListMissions(ctx context.Context) ([]domain.Mission, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+missionColumns+` FROM missions ORDER BY title ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) UpsertMissionTx(ctx context.Context, tx *sql.Tx, m domain.Mission) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO missions(id,title,description,type,reward_exp,period,active_from,active_to,is_active,max_completions,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET title=excluded.title, description=excluded.description, type=excluded.type,
  reward_exp=excluded.reward_exp, period=excluded.period, active_from=excluded.active_from, active_to=excluded.active_to,
  is_active=excluded.is_active, max_completions=excluded.max_completions, updated_at=excluded.updated_at`,
		m.ID, m.Title, nullable(m.Description), m.Type, m.RewardExp, string(m.Period), m.ActiveFrom, m.ActiveTo,
		boolInt(m.IsActive), m.MaxCompletions, m.CreatedAt, m.UpdatedAt)
	return err
}
