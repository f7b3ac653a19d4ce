package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"northstar/internal/domain"
)

func (r Repo) InsertPlan(ctx context.Context, tx *sql.Tx, p domain.SavedPlan) error {
	stages, err := marshalJSON(p.Stages)
	if err != nil {
		return err
	}
	quickWins, err := marshalJSON(p.QuickWins)
	if err != nil {
		return err
	}
	sources, err := marshalJSON(p.DataSources)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO plans(id,tenant_id,goal_id,title,summary,stages_json,quick_wins_json,estimated_duration,data_sources_json,version,user_provided_name,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.TenantID, nullable(p.GoalID), p.Title, nullable(p.Summary), stages, quickWins,
		nullable(p.EstimatedDuration), sources, p.Version, nullable(p.UserProvidedName), p.CreatedAt, p.UpdatedAt)
	return err
}

// RenamePlan sets the user-provided name without touching generated content.
func (r Repo) RenamePlan(ctx context.Context, tx *sql.Tx, id, name, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE plans SET user_provided_name=?, updated_at=? WHERE id=?`, nullable(name), now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeletePlan(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM plans WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetPlan(ctx context.Context, id string) (domain.SavedPlan, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,goal_id,title,summary,stages_json,quick_wins_json,estimated_duration,data_sources_json,version,user_provided_name,created_at,updated_at
FROM plans WHERE id=?`, id)
	return scanPlan(row)
}

func (r Repo) ListPlans(ctx context.Context, tenantID string) ([]domain.SavedPlan, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,tenant_id,goal_id,title,summary,stages_json,quick_wins_json,estimated_duration,data_sources_json,version,user_provided_name,created_at,updated_at
FROM plans WHERE tenant_id=? ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SavedPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}

func scanPlan(row rowScanner) (domain.SavedPlan, error) {
	var p domain.SavedPlan
	var goalID, summary, stages, quickWins, duration, sources, name sql.NullString
	err := row.Scan(&p.ID, &p.TenantID, &goalID, &p.Title, &summary, &stages, &quickWins, &duration, &sources, &p.Version, &name, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if goalID.Valid {
		p.GoalID = goalID.String
	}
	if summary.Valid {
		p.Summary = summary.String
	}
	if stages.Valid && stages.String != "" {
		if err := json.Unmarshal([]byte(stages.String), &p.Stages); err != nil {
			return p, err
		}
	}
	p.QuickWins = decodeStringSlice(quickWins)
	if duration.Valid {
		p.EstimatedDuration = duration.String
	}
	if sources.Valid && sources.String != "" {
		if err := json.Unmarshal([]byte(sources.String), &p.DataSources); err != nil {
			return p, err
		}
	}
	if name.Valid {
		p.UserProvidedName = name.String
	}
	return p, nil
}
