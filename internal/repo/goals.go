package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"northstar/internal/domain"
)

func (r Repo) InsertGoalVersion(ctx context.Context, tx *sql.Tx, v domain.GoalVersion) error {
	metrics, err := marshalJSON(v.Metrics)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO goal_versions(id,goal_id,tenant_id,version,parent_id,title,description,metrics_json,timeline,status,created_at,created_by,change_description)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		v.ID, v.GoalID, v.TenantID, v.Version, nullableStringPtr(v.ParentID), v.Title, nullable(v.Description),
		metrics, nullable(v.Timeline), v.Status, v.CreatedAt, v.CreatedBy, nullable(v.ChangeDescription))
	return err
}

func (r Repo) UpdateGoalVersionStatus(ctx context.Context, tx *sql.Tx, id, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE goal_versions SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetGoalVersion(ctx context.Context, id string) (domain.GoalVersion, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,goal_id,tenant_id,version,parent_id,title,description,metrics_json,timeline,status,created_at,created_by,change_description
FROM goal_versions WHERE id=?`, id)
	return scanGoalVersion(row)
}

func (r Repo) GetGoalVersionByNumber(ctx context.Context, goalID string, version int) (domain.GoalVersion, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,goal_id,tenant_id,version,parent_id,title,description,metrics_json,timeline,status,created_at,created_by,change_description
FROM goal_versions WHERE goal_id=? AND version=?`, goalID, version)
	return scanGoalVersion(row)
}

// ListGoalVersions returns every version of a goal in ascending version order.
func (r Repo) ListGoalVersions(ctx context.Context, goalID string) ([]domain.GoalVersion, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,goal_id,tenant_id,version,parent_id,title,description,metrics_json,timeline,status,created_at,created_by,change_description
FROM goal_versions WHERE goal_id=? ORDER BY version ASC`, goalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.GoalVersion
	for rows.Next() {
		v, err := scanGoalVersion(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, nil
}

// ListGoals returns the latest version of every goal the tenant owns.
func (r Repo) ListGoals(ctx context.Context, tenantID string) ([]domain.GoalVersion, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT v.id,v.goal_id,v.tenant_id,v.version,v.parent_id,v.title,v.description,v.metrics_json,v.timeline,v.status,v.created_at,v.created_by,v.change_description
FROM goal_versions v
JOIN (SELECT goal_id, MAX(version) AS version FROM goal_versions WHERE tenant_id=? GROUP BY goal_id) latest
  ON v.goal_id=latest.goal_id AND v.version=latest.version
ORDER BY v.created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.GoalVersion
	for rows.Next() {
		v, err := scanGoalVersion(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, nil
}

func (r Repo) UpsertGoalHead(ctx context.Context, tx *sql.Tx, goalID, tenantID string, currentVersion int) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO goal_heads(goal_id,tenant_id,current_version) VALUES (?,?,?)
ON CONFLICT(goal_id) DO UPDATE SET current_version=excluded.current_version`, goalID, tenantID, currentVersion)
	return err
}

func (r Repo) GetGoalHead(ctx context.Context, goalID string) (int, error) {
	var v int
	err := r.DB.QueryRowContext(ctx, `SELECT current_version FROM goal_heads WHERE goal_id=?`, goalID).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	return v, err
}

func scanGoalVersion(row rowScanner) (domain.GoalVersion, error) {
	var v domain.GoalVersion
	var parent, desc, metrics, timeline, change sql.NullString
	err := row.Scan(&v.ID, &v.GoalID, &v.TenantID, &v.Version, &parent, &v.Title, &desc, &metrics, &timeline, &v.Status, &v.CreatedAt, &v.CreatedBy, &change)
	if err == sql.ErrNoRows {
		return v, ErrNotFound
	}
	if err != nil {
		return v, err
	}
	if parent.Valid {
		p := parent.String
		v.ParentID = &p
	}
	if desc.Valid {
		v.Description = desc.String
	}
	if metrics.Valid && metrics.String != "" {
		if err := json.Unmarshal([]byte(metrics.String), &v.Metrics); err != nil {
			return v, err
		}
	}
	if timeline.Valid {
		v.Timeline = timeline.String
	}
	if change.Valid {
		v.ChangeDescription = change.String
	}
	return v, nil
}
