package repo

import (
	"context"
	"database/sql"

	"northstar/internal/domain"
)

// SetKV writes one tenant-scoped key. Values are opaque strings; callers that
// need structure store JSON.
func (r Repo) SetKV(ctx context.Context, tenantID, key, value, now string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO tenant_kv(tenant_id,key,value,updated_at) VALUES (?,?,?,?)
ON CONFLICT(tenant_id,key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`, tenantID, key, value, now)
	return err
}

func (r Repo) GetKV(ctx context.Context, tenantID, key string) (string, error) {
	var v string
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM tenant_kv WHERE tenant_id=? AND key=?`, tenantID, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return v, err
}

func (r Repo) DeleteKV(ctx context.Context, tenantID, key string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM tenant_kv WHERE tenant_id=? AND key=?`, tenantID, key)
	return err
}

func (r Repo) ListKV(ctx context.Context, tenantID string) (map[string]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT key,value FROM tenant_kv WHERE tenant_id=?`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		res[k] = v
	}
	return res, nil
}

// GetTenantState returns the conversational state row, or defaults when the
// tenant has never transitioned.
func (r Repo) GetTenantState(ctx context.Context, tenantID string) (domain.TenantState, error) {
	var s domain.TenantState
	var runID, runStatus sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT tenant_id,mode,research_status,last_run_id,last_run_status,updated_at FROM tenant_state WHERE tenant_id=?`, tenantID).
		Scan(&s.TenantID, &s.Mode, &s.ResearchStatus, &runID, &runStatus, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.TenantState{TenantID: tenantID, Mode: "chat", ResearchStatus: "idle"}, nil
	}
	if err != nil {
		return s, err
	}
	if runID.Valid {
		s.LastRunID = runID.String
	}
	if runStatus.Valid {
		s.LastRunStatus = runStatus.String
	}
	return s, nil
}

func (r Repo) UpsertTenantState(ctx context.Context, tx *sql.Tx, s domain.TenantState) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tenant_state(tenant_id,mode,research_status,last_run_id,last_run_status,updated_at)
VALUES (?,?,?,?,?,?)
ON CONFLICT(tenant_id) DO UPDATE SET mode=excluded.mode, research_status=excluded.research_status,
  last_run_id=excluded.last_run_id, last_run_status=excluded.last_run_status, updated_at=excluded.updated_at`,
		s.TenantID, s.Mode, s.ResearchStatus, nullable(s.LastRunID), nullable(s.LastRunStatus), s.UpdatedAt)
	return err
}
