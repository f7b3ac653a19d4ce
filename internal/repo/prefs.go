package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"northstar/internal/domain"
)

func (r Repo) InsertPreferenceSession(ctx context.Context, tx *sql.Tx, s domain.PreferenceSession) error {
	record, err := marshalJSON(s.Record)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO preference_sessions(id,tenant_id,step,record_json,status,summary,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?)`, s.ID, s.TenantID, s.Step, record, s.Status, nullable(s.Summary), s.CreatedAt, s.UpdatedAt)
	return err
}

func (r Repo) UpdatePreferenceSession(ctx context.Context, tx *sql.Tx, s domain.PreferenceSession) error {
	record, err := marshalJSON(s.Record)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE preference_sessions SET step=?, record_json=?, status=?, summary=?, updated_at=? WHERE id=?`,
		s.Step, record, s.Status, nullable(s.Summary), s.UpdatedAt, s.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetPreferenceSession(ctx context.Context, id string) (domain.PreferenceSession, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,step,record_json,status,summary,created_at,updated_at FROM preference_sessions WHERE id=?`, id)
	return scanPreferenceSession(row)
}

// OpenPreferenceSession returns the tenant's open wizard session, if any.
func (r Repo) OpenPreferenceSession(ctx context.Context, tenantID string) (domain.PreferenceSession, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,step,record_json,status,summary,created_at,updated_at
FROM preference_sessions WHERE tenant_id=? AND status='open' ORDER BY created_at DESC LIMIT 1`, tenantID)
	return scanPreferenceSession(row)
}

// LatestConfirmedPreferences returns the most recently confirmed session for
// the tenant. Skipped sessions never become the record of truth.
func (r Repo) LatestConfirmedPreferences(ctx context.Context, tenantID string) (domain.PreferenceSession, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,step,record_json,status,summary,created_at,updated_at
FROM preference_sessions WHERE tenant_id=? AND status='confirmed' ORDER BY updated_at DESC, id DESC LIMIT 1`, tenantID)
	return scanPreferenceSession(row)
}

func (r Repo) ListPreferenceSessions(ctx context.Context, tenantID string) ([]domain.PreferenceSession, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,tenant_id,step,record_json,status,summary,created_at,updated_at
FROM preference_sessions WHERE tenant_id=? ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PreferenceSession
	for rows.Next() {
		s, err := scanPreferenceSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPreferenceSession(row rowScanner) (domain.PreferenceSession, error) {
	var s domain.PreferenceSession
	var record string
	var summary sql.NullString
	err := row.Scan(&s.ID, &s.TenantID, &s.Step, &record, &s.Status, &summary, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal([]byte(record), &s.Record); err != nil {
		return s, err
	}
	if summary.Valid {
		s.Summary = summary.String
	}
	return s, nil
}
