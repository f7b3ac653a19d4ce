package repo

import (
	"context"
	"database/sql"

	"northstar/internal/domain"
)

func (r Repo) InsertInvitation(ctx context.Context, tx *sql.Tx, inv domain.Invitation) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO invitations(id,tenant_id,email,role,status,expires_at,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?)`, inv.ID, inv.TenantID, inv.Email, inv.Role, inv.Status, inv.ExpiresAt, inv.CreatedAt, inv.UpdatedAt)
	return err
}

func (r Repo) UpdateInvitationStatus(ctx context.Context, tx *sql.Tx, id, status, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE invitations SET status=?, updated_at=? WHERE id=?`, status, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateInvitationExpiry(ctx context.Context, tx *sql.Tx, id, expiresAt, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE invitations SET expires_at=?, updated_at=? WHERE id=?`, expiresAt, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetInvitation(ctx context.Context, id string) (domain.Invitation, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,email,role,status,expires_at,created_at,updated_at FROM invitations WHERE id=?`, id)
	return scanInvitation(row)
}

// PendingInvitationByEmail resolves duplicate-invite checks.
func (r Repo) PendingInvitationByEmail(ctx context.Context, tenantID, email string) (domain.Invitation, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,email,role,status,expires_at,created_at,updated_at
FROM invitations WHERE tenant_id=? AND email=? AND status='pending' LIMIT 1`, tenantID, email)
	return scanInvitation(row)
}

func (r Repo) ListInvitations(ctx context.Context, tenantID, status string) ([]domain.Invitation, error) {
	query := `SELECT id,tenant_id,email,role,status,expires_at,created_at,updated_at FROM invitations WHERE tenant_id=?`
	args := []any{tenantID}
	if status != "" {
		query += ` AND status=?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, inv)
	}
	return res, nil
}

func scanInvitation(row rowScanner) (domain.Invitation, error) {
	var inv domain.Invitation
	err := row.Scan(&inv.ID, &inv.TenantID, &inv.Email, &inv.Role, &inv.Status, &inv.ExpiresAt, &inv.CreatedAt, &inv.UpdatedAt)
	if err == sql.ErrNoRows {
		return inv, ErrNotFound
	}
	return inv, err
}
