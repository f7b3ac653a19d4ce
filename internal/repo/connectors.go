package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"northstar/internal/domain"
)

func (r Repo) InsertConnector(ctx context.Context, tx *sql.Tx, c domain.TenantConnector) error {
	cfg, err := marshalJSON(c.Config)
	if err != nil {
		return err
	}
	dataTypes, err := marshalJSON(c.DataTypes)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO connectors(id,tenant_id,connector_id,display_name,category,config_json,data_types_json,status,last_sync,record_count,error_message,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.TenantID, c.ConnectorID, c.DisplayName, nullable(c.Category), cfg, dataTypes,
		c.Status, nullable(c.LastSync), c.Metadata.RecordCount, nullable(c.Metadata.ErrorMessage), c.CreatedAt)
	return err
}

// UpdateConnectorSync records the outcome of one sync attempt.
func (r Repo) UpdateConnectorSync(ctx context.Context, tx *sql.Tx, id, status, lastSync string, recordCount int, errorMessage string) error {
	res, err := tx.ExecContext(ctx, `UPDATE connectors SET status=?, last_sync=?, record_count=?, error_message=? WHERE id=?`,
		status, nullable(lastSync), recordCount, nullable(errorMessage), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateConnectorStatus(ctx context.Context, tx *sql.Tx, id, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE connectors SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteConnector(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM connectors WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetConnector(ctx context.Context, id string) (domain.TenantConnector, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,connector_id,display_name,category,config_json,data_types_json,status,last_sync,record_count,error_message,created_at
FROM connectors WHERE id=?`, id)
	return scanConnector(row)
}

func (r Repo) ListConnectors(ctx context.Context, tenantID string) ([]domain.TenantConnector, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,tenant_id,connector_id,display_name,category,config_json,data_types_json,status,last_sync,record_count,error_message,created_at
FROM connectors WHERE tenant_id=? ORDER BY created_at ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TenantConnector
	for rows.Next() {
		c, err := scanConnector(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, nil
}

func scanConnector(row rowScanner) (domain.TenantConnector, error) {
	var c domain.TenantConnector
	var category, cfg, dataTypes, lastSync, errMsg sql.NullString
	err := row.Scan(&c.ID, &c.TenantID, &c.ConnectorID, &c.DisplayName, &category, &cfg, &dataTypes, &c.Status, &lastSync, &c.Metadata.RecordCount, &errMsg, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if category.Valid {
		c.Category = category.String
	}
	if cfg.Valid && cfg.String != "" {
		if err := json.Unmarshal([]byte(cfg.String), &c.Config); err != nil {
			return c, err
		}
	}
	c.DataTypes = decodeStringSlice(dataTypes)
	if lastSync.Valid {
		c.LastSync = lastSync.String
	}
	if errMsg.Valid {
		c.Metadata.ErrorMessage = errMsg.String
	}
	return c, nil
}
