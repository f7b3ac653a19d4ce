package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"northstar/internal/connectors"
	"northstar/internal/domain"
	"northstar/internal/events"
)

// AddConnector configures a connector from the catalog. The display name
// defaults to the catalog name and the status to active unless the caller
// overrides it.
func (e *Engine) AddConnector(ctx context.Context, tenantID, connectorID, displayName, status string, cfg map[string]string, actorID string) (domain.TenantConnector, error) {
	entry, ok := e.Registry.CatalogEntry(connectorID)
	if !ok {
		return domain.TenantConnector{}, fmt.Errorf("connector %q not in catalog", connectorID)
	}
	if displayName == "" {
		displayName = entry.Name
	}
	if status == "" {
		status = "active"
	}
	switch status {
	case "active", "inactive", "testing":
	default:
		return domain.TenantConnector{}, fmt.Errorf("status %q is not a valid option", status)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TenantConnector{}, err
	}
	defer tx.Rollback()

	c := domain.TenantConnector{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		ConnectorID: connectorID,
		DisplayName: displayName,
		Category:    entry.Category,
		Config:      cfg,
		DataTypes:   entry.DataTypes,
		Status:      status,
		CreatedAt:   e.nowRFC3339(),
	}
	if err := e.Repo.InsertConnector(ctx, tx, c); err != nil {
		return domain.TenantConnector{}, fmt.Errorf("insert connector: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "connector.add", tenantID, "connector", c.ID, actorID, events.EventPayload{"connector_id": connectorID}); err != nil {
		return domain.TenantConnector{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TenantConnector{}, err
	}
	e.Registry.Invalidate(tenantID)
	return c, nil
}

// RemoveConnector deletes a configured connector.
func (e *Engine) RemoveConnector(ctx context.Context, tenantID, id, actorID string) error {
	c, err := e.Repo.GetConnector(ctx, id)
	if err != nil {
		return err
	}
	if c.TenantID != tenantID {
		return errors.New("connector belongs to another tenant")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteConnector(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "connector.remove", tenantID, "connector", id, actorID, nil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.Registry.Invalidate(tenantID)
	return nil
}

// SyncConnector runs one sync through the backend and records the outcome on
// the row. A backend failure marks the connector errored instead of failing
// the call.
func (e *Engine) SyncConnector(ctx context.Context, tenantID, id, actorID string) (domain.TenantConnector, error) {
	c, err := e.Repo.GetConnector(ctx, id)
	if err != nil {
		return domain.TenantConnector{}, err
	}
	if c.TenantID != tenantID {
		return domain.TenantConnector{}, errors.New("connector belongs to another tenant")
	}

	status, errMsg := "error", "planning service unreachable"
	recordCount := c.Metadata.RecordCount
	lastSync := c.LastSync
	if e.Backend != nil {
		res, err := e.Backend.SyncConnector(ctx, tenantID, c.ConnectorID)
		if err == nil {
			if res.Status == "" {
				res.Status = "active"
			}
			status, errMsg = res.Status, res.Error
			recordCount = res.RecordCount
			lastSync = res.SyncedAt
			if lastSync == "" {
				lastSync = e.nowRFC3339()
			}
		} else {
			errMsg = err.Error()
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TenantConnector{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateConnectorSync(ctx, tx, id, status, lastSync, recordCount, errMsg); err != nil {
		return domain.TenantConnector{}, err
	}
	if err := e.Events.Append(ctx, tx, "connector.sync", tenantID, "connector", id, actorID, events.EventPayload{"status": status}); err != nil {
		return domain.TenantConnector{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TenantConnector{}, err
	}
	e.Registry.Invalidate(tenantID)

	c.Status = status
	c.LastSync = lastSync
	c.Metadata = domain.ConnectorMetadata{RecordCount: recordCount, ErrorMessage: errMsg}
	return c, nil
}

// SyncAllConnectors syncs every configured connector and tallies the
// outcomes. One failing connector does not stop the rest.
func (e *Engine) SyncAllConnectors(ctx context.Context, tenantID, actorID string) (connectors.SyncSummary, error) {
	list, err := e.Repo.ListConnectors(ctx, tenantID)
	if err != nil {
		return connectors.SyncSummary{}, err
	}
	updated := make([]domain.TenantConnector, 0, len(list))
	for _, c := range list {
		res, err := e.SyncConnector(ctx, tenantID, c.ID, actorID)
		if err != nil {
			c.Status = "error"
			updated = append(updated, c)
			continue
		}
		updated = append(updated, res)
	}
	return connectors.Summarize(updated), nil
}

// ListConnectors returns the tenant's connectors through the defensive
// registry cache, never failing the render path.
func (e *Engine) ListConnectors(ctx context.Context, tenantID string) []domain.TenantConnector {
	return e.Registry.GetAll(ctx, tenantID)
}
