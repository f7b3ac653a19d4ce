// Package connectors maintains the per-tenant view of configured data
// connectors. The registry is a defensive read cache: callers rendering a
// connector list never see an error, only the last known (possibly empty)
// set.
package connectors

import (
	"context"
	"sort"
	"sync"

	"northstar/internal/config"
	"northstar/internal/domain"
)

// Store is the persistence surface the registry reads from.
type Store interface {
	ListConnectors(ctx context.Context, tenantID string) ([]domain.TenantConnector, error)
}

type Registry struct {
	Store   Store
	Catalog map[string]config.ConnectorCatalogEntry

	mu    sync.RWMutex
	cache map[string][]domain.TenantConnector
}

func NewRegistry(store Store, catalog map[string]config.ConnectorCatalogEntry) *Registry {
	return &Registry{
		Store:   store,
		Catalog: catalog,
		cache:   map[string][]domain.TenantConnector{},
	}
}

// GetAll returns the tenant's connectors, never an error and never nil. On a
// store failure it serves the cached set, or an empty slice when nothing was
// ever cached.
func (r *Registry) GetAll(ctx context.Context, tenantID string) []domain.TenantConnector {
	list, err := r.Store.ListConnectors(ctx, tenantID)
	if err != nil {
		r.mu.RLock()
		cached := r.cache[tenantID]
		r.mu.RUnlock()
		if cached == nil {
			return []domain.TenantConnector{}
		}
		return cached
	}
	if list == nil {
		list = []domain.TenantConnector{}
	}
	r.mu.Lock()
	r.cache[tenantID] = list
	r.mu.Unlock()
	return list
}

// Invalidate drops the cached set after a mutation.
func (r *Registry) Invalidate(tenantID string) {
	r.mu.Lock()
	delete(r.cache, tenantID)
	r.mu.Unlock()
}

// CatalogEntry resolves a connector type from the config catalog.
func (r *Registry) CatalogEntry(connectorID string) (config.ConnectorCatalogEntry, bool) {
	entry, ok := r.Catalog[connectorID]
	return entry, ok
}

// CatalogIDs lists the available connector types in stable order.
func (r *Registry) CatalogIDs() []string {
	ids := make([]string, 0, len(r.Catalog))
	for id := range r.Catalog {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SyncSummary tallies connector statuses after a sync-all pass.
type SyncSummary struct {
	Total   int `json:"total"`
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Summarize counts sync outcomes. Active counts as synced, error as failed,
// everything else as skipped.
func Summarize(list []domain.TenantConnector) SyncSummary {
	s := SyncSummary{Total: len(list)}
	for _, c := range list {
		switch c.Status {
		case "active":
			s.Synced++
		case "error":
			s.Failed++
		default:
			s.Skipped++
		}
	}
	return s
}

// Badge is the display treatment for a connector status.
type Badge struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// StatusBadge maps a connector status to its badge. Unknown statuses get a
// neutral badge rather than failing.
func StatusBadge(status string) Badge {
	switch status {
	case "active":
		return Badge{Label: "Connected", Color: "green"}
	case "inactive":
		return Badge{Label: "Paused", Color: "gray"}
	case "error":
		return Badge{Label: "Error", Color: "red"}
	case "syncing":
		return Badge{Label: "Syncing", Color: "blue"}
	case "testing":
		return Badge{Label: "Testing", Color: "yellow"}
	}
	return Badge{Label: status, Color: "neutral"}
}
