package engine

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"northstar/internal/backend"
	"northstar/internal/config"
	"northstar/internal/connectors"
	"northstar/internal/domain"
	"northstar/internal/events"
	"northstar/internal/repo"
	"northstar/internal/suggest"
)

// Engine owns all state transitions for a workspace. Methods are
// transactional: state rows and their events commit together.
type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Backend  backend.Service
	Registry *connectors.Registry
	Now      func() time.Time

	entropy *rand.Rand
}

func New(db *sql.DB, cfg *config.Config, svc backend.Service) *Engine {
	r := repo.Repo{DB: db}
	var catalog map[string]config.ConnectorCatalogEntry
	if cfg != nil {
		catalog = cfg.Connectors.Catalog
	}
	return &Engine{
		DB:       db,
		Repo:     r,
		Events:   events.Writer{DB: db},
		Config:   cfg,
		Backend:  svc,
		Registry: connectors.NewRegistry(r, catalog),
		Now:      time.Now,
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

// newMessageID returns a ULID stamped with the engine clock so transcript
// order matches id order even under a fixed test clock.
func (e *Engine) newMessageID() string {
	if e.entropy == nil {
		e.entropy = rand.New(rand.NewSource(e.now().UnixNano()))
	}
	return ulid.MustNew(ulid.Timestamp(e.now().UTC()), e.entropy).String()
}

// Suggester assembles the remote-with-local-fallback suggestion chain.
func (e *Engine) Suggester() suggest.Suggester {
	local := suggest.CatalogSuggester{Config: e.Config}
	if e.Backend == nil {
		return local
	}
	return suggest.WithFallback{
		Primary:  suggest.RemoteSuggester{Backend: e.Backend},
		Fallback: local,
	}
}

// InitTenant creates the workspace tenant with its default config.
func (e *Engine) InitTenant(ctx context.Context, tenantID, name, actorID string) (domain.Tenant, error) {
	if tenantID == "" {
		return domain.Tenant{}, fmt.Errorf("tenant id is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Tenant{}, err
	}
	defer tx.Rollback()

	now := e.nowRFC3339()
	t := domain.Tenant{
		ID:        tenantID,
		Name:      name,
		PlanTier:  "starter",
		Status:    "active",
		CreatedAt: now,
	}
	if t.Name == "" {
		t.Name = tenantID
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO tenants(id,name,plan_tier,status,created_at) VALUES (?,?,?,?,?)`,
		t.ID, t.Name, t.PlanTier, t.Status, t.CreatedAt); err != nil {
		return domain.Tenant{}, fmt.Errorf("insert tenant: %w", err)
	}
	if err := e.Repo.UpsertTenantConfigTx(ctx, tx, t.ID, config.Default(t.ID)); err != nil {
		return domain.Tenant{}, fmt.Errorf("insert tenant config: %w", err)
	}
	if err := e.Repo.EnsureActor(ctx, tx, actorID, now); err != nil {
		return domain.Tenant{}, err
	}
	if err := e.Events.Append(ctx, tx, "tenant.init", t.ID, "tenant", t.ID, actorID, events.EventPayload{"plan_tier": t.PlanTier}); err != nil {
		return domain.Tenant{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Tenant{}, err
	}
	return t, nil
}

// State returns the persisted conversational state.
func (e *Engine) State(ctx context.Context, tenantID string) (domain.TenantState, error) {
	return e.Repo.GetTenantState(ctx, tenantID)
}

// SetMode switches the assistant surface. Invalid targets are rejected;
// switching away from a surface never loses state, it only changes what is
// shown.
func (e *Engine) SetMode(ctx context.Context, tenantID, mode, actorID string) (domain.TenantState, error) {
	if !validMode(mode) {
		return domain.TenantState{}, fmt.Errorf("unknown mode %q", mode)
	}
	state, err := e.Repo.GetTenantState(ctx, tenantID)
	if err != nil {
		return domain.TenantState{}, err
	}
	if state.Mode == mode {
		return state, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TenantState{}, err
	}
	defer tx.Rollback()

	prev := state.Mode
	state.Mode = mode
	state.UpdatedAt = e.nowRFC3339()
	if err := e.Repo.UpsertTenantState(ctx, tx, state); err != nil {
		return domain.TenantState{}, err
	}
	if err := e.Events.Append(ctx, tx, "mode.switch", tenantID, "tenant", tenantID, actorID, events.EventPayload{"from": prev, "to": mode}); err != nil {
		return domain.TenantState{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TenantState{}, err
	}
	return state, nil
}

func validMode(mode string) bool {
	switch mode {
	case "chat", "data-upload", "goal-editing", "version-history", "connectors":
		return true
	}
	return false
}

// ensureResearchTransition validates a research status change.
func ensureResearchTransition(from, to string) error {
	allowed := map[string][]string{
		"idle":        {"researching"},
		"researching": {"planning", "idle"},
		"planning":    {"ready", "idle"},
		"ready":       {"idle", "researching"},
	}
	for _, t := range allowed[from] {
		if t == to {
			return nil
		}
	}
	return fmt.Errorf("invalid research transition %s -> %s", from, to)
}
