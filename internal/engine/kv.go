package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"northstar/internal/domain"
	"northstar/internal/repo"
)

// Tenant-scoped scratch keys. Several callers read the same key, so every
// getter treats a missing or malformed value as the default instead of
// failing.
const (
	kvPrefsConfirmed   = "prefs:confirmed"
	kvDataSources      = "data:sources"
	kvSeasonality      = "seasonality:selection"
	kvDraftPlanName    = "plan:draft-name"
	kvResearchMessage  = "research:message"
	kvPlanSeed         = "research:plan-seed"
	seasonalityDefault = "revenue"
	frequencyDefault   = "monthly"
)

// PreferencesConfirmed reports whether the tenant has ever confirmed the
// preference wizard.
func (e *Engine) PreferencesConfirmed(ctx context.Context, tenantID string) (bool, error) {
	v, err := e.Repo.GetKV(ctx, tenantID, kvPrefsConfirmed)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "true", nil
}

// DataSources returns the cached data source list for the tenant. A missing
// or unparseable value reads as empty.
func (e *Engine) DataSources(ctx context.Context, tenantID string) ([]domain.DataSource, error) {
	v, err := e.Repo.GetKV(ctx, tenantID, kvDataSources)
	if errors.Is(err, repo.ErrNotFound) {
		return []domain.DataSource{}, nil
	}
	if err != nil {
		return nil, err
	}
	var list []domain.DataSource
	if err := json.Unmarshal([]byte(v), &list); err != nil || list == nil {
		return []domain.DataSource{}, nil
	}
	return list, nil
}

// SetDataSources replaces the cached data source list.
func (e *Engine) SetDataSources(ctx context.Context, tenantID string, list []domain.DataSource) error {
	if list == nil {
		list = []domain.DataSource{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return e.Repo.SetKV(ctx, tenantID, kvDataSources, string(raw), e.nowRFC3339())
}

// SeasonalitySelection returns the metric and frequency the tenant last used
// for the seasonality view, falling back to revenue/monthly.
func (e *Engine) SeasonalitySelection(ctx context.Context, tenantID string) (metric, frequency string, err error) {
	v, err := e.Repo.GetKV(ctx, tenantID, kvSeasonality)
	if errors.Is(err, repo.ErrNotFound) {
		return seasonalityDefault, frequencyDefault, nil
	}
	if err != nil {
		return "", "", err
	}
	metric, frequency, ok := strings.Cut(v, "|")
	if !ok || metric == "" || frequency == "" {
		return seasonalityDefault, frequencyDefault, nil
	}
	return metric, frequency, nil
}

// SetSeasonalitySelection remembers the last-used seasonality view.
func (e *Engine) SetSeasonalitySelection(ctx context.Context, tenantID, metric, frequency string) error {
	if metric == "" {
		metric = seasonalityDefault
	}
	if frequency == "" {
		frequency = frequencyDefault
	}
	return e.Repo.SetKV(ctx, tenantID, kvSeasonality, metric+"|"+frequency, e.nowRFC3339())
}

// DraftPlanName returns the unsaved plan name the user typed, or empty.
func (e *Engine) DraftPlanName(ctx context.Context, tenantID string) (string, error) {
	v, err := e.Repo.GetKV(ctx, tenantID, kvDraftPlanName)
	if errors.Is(err, repo.ErrNotFound) {
		return "", nil
	}
	return v, err
}

// SetDraftPlanName stashes plan name text before the plan exists. SavePlan
// consumes and clears it.
func (e *Engine) SetDraftPlanName(ctx context.Context, tenantID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return e.Repo.DeleteKV(ctx, tenantID, kvDraftPlanName)
	}
	return e.Repo.SetKV(ctx, tenantID, kvDraftPlanName, name, e.nowRFC3339())
}
