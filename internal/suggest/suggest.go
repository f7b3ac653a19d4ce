// Package suggest produces goal suggestions for a tenant, either from the
// local template catalog or from the remote recommendation service.
package suggest

import (
	"context"
	"sort"

	"northstar/internal/config"
	"northstar/internal/domain"
)

// Suggester produces candidate goals for a preference record.
type Suggester interface {
	Suggest(ctx context.Context, rec domain.PreferenceRecord) ([]domain.SuggestedGoal, error)
}

// CatalogSuggester matches the config goal templates against the record.
// It is deterministic: same record and catalog, same output.
type CatalogSuggester struct {
	Config *config.Config
	Limit  int
}

func (s CatalogSuggester) Suggest(_ context.Context, rec domain.PreferenceRecord) ([]domain.SuggestedGoal, error) {
	var out []domain.SuggestedGoal
	for _, tpl := range s.Config.Goals.Templates {
		if !matchesBusinessType(tpl, rec.BusinessType) {
			continue
		}
		if !matchesObjectives(tpl, rec.ObjectiveFocus) {
			continue
		}
		out = append(out, domain.SuggestedGoal{
			ID:                tpl.ID,
			Title:             tpl.Title,
			Description:       tpl.Description,
			Priority:          tpl.Priority,
			EstimatedDuration: tpl.EstimatedDuration,
			ExpectedImpact:    tpl.ExpectedImpact,
			Icon:              tpl.Icon,
		})
	}
	// Stable keeps catalog order within the same priority.
	sort.SliceStable(out, func(i, j int) bool {
		return priorityRank(out[i].Priority) < priorityRank(out[j].Priority)
	})
	if s.Limit > 0 && len(out) > s.Limit {
		out = out[:s.Limit]
	}
	return out, nil
}

// An empty criteria list on the template matches any record; an unset record
// field matches any template.
func matchesBusinessType(tpl config.GoalTemplate, businessType string) bool {
	if len(tpl.BusinessTypes) == 0 || businessType == "" {
		return true
	}
	for _, t := range tpl.BusinessTypes {
		if t == businessType {
			return true
		}
	}
	return false
}

func matchesObjectives(tpl config.GoalTemplate, objectives []string) bool {
	if len(tpl.Objectives) == 0 || len(objectives) == 0 {
		return true
	}
	for _, want := range tpl.Objectives {
		for _, have := range objectives {
			if want == have {
				return true
			}
		}
	}
	return false
}

func priorityRank(p string) int {
	switch p {
	case "high":
		return 0
	case "medium":
		return 1
	case "low":
		return 2
	}
	return 3
}

// Recommender is the remote recommendation call. Satisfied by backend.Client.
type Recommender interface {
	Recommendations(ctx context.Context, rec domain.PreferenceRecord) ([]domain.SuggestedGoal, error)
}

// RemoteSuggester asks the backend recommendation service.
type RemoteSuggester struct {
	Backend Recommender
}

func (s RemoteSuggester) Suggest(ctx context.Context, rec domain.PreferenceRecord) ([]domain.SuggestedGoal, error) {
	return s.Backend.Recommendations(ctx, rec)
}

// WithFallback tries primary first and falls back when it errors or returns
// nothing. The fallback path never surfaces the primary's error.
type WithFallback struct {
	Primary  Suggester
	Fallback Suggester
}

func (s WithFallback) Suggest(ctx context.Context, rec domain.PreferenceRecord) ([]domain.SuggestedGoal, error) {
	goals, err := s.Primary.Suggest(ctx, rec)
	if err == nil && len(goals) > 0 {
		return goals, nil
	}
	return s.Fallback.Suggest(ctx, rec)
}
