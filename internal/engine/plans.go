package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"northstar/internal/domain"
	"northstar/internal/events"
)

// PlanInput is the generated content of a plan to save.
type PlanInput struct {
	GoalID            string
	Title             string
	Summary           string
	Stages            []domain.PlanStage
	QuickWins         []string
	EstimatedDuration string
	DataSources       []domain.DataSource
	UserProvidedName  string
}

// SavePlan persists a generated plan. Saving is only allowed from ready;
// the research status returns to idle afterwards.
func (e *Engine) SavePlan(ctx context.Context, tenantID string, in PlanInput, actorID string) (domain.SavedPlan, error) {
	state, err := e.Repo.GetTenantState(ctx, tenantID)
	if err != nil {
		return domain.SavedPlan{}, err
	}
	if state.ResearchStatus != "ready" {
		return domain.SavedPlan{}, fmt.Errorf("no plan ready to save (status %s)", state.ResearchStatus)
	}
	// Fields the caller left blank come from the completed run's result.
	if seed := e.planSeed(ctx, tenantID); seed != nil {
		if in.Title == "" {
			in.Title = seed.Title
		}
		if in.Summary == "" {
			in.Summary = seed.Summary
			if len(seed.KPIs) > 0 {
				in.Summary = strings.TrimSpace(in.Summary + " " + formatKPIs(seed.KPIs))
			}
		}
		if len(in.Stages) == 0 {
			in.Stages = seed.Stages
		}
		if len(in.QuickWins) == 0 {
			in.QuickWins = seed.QuickWins
		}
		if in.EstimatedDuration == "" {
			in.EstimatedDuration = seed.EstimatedDuration
		}
	}
	if in.Title == "" {
		return domain.SavedPlan{}, errors.New("plan title is required")
	}
	if in.UserProvidedName == "" {
		draft, err := e.DraftPlanName(ctx, tenantID)
		if err != nil {
			return domain.SavedPlan{}, err
		}
		in.UserProvidedName = draft
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SavedPlan{}, err
	}
	defer tx.Rollback()

	now := e.nowRFC3339()
	p := domain.SavedPlan{
		ID:                uuid.NewString(),
		TenantID:          tenantID,
		GoalID:            in.GoalID,
		Title:             in.Title,
		Summary:           in.Summary,
		Stages:            in.Stages,
		QuickWins:         in.QuickWins,
		EstimatedDuration: in.EstimatedDuration,
		DataSources:       in.DataSources,
		Version:           1,
		UserProvidedName:  in.UserProvidedName,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := e.Repo.InsertPlan(ctx, tx, p); err != nil {
		return domain.SavedPlan{}, fmt.Errorf("insert plan: %w", err)
	}
	state.ResearchStatus = "idle"
	state.UpdatedAt = now
	if err := e.Repo.UpsertTenantState(ctx, tx, state); err != nil {
		return domain.SavedPlan{}, err
	}
	if err := e.Events.Append(ctx, tx, "plan.save", tenantID, "plan", p.ID, actorID, events.EventPayload{"title": p.Title, "goal_id": p.GoalID}); err != nil {
		return domain.SavedPlan{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SavedPlan{}, err
	}
	if err := e.Repo.DeleteKV(ctx, tenantID, kvDraftPlanName); err != nil {
		return domain.SavedPlan{}, err
	}
	if err := e.Repo.DeleteKV(ctx, tenantID, kvPlanSeed); err != nil {
		return domain.SavedPlan{}, err
	}
	if len(in.DataSources) > 0 {
		if err := e.SetDataSources(ctx, tenantID, in.DataSources); err != nil {
			return domain.SavedPlan{}, err
		}
	}
	return p, nil
}

// formatKPIs renders projected KPI figures as a sentence fragment stable
// across runs.
func formatKPIs(kpis map[string]float64) string {
	keys := make([]string, 0, len(kpis))
	for k := range kpis {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %.1f", k, kpis[k]))
	}
	return "Projected KPIs: " + strings.Join(parts, ", ") + "."
}

// RenamePlan sets the user's own name for a plan. The generated title is
// untouched and regeneration never clobbers the name.
func (e *Engine) RenamePlan(ctx context.Context, tenantID, planID, name, actorID string) (domain.SavedPlan, error) {
	p, err := e.Repo.GetPlan(ctx, planID)
	if err != nil {
		return domain.SavedPlan{}, err
	}
	if p.TenantID != tenantID {
		return domain.SavedPlan{}, errors.New("plan belongs to another tenant")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SavedPlan{}, err
	}
	defer tx.Rollback()
	now := e.nowRFC3339()
	if err := e.Repo.RenamePlan(ctx, tx, planID, name, now); err != nil {
		return domain.SavedPlan{}, err
	}
	if err := e.Events.Append(ctx, tx, "plan.rename", tenantID, "plan", planID, actorID, events.EventPayload{"name": name}); err != nil {
		return domain.SavedPlan{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SavedPlan{}, err
	}
	p.UserProvidedName = name
	p.UpdatedAt = now
	return p, nil
}

// DeletePlan removes a saved plan.
func (e *Engine) DeletePlan(ctx context.Context, tenantID, planID, actorID string) error {
	p, err := e.Repo.GetPlan(ctx, planID)
	if err != nil {
		return err
	}
	if p.TenantID != tenantID {
		return errors.New("plan belongs to another tenant")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeletePlan(ctx, tx, planID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "plan.delete", tenantID, "plan", planID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}
