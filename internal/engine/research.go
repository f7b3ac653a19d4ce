package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"northstar/internal/domain"
	"northstar/internal/events"
)

// StartResearch kicks off a backend planning run for a goal. Allowed only
// when every required question is resolved and the tenant is not already
// researching.
func (e *Engine) StartResearch(ctx context.Context, tenantID, goalID, actorID string) (domain.TenantState, error) {
	if e.Backend == nil {
		return domain.TenantState{}, errors.New("no backend configured")
	}
	state, err := e.Repo.GetTenantState(ctx, tenantID)
	if err != nil {
		return domain.TenantState{}, err
	}
	if err := ensureResearchTransition(state.ResearchStatus, "researching"); err != nil {
		return domain.TenantState{}, err
	}
	resolved, err := e.RequiredQuestionsResolved(ctx, tenantID)
	if err != nil {
		return domain.TenantState{}, err
	}
	if !resolved {
		return domain.TenantState{}, errors.New("required questions are unresolved")
	}
	head, err := e.currentVersion(ctx, goalID)
	if err != nil {
		return domain.TenantState{}, err
	}
	goalText, err := e.enrichedGoalText(ctx, tenantID, head.Title)
	if err != nil {
		return domain.TenantState{}, err
	}
	run, err := e.Backend.CreateRun(ctx, tenantID, goalText)
	if err != nil {
		return domain.TenantState{}, fmt.Errorf("create run: %w", err)
	}

	state.ResearchStatus = "researching"
	state.LastRunID = run.ID
	state.LastRunStatus = run.Status
	progress := domain.Message{
		ID:       e.newMessageID(),
		TenantID: tenantID,
		Role:     "system",
		Text:     fmt.Sprintf("Researching %q.", head.Title),
		ThinkingSteps: []domain.ThinkingStep{
			{Label: "Run created", Status: "done"},
			{Label: "Researching", Status: "running"},
		},
		CreatedAt: e.nowRFC3339(),
	}
	state, err = e.persistStateWithMessage(ctx, state, actorID, "research.start", events.EventPayload{"run_id": run.ID, "goal_id": goalID}, &progress)
	if err != nil {
		return domain.TenantState{}, err
	}
	if err := e.Repo.SetKV(ctx, tenantID, kvResearchMessage, progress.ID, e.nowRFC3339()); err != nil {
		return domain.TenantState{}, err
	}
	return state, nil
}

// enrichedGoalText folds answered clarifying questions into the goal text
// the backend plans against. Skipped questions contribute nothing.
func (e *Engine) enrichedGoalText(ctx context.Context, tenantID, title string) (string, error) {
	msgs, err := e.Repo.ListMessages(ctx, tenantID, "", 0)
	if err != nil {
		return "", err
	}
	parts := []string{title}
	for _, m := range msgs {
		if m.Role != "question" || m.Question == nil || !m.Question.Answered {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", m.Question.Text, m.Question.Answer))
	}
	return strings.Join(parts, ", "), nil
}

// PollResearch drives a run to completion with a bounded number of status
// polls. completed lands in ready, failed back in idle. When the poll budget
// runs out or the backend stops answering, the status drops to idle with the
// last observed run status kept on the state row.
func (e *Engine) PollResearch(ctx context.Context, tenantID, actorID string) (domain.TenantState, error) {
	if e.Backend == nil {
		return domain.TenantState{}, errors.New("no backend configured")
	}
	state, err := e.Repo.GetTenantState(ctx, tenantID)
	if err != nil {
		return domain.TenantState{}, err
	}
	if state.ResearchStatus != "researching" && state.ResearchStatus != "planning" {
		return domain.TenantState{}, fmt.Errorf("no research in progress (status %s)", state.ResearchStatus)
	}
	if state.LastRunID == "" {
		return domain.TenantState{}, errors.New("no run to poll")
	}

	attempts := 30
	var interval time.Duration
	if e.Config != nil {
		attempts = e.Config.PollAttempts()
		interval = time.Duration(e.Config.Backend.PollIntervalSeconds) * time.Second
	}

	for i := 0; i < attempts; i++ {
		run, err := e.Backend.RunStatus(ctx, state.LastRunID)
		if err != nil {
			break
		}
		state.LastRunStatus = run.Status
		switch run.Status {
		case "completed":
			state.ResearchStatus = "ready"
			e.stashPlanSeed(ctx, tenantID, run.Result)
			e.noteResearchProgress(ctx, tenantID, "Plan ready", "done")
			return e.persistState(ctx, state, actorID, "research.ready", events.EventPayload{"run_id": state.LastRunID})
		case "failed":
			state.ResearchStatus = "idle"
			e.noteResearchProgress(ctx, tenantID, "Run failed", "failed")
			return e.persistStateWithMessage(ctx, state, actorID, "research.failed", events.EventPayload{"run_id": state.LastRunID},
				systemMessage(e, tenantID, "The planning run failed. Research is back to idle; adjust the goal and try again."))
		case "running":
			if state.ResearchStatus == "researching" {
				state.ResearchStatus = "planning"
				e.noteResearchProgress(ctx, tenantID, "Backend planning", "running")
				if state, err = e.persistState(ctx, state, actorID, "research.planning", events.EventPayload{"run_id": state.LastRunID}); err != nil {
					return domain.TenantState{}, err
				}
			}
		}
		if i < attempts-1 && interval > 0 {
			select {
			case <-ctx.Done():
				return domain.TenantState{}, ctx.Err()
			case <-time.After(interval):
			}
		}
	}

	state.ResearchStatus = "idle"
	e.noteResearchProgress(ctx, tenantID, "Gave up waiting", "failed")
	return e.persistStateWithMessage(ctx, state, actorID, "research.timeout", events.EventPayload{
		"run_id":      state.LastRunID,
		"last_status": state.LastRunStatus,
	}, systemMessage(e, tenantID, fmt.Sprintf("The planning service is taking too long (last status %q). Research is back to idle; poll again later.", state.LastRunStatus)))
}

// ResetResearch abandons the current run and returns to idle.
func (e *Engine) ResetResearch(ctx context.Context, tenantID, actorID string) (domain.TenantState, error) {
	state, err := e.Repo.GetTenantState(ctx, tenantID)
	if err != nil {
		return domain.TenantState{}, err
	}
	if state.ResearchStatus == "idle" {
		return state, nil
	}
	if err := ensureResearchTransition(state.ResearchStatus, "idle"); err != nil {
		return domain.TenantState{}, err
	}
	state.ResearchStatus = "idle"
	if err := e.Repo.DeleteKV(ctx, tenantID, kvPlanSeed); err != nil {
		return domain.TenantState{}, err
	}
	return e.persistState(ctx, state, actorID, "research.reset", nil)
}

func (e *Engine) persistState(ctx context.Context, state domain.TenantState, actorID, evtType string, payload events.EventPayload) (domain.TenantState, error) {
	return e.persistStateWithMessage(ctx, state, actorID, evtType, payload, nil)
}

// persistStateWithMessage commits a state transition and, when given, a
// transcript message in the same tx so readers never see one without the
// other.
func (e *Engine) persistStateWithMessage(ctx context.Context, state domain.TenantState, actorID, evtType string, payload events.EventPayload, msg *domain.Message) (domain.TenantState, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TenantState{}, err
	}
	defer tx.Rollback()
	state.UpdatedAt = e.nowRFC3339()
	if err := e.Repo.UpsertTenantState(ctx, tx, state); err != nil {
		return domain.TenantState{}, err
	}
	if msg != nil {
		if err := e.Repo.InsertMessage(ctx, tx, *msg); err != nil {
			return domain.TenantState{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, evtType, state.TenantID, "tenant", state.TenantID, actorID, payload); err != nil {
		return domain.TenantState{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TenantState{}, err
	}
	return state, nil
}

func systemMessage(e *Engine, tenantID, text string) *domain.Message {
	return &domain.Message{
		ID:        e.newMessageID(),
		TenantID:  tenantID,
		Role:      "system",
		Text:      text,
		CreatedAt: e.nowRFC3339(),
	}
}

// noteResearchProgress appends a thinking step to the run's progress message.
// Best effort: a missing or deleted message never fails the poll.
func (e *Engine) noteResearchProgress(ctx context.Context, tenantID, label, status string) {
	id, err := e.Repo.GetKV(ctx, tenantID, kvResearchMessage)
	if err != nil || id == "" {
		return
	}
	_ = e.AppendThinkingStep(ctx, tenantID, id, label, status)
}

// stashPlanSeed keeps a completed run's result so SavePlan can prefill the
// plan without the caller retyping what the backend already produced.
func (e *Engine) stashPlanSeed(ctx context.Context, tenantID string, result *domain.RunResult) {
	if result == nil {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	_ = e.Repo.SetKV(ctx, tenantID, kvPlanSeed, string(raw), e.nowRFC3339())
}

// planSeed loads the stashed run result, if any. Malformed values read as
// absent.
func (e *Engine) planSeed(ctx context.Context, tenantID string) *domain.RunResult {
	raw, err := e.Repo.GetKV(ctx, tenantID, kvPlanSeed)
	if err != nil || raw == "" {
		return nil
	}
	var res domain.RunResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil
	}
	return &res
}
