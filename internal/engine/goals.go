package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"northstar/internal/domain"
	"northstar/internal/events"
	"northstar/internal/repo"
	"northstar/internal/version"
)

// SuggestGoals returns candidate goals for the tenant's confirmed
// preferences, remote first with the local catalog as fallback.
func (e *Engine) SuggestGoals(ctx context.Context, tenantID string) ([]domain.SuggestedGoal, error) {
	rec, _, err := e.CurrentPreferences(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return e.Suggester().Suggest(ctx, rec)
}

// SelectGoal turns a suggestion into version 1 of a new goal, in draft. When
// the suggestion came from the local catalog its template questions are
// queued on the transcript, oldest first.
func (e *Engine) SelectGoal(ctx context.Context, tenantID string, goal domain.SuggestedGoal, actorID string) (domain.GoalVersion, error) {
	if goal.Title == "" {
		return domain.GoalVersion{}, errors.New("goal title is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.GoalVersion{}, err
	}
	defer tx.Rollback()

	now := e.nowRFC3339()
	goalID := uuid.NewString()
	v := version.Create(uuid.NewString(), goalID, tenantID, actorID, now, version.Input{
		Title:       goal.Title,
		Description: goal.Description,
		Timeline:    goal.EstimatedDuration,
	})
	if err := e.Repo.InsertGoalVersion(ctx, tx, v); err != nil {
		return domain.GoalVersion{}, fmt.Errorf("insert goal version: %w", err)
	}
	if err := e.Repo.UpsertGoalHead(ctx, tx, goalID, tenantID, v.Version); err != nil {
		return domain.GoalVersion{}, err
	}
	if e.Config != nil {
		if tpl, ok := e.Config.Template(goal.ID); ok {
			for _, q := range tpl.Questions {
				m := domain.Message{
					ID:       e.newMessageID(),
					TenantID: tenantID,
					Role:     "question",
					Text:     q.Text,
					Question: &domain.Question{
						ID:         uuid.NewString(),
						Text:       q.Text,
						Required:   q.Required,
						Suggestion: q.Suggestion,
					},
					CreatedAt: now,
				}
				if err := e.Repo.InsertMessage(ctx, tx, m); err != nil {
					return domain.GoalVersion{}, err
				}
			}
		}
	}
	if err := e.Events.Append(ctx, tx, "goal.select", tenantID, "goal", goalID, actorID, events.EventPayload{
		"title":    v.Title,
		"version":  v.Version,
		"template": goal.ID,
	}); err != nil {
		return domain.GoalVersion{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.GoalVersion{}, err
	}
	return v, nil
}

// EditGoal appends a new version on top of the current head. Editing an old
// head forks the line forward; history is never rewritten.
func (e *Engine) EditGoal(ctx context.Context, goalID string, in version.Input, actorID string) (domain.GoalVersion, error) {
	head, err := e.currentVersion(ctx, goalID)
	if err != nil {
		return domain.GoalVersion{}, err
	}
	next := version.Append(head, uuid.NewString(), actorID, e.nowRFC3339(), in)
	// A fork from an old head would collide on (goal_id, version); place the
	// fork after the newest version instead.
	versions, err := e.Repo.ListGoalVersions(ctx, goalID)
	if err != nil {
		return domain.GoalVersion{}, err
	}
	if n := len(versions); n > 0 && versions[n-1].Version >= next.Version {
		next.Version = versions[n-1].Version + 1
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.GoalVersion{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertGoalVersion(ctx, tx, next); err != nil {
		return domain.GoalVersion{}, fmt.Errorf("insert goal version: %w", err)
	}
	if err := e.Repo.UpsertGoalHead(ctx, tx, goalID, next.TenantID, next.Version); err != nil {
		return domain.GoalVersion{}, err
	}
	if err := e.Events.Append(ctx, tx, "goal.edit", next.TenantID, "goal", goalID, actorID, events.EventPayload{
		"version": next.Version,
		"change":  next.ChangeDescription,
	}); err != nil {
		return domain.GoalVersion{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.GoalVersion{}, err
	}
	return next, nil
}

// RollbackGoal moves the head pointer to an earlier version. Nothing is
// deleted; the newer versions stay in history.
func (e *Engine) RollbackGoal(ctx context.Context, goalID string, toVersion int, actorID string) (domain.GoalVersion, error) {
	target, err := e.Repo.GetGoalVersionByNumber(ctx, goalID, toVersion)
	if err != nil {
		return domain.GoalVersion{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.GoalVersion{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertGoalHead(ctx, tx, goalID, target.TenantID, target.Version); err != nil {
		return domain.GoalVersion{}, err
	}
	if err := e.Events.Append(ctx, tx, "goal.rollback", target.TenantID, "goal", goalID, actorID, events.EventPayload{"to_version": toVersion}); err != nil {
		return domain.GoalVersion{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.GoalVersion{}, err
	}
	return target, nil
}

// ActivateGoal promotes the current head from draft to active.
func (e *Engine) ActivateGoal(ctx context.Context, goalID, actorID string) (domain.GoalVersion, error) {
	head, err := e.currentVersion(ctx, goalID)
	if err != nil {
		return domain.GoalVersion{}, err
	}
	if head.Status == "active" {
		return head, nil
	}
	if head.Status == "archived" {
		return domain.GoalVersion{}, errors.New("archived goal cannot be activated")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.GoalVersion{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateGoalVersionStatus(ctx, tx, head.ID, "active"); err != nil {
		return domain.GoalVersion{}, err
	}
	if err := e.Events.Append(ctx, tx, "goal.activate", head.TenantID, "goal", goalID, actorID, nil); err != nil {
		return domain.GoalVersion{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.GoalVersion{}, err
	}
	head.Status = "active"
	return head, nil
}

// GoalHistory returns the full ordered history with the head marked current.
func (e *Engine) GoalHistory(ctx context.Context, goalID string) (domain.VersionHistory, error) {
	versions, err := e.Repo.ListGoalVersions(ctx, goalID)
	if err != nil {
		return domain.VersionHistory{}, err
	}
	if len(versions) == 0 {
		return domain.VersionHistory{}, repo.ErrNotFound
	}
	head, err := e.Repo.GetGoalHead(ctx, goalID)
	if errors.Is(err, repo.ErrNotFound) {
		head = 0
	} else if err != nil {
		return domain.VersionHistory{}, err
	}
	return version.History(goalID, versions, head), nil
}

// DiffGoal compares two versions of a goal by version number.
func (e *Engine) DiffGoal(ctx context.Context, goalID string, fromVersion, toVersion int) (version.DiffResult, error) {
	from, err := e.Repo.GetGoalVersionByNumber(ctx, goalID, fromVersion)
	if err != nil {
		return version.DiffResult{}, err
	}
	to, err := e.Repo.GetGoalVersionByNumber(ctx, goalID, toVersion)
	if err != nil {
		return version.DiffResult{}, err
	}
	return version.Diff(from, to), nil
}

// ValidateGoal runs the SMART checks against the current head.
func (e *Engine) ValidateGoal(ctx context.Context, goalID string) (version.SMARTResult, error) {
	head, err := e.currentVersion(ctx, goalID)
	if err != nil {
		return version.SMARTResult{}, err
	}
	return version.ValidateSMART(head), nil
}

// GoalProgress scores the current head from its metrics.
func (e *Engine) GoalProgress(ctx context.Context, goalID string) (float64, error) {
	head, err := e.currentVersion(ctx, goalID)
	if err != nil {
		return 0, err
	}
	return version.Progress(head), nil
}

func (e *Engine) currentVersion(ctx context.Context, goalID string) (domain.GoalVersion, error) {
	head, err := e.Repo.GetGoalHead(ctx, goalID)
	if errors.Is(err, repo.ErrNotFound) {
		versions, err := e.Repo.ListGoalVersions(ctx, goalID)
		if err != nil {
			return domain.GoalVersion{}, err
		}
		if len(versions) == 0 {
			return domain.GoalVersion{}, repo.ErrNotFound
		}
		return versions[len(versions)-1], nil
	}
	if err != nil {
		return domain.GoalVersion{}, err
	}
	return e.Repo.GetGoalVersionByNumber(ctx, goalID, head)
}
