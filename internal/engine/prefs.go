package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"northstar/internal/domain"
	"northstar/internal/events"
	"northstar/internal/prefs"
	"northstar/internal/repo"
)

// StartPreferences opens a wizard session, reusing an existing open one. A
// fresh session is seeded from the backend profile when reachable; profile
// fetch failures start the wizard blank.
func (e *Engine) StartPreferences(ctx context.Context, tenantID, actorID string) (domain.PreferenceSession, error) {
	if existing, err := e.Repo.OpenPreferenceSession(ctx, tenantID); err == nil {
		return existing, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.PreferenceSession{}, err
	}

	var rec domain.PreferenceRecord
	if e.Backend != nil {
		if profile, err := e.Backend.FetchProfile(ctx, tenantID); err == nil {
			rec = prefs.Prefill(e.Config, profile)
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.PreferenceSession{}, err
	}
	defer tx.Rollback()

	now := e.nowRFC3339()
	s := domain.PreferenceSession{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Step:      prefs.FirstStep,
		Record:    rec,
		Status:    "open",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.Repo.InsertPreferenceSession(ctx, tx, s); err != nil {
		return domain.PreferenceSession{}, fmt.Errorf("insert preference session: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "prefs.start", tenantID, "preference_session", s.ID, actorID, nil); err != nil {
		return domain.PreferenceSession{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.PreferenceSession{}, err
	}
	return s, nil
}

// UpdatePreference applies one selection to the open session.
func (e *Engine) UpdatePreference(ctx context.Context, tenantID, field, value, actorID string) (domain.PreferenceSession, error) {
	return e.mutateOpenSession(ctx, tenantID, actorID, "prefs.update", func(s *domain.PreferenceSession) error {
		rec, err := prefs.Apply(e.Config, s.Record, field, value)
		if err != nil {
			return err
		}
		s.Record = rec
		return nil
	})
}

// AdvancePreferences moves the wizard forward one step, clamped at the end.
func (e *Engine) AdvancePreferences(ctx context.Context, tenantID, actorID string) (domain.PreferenceSession, error) {
	return e.mutateOpenSession(ctx, tenantID, actorID, "prefs.advance", func(s *domain.PreferenceSession) error {
		s.Step = prefs.Advance(s.Step)
		return nil
	})
}

// BackPreferences moves the wizard back one step, clamped at the start.
func (e *Engine) BackPreferences(ctx context.Context, tenantID, actorID string) (domain.PreferenceSession, error) {
	return e.mutateOpenSession(ctx, tenantID, actorID, "prefs.back", func(s *domain.PreferenceSession) error {
		s.Step = prefs.Back(s.Step)
		return nil
	})
}

// ResetPreferences clears every selection and returns to the first step. The
// session stays open.
func (e *Engine) ResetPreferences(ctx context.Context, tenantID, actorID string) (domain.PreferenceSession, error) {
	return e.mutateOpenSession(ctx, tenantID, actorID, "prefs.reset", func(s *domain.PreferenceSession) error {
		s.Record = domain.PreferenceRecord{}
		s.Step = prefs.FirstStep
		return nil
	})
}

// ConfirmPreferences closes the session and freezes its summary. Confirming
// is terminal; later edits need a new session.
func (e *Engine) ConfirmPreferences(ctx context.Context, tenantID, actorID string) (domain.PreferenceSession, error) {
	s, err := e.mutateOpenSession(ctx, tenantID, actorID, "prefs.confirm", func(s *domain.PreferenceSession) error {
		s.Status = "confirmed"
		s.Summary = prefs.Summarize(s.Record)
		return nil
	})
	if err != nil {
		return s, err
	}
	if err := e.Repo.SetKV(ctx, tenantID, kvPrefsConfirmed, "true", e.nowRFC3339()); err != nil {
		return s, err
	}
	return s, nil
}

// SkipPreferences abandons the wizard. Skipped sessions never become the
// preference record of truth.
func (e *Engine) SkipPreferences(ctx context.Context, tenantID, actorID string) (domain.PreferenceSession, error) {
	return e.mutateOpenSession(ctx, tenantID, actorID, "prefs.skip", func(s *domain.PreferenceSession) error {
		s.Status = "skipped"
		return nil
	})
}

// CurrentPreferences returns the latest confirmed record, or an empty record
// when the tenant never confirmed one.
func (e *Engine) CurrentPreferences(ctx context.Context, tenantID string) (domain.PreferenceRecord, string, error) {
	s, err := e.Repo.LatestConfirmedPreferences(ctx, tenantID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.PreferenceRecord{}, prefs.Summarize(domain.PreferenceRecord{}), nil
	}
	if err != nil {
		return domain.PreferenceRecord{}, "", err
	}
	return s.Record, s.Summary, nil
}

func (e *Engine) mutateOpenSession(ctx context.Context, tenantID, actorID, evtType string, mutate func(*domain.PreferenceSession) error) (domain.PreferenceSession, error) {
	s, err := e.Repo.OpenPreferenceSession(ctx, tenantID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.PreferenceSession{}, fmt.Errorf("no open preference session")
	}
	if err != nil {
		return domain.PreferenceSession{}, err
	}
	if err := mutate(&s); err != nil {
		return domain.PreferenceSession{}, err
	}
	s.UpdatedAt = e.nowRFC3339()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.PreferenceSession{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdatePreferenceSession(ctx, tx, s); err != nil {
		return domain.PreferenceSession{}, err
	}
	payload := events.EventPayload{"step": s.Step, "status": s.Status}
	if s.Summary != "" {
		payload["summary"] = s.Summary
	}
	if err := e.Events.Append(ctx, tx, evtType, tenantID, "preference_session", s.ID, actorID, payload); err != nil {
		return domain.PreferenceSession{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.PreferenceSession{}, err
	}
	return s, nil
}
