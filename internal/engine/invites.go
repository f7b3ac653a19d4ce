package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"northstar/internal/domain"
	"northstar/internal/events"
	"northstar/internal/repo"
)

// CreateInvitation invites a teammate by email. One pending invitation per
// address; expiry comes from config.
func (e *Engine) CreateInvitation(ctx context.Context, tenantID, email, role, actorID string) (domain.Invitation, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.Invitation{}, fmt.Errorf("invalid email %q", email)
	}
	if role == "" {
		role = "member"
	}
	if _, err := e.Repo.PendingInvitationByEmail(ctx, tenantID, email); err == nil {
		return domain.Invitation{}, fmt.Errorf("invitation for %s already pending", email)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Invitation{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Invitation{}, err
	}
	defer tx.Rollback()

	expiryDays := 7
	if e.Config != nil {
		expiryDays = e.Config.InviteExpiryDays()
	}
	now := e.now().UTC()
	inv := domain.Invitation{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Email:     email,
		Role:      role,
		Status:    "pending",
		ExpiresAt: now.AddDate(0, 0, expiryDays).Format(time.RFC3339),
		CreatedAt: now.Format(time.RFC3339),
		UpdatedAt: now.Format(time.RFC3339),
	}
	if err := e.Repo.InsertInvitation(ctx, tx, inv); err != nil {
		return domain.Invitation{}, fmt.Errorf("insert invitation: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "invite.create", tenantID, "invitation", inv.ID, actorID, events.EventPayload{"email": email, "role": role}); err != nil {
		return domain.Invitation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Invitation{}, err
	}
	return inv, nil
}

// AcceptInvitation marks a pending, unexpired invitation accepted.
func (e *Engine) AcceptInvitation(ctx context.Context, tenantID, id, actorID string) (domain.Invitation, error) {
	return e.transitionInvitation(ctx, tenantID, id, actorID, "accepted", "invite.accept")
}

// ResendInvitation pushes a pending invitation's deadline out by the
// configured expiry window. Accepted, revoked or expired rows cannot be
// resent.
func (e *Engine) ResendInvitation(ctx context.Context, tenantID, id, actorID string) (domain.Invitation, error) {
	inv, err := e.Repo.GetInvitation(ctx, id)
	if err != nil {
		return domain.Invitation{}, err
	}
	if inv.TenantID != tenantID {
		return domain.Invitation{}, repo.ErrNotFound
	}
	if inv.Status != "pending" {
		return domain.Invitation{}, fmt.Errorf("invitation is %s", inv.Status)
	}
	expiryDays := 7
	if e.Config != nil {
		expiryDays = e.Config.InviteExpiryDays()
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Invitation{}, err
	}
	defer tx.Rollback()
	now := e.now().UTC()
	expiresAt := now.AddDate(0, 0, expiryDays).Format(time.RFC3339)
	if err := e.Repo.UpdateInvitationExpiry(ctx, tx, id, expiresAt, now.Format(time.RFC3339)); err != nil {
		return domain.Invitation{}, err
	}
	if err := e.Events.Append(ctx, tx, "invite.resend", tenantID, "invitation", id, actorID, events.EventPayload{"email": inv.Email}); err != nil {
		return domain.Invitation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Invitation{}, err
	}
	return e.Repo.GetInvitation(ctx, id)
}

// RevokeInvitation withdraws a pending invitation.
func (e *Engine) RevokeInvitation(ctx context.Context, tenantID, id, actorID string) (domain.Invitation, error) {
	return e.transitionInvitation(ctx, tenantID, id, actorID, "revoked", "invite.revoke")
}

func (e *Engine) transitionInvitation(ctx context.Context, tenantID, id, actorID, to, evtType string) (domain.Invitation, error) {
	inv, err := e.Repo.GetInvitation(ctx, id)
	if err != nil {
		return domain.Invitation{}, err
	}
	if inv.TenantID != tenantID {
		return domain.Invitation{}, repo.ErrNotFound
	}
	if inv.Status != "pending" {
		return domain.Invitation{}, fmt.Errorf("invitation is %s", inv.Status)
	}
	now := e.now().UTC()
	if to == "accepted" {
		if expires, err := time.Parse(time.RFC3339, inv.ExpiresAt); err == nil && now.After(expires) {
			// Lazy expiry: the row flips to expired on the first touch past
			// the deadline.
			if _, err := e.setInvitationStatus(ctx, tenantID, id, actorID, "expired", "invite.expire"); err != nil {
				return domain.Invitation{}, err
			}
			return domain.Invitation{}, errors.New("invitation expired")
		}
	}
	return e.setInvitationStatus(ctx, tenantID, id, actorID, to, evtType)
}

func (e *Engine) setInvitationStatus(ctx context.Context, tenantID, id, actorID, status, evtType string) (domain.Invitation, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Invitation{}, err
	}
	defer tx.Rollback()
	now := e.nowRFC3339()
	if err := e.Repo.UpdateInvitationStatus(ctx, tx, id, status, now); err != nil {
		return domain.Invitation{}, err
	}
	if err := e.Events.Append(ctx, tx, evtType, tenantID, "invitation", id, actorID, nil); err != nil {
		return domain.Invitation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Invitation{}, err
	}
	return e.Repo.GetInvitation(ctx, id)
}

// ListInvitations returns the tenant's invitations, flipping any pending
// rows past their deadline to expired first.
func (e *Engine) ListInvitations(ctx context.Context, tenantID, status string) ([]domain.Invitation, error) {
	pending, err := e.Repo.ListInvitations(ctx, tenantID, "pending")
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()
	for _, inv := range pending {
		if expires, err := time.Parse(time.RFC3339, inv.ExpiresAt); err == nil && now.After(expires) {
			if _, err := e.setInvitationStatus(ctx, tenantID, inv.ID, "system", "expired", "invite.expire"); err != nil {
				return nil, err
			}
		}
	}
	return e.Repo.ListInvitations(ctx, tenantID, status)
}
