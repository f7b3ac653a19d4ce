package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"northstar/internal/backend"
	"northstar/internal/repo"
)

const oauthStatePrefix = "oauth:state:"

// OAuthProviders lists the providers the backend can authorize against.
func (e *Engine) OAuthProviders(ctx context.Context) ([]backend.OAuthProvider, error) {
	if e.Backend == nil {
		return nil, errors.New("no backend configured")
	}
	return e.Backend.OAuthProviders(ctx)
}

// BeginOAuth opens an authorization flow. The state token is stored per
// tenant and must round-trip through the provider callback.
func (e *Engine) BeginOAuth(ctx context.Context, tenantID, provider, redirectURI string) (string, string, error) {
	if e.Backend == nil {
		return "", "", errors.New("no backend configured")
	}
	state := uuid.NewString()
	authURL, err := e.Backend.AuthorizeURL(ctx, provider, state, redirectURI)
	if err != nil {
		return "", "", fmt.Errorf("authorize url: %w", err)
	}
	if err := e.Repo.SetKV(ctx, tenantID, oauthStatePrefix+state, provider, e.nowRFC3339()); err != nil {
		return "", "", err
	}
	return authURL, state, nil
}

// CompleteOAuth validates the callback state and consumes it. A state token
// is single use.
func (e *Engine) CompleteOAuth(ctx context.Context, tenantID, state string) (string, error) {
	provider, err := e.Repo.GetKV(ctx, tenantID, oauthStatePrefix+state)
	if errors.Is(err, repo.ErrNotFound) {
		return "", errors.New("unknown or reused oauth state")
	}
	if err != nil {
		return "", err
	}
	if err := e.Repo.DeleteKV(ctx, tenantID, oauthStatePrefix+state); err != nil {
		return "", err
	}
	return provider, nil
}
