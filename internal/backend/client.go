// Package backend talks to the remote planning service: tenant profiles,
// goal recommendations, research runs, chat completions, connector syncs and
// OAuth. Everything is best effort; callers decide how to degrade.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"northstar/internal/domain"
)

// Service is the call surface the engine depends on. *Client implements it;
// tests substitute stubs.
type Service interface {
	FetchProfile(ctx context.Context, tenantID string) (domain.TenantProfile, error)
	Recommendations(ctx context.Context, rec domain.PreferenceRecord) ([]domain.SuggestedGoal, error)
	CreateRun(ctx context.Context, tenantID, goalText string) (domain.Run, error)
	RunStatus(ctx context.Context, runID string) (domain.Run, error)
	ChatCompletion(ctx context.Context, tenantID string, messages []domain.Message) (string, error)
	SyncConnector(ctx context.Context, tenantID, connectorID string) (SyncResult, error)
	OAuthProviders(ctx context.Context) ([]OAuthProvider, error)
	AuthorizeURL(ctx context.Context, provider, state, redirectURI string) (string, error)
}

// Client is the HTTP implementation of Service.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 15 * time.Second,
	}
}

// SyncResult is the outcome of one connector sync.
type SyncResult struct {
	Status      string `json:"status"`
	RecordCount int    `json:"record_count"`
	Error       string `json:"error,omitempty"`
	SyncedAt    string `json:"synced_at,omitempty"`
}

// OAuthProvider is one provider offered for connector authorization.
type OAuthProvider struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Scopes []string `json:"scopes,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *Client) FetchProfile(ctx context.Context, tenantID string) (domain.TenantProfile, error) {
	var resp domain.TenantProfile
	endpoint := fmt.Sprintf("v1/tenants/%s/profile", url.PathEscape(tenantID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) Recommendations(ctx context.Context, rec domain.PreferenceRecord) ([]domain.SuggestedGoal, error) {
	var resp struct {
		Items []domain.SuggestedGoal `json:"items"`
	}
	err := c.do(ctx, http.MethodPost, "v1/recommendations", rec, &resp)
	return resp.Items, err
}

func (c *Client) CreateRun(ctx context.Context, tenantID, goalText string) (domain.Run, error) {
	body := map[string]any{
		"tenant_id": tenantID,
		"goal_text": goalText,
	}
	var resp wireRun
	err := c.do(ctx, http.MethodPost, "v1/runs", body, &resp)
	return resp.toDomain(), err
}

func (c *Client) RunStatus(ctx context.Context, runID string) (domain.Run, error) {
	var resp wireRun
	endpoint := fmt.Sprintf("v1/runs/%s", url.PathEscape(runID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.toDomain(), err
}

// wireRun keeps the result payload raw so a malformed result degrades to
// "no result" instead of failing the whole status call.
type wireRun struct {
	ID       string          `json:"id"`
	GoalText string          `json:"goal_text"`
	Status   string          `json:"status"`
	Result   json.RawMessage `json:"result"`
}

func (w wireRun) toDomain() domain.Run {
	run := domain.Run{ID: w.ID, GoalText: w.GoalText, Status: w.Status}
	if len(w.Result) > 0 && string(w.Result) != "null" {
		var res domain.RunResult
		if err := json.Unmarshal(w.Result, &res); err == nil {
			run.Result = &res
		}
	}
	return run
}

// ChatCompletion sends the transcript tail and returns the assistant reply
// text. Only role and text cross the wire.
func (c *Client) ChatCompletion(ctx context.Context, tenantID string, messages []domain.Message) (string, error) {
	type wireMessage struct {
		Role string `json:"role"`
		Text string `json:"text"`
	}
	wire := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wire = append(wire, wireMessage{Role: m.Role, Text: m.Text})
	}
	body := map[string]any{
		"tenant_id": tenantID,
		"messages":  wire,
	}
	var resp struct {
		Text string `json:"text"`
	}
	err := c.do(ctx, http.MethodPost, "v1/chat/completions", body, &resp)
	return resp.Text, err
}

func (c *Client) SyncConnector(ctx context.Context, tenantID, connectorID string) (SyncResult, error) {
	body := map[string]any{
		"tenant_id": tenantID,
	}
	var resp SyncResult
	endpoint := fmt.Sprintf("v1/connectors/%s/sync", url.PathEscape(connectorID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

func (c *Client) OAuthProviders(ctx context.Context) ([]OAuthProvider, error) {
	var resp struct {
		Items []OAuthProvider `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "v1/oauth/providers", nil, &resp)
	return resp.Items, err
}

func (c *Client) AuthorizeURL(ctx context.Context, provider, state, redirectURI string) (string, error) {
	body := map[string]any{
		"provider":     provider,
		"state":        state,
		"redirect_uri": redirectURI,
	}
	var resp struct {
		URL string `json:"url"`
	}
	err := c.do(ctx, http.MethodPost, "v1/oauth/authorize", body, &resp)
	return resp.URL, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
