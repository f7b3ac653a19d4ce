package northstarsdk

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
)

// Client is a minimal Northstar HTTP API client.
type Client struct {
	BaseURL     string
	TenantID    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, tenantID string) *Client {
	return &Client{
		BaseURL:  baseURL,
		TenantID: tenantID,
		Timeout:  10 * time.Second,
	}
}

// PreferenceSession is one run of the preference wizard.
type PreferenceSession struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Step     int    `json:"step"`
	Status   string `json:"status"`
	Summary  string `json:"summary,omitempty"`
	Record   struct {
		BusinessType   string   `json:"business_type,omitempty"`
		ObjectiveFocus []string `json:"objective_focus,omitempty"`
		OperatingPace  string   `json:"operating_pace,omitempty"`
		Budget         string   `json:"budget,omitempty"`
		Markets        []string `json:"markets,omitempty"`
		OtherNeeds     string   `json:"other_needs,omitempty"`
	} `json:"record"`
}

// SuggestedGoal is one goal recommendation.
type SuggestedGoal struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	Priority          string `json:"priority"`
	EstimatedDuration string `json:"estimated_duration"`
	ExpectedImpact    string `json:"expected_impact"`
	Icon              string `json:"icon,omitempty"`
}

// GoalVersion is one immutable version of a goal.
type GoalVersion struct {
	ID                string  `json:"id"`
	GoalID            string  `json:"goal_id"`
	TenantID          string  `json:"tenant_id"`
	Version           int     `json:"version"`
	ParentID          *string `json:"parent_id,omitempty"`
	Title             string  `json:"title"`
	Description       string  `json:"description,omitempty"`
	Timeline          string  `json:"timeline,omitempty"`
	Status            string  `json:"status"`
	ChangeDescription string  `json:"change_description,omitempty"`
	CreatedAt         string  `json:"created_at"`
}

// VersionHistory is every version of one goal plus the current pointer.
type VersionHistory struct {
	GoalID   string        `json:"goal_id"`
	Versions []GoalVersion `json:"versions"`
	Current  int           `json:"current"`
}

// Message is one transcript entry.
type Message struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Question  *Question `json:"question,omitempty"`
	Feedback  *string   `json:"feedback,omitempty"`
	CreatedAt string    `json:"created_at"`
}

// Question is a clarifying question carried by a transcript message.
type Question struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Required   bool   `json:"required"`
	Answer     string `json:"answer,omitempty"`
	Answered   bool   `json:"answered"`
	Skipped    bool   `json:"skipped"`
	Suggestion string `json:"suggestion,omitempty"`
}

// TenantState is the conversational state machine snapshot.
type TenantState struct {
	TenantID       string `json:"tenant_id"`
	Mode           string `json:"mode"`
	ResearchStatus string `json:"research_status"`
	LastRunID      string `json:"last_run_id,omitempty"`
	LastRunStatus  string `json:"last_run_status,omitempty"`
	UpdatedAt      string `json:"updated_at,omitempty"`
}

// SavedPlan is a persisted execution plan.
type SavedPlan struct {
	ID               string `json:"id"`
	TenantID         string `json:"tenant_id"`
	GoalID           string `json:"goal_id,omitempty"`
	Title            string `json:"title"`
	Summary          string `json:"summary,omitempty"`
	UserProvidedName string `json:"user_provided_name,omitempty"`
	CreatedAt        string `json:"created_at"`
}

// Connector is a configured data source link.
type Connector struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	ConnectorID string `json:"connector_id"`
	DisplayName string `json:"display_name"`
	Status      string `json:"status"`
	LastSync    string `json:"last_sync,omitempty"`
}

// Invitation is a pending team invite.
type Invitation struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Status    string `json:"status"`
	ExpiresAt string `json:"expires_at"`
}

// Event is one log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	TenantID   string `json:"tenant_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
}

// PaginatedEvents wraps event listings with a cursor.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// State returns the tenant state snapshot.
func (c *Client) State(ctx context.Context) (TenantState, error) {
	var resp TenantState
	err := c.do(ctx, http.MethodGet, c.tenantPath("state"), nil, &resp)
	return resp, err
}

// SetMode switches the assistant mode.
func (c *Client) SetMode(ctx context.Context, mode string) (TenantState, error) {
	var resp TenantState
	err := c.do(ctx, http.MethodPut, c.tenantPath("mode"), map[string]any{"mode": mode}, &resp)
	return resp, err
}

// StartPreferences opens the preference wizard.
func (c *Client) StartPreferences(ctx context.Context) (PreferenceSession, error) {
	var resp PreferenceSession
	err := c.do(ctx, http.MethodPost, c.tenantPath("preferences/start"), nil, &resp)
	return resp, err
}

// UpdatePreference toggles or sets one wizard field.
func (c *Client) UpdatePreference(ctx context.Context, field, value string) (PreferenceSession, error) {
	var resp PreferenceSession
	err := c.do(ctx, http.MethodPost, c.tenantPath("preferences/update"), map[string]any{
		"field": field,
		"value": value,
	}, &resp)
	return resp, err
}

// ConfirmPreferences closes the wizard and records the summary.
func (c *Client) ConfirmPreferences(ctx context.Context) (PreferenceSession, error) {
	var resp PreferenceSession
	err := c.do(ctx, http.MethodPost, c.tenantPath("preferences/confirm"), nil, &resp)
	return resp, err
}

// SuggestGoals returns goal recommendations for the confirmed preferences.
func (c *Client) SuggestGoals(ctx context.Context) ([]SuggestedGoal, error) {
	var resp struct {
		Items []SuggestedGoal `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, c.tenantPath("goals/suggestions"), nil, &resp)
	return resp.Items, err
}

// SelectGoal turns a suggestion into draft version 1 of a goal.
func (c *Client) SelectGoal(ctx context.Context, goal SuggestedGoal) (GoalVersion, error) {
	var resp GoalVersion
	err := c.do(ctx, http.MethodPost, c.tenantPath("goals"), map[string]any{"goal": goal}, &resp)
	return resp, err
}

// EditGoal appends a new version with the provided fields.
func (c *Client) EditGoal(ctx context.Context, goalID, title, description, timeline, change string) (GoalVersion, error) {
	body := map[string]any{
		"title":              title,
		"description":        description,
		"timeline":           timeline,
		"change_description": change,
	}
	var resp GoalVersion
	endpoint := c.tenantPath(fmt.Sprintf("goals/%s/versions", url.PathEscape(goalID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// GoalHistory returns the full version history of a goal.
func (c *Client) GoalHistory(ctx context.Context, goalID string) (VersionHistory, error) {
	var resp VersionHistory
	endpoint := c.tenantPath(fmt.Sprintf("goals/%s/versions", url.PathEscape(goalID)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// RollbackGoal moves the current pointer to an earlier version.
func (c *Client) RollbackGoal(ctx context.Context, goalID string, toVersion int) (GoalVersion, error) {
	var resp GoalVersion
	endpoint := c.tenantPath(fmt.Sprintf("goals/%s/rollback", url.PathEscape(goalID)))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"to_version": toVersion}, &resp)
	return resp, err
}

// SendMessage posts a chat message and returns it with the assistant reply.
func (c *Client) SendMessage(ctx context.Context, text string) ([]Message, error) {
	var resp struct {
		Items []Message `json:"items"`
	}
	err := c.do(ctx, http.MethodPost, c.tenantPath("messages"), map[string]any{"text": text}, &resp)
	return resp.Items, err
}

// Transcript returns the conversation, oldest first.
func (c *Client) Transcript(ctx context.Context, afterID string, limit int) ([]Message, error) {
	endpoint := c.tenantPath("messages")
	params := url.Values{}
	if afterID != "" {
		params.Set("after", afterID)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp struct {
		Items []Message `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// StartResearch kicks off a planning run for a goal.
func (c *Client) StartResearch(ctx context.Context, goalID string) (TenantState, error) {
	var resp TenantState
	err := c.do(ctx, http.MethodPost, c.tenantPath("research/start"), map[string]any{"goal_id": goalID}, &resp)
	return resp, err
}

// PollResearch drives the run to completion or the attempt cap.
func (c *Client) PollResearch(ctx context.Context) (TenantState, error) {
	var resp TenantState
	err := c.do(ctx, http.MethodPost, c.tenantPath("research/poll"), nil, &resp)
	return resp, err
}

// SavePlan persists the generated plan. Research must be in the ready state.
func (c *Client) SavePlan(ctx context.Context, goalID, title, name string) (SavedPlan, error) {
	body := map[string]any{
		"goal_id":            goalID,
		"title":              title,
		"user_provided_name": name,
	}
	var resp SavedPlan
	err := c.do(ctx, http.MethodPost, c.tenantPath("plans"), body, &resp)
	return resp, err
}

// ListPlans returns saved plans.
func (c *Client) ListPlans(ctx context.Context) ([]SavedPlan, error) {
	var resp struct {
		Items []SavedPlan `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, c.tenantPath("plans"), nil, &resp)
	return resp.Items, err
}

// AddConnector configures a connector from the catalog.
func (c *Client) AddConnector(ctx context.Context, connectorID, displayName string, cfg map[string]string) (Connector, error) {
	body := map[string]any{
		"connector_id": connectorID,
		"display_name": displayName,
		"config":       cfg,
	}
	var resp Connector
	err := c.do(ctx, http.MethodPost, c.tenantPath("connectors"), body, &resp)
	return resp, err
}

// SyncConnector triggers a sync of one connector.
func (c *Client) SyncConnector(ctx context.Context, id string) (Connector, error) {
	var resp Connector
	endpoint := c.tenantPath(fmt.Sprintf("connectors/%s/sync", url.PathEscape(id)))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Invite creates a team invitation.
func (c *Client) Invite(ctx context.Context, email, role string) (Invitation, error) {
	body := map[string]any{"email": email, "role": role}
	var resp Invitation
	err := c.do(ctx, http.MethodPost, c.tenantPath("invitations"), body, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := c.tenantPath("events")
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
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
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
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

func (c *Client) tenantPath(p string) string {
	tenant := url.PathEscape(c.TenantID)
	return fmt.Sprintf("v1/tenants/%s/%s", tenant, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
