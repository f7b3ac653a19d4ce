package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"northstar/internal/config"
	"northstar/internal/db"
	"northstar/internal/domain"
	"northstar/internal/engine"
	"northstar/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("t-1")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg, nil)
	e.Now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }
	if _, err := e.InitTenant(context.Background(), "t-1", "Test Diner", "tester"); err != nil {
		t.Fatalf("init tenant: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: "test-secret", AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", "tester")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func suggestedGoalBody() map[string]any {
	return map[string]any{
		"goal": map[string]any{
			"id":                 "cut-food-waste",
			"title":              "Cut food and supply waste",
			"description":        "Track inventory against sales to reduce spoilage and over-ordering.",
			"priority":           "high",
			"estimated_duration": "4-6 weeks",
			"expected_impact":    "5-10% lower supply costs",
		},
	}
}

func TestPreferenceFlowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v1/tenants/t-1"

	res, data := doJSON(t, client, http.MethodPost, base+"/preferences/start", nil, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("start status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/preferences/update", map[string]any{
		"field": "business_type",
		"value": "Restaurant",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/preferences/update", map[string]any{
		"field": "objective_focus",
		"value": "Reduce Cost",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update focus status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/preferences/confirm", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("confirm status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/preferences", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get preferences status %d: %s", res.StatusCode, string(data))
	}
	var current struct {
		Record  domain.PreferenceRecord `json:"record"`
		Summary string                  `json:"summary"`
	}
	if err := json.Unmarshal(data, &current); err != nil {
		t.Fatalf("unmarshal preferences: %v", err)
	}
	if current.Record.BusinessType != "Restaurant" {
		t.Fatalf("expected Restaurant, got %q", current.Record.BusinessType)
	}
	if !strings.Contains(current.Summary, "Business: Restaurant") {
		t.Fatalf("unexpected summary %q", current.Summary)
	}

	// A second update after confirmation has no open session to mutate.
	res, data = doJSON(t, client, http.MethodPost, base+"/preferences/update", map[string]any{
		"field": "budget",
		"value": "Lean",
	}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict, got %d: %s", res.StatusCode, string(data))
	}
}

func TestGoalVersioningOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v1/tenants/t-1"

	res, data := doJSON(t, client, http.MethodPost, base+"/goals", suggestedGoalBody(), nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("select goal status %d: %s", res.StatusCode, string(data))
	}
	var v1 domain.GoalVersion
	if err := json.Unmarshal(data, &v1); err != nil {
		t.Fatalf("unmarshal version: %v", err)
	}
	if v1.Version != 1 || v1.Status != "draft" {
		t.Fatalf("expected draft v1, got v%d %s", v1.Version, v1.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/goals/"+v1.GoalID+"/versions", map[string]any{
		"title":              "Cut food and supply waste by 12%",
		"change_description": "tightened the target",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("edit status %d: %s", res.StatusCode, string(data))
	}
	var v2 domain.GoalVersion
	_ = json.Unmarshal(data, &v2)
	if v2.Version != 2 {
		t.Fatalf("expected version 2, got %d", v2.Version)
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/goals/"+v1.GoalID+"/versions", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history status %d: %s", res.StatusCode, string(data))
	}
	var history domain.VersionHistory
	if err := json.Unmarshal(data, &history); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(history.Versions) != 2 || history.Current != 2 {
		t.Fatalf("expected 2 versions current 2, got %d current %d", len(history.Versions), history.Current)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/goals/"+v1.GoalID+"/rollback", map[string]any{
		"to_version": 1,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("rollback status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/goals/"+v1.GoalID+"/diff?from=1&to=2", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("diff status %d: %s", res.StatusCode, string(data))
	}
	var diff struct {
		Added    []string `json:"added"`
		Removed  []string `json:"removed"`
		Modified []string `json:"modified"`
	}
	if err := json.Unmarshal(data, &diff); err != nil {
		t.Fatalf("unmarshal diff: %v", err)
	}
	if len(diff.Modified) == 0 {
		t.Fatalf("expected at least one modified field, got %s", string(data))
	}
}

func TestChatAnswersPendingQuestion(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v1/tenants/t-1"

	// Selecting the template goal queues its required question.
	res, data := doJSON(t, client, http.MethodPost, base+"/goals", suggestedGoalBody(), nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("select goal status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/questions/pending", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("pending status %d: %s", res.StatusCode, string(data))
	}
	var pending struct {
		Message *domain.Message `json:"message"`
	}
	if err := json.Unmarshal(data, &pending); err != nil {
		t.Fatalf("unmarshal pending: %v", err)
	}
	if pending.Message == nil || pending.Message.Question == nil || !pending.Message.Question.Required {
		t.Fatalf("expected required pending question, got %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/messages", map[string]any{
		"text": "$4,200 per month",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("send status %d: %s", res.StatusCode, string(data))
	}
	var sent struct {
		Items []domain.Message `json:"items"`
	}
	if err := json.Unmarshal(data, &sent); err != nil {
		t.Fatalf("unmarshal send: %v", err)
	}
	if len(sent.Items) != 2 || sent.Items[1].Text != "Got it, thanks." {
		t.Fatalf("expected answer acknowledgement, got %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/messages/"+sent.Items[1].ID+"/feedback", map[string]any{
		"feedback": "up",
	}, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("feedback status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/messages", map[string]any{
		"text": "   ",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank message, got %d: %s", res.StatusCode, string(data))
	}
}

func TestSavePlanWithoutReadyStateConflicts(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tenants/t-1/plans", map[string]any{
		"title": "Waste reduction plan",
	}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "conflict" {
		t.Fatalf("expected conflict code, got %q", envelope.Error.Code)
	}
}

func TestConnectorCatalogAndValidation(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v1/tenants/t-1"

	res, data := doJSON(t, client, http.MethodGet, base+"/connectors/catalog", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("catalog status %d: %s", res.StatusCode, string(data))
	}
	if !strings.Contains(string(data), "square-pos") {
		t.Fatalf("expected square-pos in catalog, got %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/connectors", map[string]any{
		"connector_id": "not-a-connector",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown connector, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/connectors", map[string]any{
		"connector_id": "square-pos",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add connector status %d: %s", res.StatusCode, string(data))
	}
	var added domain.TenantConnector
	_ = json.Unmarshal(data, &added)
	if added.Status != "active" {
		t.Fatalf("expected active connector, got %q", added.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/connectors", map[string]any{
		"connector_id": "quickbooks",
		"status":       "inactive",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add with override status %d: %s", res.StatusCode, string(data))
	}
	var paused domain.TenantConnector
	_ = json.Unmarshal(data, &paused)
	if paused.Status != "inactive" {
		t.Fatalf("status override not honored, got %q", paused.Status)
	}
}

func TestSeasonalityRoundTripOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v1/tenants/t-1/seasonality"

	res, data := doJSON(t, client, http.MethodGet, base, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status %d: %s", res.StatusCode, string(data))
	}
	var view struct {
		Metric    string `json:"metric"`
		Frequency string `json:"frequency"`
	}
	if err := json.Unmarshal(data, &view); err != nil {
		t.Fatal(err)
	}
	if view.Metric != "revenue" || view.Frequency != "monthly" {
		t.Fatalf("defaults = %+v", view)
	}

	res, data = doJSON(t, client, http.MethodPut, base, map[string]any{
		"metric":    "orders",
		"frequency": "weekly",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("put status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, base, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &view); err != nil {
		t.Fatal(err)
	}
	if view.Metric != "orders" || view.Frequency != "weekly" {
		t.Fatalf("selection not kept: %+v", view)
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/tenants/t-1/state", nil, map[string]string{
		"X-Actor-Id": "",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}

	// Health stays open.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, map[string]string{
		"X-Actor-Id": "",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}

func TestDevLoginMintsUsableToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/dev-login", map[string]any{
		"actor_id": "dev-tester",
	}, map[string]string{"X-Actor-Id": ""})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev-login status %d: %s", res.StatusCode, string(data))
	}
	var minted struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expires_at"`
	}
	if err := json.Unmarshal(data, &minted); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if minted.Token == "" || minted.ExpiresAt == "" {
		t.Fatalf("incomplete response: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tenants/t-1/state", nil, map[string]string{
		"X-Actor-Id":    "",
		"Authorization": "Bearer " + minted.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("state with minted token: %d: %s", res.StatusCode, string(data))
	}
}
