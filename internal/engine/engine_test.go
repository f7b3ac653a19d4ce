package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"northstar/internal/backend"
	"northstar/internal/config"
	"northstar/internal/db"
	"northstar/internal/domain"
	"northstar/internal/engine"
	"northstar/internal/migrate"
	"northstar/internal/version"
)

type stubBackend struct {
	profile     domain.TenantProfile
	profileErr  error
	recs        []domain.SuggestedGoal
	recsErr     error
	run         domain.Run
	runErr      error
	statuses    []string
	statusCalls int
	statusErr   error
	result      *domain.RunResult
	chatText    string
	chatErr     error
	syncResult  backend.SyncResult
	syncErr     error
	providers   []backend.OAuthProvider
	authorize   string
}

func (s *stubBackend) FetchProfile(context.Context, string) (domain.TenantProfile, error) {
	return s.profile, s.profileErr
}

func (s *stubBackend) Recommendations(context.Context, domain.PreferenceRecord) ([]domain.SuggestedGoal, error) {
	return s.recs, s.recsErr
}

func (s *stubBackend) CreateRun(_ context.Context, _, goalText string) (domain.Run, error) {
	if s.runErr != nil {
		return domain.Run{}, s.runErr
	}
	if s.run.ID == "" {
		s.run = domain.Run{ID: "run-1", GoalText: goalText, Status: "pending"}
	}
	return s.run, nil
}

func (s *stubBackend) RunStatus(context.Context, string) (domain.Run, error) {
	if s.statusErr != nil {
		return domain.Run{}, s.statusErr
	}
	status := "pending"
	if len(s.statuses) > 0 {
		i := s.statusCalls
		if i >= len(s.statuses) {
			i = len(s.statuses) - 1
		}
		status = s.statuses[i]
	}
	s.statusCalls++
	run := domain.Run{ID: s.run.ID, Status: status}
	if status == "completed" {
		run.Result = s.result
	}
	return run, nil
}

func (s *stubBackend) ChatCompletion(context.Context, string, []domain.Message) (string, error) {
	return s.chatText, s.chatErr
}

func (s *stubBackend) SyncConnector(context.Context, string, string) (backend.SyncResult, error) {
	return s.syncResult, s.syncErr
}

func (s *stubBackend) OAuthProviders(context.Context) ([]backend.OAuthProvider, error) {
	return s.providers, nil
}

func (s *stubBackend) AuthorizeURL(context.Context, string, string, string) (string, error) {
	return s.authorize, nil
}

type testEnv struct {
	Engine  *engine.Engine
	Backend *stubBackend
	Ctx     context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("t-1")
	cfg.Backend.PollIntervalSeconds = 0
	svc := &stubBackend{}
	eng := engine.New(conn, cfg, svc)
	eng.Now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.InitTenant(ctx, "t-1", "Test Diner", "tester"); err != nil {
		t.Fatalf("init tenant: %v", err)
	}
	return testEnv{Engine: eng, Backend: svc, Ctx: ctx}
}

func TestPreferenceWizardLifecycle(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.Engine.StartPreferences(env.Ctx, "t-1", "tester")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.Step != 1 || s.Status != "open" {
		t.Fatalf("fresh session: %+v", s)
	}

	// starting again reuses the open session
	again, err := env.Engine.StartPreferences(env.Ctx, "t-1", "tester")
	if err != nil || again.ID != s.ID {
		t.Fatalf("expected same session, got %v %v", again.ID, err)
	}

	if _, err := env.Engine.UpdatePreference(env.Ctx, "t-1", "business_type", "Restaurant", "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdatePreference(env.Ctx, "t-1", "objective_focus", "Reduce Cost", "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdatePreference(env.Ctx, "t-1", "operating_pace", "Ambitious", "tester"); err != nil {
		t.Fatal(err)
	}
	s, err = env.Engine.ConfirmPreferences(env.Ctx, "t-1", "tester")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if s.Status != "confirmed" {
		t.Fatalf("status = %q", s.Status)
	}
	want := "Business: Restaurant • Focus: Reduce Cost • Pace: Ambitious"
	if s.Summary != want {
		t.Fatalf("summary = %q", s.Summary)
	}

	rec, summary, err := env.Engine.CurrentPreferences(env.Ctx, "t-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.BusinessType != "Restaurant" || summary != want {
		t.Fatalf("current prefs: %+v %q", rec, summary)
	}

	// confirmed session is terminal
	if _, err := env.Engine.UpdatePreference(env.Ctx, "t-1", "budget", "Lean", "tester"); err == nil {
		t.Fatal("mutation after confirm should fail")
	}
}

func TestSkippedSessionIsNotRecordOfTruth(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.StartPreferences(env.Ctx, "t-1", "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdatePreference(env.Ctx, "t-1", "budget", "Lean", "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SkipPreferences(env.Ctx, "t-1", "tester"); err != nil {
		t.Fatal(err)
	}
	_, summary, err := env.Engine.CurrentPreferences(env.Ctx, "t-1")
	if err != nil {
		t.Fatal(err)
	}
	if summary != "No preferences set" {
		t.Fatalf("summary = %q", summary)
	}
}

func TestStartPreferencesPrefillsFromProfile(t *testing.T) {
	env := newTestEnv(t)
	env.Backend.profile = domain.TenantProfile{Industry: "Retail"}
	s, err := env.Engine.StartPreferences(env.Ctx, "t-1", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if s.Record.BusinessType != "Retail" {
		t.Fatalf("prefill missed: %+v", s.Record)
	}
}

func TestStartPreferencesToleratesProfileFailure(t *testing.T) {
	env := newTestEnv(t)
	env.Backend.profileErr = errors.New("profile down")
	s, err := env.Engine.StartPreferences(env.Ctx, "t-1", "tester")
	if err != nil {
		t.Fatalf("profile failure should not block wizard: %v", err)
	}
	if s.Record.BusinessType != "" {
		t.Fatalf("expected blank record, got %+v", s.Record)
	}
}

func TestSuggestGoalsFallsBackToCatalog(t *testing.T) {
	env := newTestEnv(t)
	env.Backend.recsErr = errors.New("recommendations down")
	goals, err := env.Engine.SuggestGoals(env.Ctx, "t-1")
	if err != nil {
		t.Fatalf("fallback should absorb error: %v", err)
	}
	if len(goals) == 0 {
		t.Fatal("expected catalog suggestions")
	}
}

func TestSelectGoalCreatesDraftV1AndQueuesQuestions(t *testing.T) {
	env := newTestEnv(t)
	goals, err := env.Engine.SuggestGoals(env.Ctx, "t-1")
	if err != nil {
		t.Fatal(err)
	}
	var picked domain.SuggestedGoal
	for _, g := range goals {
		if g.ID == "cut-food-waste" {
			picked = g
		}
	}
	if picked.ID == "" {
		t.Fatalf("catalog goal missing from %v", goals)
	}
	v, err := env.Engine.SelectGoal(env.Ctx, "t-1", picked, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if v.Version != 1 || v.Status != "draft" {
		t.Fatalf("got version=%d status=%q", v.Version, v.Status)
	}
	pending, err := env.Engine.PendingQuestion(env.Ctx, "t-1")
	if err != nil {
		t.Fatal(err)
	}
	if pending == nil || !pending.Question.Required {
		t.Fatalf("template question not queued: %+v", pending)
	}
}

func TestGoalEditRollbackAndHistory(t *testing.T) {
	env := newTestEnv(t)
	v1, err := env.Engine.SelectGoal(env.Ctx, "t-1", domain.SuggestedGoal{ID: "custom", Title: "Grow repeat visits", Priority: "high"}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	v2, err := env.Engine.EditGoal(env.Ctx, v1.GoalID, engineEditTitle("Grow repeat visits by 15 percent"), "tester")
	if err != nil {
		t.Fatal(err)
	}
	if v2.Version != 2 || v2.ParentID == nil || *v2.ParentID != v1.ID {
		t.Fatalf("edit lineage wrong: %+v", v2)
	}

	h, err := env.Engine.GoalHistory(env.Ctx, v1.GoalID)
	if err != nil {
		t.Fatal(err)
	}
	if len(h.Versions) != 2 || h.Current != 2 {
		t.Fatalf("history: current=%d n=%d", h.Current, len(h.Versions))
	}

	rolled, err := env.Engine.RollbackGoal(env.Ctx, v1.GoalID, 1, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if rolled.Version != 1 {
		t.Fatalf("rollback target: %d", rolled.Version)
	}
	h, err = env.Engine.GoalHistory(env.Ctx, v1.GoalID)
	if err != nil {
		t.Fatal(err)
	}
	if h.Current != 1 || len(h.Versions) != 2 {
		t.Fatalf("rollback must keep history: current=%d n=%d", h.Current, len(h.Versions))
	}

	// editing after rollback forks past the newest version
	v3, err := env.Engine.EditGoal(env.Ctx, v1.GoalID, engineEditTitle("Grow repeat visits by 10 percent"), "tester")
	if err != nil {
		t.Fatal(err)
	}
	if v3.Version != 3 || v3.ParentID == nil || *v3.ParentID != v1.ID {
		t.Fatalf("fork lineage wrong: %+v", v3)
	}
}

func TestDiffGoalSelfEmpty(t *testing.T) {
	env := newTestEnv(t)
	v1, err := env.Engine.SelectGoal(env.Ctx, "t-1", domain.SuggestedGoal{ID: "custom", Title: "Open a second location"}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	diff, err := env.Engine.DiffGoal(env.Ctx, v1.GoalID, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(diff.Added)+len(diff.Removed)+len(diff.Modified) != 0 {
		t.Fatalf("self diff not empty: %+v", diff)
	}
	if diff.Added == nil || diff.Removed == nil || diff.Modified == nil {
		t.Fatal("diff lists must serialize as empty arrays")
	}
}

func TestChatRoutesAnswerToPendingQuestion(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.SelectGoal(env.Ctx, "t-1", domain.SuggestedGoal{ID: "cut-food-waste", Title: "Cut food waste"}, "tester"); err != nil {
		t.Fatal(err)
	}
	pending, err := env.Engine.PendingQuestion(env.Ctx, "t-1")
	if err != nil || pending == nil {
		t.Fatalf("no pending question: %v", err)
	}

	// empty answer to a required question is rejected without advancing
	if _, err := env.Engine.SendMessage(env.Ctx, "t-1", "   ", nil, "tester"); err == nil {
		t.Fatal("empty required answer should be rejected")
	}
	still, err := env.Engine.PendingQuestion(env.Ctx, "t-1")
	if err != nil || still == nil || still.ID != pending.ID {
		t.Fatalf("queue advanced on rejection: %+v %v", still, err)
	}

	msgs, err := env.Engine.SendMessage(env.Ctx, "t-1", "$4,200 per month", nil, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Fatalf("got %v", msgs)
	}
	resolved, err := env.Engine.PendingQuestion(env.Ctx, "t-1")
	if err != nil {
		t.Fatal(err)
	}
	if resolved != nil {
		t.Fatalf("question should be resolved: %+v", resolved)
	}
	answered, err := env.Engine.Transcript(env.Ctx, "t-1", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	var q *domain.Question
	for _, m := range answered {
		if m.Question != nil {
			q = m.Question
		}
	}
	if q == nil || !q.Answered || q.Answer != "$4,200 per month" {
		t.Fatalf("answer not recorded: %+v", q)
	}
}

func TestChatFallsBackWhenBackendDown(t *testing.T) {
	env := newTestEnv(t)
	env.Backend.chatErr = errors.New("completion down")
	msgs, err := env.Engine.SendMessage(env.Ctx, "t-1", "How do I cut waste?", nil, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if msgs[1].Text == "" {
		t.Fatal("fallback reply missing")
	}
}

func TestChatUsesBackendCompletion(t *testing.T) {
	env := newTestEnv(t)
	env.Backend.chatText = "Start with a waste log."
	msgs, err := env.Engine.SendMessage(env.Ctx, "t-1", "How do I cut waste?", nil, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if msgs[1].Text != "Start with a waste log." {
		t.Fatalf("got %q", msgs[1].Text)
	}
}

func TestTranscriptOrderMatchesIDOrder(t *testing.T) {
	env := newTestEnv(t)
	for _, text := range []string{"one", "two", "three"} {
		if _, err := env.Engine.SendMessage(env.Ctx, "t-1", text, nil, "tester"); err != nil {
			t.Fatal(err)
		}
	}
	msgs, err := env.Engine.Transcript(env.Ctx, "t-1", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 6 {
		t.Fatalf("expected 6 messages, got %d", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i-1].ID >= msgs[i].ID {
			t.Fatalf("ids not ascending at %d", i)
		}
	}
}

func TestResearchLifecycle(t *testing.T) {
	env := newTestEnv(t)
	v1, err := env.Engine.SelectGoal(env.Ctx, "t-1", domain.SuggestedGoal{ID: "custom", Title: "Cut costs"}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	env.Backend.statuses = []string{"pending", "running", "completed"}

	state, err := env.Engine.StartResearch(env.Ctx, "t-1", v1.GoalID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if state.ResearchStatus != "researching" || state.LastRunID == "" {
		t.Fatalf("after start: %+v", state)
	}

	state, err = env.Engine.PollResearch(env.Ctx, "t-1", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if state.ResearchStatus != "ready" || state.LastRunStatus != "completed" {
		t.Fatalf("after poll: %+v", state)
	}

	plan, err := env.Engine.SavePlan(env.Ctx, "t-1", engine.PlanInput{
		GoalID: v1.GoalID,
		Title:  "Cost reduction plan",
		Stages: []domain.PlanStage{{ID: "s1", Title: "Audit", Todos: []string{"List suppliers"}}},
	}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if plan.Version != 1 {
		t.Fatalf("plan version = %d", plan.Version)
	}
	state, err = env.Engine.State(env.Ctx, "t-1")
	if err != nil {
		t.Fatal(err)
	}
	if state.ResearchStatus != "idle" {
		t.Fatalf("save should return to idle: %+v", state)
	}
}

func TestPollResearchCapDropsToIdle(t *testing.T) {
	env := newTestEnv(t)
	v1, err := env.Engine.SelectGoal(env.Ctx, "t-1", domain.SuggestedGoal{ID: "custom", Title: "Cut costs"}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	env.Backend.statuses = []string{"pending"}
	env.Engine.Config.Backend.PollAttempts = 3

	if _, err := env.Engine.StartResearch(env.Ctx, "t-1", v1.GoalID, "tester"); err != nil {
		t.Fatal(err)
	}
	state, err := env.Engine.PollResearch(env.Ctx, "t-1", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if state.ResearchStatus != "idle" {
		t.Fatalf("cap should drop to idle: %+v", state)
	}
	if state.LastRunStatus != "pending" {
		t.Fatalf("last observed status lost: %+v", state)
	}
	if env.Backend.statusCalls != 3 {
		t.Fatalf("expected 3 polls, got %d", env.Backend.statusCalls)
	}
	msgs, err := env.Engine.Transcript(env.Ctx, "t-1", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	last := msgs[len(msgs)-1]
	if last.Role != "system" || !strings.Contains(last.Text, "taking too long") {
		t.Fatalf("expected timeout note, got %s: %q", last.Role, last.Text)
	}
}

func TestPollResearchBackendFailureDropsToIdle(t *testing.T) {
	env := newTestEnv(t)
	v1, err := env.Engine.SelectGoal(env.Ctx, "t-1", domain.SuggestedGoal{ID: "custom", Title: "Cut costs"}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.StartResearch(env.Ctx, "t-1", v1.GoalID, "tester"); err != nil {
		t.Fatal(err)
	}
	env.Backend.statusErr = errors.New("runs api down")
	state, err := env.Engine.PollResearch(env.Ctx, "t-1", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if state.ResearchStatus != "idle" {
		t.Fatalf("failure should drop to idle: %+v", state)
	}
	msgs, err := env.Engine.Transcript(env.Ctx, "t-1", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	last := msgs[len(msgs)-1]
	if last.Role != "system" || !strings.Contains(last.Text, "taking too long") {
		t.Fatalf("expected timeout note, got %s: %q", last.Role, last.Text)
	}
}

func TestStartResearchBlockedByRequiredQuestion(t *testing.T) {
	env := newTestEnv(t)
	v1, err := env.Engine.SelectGoal(env.Ctx, "t-1", domain.SuggestedGoal{ID: "cut-food-waste", Title: "Cut food waste"}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.StartResearch(env.Ctx, "t-1", v1.GoalID, "tester"); err == nil {
		t.Fatal("unresolved required question should block research")
	}
	pending, err := env.Engine.PendingQuestion(env.Ctx, "t-1")
	if err != nil || pending == nil {
		t.Fatal("pending question expected")
	}
	if _, err := env.Engine.SkipQuestion(env.Ctx, "t-1", pending.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.StartResearch(env.Ctx, "t-1", v1.GoalID, "tester"); err != nil {
		t.Fatalf("explicit skip should unblock: %v", err)
	}
}

func TestStartResearchEnrichesGoalText(t *testing.T) {
	env := newTestEnv(t)
	v1, err := env.Engine.SelectGoal(env.Ctx, "t-1", domain.SuggestedGoal{ID: "cut-food-waste", Title: "Cut food waste"}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	pending, err := env.Engine.PendingQuestion(env.Ctx, "t-1")
	if err != nil || pending == nil {
		t.Fatal("pending question expected")
	}
	if _, err := env.Engine.AnswerQuestion(env.Ctx, "t-1", pending.ID, "12000", "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.StartResearch(env.Ctx, "t-1", v1.GoalID, "tester"); err != nil {
		t.Fatal(err)
	}
	got := env.Backend.run.GoalText
	if !strings.Contains(got, "Cut food waste") || !strings.Contains(got, "12000") {
		t.Fatalf("answer not folded into goal text: %q", got)
	}
}

func TestModeSwitch(t *testing.T) {
	env := newTestEnv(t)
	state, err := env.Engine.SetMode(env.Ctx, "t-1", "connectors", "tester")
	if err != nil || state.Mode != "connectors" {
		t.Fatalf("switch: %+v %v", state, err)
	}
	if _, err := env.Engine.SetMode(env.Ctx, "t-1", "spreadsheet", "tester"); err == nil {
		t.Fatal("unknown mode should be rejected")
	}
	state, err = env.Engine.State(env.Ctx, "t-1")
	if err != nil || state.Mode != "connectors" {
		t.Fatalf("state lost after bad switch: %+v %v", state, err)
	}
}

func TestConnectorLifecycle(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.Engine.AddConnector(env.Ctx, "t-1", "square-pos", "", "", map[string]string{"token": "x"}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != "active" || c.DisplayName == "" {
		t.Fatalf("new connector: %+v", c)
	}
	if _, err := env.Engine.AddConnector(env.Ctx, "t-1", "fax-machine", "", "", nil, "tester"); err == nil {
		t.Fatal("catalog miss should fail")
	}
	paused, err := env.Engine.AddConnector(env.Ctx, "t-1", "quickbooks", "", "inactive", nil, "tester")
	if err != nil || paused.Status != "inactive" {
		t.Fatalf("status override: %+v %v", paused, err)
	}
	if _, err := env.Engine.AddConnector(env.Ctx, "t-1", "quickbooks", "", "bogus", nil, "tester"); err == nil {
		t.Fatal("unknown status should fail")
	}

	env.Backend.syncResult = backend.SyncResult{Status: "active", RecordCount: 42}
	synced, err := env.Engine.SyncConnector(env.Ctx, "t-1", c.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if synced.Status != "active" || synced.Metadata.RecordCount != 42 || synced.LastSync == "" {
		t.Fatalf("sync outcome: %+v", synced)
	}

	env.Backend.syncErr = errors.New("provider down")
	synced, err = env.Engine.SyncConnector(env.Ctx, "t-1", c.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if synced.Status != "error" || synced.Metadata.ErrorMessage == "" {
		t.Fatalf("failed sync should mark error: %+v", synced)
	}

	summary, err := env.Engine.SyncAllConnectors(env.Ctx, "t-1", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if summary.Total != 1 || summary.Failed != 1 {
		t.Fatalf("summary: %+v", summary)
	}

	if err := env.Engine.RemoveConnector(env.Ctx, "t-1", c.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if list := env.Engine.ListConnectors(env.Ctx, "t-1"); len(list) != 0 {
		t.Fatalf("connector not removed: %v", list)
	}
}

func TestInvitationLifecycle(t *testing.T) {
	env := newTestEnv(t)
	inv, err := env.Engine.CreateInvitation(env.Ctx, "t-1", "Pat@Example.com", "", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if inv.Email != "pat@example.com" || inv.Role != "member" || inv.Status != "pending" {
		t.Fatalf("invitation: %+v", inv)
	}
	if _, err := env.Engine.CreateInvitation(env.Ctx, "t-1", "pat@example.com", "admin", "tester"); err == nil {
		t.Fatal("duplicate pending invite should fail")
	}
	accepted, err := env.Engine.AcceptInvitation(env.Ctx, "t-1", inv.ID, "tester")
	if err != nil || accepted.Status != "accepted" {
		t.Fatalf("accept: %+v %v", accepted, err)
	}
	if _, err := env.Engine.RevokeInvitation(env.Ctx, "t-1", inv.ID, "tester"); err == nil {
		t.Fatal("revoking a non-pending invite should fail")
	}
}

func TestResendInvitationExtendsDeadline(t *testing.T) {
	env := newTestEnv(t)
	inv, err := env.Engine.CreateInvitation(env.Ctx, "t-1", "pat@example.com", "", "tester")
	if err != nil {
		t.Fatal(err)
	}
	env.Engine.Now = func() time.Time { return time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC) }
	resent, err := env.Engine.ResendInvitation(env.Ctx, "t-1", inv.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if resent.ExpiresAt <= inv.ExpiresAt {
		t.Fatalf("deadline not extended: %s -> %s", inv.ExpiresAt, resent.ExpiresAt)
	}
	if resent.Status != "pending" {
		t.Fatalf("status changed: %s", resent.Status)
	}
	if _, err := env.Engine.RevokeInvitation(env.Ctx, "t-1", inv.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ResendInvitation(env.Ctx, "t-1", inv.ID, "tester"); err == nil {
		t.Fatal("resending a revoked invite should fail")
	}
}

func TestInvitationExpiry(t *testing.T) {
	env := newTestEnv(t)
	inv, err := env.Engine.CreateInvitation(env.Ctx, "t-1", "late@example.com", "", "tester")
	if err != nil {
		t.Fatal(err)
	}
	env.Engine.Now = func() time.Time { return time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC) }
	if _, err := env.Engine.AcceptInvitation(env.Ctx, "t-1", inv.ID, "tester"); err == nil {
		t.Fatal("accepting past expiry should fail")
	}
	got, err := env.Engine.Repo.GetInvitation(env.Ctx, inv.ID)
	if err != nil || got.Status != "expired" {
		t.Fatalf("expected expired, got %+v %v", got, err)
	}
}

func TestOAuthStateRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.Backend.authorize = "https://auth.example.com/authorize?state=abc"
	url, state, err := env.Engine.BeginOAuth(env.Ctx, "t-1", "square", "https://app.example.com/callback")
	if err != nil {
		t.Fatal(err)
	}
	if url == "" || state == "" {
		t.Fatalf("begin: url=%q state=%q", url, state)
	}
	provider, err := env.Engine.CompleteOAuth(env.Ctx, "t-1", state)
	if err != nil || provider != "square" {
		t.Fatalf("complete: %q %v", provider, err)
	}
	if _, err := env.Engine.CompleteOAuth(env.Ctx, "t-1", state); err == nil {
		t.Fatal("state reuse should fail")
	}
}

func TestPlainMessagesRoundTripWithoutQuestion(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.SendMessage(env.Ctx, "t-1", "hello", nil, "tester"); err != nil {
		t.Fatal(err)
	}
	msgs, err := env.Engine.Transcript(env.Ctx, "t-1", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("transcript length = %d", len(msgs))
	}
	for _, m := range msgs {
		if m.Question != nil {
			t.Fatalf("%s message grew a question: %+v", m.Role, m.Question)
		}
	}
}

func TestFeedbackOnAssistantOnly(t *testing.T) {
	env := newTestEnv(t)
	msgs, err := env.Engine.SendMessage(env.Ctx, "t-1", "hello", nil, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.SetFeedback(env.Ctx, "t-1", msgs[1].ID, "up", "tester"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.SetFeedback(env.Ctx, "t-1", msgs[0].ID, "up", "tester"); err == nil {
		t.Fatal("feedback on user message should fail")
	}
	if err := env.Engine.SetFeedback(env.Ctx, "t-1", msgs[1].ID, "meh", "tester"); err == nil {
		t.Fatal("invalid rating should fail")
	}
}

func TestTenantScratchDefaults(t *testing.T) {
	env := newTestEnv(t)
	confirmed, err := env.Engine.PreferencesConfirmed(env.Ctx, "t-1")
	if err != nil || confirmed {
		t.Fatalf("fresh tenant confirmed=%v err=%v", confirmed, err)
	}
	sources, err := env.Engine.DataSources(env.Ctx, "t-1")
	if err != nil || sources == nil || len(sources) != 0 {
		t.Fatalf("fresh tenant sources=%v err=%v", sources, err)
	}
	// Malformed cached JSON reads as empty, not as an error.
	if err := env.Engine.Repo.SetKV(env.Ctx, "t-1", "data:sources", "{not json", "2024-03-01T10:00:00Z"); err != nil {
		t.Fatal(err)
	}
	sources, err = env.Engine.DataSources(env.Ctx, "t-1")
	if err != nil || len(sources) != 0 {
		t.Fatalf("malformed cache sources=%v err=%v", sources, err)
	}
	metric, freq, err := env.Engine.SeasonalitySelection(env.Ctx, "t-1")
	if err != nil || metric != "revenue" || freq != "monthly" {
		t.Fatalf("defaults: %s %s %v", metric, freq, err)
	}
}

func TestTenantScratchRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Engine.SetDataSources(env.Ctx, "t-1", []domain.DataSource{{ID: "ds-1", Name: "Sales", Kind: "csv", RowCount: 120}}); err != nil {
		t.Fatal(err)
	}
	sources, err := env.Engine.DataSources(env.Ctx, "t-1")
	if err != nil || len(sources) != 1 || sources[0].Name != "Sales" {
		t.Fatalf("sources=%v err=%v", sources, err)
	}
	if err := env.Engine.SetSeasonalitySelection(env.Ctx, "t-1", "covers", "weekly"); err != nil {
		t.Fatal(err)
	}
	metric, freq, err := env.Engine.SeasonalitySelection(env.Ctx, "t-1")
	if err != nil || metric != "covers" || freq != "weekly" {
		t.Fatalf("selection: %s %s %v", metric, freq, err)
	}
}

func TestConfirmPreferencesSetsFlag(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.StartPreferences(env.Ctx, "t-1", "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ConfirmPreferences(env.Ctx, "t-1", "tester"); err != nil {
		t.Fatal(err)
	}
	confirmed, err := env.Engine.PreferencesConfirmed(env.Ctx, "t-1")
	if err != nil || !confirmed {
		t.Fatalf("confirmed=%v err=%v", confirmed, err)
	}
}

func TestSavePlanConsumesDraftName(t *testing.T) {
	env := newTestEnv(t)
	v1, err := env.Engine.SelectGoal(env.Ctx, "t-1", domain.SuggestedGoal{ID: "custom", Title: "Cut costs"}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	env.Backend.statuses = []string{"completed"}
	if _, err := env.Engine.StartResearch(env.Ctx, "t-1", v1.GoalID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.PollResearch(env.Ctx, "t-1", "tester"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.SetDraftPlanName(env.Ctx, "t-1", "March cost push"); err != nil {
		t.Fatal(err)
	}
	plan, err := env.Engine.SavePlan(env.Ctx, "t-1", engine.PlanInput{GoalID: v1.GoalID, Title: "Cost reduction plan"}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if plan.UserProvidedName != "March cost push" {
		t.Fatalf("draft name not consumed: %q", plan.UserProvidedName)
	}
	draft, err := env.Engine.DraftPlanName(env.Ctx, "t-1")
	if err != nil || draft != "" {
		t.Fatalf("draft should clear after save: %q %v", draft, err)
	}
}

func TestAppendThinkingStepUpdatesByID(t *testing.T) {
	env := newTestEnv(t)
	first, err := env.Engine.SendMessage(env.Ctx, "t-1", "hello", nil, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SendMessage(env.Ctx, "t-1", "and another", nil, "tester"); err != nil {
		t.Fatal(err)
	}
	target := first[1].ID
	if err := env.Engine.AppendThinkingStep(env.Ctx, "t-1", target, "Crunching numbers", "running"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.AppendThinkingStep(env.Ctx, "t-1", target, "Numbers crunched", "done"); err != nil {
		t.Fatal(err)
	}
	msgs, err := env.Engine.Transcript(env.Ctx, "t-1", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range msgs {
		if m.ID != target {
			if len(m.ThinkingSteps) != 0 {
				t.Fatalf("steps leaked onto %s", m.ID)
			}
			continue
		}
		if len(m.ThinkingSteps) != 2 {
			t.Fatalf("steps = %+v", m.ThinkingSteps)
		}
		if m.ThinkingSteps[0].Status != "done" {
			t.Fatalf("earlier running step should flip to done: %+v", m.ThinkingSteps[0])
		}
		if m.ThinkingSteps[1].Label != "Numbers crunched" || m.ThinkingSteps[1].Status != "done" {
			t.Fatalf("appended step = %+v", m.ThinkingSteps[1])
		}
	}
	if err := env.Engine.AppendThinkingStep(env.Ctx, "t-1", "no-such-message", "x", "running"); err == nil {
		t.Fatal("unknown message id should fail")
	}
}

func TestResearchProgressMessageTracksRun(t *testing.T) {
	env := newTestEnv(t)
	v1, err := env.Engine.SelectGoal(env.Ctx, "t-1", domain.SuggestedGoal{ID: "custom", Title: "Cut costs"}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	env.Backend.statuses = []string{"running", "completed"}
	if _, err := env.Engine.StartResearch(env.Ctx, "t-1", v1.GoalID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.PollResearch(env.Ctx, "t-1", "tester"); err != nil {
		t.Fatal(err)
	}
	msgs, err := env.Engine.Transcript(env.Ctx, "t-1", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	var progress *domain.Message
	for i := range msgs {
		if msgs[i].Role == "system" && len(msgs[i].ThinkingSteps) > 0 {
			progress = &msgs[i]
		}
	}
	if progress == nil {
		t.Fatal("no progress message in transcript")
	}
	want := []string{"Run created", "Researching", "Backend planning", "Plan ready"}
	if len(progress.ThinkingSteps) != len(want) {
		t.Fatalf("steps = %+v", progress.ThinkingSteps)
	}
	for i, step := range progress.ThinkingSteps {
		if step.Label != want[i] {
			t.Fatalf("step %d = %+v, want label %q", i, step, want[i])
		}
		if step.Status != "done" {
			t.Fatalf("step %q should settle to done: %+v", step.Label, step)
		}
	}
}

func TestPollResearchRunFailureLeavesNote(t *testing.T) {
	env := newTestEnv(t)
	v1, err := env.Engine.SelectGoal(env.Ctx, "t-1", domain.SuggestedGoal{ID: "custom", Title: "Cut costs"}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	env.Backend.statuses = []string{"failed"}
	if _, err := env.Engine.StartResearch(env.Ctx, "t-1", v1.GoalID, "tester"); err != nil {
		t.Fatal(err)
	}
	state, err := env.Engine.PollResearch(env.Ctx, "t-1", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if state.ResearchStatus != "idle" {
		t.Fatalf("failed run should drop to idle: %+v", state)
	}
	msgs, err := env.Engine.Transcript(env.Ctx, "t-1", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	last := msgs[len(msgs)-1]
	if last.Role != "system" || !strings.Contains(last.Text, "planning run failed") {
		t.Fatalf("expected failure note, got %s: %q", last.Role, last.Text)
	}
}

func TestCompletedRunSeedsSavedPlan(t *testing.T) {
	env := newTestEnv(t)
	v1, err := env.Engine.SelectGoal(env.Ctx, "t-1", domain.SuggestedGoal{ID: "custom", Title: "Cut costs"}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	env.Backend.statuses = []string{"completed"}
	env.Backend.result = &domain.RunResult{
		Title:             "Cost reduction plan",
		Summary:           "Trim supplier spend.",
		Stages:            []domain.PlanStage{{ID: "s1", Title: "Audit", Todos: []string{"List suppliers"}}},
		QuickWins:         []string{"Cancel unused seats"},
		EstimatedDuration: "6 weeks",
		KPIs:              map[string]float64{"monthly_savings": 1200},
	}
	if _, err := env.Engine.StartResearch(env.Ctx, "t-1", v1.GoalID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.PollResearch(env.Ctx, "t-1", "tester"); err != nil {
		t.Fatal(err)
	}

	plan, err := env.Engine.SavePlan(env.Ctx, "t-1", engine.PlanInput{GoalID: v1.GoalID}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if plan.Title != "Cost reduction plan" {
		t.Fatalf("title not seeded: %q", plan.Title)
	}
	if !strings.Contains(plan.Summary, "Trim supplier spend.") || !strings.Contains(plan.Summary, "monthly_savings 1200.0") {
		t.Fatalf("summary not seeded: %q", plan.Summary)
	}
	if len(plan.Stages) != 1 || plan.Stages[0].Title != "Audit" {
		t.Fatalf("stages not seeded: %+v", plan.Stages)
	}
	if len(plan.QuickWins) != 1 || plan.EstimatedDuration != "6 weeks" {
		t.Fatalf("quick wins / duration not seeded: %+v %q", plan.QuickWins, plan.EstimatedDuration)
	}

	// The seed is consumed by the save: the next cycle must not reuse it.
	env.Backend.result = nil
	if _, err := env.Engine.StartResearch(env.Ctx, "t-1", v1.GoalID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.PollResearch(env.Ctx, "t-1", "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SavePlan(env.Ctx, "t-1", engine.PlanInput{GoalID: v1.GoalID}, "tester"); err == nil {
		t.Fatal("save without title or seed should fail")
	}
}

func TestCallerFieldsWinOverSeed(t *testing.T) {
	env := newTestEnv(t)
	v1, err := env.Engine.SelectGoal(env.Ctx, "t-1", domain.SuggestedGoal{ID: "custom", Title: "Cut costs"}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	env.Backend.statuses = []string{"completed"}
	env.Backend.result = &domain.RunResult{Title: "Backend title", Summary: "Backend summary."}
	if _, err := env.Engine.StartResearch(env.Ctx, "t-1", v1.GoalID, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.PollResearch(env.Ctx, "t-1", "tester"); err != nil {
		t.Fatal(err)
	}
	plan, err := env.Engine.SavePlan(env.Ctx, "t-1", engine.PlanInput{GoalID: v1.GoalID, Title: "My title"}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if plan.Title != "My title" {
		t.Fatalf("caller title overridden: %q", plan.Title)
	}
	if plan.Summary != "Backend summary." {
		t.Fatalf("blank summary should seed: %q", plan.Summary)
	}
}

func engineEditTitle(title string) version.Input {
	return version.Input{Title: title}
}
