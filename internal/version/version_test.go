package version

import (
	"strings"
	"testing"

	"northstar/internal/domain"
)

const now = "2024-03-01T10:00:00Z"

func baseVersion() domain.GoalVersion {
	return Create("v1-id", "goal-1", "t-test", "owner", now, Input{
		Title:       "Cut monthly food waste by 20 percent",
		Description: "Waste is the largest controllable cost line.",
		Metrics:     []domain.GoalMetric{{Name: "waste", Target: 20, Current: 5, Unit: "%"}},
		Timeline:    "8 weeks",
	})
}

func TestCreateStartsAtVersionOneDraft(t *testing.T) {
	v := baseVersion()
	if v.Version != 1 {
		t.Fatalf("version = %d", v.Version)
	}
	if v.Status != "draft" {
		t.Fatalf("status = %q", v.Status)
	}
	if v.ParentID != nil {
		t.Fatal("version 1 must have no parent")
	}
}

func TestAppendIncrementsAndLinksParent(t *testing.T) {
	parent := baseVersion()
	next := Append(parent, "v2-id", "owner", now, Input{Title: "Cut monthly food waste by 25 percent", ChangeDescription: "raised target"})
	if next.Version != parent.Version+1 {
		t.Fatalf("version = %d", next.Version)
	}
	if next.ParentID == nil || *next.ParentID != parent.ID {
		t.Fatalf("parent link wrong: %v", next.ParentID)
	}
	if next.Description != parent.Description {
		t.Fatal("unchanged field did not carry over")
	}
	if next.ChangeDescription != "raised target" {
		t.Fatalf("change description = %q", next.ChangeDescription)
	}
}

func TestValidateSMARTPasses(t *testing.T) {
	r := ValidateSMART(baseVersion())
	if !r.IsValid {
		t.Fatalf("expected valid, issues: %v", r.Issues)
	}
	if len(r.Issues) != 0 || len(r.Suggestions) != 0 {
		t.Fatalf("unexpected issues: %v / %v", r.Issues, r.Suggestions)
	}
	if r.Issues == nil || r.Suggestions == nil {
		t.Fatal("issue lists must be empty, not nil")
	}
}

func TestValidateSMARTFlagsGaps(t *testing.T) {
	v := domain.GoalVersion{Title: "Grow"}
	r := ValidateSMART(v)
	if r.IsValid {
		t.Fatal("expected invalid")
	}
	if r.Specific || r.Measurable || r.Relevant || r.TimeBound {
		t.Fatalf("criteria should fail: %+v", r)
	}
	if len(r.Issues) != 4 {
		t.Fatalf("expected 4 issues, got %v", r.Issues)
	}
	if len(r.Suggestions) != len(r.Issues) {
		t.Fatalf("each issue needs a suggestion: %v / %v", r.Issues, r.Suggestions)
	}
}

func TestValidateSMARTNonPositiveTarget(t *testing.T) {
	v := baseVersion()
	v.Metrics = []domain.GoalMetric{{Name: "waste", Target: 0}}
	r := ValidateSMART(v)
	if r.Achievable {
		t.Fatal("zero target should fail achievable")
	}
}

func TestProgress(t *testing.T) {
	v := baseVersion()
	v.Metrics = []domain.GoalMetric{
		{Name: "a", Target: 100, Current: 50},
		{Name: "b", Target: 10, Current: 10},
	}
	if got := Progress(v); got != 75 {
		t.Fatalf("got %v", got)
	}
}

func TestProgressNoMetrics(t *testing.T) {
	v := baseVersion()
	v.Metrics = nil
	if got := Progress(v); got != 0 {
		t.Fatalf("got %v", got)
	}
}

func TestProgressClamped(t *testing.T) {
	v := baseVersion()
	v.Metrics = []domain.GoalMetric{
		{Name: "over", Target: 10, Current: 50},
		{Name: "negative", Target: 10, Current: -5},
	}
	got := Progress(v)
	if got < 0 || got > 100 {
		t.Fatalf("out of range: %v", got)
	}
	if got != 50 {
		t.Fatalf("got %v", got)
	}
}

func TestDiffSelfIsEmpty(t *testing.T) {
	v := baseVersion()
	d := Diff(v, v)
	if len(d.Added)+len(d.Removed)+len(d.Modified) != 0 {
		t.Fatalf("self diff not empty: %+v", d)
	}
	if d.Added == nil || d.Removed == nil || d.Modified == nil {
		t.Fatal("diff lists must be empty, not nil")
	}
}

func TestDiffReportsFieldChanges(t *testing.T) {
	a := baseVersion()
	b := Append(a, "v2-id", "owner", now, Input{
		Title:    "Cut monthly food waste by 25 percent",
		Timeline: "12 weeks",
		Metrics: []domain.GoalMetric{
			{Name: "waste", Target: 25, Current: 5, Unit: "%"},
			{Name: "spend", Target: 1000, Unit: "USD"},
		},
	})
	d := Diff(a, b)
	joined := strings.Join(d.Modified, "\n")
	for _, want := range []string{"title:", "timeline:", "metric waste:"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing %q in %v", want, d.Modified)
		}
	}
	if strings.Contains(joined, "description:") {
		t.Fatalf("unchanged description reported: %v", d.Modified)
	}
	if len(d.Added) != 1 || !strings.Contains(d.Added[0], "spend") {
		t.Fatalf("new metric not in added: %v", d.Added)
	}
	if len(d.Removed) != 0 {
		t.Fatalf("nothing was removed: %v", d.Removed)
	}
}

func TestDiffRemovedMetric(t *testing.T) {
	a := baseVersion()
	b := a
	b.Metrics = nil
	d := Diff(a, b)
	if len(d.Removed) != 1 || !strings.Contains(d.Removed[0], "waste") {
		t.Fatalf("got %+v", d)
	}
}

func TestHistoryCurrentFollowsHead(t *testing.T) {
	v1 := baseVersion()
	v2 := Append(v1, "v2-id", "owner", now, Input{Title: "Cut monthly food waste by 25 percent"})
	h := History("goal-1", []domain.GoalVersion{v1, v2}, 1)
	if h.Current != 1 {
		t.Fatalf("head not honored: %d", h.Current)
	}
	h = History("goal-1", []domain.GoalVersion{v1, v2}, 99)
	if h.Current != 2 {
		t.Fatalf("out of range head should fall back to newest: %d", h.Current)
	}
}
