package suggest

import (
	"context"
	"errors"
	"testing"

	"northstar/internal/config"
	"northstar/internal/domain"
)

func TestCatalogSuggesterFiltersAndOrders(t *testing.T) {
	cfg := config.Default("t-test")
	rec := domain.PreferenceRecord{
		BusinessType:   "Restaurant",
		ObjectiveFocus: []string{"Reduce Cost"},
	}
	goals, err := CatalogSuggester{Config: cfg}.Suggest(context.Background(), rec)
	if err != nil {
		t.Fatal(err)
	}
	if len(goals) == 0 {
		t.Fatal("expected suggestions")
	}
	for i := 1; i < len(goals); i++ {
		if priorityRank(goals[i-1].Priority) > priorityRank(goals[i].Priority) {
			t.Fatalf("priority order broken at %d: %v", i, goals)
		}
	}
	if goals[0].ID != "cut-food-waste" {
		t.Fatalf("expected restaurant cost goal first, got %q", goals[0].ID)
	}
}

func TestCatalogSuggesterDeterministic(t *testing.T) {
	cfg := config.Default("t-test")
	rec := domain.PreferenceRecord{BusinessType: "Retail"}
	a, _ := CatalogSuggester{Config: cfg}.Suggest(context.Background(), rec)
	b, _ := CatalogSuggester{Config: cfg}.Suggest(context.Background(), rec)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Fatalf("order differs at %d: %q vs %q", i, a[i].ID, b[i].ID)
		}
	}
}

func TestCatalogSuggesterEmptyRecordMatchesAll(t *testing.T) {
	cfg := config.Default("t-test")
	goals, err := CatalogSuggester{Config: cfg}.Suggest(context.Background(), domain.PreferenceRecord{})
	if err != nil {
		t.Fatal(err)
	}
	if len(goals) != len(cfg.Goals.Templates) {
		t.Fatalf("expected full catalog, got %d of %d", len(goals), len(cfg.Goals.Templates))
	}
}

func TestCatalogSuggesterLimit(t *testing.T) {
	cfg := config.Default("t-test")
	goals, err := CatalogSuggester{Config: cfg, Limit: 2}.Suggest(context.Background(), domain.PreferenceRecord{})
	if err != nil {
		t.Fatal(err)
	}
	if len(goals) != 2 {
		t.Fatalf("limit not applied: %d", len(goals))
	}
}

type stubRecommender struct {
	goals []domain.SuggestedGoal
	err   error
}

func (s stubRecommender) Recommendations(context.Context, domain.PreferenceRecord) ([]domain.SuggestedGoal, error) {
	return s.goals, s.err
}

func TestWithFallbackUsesPrimary(t *testing.T) {
	want := []domain.SuggestedGoal{{ID: "remote-1", Title: "Remote", Priority: "high"}}
	s := WithFallback{
		Primary:  RemoteSuggester{Backend: stubRecommender{goals: want}},
		Fallback: CatalogSuggester{Config: config.Default("t-test")},
	}
	goals, err := s.Suggest(context.Background(), domain.PreferenceRecord{})
	if err != nil {
		t.Fatal(err)
	}
	if len(goals) != 1 || goals[0].ID != "remote-1" {
		t.Fatalf("primary not used: %v", goals)
	}
}

func TestWithFallbackOnError(t *testing.T) {
	s := WithFallback{
		Primary:  RemoteSuggester{Backend: stubRecommender{err: errors.New("boom")}},
		Fallback: CatalogSuggester{Config: config.Default("t-test")},
	}
	goals, err := s.Suggest(context.Background(), domain.PreferenceRecord{BusinessType: "Restaurant"})
	if err != nil {
		t.Fatalf("fallback should swallow primary error, got %v", err)
	}
	if len(goals) == 0 {
		t.Fatal("expected catalog suggestions")
	}
}

func TestWithFallbackOnEmpty(t *testing.T) {
	s := WithFallback{
		Primary:  RemoteSuggester{Backend: stubRecommender{}},
		Fallback: CatalogSuggester{Config: config.Default("t-test")},
	}
	goals, err := s.Suggest(context.Background(), domain.PreferenceRecord{})
	if err != nil {
		t.Fatal(err)
	}
	if len(goals) == 0 {
		t.Fatal("empty primary result should fall back")
	}
}
