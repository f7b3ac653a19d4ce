package prefs

import (
	"testing"

	"northstar/internal/config"
	"northstar/internal/domain"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default("t-test")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	return cfg
}

func TestAdvanceAndBackClamp(t *testing.T) {
	if got := Advance(LastStep); got != LastStep {
		t.Fatalf("advance past last step: got %d", got)
	}
	if got := Back(FirstStep); got != FirstStep {
		t.Fatalf("back past first step: got %d", got)
	}
	if got := Advance(2); got != 3 {
		t.Fatalf("advance from 2: got %d", got)
	}
	if got := Back(4); got != 3 {
		t.Fatalf("back from 4: got %d", got)
	}
	if got := Advance(-3); got != FirstStep {
		t.Fatalf("advance from below range: got %d", got)
	}
}

func TestApplySingleSelectReplacesAndClears(t *testing.T) {
	cfg := testConfig(t)
	rec, err := Apply(cfg, domain.PreferenceRecord{}, FieldBusinessType, "Restaurant")
	if err != nil {
		t.Fatal(err)
	}
	if rec.BusinessType != "Restaurant" {
		t.Fatalf("got %q", rec.BusinessType)
	}
	rec, err = Apply(cfg, rec, FieldBusinessType, "Retail")
	if err != nil {
		t.Fatal(err)
	}
	if rec.BusinessType != "Retail" {
		t.Fatalf("replace: got %q", rec.BusinessType)
	}
	rec, err = Apply(cfg, rec, FieldBusinessType, "Retail")
	if err != nil {
		t.Fatal(err)
	}
	if rec.BusinessType != "" {
		t.Fatalf("reselect should clear, got %q", rec.BusinessType)
	}
}

func TestApplyMultiSelectToggles(t *testing.T) {
	cfg := testConfig(t)
	rec := domain.PreferenceRecord{}
	for _, v := range []string{"Reduce Cost", "Improve Service"} {
		var err error
		rec, err = Apply(cfg, rec, FieldObjectives, v)
		if err != nil {
			t.Fatal(err)
		}
	}
	if len(rec.ObjectiveFocus) != 2 || rec.ObjectiveFocus[0] != "Reduce Cost" {
		t.Fatalf("insertion order lost: %v", rec.ObjectiveFocus)
	}
	rec, err := Apply(cfg, rec, FieldObjectives, "Reduce Cost")
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.ObjectiveFocus) != 1 || rec.ObjectiveFocus[0] != "Improve Service" {
		t.Fatalf("toggle off failed: %v", rec.ObjectiveFocus)
	}
}

func TestApplyRejectsUnknownOption(t *testing.T) {
	cfg := testConfig(t)
	if _, err := Apply(cfg, domain.PreferenceRecord{}, FieldBudget, "Unlimited"); err == nil {
		t.Fatal("expected error for catalog miss")
	}
	if _, err := Apply(cfg, domain.PreferenceRecord{}, "favorite_color", "blue"); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestSummarize(t *testing.T) {
	rec := domain.PreferenceRecord{
		BusinessType:   "Restaurant",
		ObjectiveFocus: []string{"Reduce Cost", "Improve Service"},
		OperatingPace:  "Ambitious",
		Budget:         "Lean",
		Markets:        []string{"Local"},
	}
	want := "Business: Restaurant • Focus: Reduce Cost, Improve Service • Pace: Ambitious • Budget: Lean • Markets: Local"
	if got := Summarize(rec); got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	if got := Summarize(domain.PreferenceRecord{}); got != "No preferences set" {
		t.Fatalf("got %q", got)
	}
}

func TestSummarizePartial(t *testing.T) {
	rec := domain.PreferenceRecord{Budget: "Moderate"}
	if got := Summarize(rec); got != "Budget: Moderate" {
		t.Fatalf("got %q", got)
	}
}

func TestPrefillFromProfile(t *testing.T) {
	cfg := testConfig(t)
	rec := Prefill(cfg, domain.TenantProfile{
		Industry: "Retail",
		Metadata: map[string]string{"operating_pace": "Steady", "budget": "Infinite"},
	})
	if rec.BusinessType != "Retail" {
		t.Fatalf("industry not taken: %q", rec.BusinessType)
	}
	if rec.OperatingPace != "Steady" {
		t.Fatalf("pace not taken: %q", rec.OperatingPace)
	}
	if rec.Budget != "" {
		t.Fatalf("catalog miss should stay blank, got %q", rec.Budget)
	}
}

func TestPrefillIgnoresUnknownIndustry(t *testing.T) {
	cfg := testConfig(t)
	rec := Prefill(cfg, domain.TenantProfile{Industry: "Aerospace"})
	if !Empty(rec) {
		t.Fatalf("expected empty record, got %+v", rec)
	}
}
