// Package prefs implements the preference wizard: a five step capture of a
// tenant's planning preferences. The functions here are pure; persistence and
// transcript side effects live in the engine.
package prefs

import (
	"fmt"
	"strings"

	"northstar/internal/config"
	"northstar/internal/domain"
)

const (
	StepBusinessType = 1
	StepObjectives   = 2
	StepPace         = 3
	StepBudget       = 4
	StepMarkets      = 5

	FirstStep = StepBusinessType
	LastStep  = StepMarkets
)

// Field names accepted by Apply.
const (
	FieldBusinessType = "business_type"
	FieldObjectives   = "objective_focus"
	FieldPace         = "operating_pace"
	FieldBudget       = "budget"
	FieldMarkets      = "markets"
	FieldOtherNeeds   = "other_needs"
)

// Advance moves forward one step, clamped to the last step.
func Advance(step int) int {
	if step >= LastStep {
		return LastStep
	}
	if step < FirstStep {
		return FirstStep
	}
	return step + 1
}

// Back moves one step backwards, clamped to the first step.
func Back(step int) int {
	if step <= FirstStep {
		return FirstStep
	}
	if step > LastStep {
		return LastStep
	}
	return step - 1
}

// StepField maps a wizard step to the field it edits.
func StepField(step int) string {
	switch step {
	case StepBusinessType:
		return FieldBusinessType
	case StepObjectives:
		return FieldObjectives
	case StepPace:
		return FieldPace
	case StepBudget:
		return FieldBudget
	case StepMarkets:
		return FieldMarkets
	}
	return ""
}

// Options returns the selectable values for a step from the tenant config.
func Options(cfg *config.Config, step int) []string {
	switch step {
	case StepBusinessType:
		return cfg.Preferences.BusinessTypes
	case StepObjectives:
		return cfg.Preferences.ObjectiveFocus
	case StepPace:
		return cfg.Preferences.OperatingPaces
	case StepBudget:
		return cfg.Preferences.Budgets
	case StepMarkets:
		return cfg.Preferences.Markets
	}
	return nil
}

// Apply updates one field of the record. Single-select fields replace their
// value; selecting the current value again clears it. Multi-select fields
// toggle membership, keeping insertion order. Values must come from the
// config catalog, except other_needs which is free text.
func Apply(cfg *config.Config, rec domain.PreferenceRecord, field, value string) (domain.PreferenceRecord, error) {
	switch field {
	case FieldBusinessType:
		if err := mustBeOption(cfg.Preferences.BusinessTypes, field, value); err != nil {
			return rec, err
		}
		rec.BusinessType = toggleSingle(rec.BusinessType, value)
	case FieldObjectives:
		if err := mustBeOption(cfg.Preferences.ObjectiveFocus, field, value); err != nil {
			return rec, err
		}
		rec.ObjectiveFocus = toggleMulti(rec.ObjectiveFocus, value)
	case FieldPace:
		if err := mustBeOption(cfg.Preferences.OperatingPaces, field, value); err != nil {
			return rec, err
		}
		rec.OperatingPace = toggleSingle(rec.OperatingPace, value)
	case FieldBudget:
		if err := mustBeOption(cfg.Preferences.Budgets, field, value); err != nil {
			return rec, err
		}
		rec.Budget = toggleSingle(rec.Budget, value)
	case FieldMarkets:
		if err := mustBeOption(cfg.Preferences.Markets, field, value); err != nil {
			return rec, err
		}
		rec.Markets = toggleMulti(rec.Markets, value)
	case FieldOtherNeeds:
		rec.OtherNeeds = strings.TrimSpace(value)
	default:
		return rec, fmt.Errorf("unknown preference field %q", field)
	}
	return rec, nil
}

// Summarize renders the record as the one-line summary stored on confirm.
// An empty record summarizes as "No preferences set".
func Summarize(rec domain.PreferenceRecord) string {
	var parts []string
	if rec.BusinessType != "" {
		parts = append(parts, "Business: "+rec.BusinessType)
	}
	if len(rec.ObjectiveFocus) > 0 {
		parts = append(parts, "Focus: "+strings.Join(rec.ObjectiveFocus, ", "))
	}
	if rec.OperatingPace != "" {
		parts = append(parts, "Pace: "+rec.OperatingPace)
	}
	if rec.Budget != "" {
		parts = append(parts, "Budget: "+rec.Budget)
	}
	if len(rec.Markets) > 0 {
		parts = append(parts, "Markets: "+strings.Join(rec.Markets, ", "))
	}
	if rec.OtherNeeds != "" {
		parts = append(parts, "Also: "+rec.OtherNeeds)
	}
	if len(parts) == 0 {
		return "No preferences set"
	}
	return strings.Join(parts, " • ")
}

// Empty reports whether nothing has been selected.
func Empty(rec domain.PreferenceRecord) bool {
	return rec.BusinessType == "" && len(rec.ObjectiveFocus) == 0 &&
		rec.OperatingPace == "" && rec.Budget == "" && len(rec.Markets) == 0 &&
		rec.OtherNeeds == ""
}

// Prefill seeds a fresh record from the tenant's backend profile. Only values
// that match the config catalog are taken; anything else is left blank for
// the wizard to capture.
func Prefill(cfg *config.Config, profile domain.TenantProfile) domain.PreferenceRecord {
	var rec domain.PreferenceRecord
	if isOption(cfg.Preferences.BusinessTypes, profile.Industry) {
		rec.BusinessType = profile.Industry
	}
	if v := profile.Metadata["operating_pace"]; isOption(cfg.Preferences.OperatingPaces, v) {
		rec.OperatingPace = v
	}
	if v := profile.Metadata["budget"]; isOption(cfg.Preferences.Budgets, v) {
		rec.Budget = v
	}
	return rec
}

func toggleSingle(current, value string) string {
	if current == value {
		return ""
	}
	return value
}

func toggleMulti(current []string, value string) []string {
	for i, v := range current {
		if v == value {
			return append(current[:i:i], current[i+1:]...)
		}
	}
	return append(current, value)
}

func isOption(options []string, value string) bool {
	if value == "" {
		return false
	}
	for _, o := range options {
		if o == value {
			return true
		}
	}
	return false
}

func mustBeOption(options []string, field, value string) error {
	if !isOption(options, value) {
		return fmt.Errorf("value %q is not a valid option for %s", value, field)
	}
	return nil
}
