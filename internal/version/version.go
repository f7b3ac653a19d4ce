// Package version implements goal version history: immutable snapshots,
// SMART validation, progress scoring and field diffs. Everything here is
// pure; the engine owns ids, clocks and persistence.
package version

import (
	"fmt"
	"strings"

	"northstar/internal/domain"
)

// Input is the editable surface of a goal version.
type Input struct {
	Title             string
	Description       string
	Metrics           []domain.GoalMetric
	Timeline          string
	ChangeDescription string
}

// Create builds version 1 of a new goal. New goals start in draft.
func Create(id, goalID, tenantID, createdBy, now string, in Input) domain.GoalVersion {
	return domain.GoalVersion{
		ID:                id,
		GoalID:            goalID,
		TenantID:          tenantID,
		Version:           1,
		Title:             strings.TrimSpace(in.Title),
		Description:       in.Description,
		Metrics:           in.Metrics,
		Timeline:          in.Timeline,
		Status:            "draft",
		CreatedAt:         now,
		CreatedBy:         createdBy,
		ChangeDescription: in.ChangeDescription,
	}
}

// Append builds the next version from a parent. Unchanged fields carry over;
// the new version points at the parent and inherits its status.
func Append(parent domain.GoalVersion, id, createdBy, now string, in Input) domain.GoalVersion {
	next := parent
	next.ID = id
	next.Version = parent.Version + 1
	next.ParentID = &parent.ID
	next.CreatedAt = now
	next.CreatedBy = createdBy
	next.ChangeDescription = in.ChangeDescription
	if t := strings.TrimSpace(in.Title); t != "" {
		next.Title = t
	}
	if in.Description != "" {
		next.Description = in.Description
	}
	if in.Metrics != nil {
		next.Metrics = in.Metrics
	}
	if in.Timeline != "" {
		next.Timeline = in.Timeline
	}
	return next
}

// SMARTResult reports which SMART criteria a version satisfies. Issues and
// Suggestions are parallel: one message and one concrete fix per failed
// criterion.
type SMARTResult struct {
	IsValid     bool     `json:"is_valid"`
	Specific    bool     `json:"specific"`
	Measurable  bool     `json:"measurable"`
	Achievable  bool     `json:"achievable"`
	Relevant    bool     `json:"relevant"`
	TimeBound   bool     `json:"time_bound"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
}

func (r *SMARTResult) flag(issue, suggestion string) {
	r.Issues = append(r.Issues, issue)
	r.Suggestions = append(r.Suggestions, suggestion)
}

// ValidateSMART checks a version against the SMART criteria. The checks are
// structural: they look at what is filled in, not at the prose quality.
func ValidateSMART(v domain.GoalVersion) SMARTResult {
	r := SMARTResult{Issues: []string{}, Suggestions: []string{}}
	r.Specific = len(strings.Fields(v.Title)) >= 3
	if !r.Specific {
		r.flag("title is too vague", "describe what will change, e.g. \"Cut monthly food waste by 20 percent\"")
	}
	r.Measurable = len(v.Metrics) > 0
	if !r.Measurable {
		r.flag("no metrics defined", "add at least one metric with a numeric target")
	}
	r.Achievable = true
	for _, m := range v.Metrics {
		if m.Target <= 0 {
			r.Achievable = false
			r.flag(fmt.Sprintf("metric %q has no positive target", m.Name), fmt.Sprintf("give %q a target greater than zero", m.Name))
			break
		}
	}
	r.Relevant = v.Description != ""
	if !r.Relevant {
		r.flag("description is empty", "explain why this goal matters to the business")
	}
	r.TimeBound = v.Timeline != ""
	if !r.TimeBound {
		r.flag("no timeline set", "give the goal a deadline, e.g. \"8 weeks\"")
	}
	r.IsValid = len(r.Issues) == 0
	return r
}

// Progress scores a version from its metrics as a percentage in [0,100].
// Each metric contributes current/target capped at 1; a version without
// metrics scores 0.
func Progress(v domain.GoalVersion) float64 {
	if len(v.Metrics) == 0 {
		return 0
	}
	var total float64
	for _, m := range v.Metrics {
		if m.Target <= 0 {
			continue
		}
		ratio := m.Current / m.Target
		if ratio < 0 {
			ratio = 0
		}
		if ratio > 1 {
			ratio = 1
		}
		total += ratio
	}
	return total / float64(len(v.Metrics)) * 100
}

// DiffResult describes what changed going from one version to another.
// Added and Removed track metrics that appeared or disappeared; Modified
// holds human-readable "field: old -> new" entries. All three lists are
// always present, so diffing a version against itself yields three empty
// lists rather than nulls.
type DiffResult struct {
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []string `json:"modified"`
}

// Diff compares two versions field by field.
func Diff(a, b domain.GoalVersion) DiffResult {
	d := DiffResult{Added: []string{}, Removed: []string{}, Modified: []string{}}
	if a.Title != b.Title {
		d.Modified = append(d.Modified, fmt.Sprintf("title: %q -> %q", a.Title, b.Title))
	}
	if a.Description != b.Description {
		d.Modified = append(d.Modified, fmt.Sprintf("description: %q -> %q", a.Description, b.Description))
	}
	if a.Timeline != b.Timeline {
		d.Modified = append(d.Modified, fmt.Sprintf("timeline: %q -> %q", a.Timeline, b.Timeline))
	}
	if a.Status != b.Status {
		d.Modified = append(d.Modified, fmt.Sprintf("status: %q -> %q", a.Status, b.Status))
	}
	diffMetrics(&d, a.Metrics, b.Metrics)
	return d
}

func diffMetrics(d *DiffResult, from, to []domain.GoalMetric) {
	fromByName := map[string]domain.GoalMetric{}
	for _, m := range from {
		fromByName[m.Name] = m
	}
	toByName := map[string]domain.GoalMetric{}
	for _, m := range to {
		toByName[m.Name] = m
	}
	for _, m := range from {
		if _, ok := toByName[m.Name]; !ok {
			d.Removed = append(d.Removed, fmt.Sprintf("metric %s (%s)", m.Name, metricString(m)))
		}
	}
	for _, m := range to {
		prev, ok := fromByName[m.Name]
		if !ok {
			d.Added = append(d.Added, fmt.Sprintf("metric %s (%s)", m.Name, metricString(m)))
			continue
		}
		if prev != m {
			d.Modified = append(d.Modified, fmt.Sprintf("metric %s: %s -> %s", m.Name, metricString(prev), metricString(m)))
		}
	}
}

func metricString(m domain.GoalMetric) string {
	if m.Unit != "" {
		return fmt.Sprintf("%g/%g %s", m.Current, m.Target, m.Unit)
	}
	return fmt.Sprintf("%g/%g", m.Current, m.Target)
}

// History assembles the ordered history view for a goal. Current falls back
// to the newest version when the head pointer is missing or out of range.
func History(goalID string, versions []domain.GoalVersion, head int) domain.VersionHistory {
	h := domain.VersionHistory{GoalID: goalID, Versions: versions}
	if len(versions) == 0 {
		return h
	}
	h.Current = versions[len(versions)-1].Version
	for _, v := range versions {
		if v.Version == head {
			h.Current = head
			break
		}
	}
	return h
}
