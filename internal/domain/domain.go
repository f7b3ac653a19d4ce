package domain

type Tenant struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PlanTier    string `json:"plan_tier"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// PreferenceRecord is the structured capture of a tenant's stated planning
// preferences. Single-select fields hold at most one value; multi-select
// fields are sets kept in insertion order.
type PreferenceRecord struct {
	BusinessType   string   `json:"business_type,omitempty"`
	ObjectiveFocus []string `json:"objective_focus,omitempty"`
	OperatingPace  string   `json:"operating_pace,omitempty"`
	Budget         string   `json:"budget,omitempty"`
	Markets        []string `json:"markets,omitempty"`
	OtherNeeds     string   `json:"other_needs,omitempty"`
}

// PreferenceSession is one open run of the preference wizard. Confirming is
// terminal for the session; a new session must be opened for a new record.
type PreferenceSession struct {
	ID        string           `json:"id"`
	TenantID  string           `json:"tenant_id"`
	Step      int              `json:"step"`
	Record    PreferenceRecord `json:"record"`
	Status    string           `json:"status" enum:"open,confirmed,skipped"`
	Summary   string           `json:"summary,omitempty"`
	CreatedAt string           `json:"created_at" format:"date-time"`
	UpdatedAt string           `json:"updated_at" format:"date-time"`
}

// SuggestedGoal is a candidate objective offered before plan generation.
// Immutable once produced; consumed when selected to seed a goal version.
type SuggestedGoal struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	Priority          string `json:"priority" enum:"low,medium,high"`
	EstimatedDuration string `json:"estimated_duration"`
	ExpectedImpact    string `json:"expected_impact"`
	Icon              string `json:"icon,omitempty"`
}

type GoalMetric struct {
	Name    string  `json:"name"`
	Target  float64 `json:"target"`
	Current float64 `json:"current"`
	Unit    string  `json:"unit,omitempty"`
}

// GoalVersion is one immutable snapshot in the edit history of a logical goal.
// Edits never mutate in place; they produce a new version linked to the parent.
type GoalVersion struct {
	ID                string       `json:"id"`
	GoalID            string       `json:"goal_id"`
	TenantID          string       `json:"tenant_id"`
	Version           int          `json:"version"`
	ParentID          *string      `json:"parent_id,omitempty"`
	Title             string       `json:"title"`
	Description       string       `json:"description,omitempty"`
	Metrics           []GoalMetric `json:"metrics,omitempty"`
	Timeline          string       `json:"timeline,omitempty"`
	Status            string       `json:"status" enum:"draft,active,archived"`
	CreatedAt         string       `json:"created_at" format:"date-time"`
	CreatedBy         string       `json:"created_by"`
	ChangeDescription string       `json:"change_description,omitempty"`
}

// VersionHistory owns every version of one logical goal, ordered by the
// version integer. Current is the version selected for display; it is the
// last entry unless a rollback picked an earlier one. Rollback never deletes
// history. Branches are named alternate lines of version ids.
type VersionHistory struct {
	GoalID   string              `json:"goal_id"`
	Versions []GoalVersion       `json:"versions"`
	Current  int                 `json:"current"`
	Branches map[string][]string `json:"branches,omitempty"`
}

type PlanStage struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Todos       []string `json:"todos"`
}

// SavedPlan is a persisted, user-nameable rendering of a generated execution
// plan. UserProvidedName is separate from the generated title and is never
// overwritten by regeneration.
type SavedPlan struct {
	ID                string       `json:"id"`
	TenantID          string       `json:"tenant_id"`
	GoalID            string       `json:"goal_id,omitempty"`
	Title             string       `json:"title"`
	Summary           string       `json:"summary,omitempty"`
	Stages            []PlanStage  `json:"stages"`
	QuickWins         []string     `json:"quick_wins,omitempty"`
	EstimatedDuration string       `json:"estimated_duration,omitempty"`
	DataSources       []DataSource `json:"data_sources,omitempty"`
	Version           int          `json:"version"`
	UserProvidedName  string       `json:"user_provided_name,omitempty"`
	CreatedAt         string       `json:"created_at" format:"date-time"`
	UpdatedAt         string       `json:"updated_at" format:"date-time"`
}

type DataSource struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	RowCount int    `json:"row_count,omitempty"`
}

type ConnectorMetadata struct {
	RecordCount  int    `json:"record_count,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// TenantConnector is a configured link to an external data source. Status is
// externally driven by sync results; the local row mirrors the last known
// state.
type TenantConnector struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenant_id"`
	ConnectorID string            `json:"connector_id"`
	DisplayName string            `json:"display_name"`
	Category    string            `json:"category,omitempty"`
	Config      map[string]string `json:"config,omitempty"`
	DataTypes   []string          `json:"data_types,omitempty"`
	Status      string            `json:"status" enum:"active,inactive,error,syncing,testing"`
	LastSync    string            `json:"last_sync,omitempty" format:"date-time"`
	Metadata    ConnectorMetadata `json:"metadata,omitempty"`
	CreatedAt   string            `json:"created_at" format:"date-time"`
}

type ThinkingStep struct {
	Label  string `json:"label"`
	Status string `json:"status" enum:"pending,running,done,failed"`
}

// Question embedded in a transcript message. Required questions block plan
// generation until answered or explicitly skipped.
type Question struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Required   bool   `json:"required"`
	Answer     string `json:"answer,omitempty"`
	Answered   bool   `json:"answered"`
	Skipped    bool   `json:"skipped"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Message is one entry in the append-only chat transcript. IDs are ULIDs so
// transcript order matches id order.
type Message struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenant_id"`
	Role          string         `json:"role" enum:"user,assistant,system,question"`
	Text          string         `json:"text"`
	Files         []string       `json:"files,omitempty"`
	Question      *Question      `json:"question,omitempty"`
	Feedback      *string        `json:"feedback,omitempty"`
	ThinkingSteps []ThinkingStep `json:"thinking_steps,omitempty"`
	CreatedAt     string         `json:"created_at" format:"date-time"`
}

type Invitation struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Status    string `json:"status" enum:"pending,accepted,revoked,expired"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// Run is a backend-side planning job identified by id and polled for status.
// Result is only present once the run completes, and only when the backend
// chose to attach one.
type Run struct {
	ID       string     `json:"id"`
	GoalText string     `json:"goal_text"`
	Status   string     `json:"status" enum:"pending,running,completed,failed"`
	Result   *RunResult `json:"result,omitempty"`
}

// RunResult is the loosely-typed payload a completed run carries: an
// explanation of the generated plan plus solution KPIs. Every field is
// optional; consumers fall back to their own defaults.
type RunResult struct {
	Title             string             `json:"title,omitempty"`
	Summary           string             `json:"summary,omitempty"`
	Stages            []PlanStage        `json:"stages,omitempty"`
	QuickWins         []string           `json:"quick_wins,omitempty"`
	EstimatedDuration string             `json:"estimated_duration,omitempty"`
	KPIs              map[string]float64 `json:"kpis,omitempty"`
}

type TenantProfile struct {
	Name     string            `json:"name"`
	PlanTier string            `json:"plan_tier"`
	Industry string            `json:"industry,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// TenantState is the persisted conversational state for a tenant: which
// surface mode the assistant is in and where research stands. One row per
// tenant, upserted on every transition.
type TenantState struct {
	TenantID       string `json:"tenant_id"`
	Mode           string `json:"mode" enum:"chat,data-upload,goal-editing,version-history,connectors"`
	ResearchStatus string `json:"research_status" enum:"idle,researching,planning,ready"`
	LastRunID      string `json:"last_run_id,omitempty"`
	LastRunStatus  string `json:"last_run_status,omitempty"`
	UpdatedAt      string `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	TenantID   string `json:"tenant_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
