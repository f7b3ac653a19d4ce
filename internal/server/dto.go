package server

import (
	"northstar/internal/domain"
)

// TenantPath is embedded in request inputs for tenant-scoped routes. It must
// stay exported: huma sets path params through reflection and cannot write
// fields promoted through an unexported embedded struct.
type TenantPath struct {
	TenantID string `path:"tenant_id"`
}

type UpdatePreferenceRequest struct {
	Field string `json:"field" example:"business_type"`
	Value string `json:"value" example:"Restaurant"`
}

type StepRequest struct {
	Direction string `json:"direction" enum:"next,back" example:"next"`
}

type SelectGoalRequest struct {
	Goal domain.SuggestedGoal `json:"goal"`
}

type EditGoalRequest struct {
	Title             string              `json:"title,omitempty"`
	Description       string              `json:"description,omitempty"`
	Metrics           []domain.GoalMetric `json:"metrics,omitempty"`
	Timeline          string              `json:"timeline,omitempty"`
	ChangeDescription string              `json:"change_description,omitempty"`
}

type RollbackRequest struct {
	ToVersion int `json:"to_version" minimum:"1"`
}

type SendMessageRequest struct {
	Text  string   `json:"text"`
	Files []string `json:"files,omitempty"`
}

type AnswerRequest struct {
	Answer string `json:"answer"`
}

type FeedbackRequest struct {
	Feedback string `json:"feedback" enum:"up,down"`
}

type ModeRequest struct {
	Mode string `json:"mode" enum:"chat,data-upload,goal-editing,version-history,connectors"`
}

type SeasonalityRequest struct {
	Metric    string `json:"metric,omitempty" example:"revenue"`
	Frequency string `json:"frequency,omitempty" example:"monthly"`
}

type SeasonalityResponse struct {
	Metric    string `json:"metric"`
	Frequency string `json:"frequency"`
}

type StartResearchRequest struct {
	GoalID string `json:"goal_id"`
}

type SavePlanRequest struct {
	GoalID            string              `json:"goal_id,omitempty"`
	Title             string              `json:"title"`
	Summary           string              `json:"summary,omitempty"`
	Stages            []domain.PlanStage  `json:"stages,omitempty"`
	QuickWins         []string            `json:"quick_wins,omitempty"`
	EstimatedDuration string              `json:"estimated_duration,omitempty"`
	DataSources       []domain.DataSource `json:"data_sources,omitempty"`
	UserProvidedName  string              `json:"user_provided_name,omitempty"`
}

type RenamePlanRequest struct {
	Name string `json:"name"`
}

type AddConnectorRequest struct {
	ConnectorID string            `json:"connector_id" example:"square-pos"`
	DisplayName string            `json:"display_name,omitempty"`
	Status      string            `json:"status,omitempty" example:"active"`
	Config      map[string]string `json:"config,omitempty"`
}

type InviteRequest struct {
	Email string `json:"email" format:"email"`
	Role  string `json:"role,omitempty" example:"member"`
}

type OAuthBeginRequest struct {
	Provider    string `json:"provider" example:"square"`
	RedirectURI string `json:"redirect_uri"`
}

type OAuthCompleteRequest struct {
	State string `json:"state"`
}
