package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"northstar/internal/backend"
	"northstar/internal/connectors"
	"northstar/internal/domain"
	"northstar/internal/engine"
	"northstar/internal/version"
)

func registerState(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-state",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/state",
		Summary:     "Conversational state",
	}, func(ctx context.Context, input *TenantPath) (*struct {
		Body domain.TenantState `json:"body"`
	}, error) {
		state, err := e.State(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TenantState `json:"body"`
		}{Body: state}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-mode",
		Method:      http.MethodPut,
		Path:        "/tenants/{tenant_id}/mode",
		Summary:     "Switch assistant mode",
	}, func(ctx context.Context, input *struct {
		TenantPath
		Body ModeRequest `json:"body"`
	}) (*struct {
		Body domain.TenantState `json:"body"`
	}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		state, err := e.SetMode(ctx, input.TenantID, input.Body.Mode, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TenantState `json:"body"`
		}{Body: state}, nil
	})

	type seasonalityResponse struct {
		Body SeasonalityResponse `json:"body"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-seasonality",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/seasonality",
		Summary:     "Last-used seasonality view",
	}, func(ctx context.Context, input *TenantPath) (*seasonalityResponse, error) {
		metric, frequency, err := e.SeasonalitySelection(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		return &seasonalityResponse{Body: SeasonalityResponse{Metric: metric, Frequency: frequency}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-seasonality",
		Method:      http.MethodPut,
		Path:        "/tenants/{tenant_id}/seasonality",
		Summary:     "Remember the seasonality view",
	}, func(ctx context.Context, input *struct {
		TenantPath
		Body SeasonalityRequest `json:"body"`
	}) (*seasonalityResponse, error) {
		if err := e.SetSeasonalitySelection(ctx, input.TenantID, input.Body.Metric, input.Body.Frequency); err != nil {
			return nil, handleError(err)
		}
		metric, frequency, err := e.SeasonalitySelection(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		return &seasonalityResponse{Body: SeasonalityResponse{Metric: metric, Frequency: frequency}}, nil
	})
}

func registerPreferences(api huma.API, e *engine.Engine) {
	type sessionResponse struct {
		Body domain.PreferenceSession `json:"body"`
	}
	respond := func(s domain.PreferenceSession, err error) (*sessionResponse, error) {
		if err != nil {
			return nil, handleError(err)
		}
		return &sessionResponse{Body: s}, nil
	}

	huma.Register(api, huma.Operation{
		OperationID:   "start-preferences",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenant_id}/preferences/start",
		Summary:       "Open the preference wizard",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *TenantPath) (*sessionResponse, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return respond(e.StartPreferences(ctx, input.TenantID, actor))
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-preference",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/preferences/update",
		Summary:     "Apply one wizard selection",
	}, func(ctx context.Context, input *struct {
		TenantPath
		Body UpdatePreferenceRequest `json:"body"`
	}) (*sessionResponse, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return respond(e.UpdatePreference(ctx, input.TenantID, input.Body.Field, input.Body.Value, actor))
	})

	huma.Register(api, huma.Operation{
		OperationID: "step-preferences",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/preferences/step",
		Summary:     "Move the wizard forward or back",
	}, func(ctx context.Context, input *struct {
		TenantPath
		Body StepRequest `json:"body"`
	}) (*sessionResponse, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Direction == "back" {
			return respond(e.BackPreferences(ctx, input.TenantID, actor))
		}
		return respond(e.AdvancePreferences(ctx, input.TenantID, actor))
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-preferences",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/preferences/reset",
		Summary:     "Clear the wizard",
	}, func(ctx context.Context, input *TenantPath) (*sessionResponse, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return respond(e.ResetPreferences(ctx, input.TenantID, actor))
	})

	huma.Register(api, huma.Operation{
		OperationID: "confirm-preferences",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/preferences/confirm",
		Summary:     "Confirm the wizard",
	}, func(ctx context.Context, input *TenantPath) (*sessionResponse, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return respond(e.ConfirmPreferences(ctx, input.TenantID, actor))
	})

	huma.Register(api, huma.Operation{
		OperationID: "skip-preferences",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/preferences/skip",
		Summary:     "Skip the wizard",
	}, func(ctx context.Context, input *TenantPath) (*sessionResponse, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return respond(e.SkipPreferences(ctx, input.TenantID, actor))
	})

	huma.Register(api, huma.Operation{
		OperationID: "current-preferences",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/preferences",
		Summary:     "Current confirmed preferences",
	}, func(ctx context.Context, input *TenantPath) (*struct {
		Body struct {
			Record  domain.PreferenceRecord `json:"record"`
			Summary string                  `json:"summary"`
		} `json:"body"`
	}, error) {
		rec, summary, err := e.CurrentPreferences(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := &struct {
			Body struct {
				Record  domain.PreferenceRecord `json:"record"`
				Summary string                  `json:"summary"`
			} `json:"body"`
		}{}
		resp.Body.Record = rec
		resp.Body.Summary = summary
		return resp, nil
	})
}

func registerGoals(api huma.API, e *engine.Engine) {
	type GoalPath struct {
		TenantID string `path:"tenant_id"`
		GoalID   string `path:"goal_id"`
	}
	type versionResponse struct {
		Body domain.GoalVersion `json:"body"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "goal-suggestions",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/goals/suggestions",
		Summary:     "Suggested goals",
	}, func(ctx context.Context, input *TenantPath) (*struct {
		Body struct {
			Items []domain.SuggestedGoal `json:"items"`
		} `json:"body"`
	}, error) {
		goals, err := e.SuggestGoals(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := &struct {
			Body struct {
				Items []domain.SuggestedGoal `json:"items"`
			} `json:"body"`
		}{}
		resp.Body.Items = goals
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "select-goal",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenant_id}/goals",
		Summary:       "Select a goal",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		TenantPath
		Body SelectGoalRequest `json:"body"`
	}) (*versionResponse, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		v, err := e.SelectGoal(ctx, input.TenantID, input.Body.Goal, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &versionResponse{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-goals",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/goals",
		Summary:     "List goals at their latest version",
	}, func(ctx context.Context, input *TenantPath) (*struct {
		Body struct {
			Items []domain.GoalVersion `json:"items"`
		} `json:"body"`
	}, error) {
		goals, err := e.Repo.ListGoals(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := &struct {
			Body struct {
				Items []domain.GoalVersion `json:"items"`
			} `json:"body"`
		}{}
		resp.Body.Items = goals
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "edit-goal",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/goals/{goal_id}/versions",
		Summary:     "Append a goal version",
	}, func(ctx context.Context, input *struct {
		GoalPath
		Body EditGoalRequest `json:"body"`
	}) (*versionResponse, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		v, err := e.EditGoal(ctx, input.GoalID, version.Input{
			Title:             input.Body.Title,
			Description:       input.Body.Description,
			Metrics:           input.Body.Metrics,
			Timeline:          input.Body.Timeline,
			ChangeDescription: input.Body.ChangeDescription,
		}, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &versionResponse{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "goal-history",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/goals/{goal_id}/versions",
		Summary:     "Goal version history",
	}, func(ctx context.Context, input *GoalPath) (*struct {
		Body domain.VersionHistory `json:"body"`
	}, error) {
		h, err := e.GoalHistory(ctx, input.GoalID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.VersionHistory `json:"body"`
		}{Body: h}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rollback-goal",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/goals/{goal_id}/rollback",
		Summary:     "Roll back to an earlier version",
	}, func(ctx context.Context, input *struct {
		GoalPath
		Body RollbackRequest `json:"body"`
	}) (*versionResponse, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		v, err := e.RollbackGoal(ctx, input.GoalID, input.Body.ToVersion, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &versionResponse{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "activate-goal",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/goals/{goal_id}/activate",
		Summary:     "Activate the current version",
	}, func(ctx context.Context, input *GoalPath) (*versionResponse, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		v, err := e.ActivateGoal(ctx, input.GoalID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &versionResponse{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "diff-goal",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/goals/{goal_id}/diff",
		Summary:     "Diff two versions",
	}, func(ctx context.Context, input *struct {
		GoalPath
		From int `query:"from" minimum:"1"`
		To   int `query:"to" minimum:"1"`
	}) (*struct {
		Body version.DiffResult `json:"body"`
	}, error) {
		diff, err := e.DiffGoal(ctx, input.GoalID, input.From, input.To)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body version.DiffResult `json:"body"`
		}{Body: diff}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "validate-goal",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/goals/{goal_id}/validate",
		Summary:     "SMART validation",
	}, func(ctx context.Context, input *GoalPath) (*struct {
		Body version.SMARTResult `json:"body"`
	}, error) {
		r, err := e.ValidateGoal(ctx, input.GoalID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body version.SMARTResult `json:"body"`
		}{Body: r}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "goal-progress",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/goals/{goal_id}/progress",
		Summary:     "Goal progress",
	}, func(ctx context.Context, input *GoalPath) (*struct {
		Body struct {
			Progress float64 `json:"progress"`
		} `json:"body"`
	}, error) {
		p, err := e.GoalProgress(ctx, input.GoalID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := &struct {
			Body struct {
				Progress float64 `json:"progress"`
			} `json:"body"`
		}{}
		resp.Body.Progress = p
		return resp, nil
	})
}

func registerChat(api huma.API, e *engine.Engine) {
	type MessagePath struct {
		TenantID  string `path:"tenant_id"`
		MessageID string `path:"message_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "transcript",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/messages",
		Summary:     "Chat transcript",
	}, func(ctx context.Context, input *struct {
		TenantPath
		After string `query:"after"`
		Limit int    `query:"limit" minimum:"0" maximum:"500"`
	}) (*struct {
		Body struct {
			Items []domain.Message `json:"items"`
		} `json:"body"`
	}, error) {
		msgs, err := e.Transcript(ctx, input.TenantID, input.After, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		resp := &struct {
			Body struct {
				Items []domain.Message `json:"items"`
			} `json:"body"`
		}{}
		resp.Body.Items = msgs
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "send-message",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenant_id}/messages",
		Summary:       "Send a chat message",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		TenantPath
		Body SendMessageRequest `json:"body"`
	}) (*struct {
		Body struct {
			Items []domain.Message `json:"items"`
		} `json:"body"`
	}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		msgs, err := e.SendMessage(ctx, input.TenantID, input.Body.Text, input.Body.Files, actor)
		if err != nil {
			return nil, handleError(err)
		}
		resp := &struct {
			Body struct {
				Items []domain.Message `json:"items"`
			} `json:"body"`
		}{}
		resp.Body.Items = msgs
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "pending-question",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/questions/pending",
		Summary:     "Oldest unresolved question",
	}, func(ctx context.Context, input *TenantPath) (*struct {
		Body struct {
			Message *domain.Message `json:"message,omitempty"`
		} `json:"body"`
	}, error) {
		m, err := e.PendingQuestion(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := &struct {
			Body struct {
				Message *domain.Message `json:"message,omitempty"`
			} `json:"body"`
		}{}
		resp.Body.Message = m
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "answer-question",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/messages/{message_id}/answer",
		Summary:     "Answer a question",
	}, func(ctx context.Context, input *struct {
		MessagePath
		Body AnswerRequest `json:"body"`
	}) (*struct {
		Body domain.Message `json:"body"`
	}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.AnswerQuestion(ctx, input.TenantID, input.MessageID, input.Body.Answer, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Message `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "skip-question",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/messages/{message_id}/skip",
		Summary:     "Skip a question",
	}, func(ctx context.Context, input *MessagePath) (*struct {
		Body domain.Message `json:"body"`
	}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.SkipQuestion(ctx, input.TenantID, input.MessageID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Message `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "message-feedback",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenant_id}/messages/{message_id}/feedback",
		Summary:       "Rate an assistant message",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		MessagePath
		Body FeedbackRequest `json:"body"`
	}) (*struct{}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.SetFeedback(ctx, input.TenantID, input.MessageID, input.Body.Feedback, actor); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerResearch(api huma.API, e *engine.Engine) {
	type stateResponse struct {
		Body domain.TenantState `json:"body"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "start-research",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/research/start",
		Summary:     "Start a planning run",
	}, func(ctx context.Context, input *struct {
		TenantPath
		Body StartResearchRequest `json:"body"`
	}) (*stateResponse, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		state, err := e.StartResearch(ctx, input.TenantID, input.Body.GoalID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &stateResponse{Body: state}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "poll-research",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/research/poll",
		Summary:     "Poll the run to completion",
	}, func(ctx context.Context, input *TenantPath) (*stateResponse, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		state, err := e.PollResearch(ctx, input.TenantID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &stateResponse{Body: state}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-research",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/research/reset",
		Summary:     "Abandon the current run",
	}, func(ctx context.Context, input *TenantPath) (*stateResponse, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		state, err := e.ResetResearch(ctx, input.TenantID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &stateResponse{Body: state}, nil
	})
}

func registerPlans(api huma.API, e *engine.Engine) {
	type PlanPath struct {
		TenantID string `path:"tenant_id"`
		PlanID   string `path:"plan_id"`
	}
	type planResponse struct {
		Body domain.SavedPlan `json:"body"`
	}

	huma.Register(api, huma.Operation{
		OperationID:   "save-plan",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenant_id}/plans",
		Summary:       "Save a generated plan",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		TenantPath
		Body SavePlanRequest `json:"body"`
	}) (*planResponse, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.SavePlan(ctx, input.TenantID, engine.PlanInput{
			GoalID:            input.Body.GoalID,
			Title:             input.Body.Title,
			Summary:           input.Body.Summary,
			Stages:            input.Body.Stages,
			QuickWins:         input.Body.QuickWins,
			EstimatedDuration: input.Body.EstimatedDuration,
			DataSources:       input.Body.DataSources,
			UserProvidedName:  input.Body.UserProvidedName,
		}, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &planResponse{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-plans",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/plans",
		Summary:     "List saved plans",
	}, func(ctx context.Context, input *TenantPath) (*struct {
		Body struct {
			Items []domain.SavedPlan `json:"items"`
		} `json:"body"`
	}, error) {
		plans, err := e.Repo.ListPlans(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := &struct {
			Body struct {
				Items []domain.SavedPlan `json:"items"`
			} `json:"body"`
		}{}
		resp.Body.Items = plans
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-plan",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/plans/{plan_id}",
		Summary:     "Fetch a saved plan",
	}, func(ctx context.Context, input *PlanPath) (*planResponse, error) {
		p, err := e.Repo.GetPlan(ctx, input.PlanID)
		if err != nil {
			return nil, handleError(err)
		}
		if p.TenantID != input.TenantID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "plan not found", nil)
		}
		return &planResponse{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rename-plan",
		Method:      http.MethodPatch,
		Path:        "/tenants/{tenant_id}/plans/{plan_id}",
		Summary:     "Rename a saved plan",
	}, func(ctx context.Context, input *struct {
		PlanPath
		Body RenamePlanRequest `json:"body"`
	}) (*planResponse, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.RenamePlan(ctx, input.TenantID, input.PlanID, input.Body.Name, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &planResponse{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-plan",
		Method:        http.MethodDelete,
		Path:          "/tenants/{tenant_id}/plans/{plan_id}",
		Summary:       "Delete a saved plan",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *PlanPath) (*struct{}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeletePlan(ctx, input.TenantID, input.PlanID, actor); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerConnectors(api huma.API, e *engine.Engine) {
	type ConnectorPath struct {
		TenantID    string `path:"tenant_id"`
		ConnectorID string `path:"connector_id"`
	}
	type connectorResponse struct {
		Body domain.TenantConnector `json:"body"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-connectors",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/connectors",
		Summary:     "List configured connectors",
	}, func(ctx context.Context, input *TenantPath) (*struct {
		Body struct {
			Items []domain.TenantConnector `json:"items"`
		} `json:"body"`
	}, error) {
		resp := &struct {
			Body struct {
				Items []domain.TenantConnector `json:"items"`
			} `json:"body"`
		}{}
		resp.Body.Items = e.ListConnectors(ctx, input.TenantID)
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "connector-catalog",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/connectors/catalog",
		Summary:     "Available connector types",
	}, func(ctx context.Context, input *TenantPath) (*struct {
		Body struct {
			Items []string `json:"items"`
		} `json:"body"`
	}, error) {
		resp := &struct {
			Body struct {
				Items []string `json:"items"`
			} `json:"body"`
		}{}
		resp.Body.Items = e.Registry.CatalogIDs()
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-connector",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenant_id}/connectors",
		Summary:       "Configure a connector",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		TenantPath
		Body AddConnectorRequest `json:"body"`
	}) (*connectorResponse, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.AddConnector(ctx, input.TenantID, input.Body.ConnectorID, input.Body.DisplayName, input.Body.Status, input.Body.Config, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &connectorResponse{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-connector",
		Method:        http.MethodDelete,
		Path:          "/tenants/{tenant_id}/connectors/{connector_id}",
		Summary:       "Remove a connector",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *ConnectorPath) (*struct{}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveConnector(ctx, input.TenantID, input.ConnectorID, actor); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sync-connector",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/connectors/{connector_id}/sync",
		Summary:     "Sync one connector",
	}, func(ctx context.Context, input *ConnectorPath) (*connectorResponse, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.SyncConnector(ctx, input.TenantID, input.ConnectorID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &connectorResponse{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sync-all-connectors",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/connectors/sync-all",
		Summary:     "Sync every connector",
	}, func(ctx context.Context, input *TenantPath) (*struct {
		Body connectors.SyncSummary `json:"body"`
	}, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		summary, err := e.SyncAllConnectors(ctx, input.TenantID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body connectors.SyncSummary `json:"body"`
		}{Body: summary}, nil
	})
}

func registerInvitations(api huma.API, e *engine.Engine) {
	type InvitePath struct {
		TenantID string `path:"tenant_id"`
		InviteID string `path:"invite_id"`
	}
	type inviteResponse struct {
		Body domain.Invitation `json:"body"`
	}

	huma.Register(api, huma.Operation{
		OperationID:   "create-invitation",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenant_id}/invitations",
		Summary:       "Invite a teammate",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		TenantPath
		Body InviteRequest `json:"body"`
	}) (*inviteResponse, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		inv, err := e.CreateInvitation(ctx, input.TenantID, input.Body.Email, input.Body.Role, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &inviteResponse{Body: inv}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-invitations",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/invitations",
		Summary:     "List invitations",
	}, func(ctx context.Context, input *struct {
		TenantPath
		Status string `query:"status"`
	}) (*struct {
		Body struct {
			Items []domain.Invitation `json:"items"`
		} `json:"body"`
	}, error) {
		items, err := e.ListInvitations(ctx, input.TenantID, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		resp := &struct {
			Body struct {
				Items []domain.Invitation `json:"items"`
			} `json:"body"`
		}{}
		resp.Body.Items = items
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-invitation",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/invitations/{invite_id}/accept",
		Summary:     "Accept an invitation",
	}, func(ctx context.Context, input *InvitePath) (*inviteResponse, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		inv, err := e.AcceptInvitation(ctx, input.TenantID, input.InviteID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &inviteResponse{Body: inv}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-invitation",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/invitations/{invite_id}/revoke",
		Summary:     "Revoke an invitation",
	}, func(ctx context.Context, input *InvitePath) (*inviteResponse, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		inv, err := e.RevokeInvitation(ctx, input.TenantID, input.InviteID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &inviteResponse{Body: inv}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resend-invitation",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/invitations/{invite_id}/resend",
		Summary:     "Resend an invitation",
	}, func(ctx context.Context, input *InvitePath) (*inviteResponse, error) {
		actor, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		inv, err := e.ResendInvitation(ctx, input.TenantID, input.InviteID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &inviteResponse{Body: inv}, nil
	})
}

func registerOAuth(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "oauth-providers",
		Method:      http.MethodGet,
		Path:        "/oauth/providers",
		Summary:     "OAuth providers",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Items []backend.OAuthProvider `json:"items"`
		} `json:"body"`
	}, error) {
		items, err := e.OAuthProviders(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		resp := &struct {
			Body struct {
				Items []backend.OAuthProvider `json:"items"`
			} `json:"body"`
		}{}
		resp.Body.Items = items
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "begin-oauth",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/oauth/begin",
		Summary:     "Begin an authorization flow",
	}, func(ctx context.Context, input *struct {
		TenantPath
		Body OAuthBeginRequest `json:"body"`
	}) (*struct {
		Body struct {
			URL   string `json:"url"`
			State string `json:"state"`
		} `json:"body"`
	}, error) {
		url, state, err := e.BeginOAuth(ctx, input.TenantID, input.Body.Provider, input.Body.RedirectURI)
		if err != nil {
			return nil, handleError(err)
		}
		resp := &struct {
			Body struct {
				URL   string `json:"url"`
				State string `json:"state"`
			} `json:"body"`
		}{}
		resp.Body.URL = url
		resp.Body.State = state
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-oauth",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenant_id}/oauth/complete",
		Summary:     "Complete an authorization flow",
	}, func(ctx context.Context, input *struct {
		TenantPath
		Body OAuthCompleteRequest `json:"body"`
	}) (*struct {
		Body struct {
			Provider string `json:"provider"`
		} `json:"body"`
	}, error) {
		provider, err := e.CompleteOAuth(ctx, input.TenantID, input.Body.State)
		if err != nil {
			return nil, handleError(err)
		}
		resp := &struct {
			Body struct {
				Provider string `json:"provider"`
			} `json:"body"`
		}{}
		resp.Body.Provider = provider
		return resp, nil
	})
}

func registerEvents(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/events",
		Summary:     "Event log",
	}, func(ctx context.Context, input *struct {
		TenantPath
		Limit  int    `query:"limit" minimum:"0" maximum:"500"`
		Cursor string `query:"cursor"`
		Type   string `query:"type"`
	}) (*struct {
		Body struct {
			Items      []domain.Event `json:"items"`
			NextCursor string         `json:"next_cursor,omitempty"`
		} `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		var cursor int64
		if input.Cursor != "" {
			v, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", nil)
			}
			cursor = v
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit, cursor, input.TenantID, input.Type, "", "")
		if err != nil {
			return nil, handleError(err)
		}
		resp := &struct {
			Body struct {
				Items      []domain.Event `json:"items"`
				NextCursor string         `json:"next_cursor,omitempty"`
			} `json:"body"`
		}{}
		resp.Body.Items = items
		if len(items) == limit && limit > 0 {
			resp.Body.NextCursor = strconv.FormatInt(items[len(items)-1].ID, 10)
		}
		return resp, nil
	})
}
