package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"northstar/internal/domain"
	"northstar/internal/events"
	"northstar/internal/repo"
)

// SendMessage appends a user message and produces the assistant's reply.
// While an unresolved question is pending, the message is routed to that
// question as its answer instead of the chat model. An empty answer to a
// required question is rejected outright and nothing is appended.
func (e *Engine) SendMessage(ctx context.Context, tenantID, text string, files []string, actorID string) ([]domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" && len(files) == 0 {
		return nil, errors.New("message is empty")
	}

	pending, err := e.Repo.OldestUnresolvedQuestion(ctx, tenantID)
	hasPending := err == nil
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	if hasPending && text == "" && pending.Question.Required {
		if s := pending.Question.Suggestion; s != "" {
			return nil, fmt.Errorf("question %q requires an answer (%s)", pending.Question.Text, s)
		}
		return nil, fmt.Errorf("question %q requires an answer", pending.Question.Text)
	}

	now := e.nowRFC3339()
	userMsg := domain.Message{
		ID:        e.newMessageID(),
		TenantID:  tenantID,
		Role:      "user",
		Text:      text,
		Files:     files,
		CreatedAt: now,
	}

	// The backend call and its transcript read happen before the write tx
	// opens: the sqlite connection is shared, so a read inside the tx would
	// deadlock, and a slow backend must not hold the database.
	replyText := "Got it, thanks."
	if !hasPending {
		replyText = e.completion(ctx, tenantID, userMsg)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertMessage(ctx, tx, userMsg); err != nil {
		return nil, err
	}
	reply := domain.Message{
		ID:        e.newMessageID(),
		TenantID:  tenantID,
		Role:      "assistant",
		Text:      replyText,
		CreatedAt: now,
	}
	if hasPending {
		q := *pending.Question
		q.Answer = text
		q.Answered = true
		if err := e.Repo.UpdateMessageQuestion(ctx, tx, pending.ID, &q); err != nil {
			return nil, err
		}
		if err := e.Events.Append(ctx, tx, "question.answer", tenantID, "question", q.ID, actorID, events.EventPayload{"required": q.Required}); err != nil {
			return nil, err
		}
	}
	if err := e.Repo.InsertMessage(ctx, tx, reply); err != nil {
		return nil, err
	}
	if err := e.Events.Append(ctx, tx, "chat.message", tenantID, "message", userMsg.ID, actorID, nil); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return []domain.Message{userMsg, reply}, nil
}

// completion asks the backend for a reply, degrading to a canned local
// response when the service is missing or down.
func (e *Engine) completion(ctx context.Context, tenantID string, latest domain.Message) string {
	if e.Backend != nil {
		history, err := e.Repo.ListMessages(ctx, tenantID, "", 0)
		if err == nil {
			history = append(history, latest)
			if text, err := e.Backend.ChatCompletion(ctx, tenantID, history); err == nil && text != "" {
				return text
			}
		}
	}
	return "I could not reach the planning service just now. Your message is saved; try again in a moment."
}

// AnswerQuestion resolves a specific transcript question. Empty answers to
// required questions are rejected without touching the queue.
func (e *Engine) AnswerQuestion(ctx context.Context, tenantID, messageID, answer, actorID string) (domain.Message, error) {
	m, err := e.Repo.GetMessage(ctx, messageID)
	if err != nil {
		return domain.Message{}, err
	}
	if m.TenantID != tenantID || m.Question == nil {
		return domain.Message{}, repo.ErrNotFound
	}
	answer = strings.TrimSpace(answer)
	if answer == "" && m.Question.Required {
		if s := m.Question.Suggestion; s != "" {
			return domain.Message{}, fmt.Errorf("question %q requires an answer (%s)", m.Question.Text, s)
		}
		return domain.Message{}, fmt.Errorf("question %q requires an answer", m.Question.Text)
	}
	q := *m.Question
	q.Answer = answer
	q.Answered = true
	q.Skipped = false
	return e.updateQuestion(ctx, tenantID, messageID, &q, actorID, "question.answer")
}

// SkipQuestion marks a question skipped. Skipping a required question is an
// explicit, recorded decision.
func (e *Engine) SkipQuestion(ctx context.Context, tenantID, messageID, actorID string) (domain.Message, error) {
	m, err := e.Repo.GetMessage(ctx, messageID)
	if err != nil {
		return domain.Message{}, err
	}
	if m.TenantID != tenantID || m.Question == nil {
		return domain.Message{}, repo.ErrNotFound
	}
	q := *m.Question
	q.Skipped = true
	q.Answered = false
	q.Answer = ""
	return e.updateQuestion(ctx, tenantID, messageID, &q, actorID, "question.skip")
}

func (e *Engine) updateQuestion(ctx context.Context, tenantID, messageID string, q *domain.Question, actorID, evtType string) (domain.Message, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Message{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateMessageQuestion(ctx, tx, messageID, q); err != nil {
		return domain.Message{}, err
	}
	if err := e.Events.Append(ctx, tx, evtType, tenantID, "question", q.ID, actorID, events.EventPayload{"required": q.Required}); err != nil {
		return domain.Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Message{}, err
	}
	return e.Repo.GetMessage(ctx, messageID)
}

// AppendThinkingStep adds a progress step to a transcript message. Updates
// match on message id, so racing async completions can never land on the
// wrong message. The previous running step flips to done.
func (e *Engine) AppendThinkingStep(ctx context.Context, tenantID, messageID, label, status string) error {
	m, err := e.Repo.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if m.TenantID != tenantID {
		return repo.ErrNotFound
	}
	steps := make([]domain.ThinkingStep, len(m.ThinkingSteps))
	copy(steps, m.ThinkingSteps)
	for i := range steps {
		if steps[i].Status == "running" {
			steps[i].Status = "done"
		}
	}
	steps = append(steps, domain.ThinkingStep{Label: label, Status: status})
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateMessageThinking(ctx, tx, messageID, steps); err != nil {
		return err
	}
	return tx.Commit()
}

// PendingQuestion returns the oldest unresolved question, if any.
func (e *Engine) PendingQuestion(ctx context.Context, tenantID string) (*domain.Message, error) {
	m, err := e.Repo.OldestUnresolvedQuestion(ctx, tenantID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// RequiredQuestionsResolved reports whether plan generation is unblocked:
// every required question is either answered or explicitly skipped.
func (e *Engine) RequiredQuestionsResolved(ctx context.Context, tenantID string) (bool, error) {
	msgs, err := e.Repo.ListMessages(ctx, tenantID, "", 0)
	if err != nil {
		return false, err
	}
	for _, m := range msgs {
		if m.Question == nil || !m.Question.Required {
			continue
		}
		if !m.Question.Answered && !m.Question.Skipped {
			return false, nil
		}
	}
	return true, nil
}

// SetFeedback records a thumbs rating on an assistant message.
func (e *Engine) SetFeedback(ctx context.Context, tenantID, messageID, feedback, actorID string) error {
	if feedback != "up" && feedback != "down" {
		return fmt.Errorf("feedback must be up or down")
	}
	m, err := e.Repo.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if m.TenantID != tenantID || m.Role != "assistant" {
		return repo.ErrNotFound
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateMessageFeedback(ctx, tx, messageID, feedback); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "chat.feedback", tenantID, "message", messageID, actorID, events.EventPayload{"feedback": feedback}); err != nil {
		return err
	}
	return tx.Commit()
}

// Transcript pages through the tenant's message history in order.
func (e *Engine) Transcript(ctx context.Context, tenantID, afterID string, limit int) ([]domain.Message, error) {
	return e.Repo.ListMessages(ctx, tenantID, afterID, limit)
}
