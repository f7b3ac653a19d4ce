package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"northstar/internal/domain"
)

func (r Repo) InsertMessage(ctx context.Context, tx *sql.Tx, m domain.Message) error {
	files, err := marshalJSON(m.Files)
	if err != nil {
		return err
	}
	question, err := marshalJSON(m.Question)
	if err != nil {
		return err
	}
	thinking, err := marshalJSON(m.ThinkingSteps)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO messages(id,tenant_id,role,text,files_json,question_json,feedback,thinking_json,created_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		m.ID, m.TenantID, m.Role, m.Text, files, question, nullableStringPtr(m.Feedback), thinking, m.CreatedAt)
	return err
}

func (r Repo) UpdateMessageQuestion(ctx context.Context, tx *sql.Tx, id string, q *domain.Question) error {
	question, err := marshalJSON(q)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE messages SET question_json=? WHERE id=?`, question, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateMessageFeedback(ctx context.Context, tx *sql.Tx, id, feedback string) error {
	res, err := tx.ExecContext(ctx, `UPDATE messages SET feedback=? WHERE id=?`, nullable(feedback), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateMessageThinking(ctx context.Context, tx *sql.Tx, id string, steps []domain.ThinkingStep) error {
	thinking, err := marshalJSON(steps)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE messages SET thinking_json=? WHERE id=?`, thinking, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetMessage(ctx context.Context, id string) (domain.Message, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,role,text,files_json,question_json,feedback,thinking_json,created_at FROM messages WHERE id=?`, id)
	return scanMessage(row)
}

// ListMessages pages through a tenant's transcript in id order. ULID ids sort
// chronologically, so cursoring on id is cursoring on time.
func (r Repo) ListMessages(ctx context.Context, tenantID, afterID string, limit int) ([]domain.Message, error) {
	query := `SELECT id,tenant_id,role,text,files_json,question_json,feedback,thinking_json,created_at
FROM messages WHERE tenant_id=?`
	args := []any{tenantID}
	if afterID != "" {
		query += ` AND id>?`
		args = append(args, afterID)
	}
	query += ` ORDER BY id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, nil
}

// OldestUnresolvedQuestion returns the first transcript question that is
// neither answered nor skipped. Question order follows transcript order.
func (r Repo) OldestUnresolvedQuestion(ctx context.Context, tenantID string) (domain.Message, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,tenant_id,role,text,files_json,question_json,feedback,thinking_json,created_at
FROM messages WHERE tenant_id=? AND role='question' AND question_json IS NOT NULL ORDER BY id ASC`, tenantID)
	if err != nil {
		return domain.Message{}, err
	}
	defer rows.Close()
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return domain.Message{}, err
		}
		if m.Question != nil && !m.Question.Answered && !m.Question.Skipped {
			return m, nil
		}
	}
	return domain.Message{}, ErrNotFound
}

func scanMessage(row rowScanner) (domain.Message, error) {
	var m domain.Message
	var files, question, feedback, thinking sql.NullString
	err := row.Scan(&m.ID, &m.TenantID, &m.Role, &m.Text, &files, &question, &feedback, &thinking, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	m.Files = decodeStringSlice(files)
	if question.Valid && question.String != "" && question.String != "null" {
		var q domain.Question
		if err := json.Unmarshal([]byte(question.String), &q); err != nil {
			return m, err
		}
		m.Question = &q
	}
	if feedback.Valid {
		f := feedback.String
		m.Feedback = &f
	}
	if thinking.Valid && thinking.String != "" {
		if err := json.Unmarshal([]byte(thinking.String), &m.ThinkingSteps); err != nil {
			return m, err
		}
	}
	return m, nil
}
