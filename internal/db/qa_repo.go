package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"skyguard/internal/types"
)

// QARepository provides data access for qa_questions and qa_answers.
type QARepository struct {
	db DBTX
}

// NewQARepository creates a QARepository.
func NewQARepository(db DBTX) *QARepository {
	return &QARepository{db: db}
}

const questionColumns = `q.id, q.title, q.question, q.category, q.priority, q.status, q.job_site,
	q.job_number, q.asked_by, q.assigned_to, p.username, q.created_at, q.updated_at`

func scanQuestion(row pgx.Row) (*types.Question, error) {
	var q types.Question
	err := row.Scan(
		&q.ID,
		&q.Title,
		&q.Question,
		&q.Category,
		&q.Priority,
		&q.Status,
		&q.JobSite,
		&q.JobNumber,
		&q.AskedBy,
		&q.AssignedTo,
		&q.AskerName,
		&q.CreatedAt,
		&q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// CreateQuestion inserts q and fills in its ID, status and timestamps.
func (r *QARepository) CreateQuestion(ctx context.Context, q *types.Question) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO qa_questions (title, question, category, priority, job_site, job_number, asked_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, status, created_at, updated_at`,
		q.Title,
		q.Question,
		q.Category,
		q.Priority,
		q.JobSite,
		q.JobNumber,
		q.AskedBy,
	).Scan(&q.ID, &q.Status, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create question", err)
	}
	return nil
}

// GetQuestion returns the question or ErrCodeNotFoundQuestion.
func (r *QARepository) GetQuestion(ctx context.Context, id string) (*types.Question, error) {
	q, err := scanQuestion(r.db.QueryRow(ctx,
		`SELECT `+questionColumns+`
		 FROM qa_questions q LEFT JOIN profiles p ON p.user_id = q.asked_by
		 WHERE q.id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundQuestion, "question not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve question", err)
	}
	return q, nil
}

// ListQuestions returns questions newest first, optionally filtered by status.
func (r *QARepository) ListQuestions(ctx context.Context, status types.QuestionStatus, limit, offset int) ([]types.Question, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+questionColumns+`
		 FROM qa_questions q LEFT JOIN profiles p ON p.user_id = q.asked_by
		 WHERE ($1 = '' OR q.status = $1)
		 ORDER BY q.created_at DESC, q.id
		 LIMIT $2 OFFSET $3`,
		string(status), limit, offset,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list questions", err)
	}
	defer rows.Close()

	var out []types.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan question", err)
		}
		out = append(out, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate questions", err)
	}
	return out, nil
}

// CreateAnswer inserts a and marks an open question as answered.
func (r *QARepository) CreateAnswer(ctx context.Context, a *types.Answer) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO qa_answers (question_id, answer, answered_by, is_official)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		a.QuestionID,
		a.Answer,
		a.AnsweredBy,
		a.IsOfficial,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create answer", err)
	}
	return nil
}

// MarkAnswered moves an open question to answered. Closed questions stay closed.
func (r *QARepository) MarkAnswered(ctx context.Context, questionID string, now time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE qa_questions SET status = 'answered', updated_at = $2
		 WHERE id = $1 AND status = 'open'`,
		questionID, now,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update question status", err)
	}
	return nil
}

// ListAnswers returns the answers to questionID oldest first.
func (r *QARepository) ListAnswers(ctx context.Context, questionID string) ([]types.Answer, error) {
	rows, err := r.db.Query(ctx,
		`SELECT a.id, a.question_id, a.answer, a.answered_by, p.username, a.is_official, a.created_at
		 FROM qa_answers a LEFT JOIN profiles p ON p.user_id = a.answered_by
		 WHERE a.question_id = $1
		 ORDER BY a.created_at, a.id`,
		questionID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list answers", err)
	}
	defer rows.Close()

	var out []types.Answer
	for rows.Next() {
		var a types.Answer
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.Answer, &a.AnsweredBy, &a.AnswererName, &a.IsOfficial, &a.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan answer", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate answers", err)
	}
	return out, nil
}
