// Package qa implements the question and answer board. Answering a question
// notifies the asker through the alert engine.
package qa

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"skyguard/internal/alerting"
	"skyguard/internal/types"
)

// Store persists questions and answers. db.QARepository implements it.
type Store interface {
	CreateQuestion(ctx context.Context, q *types.Question) error
	GetQuestion(ctx context.Context, id string) (*types.Question, error)
	ListQuestions(ctx context.Context, status types.QuestionStatus, limit, offset int) ([]types.Question, error)
	CreateAnswer(ctx context.Context, a *types.Answer) error
	MarkAnswered(ctx context.Context, questionID string, now time.Time) error
	ListAnswers(ctx context.Context, questionID string) ([]types.Answer, error)
}

// Profiles resolves usernames for notifications.
type Profiles interface {
	GetByID(ctx context.Context, userID string) (*types.Profile, error)
}

// Notifier delivers the in-app answer notification. *alerting.Engine
// implements it.
type Notifier interface {
	SendToUsers(ctx context.Context, req alerting.SendRequest, userIDs []string) (*alerting.SendResult, error)
}

// QuestionInput is a new question as submitted.
type QuestionInput struct {
	Title     string                 `json:"title"`
	Question  string                 `json:"question"`
	Category  types.QuestionCategory `json:"category"`
	Priority  types.QuestionPriority `json:"priority"`
	JobSite   *string                `json:"job_site,omitempty"`
	JobNumber *string                `json:"job_number,omitempty"`
}

// Service is the Q&A board.
type Service struct {
	store    Store
	profiles Profiles
	notifier Notifier
	clock    types.Clock
	logger   *slog.Logger
}

// NewService creates a Service. notifier may be nil, which disables answer
// notifications.
func NewService(store Store, profiles Profiles, notifier Notifier, clock types.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, profiles: profiles, notifier: notifier, clock: clock, logger: logger}
}

// CreateQuestion validates in and stores it as an open question asked by
// the context actor.
func (s *Service) CreateQuestion(ctx context.Context, in QuestionInput) (*types.Question, error) {
	actor, ok := types.GetActor(ctx)
	if !ok || actor.Type != types.ActorTypeUser {
		return nil, types.NewAppError(types.ErrCodeAuthRequired, "Authentication required", nil)
	}

	title, err := types.ValidateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	body, err := types.ValidateMessage(in.Question)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationQuestion, "Question must be 1-1000 characters of text", err)
	}

	category := in.Category
	if category == "" {
		category = types.CategoryGeneral
	}
	if !category.Valid() {
		return nil, types.NewAppError(types.ErrCodeValidationQuestion, fmt.Sprintf("Invalid category %q", category), nil)
	}
	priority := in.Priority
	if priority == "" {
		priority = types.QuestionMedium
	}
	if !priority.Valid() {
		return nil, types.NewAppError(types.ErrCodeValidationQuestion, fmt.Sprintf("Invalid priority %q", priority), nil)
	}

	q := &types.Question{
		Title:     title,
		Question:  body,
		Category:  category,
		Priority:  priority,
		JobSite:   types.OptionalText(in.JobSite, types.MaxJobFieldLength),
		JobNumber: types.OptionalText(in.JobNumber, types.MaxJobFieldLength),
		AskedBy:   actor.ID,
	}
	if err := s.store.CreateQuestion(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// ListQuestions returns questions newest first. An empty status lists all.
func (s *Service) ListQuestions(ctx context.Context, status types.QuestionStatus, limit, offset int) ([]types.Question, error) {
	return s.store.ListQuestions(ctx, status, limit, offset)
}

// ListAnswers returns the answers to questionID oldest first.
func (s *Service) ListAnswers(ctx context.Context, questionID string) ([]types.Answer, error) {
	if _, err := s.store.GetQuestion(ctx, questionID); err != nil {
		return nil, err
	}
	return s.store.ListAnswers(ctx, questionID)
}

// PostAnswer stores an answer by the context actor. Answers by admins are
// official. The asker is notified unless they answered themselves; a
// failed notification is logged and does not fail the post.
func (s *Service) PostAnswer(ctx context.Context, questionID, text string) (*types.Answer, error) {
	actor, ok := types.GetActor(ctx)
	if !ok || actor.Type != types.ActorTypeUser {
		return nil, types.NewAppError(types.ErrCodeAuthRequired, "Authentication required", nil)
	}

	answerText, err := validateAnswer(text)
	if err != nil {
		return nil, err
	}

	q, err := s.store.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}

	a := &types.Answer{
		QuestionID: q.ID,
		Answer:     answerText,
		AnsweredBy: actor.ID,
		IsOfficial: actor.IsAdmin(),
	}
	if err := s.store.CreateAnswer(ctx, a); err != nil {
		return nil, err
	}
	if q.Status == types.QuestionOpen {
		if err := s.store.MarkAnswered(ctx, q.ID, s.clock.Now()); err != nil {
			s.logger.WarnContext(ctx, "failed to mark question answered", "question_id", q.ID, "error", err)
		}
	}

	if q.AskedBy != actor.ID {
		s.notify(ctx, q, a)
	}
	return a, nil
}

func (s *Service) notify(ctx context.Context, q *types.Question, a *types.Answer) {
	if s.notifier == nil {
		return
	}

	answerer := "Unknown"
	if p, err := s.profiles.GetByID(ctx, a.AnsweredBy); err == nil {
		answerer = p.Username
	}

	req := alerting.SendRequest{
		Type:     types.AlertTypeCompany,
		Title:    types.Truncate(answerTitle(q.Title, a.IsOfficial), types.MaxTitleLength),
		Message:  types.Truncate(answerMessage(q, a, answerer), types.MaxMessageLength),
		Priority: types.PriorityMedium,
		Source:   "qa",
	}
	if a.IsOfficial {
		req.Priority = types.PriorityHigh
	}

	if _, err := s.notifier.SendToUsers(ctx, req, []string{q.AskedBy}); err != nil {
		s.logger.ErrorContext(ctx, "failed to notify asker",
			"question_id", q.ID,
			"answer_id", a.ID,
			"error", err,
		)
	}
}

func validateAnswer(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) > types.MaxAnswerLength {
		return "", types.NewAppErrorWithDetails(types.ErrCodeValidationAnswer, "Answer exceeds maximum length", nil,
			map[string]any{"max_length": types.MaxAnswerLength})
	}
	clean := types.SanitizeText(trimmed)
	if clean == "" {
		return "", types.NewAppError(types.ErrCodeValidationAnswer, "Answer cannot be empty", nil)
	}
	return clean, nil
}

func answerTitle(questionTitle string, official bool) string {
	if official {
		return "Official Answer to Your Question: " + questionTitle
	}
	return "New Response to Your Question: " + questionTitle
}

func answerMessage(q *types.Question, a *types.Answer, answerer string) string {
	var b strings.Builder
	if a.IsOfficial {
		b.WriteString("Your question has been officially answered!")
	} else {
		b.WriteString("Your question has been responded to!")
	}
	fmt.Fprintf(&b, "\n\nOriginal Question:\n\"%s\"\n\nAnswer by %s:\n\"%s\"", q.Question, answerer, a.Answer)
	if q.JobSite != nil || q.JobNumber != nil {
		b.WriteString("\n\nJob Details:")
		if q.JobSite != nil {
			fmt.Fprintf(&b, "\nSite: %s", *q.JobSite)
		}
		if q.JobNumber != nil {
			fmt.Fprintf(&b, "\nJob #: %s", *q.JobNumber)
		}
	}
	fmt.Fprintf(&b, "\n\nCategory: %s\nPriority: %s", q.Category, q.Priority)
	return b.String()
}
