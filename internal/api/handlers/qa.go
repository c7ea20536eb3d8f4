package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"skyguard/internal/core"
	"skyguard/internal/qa"
	"skyguard/internal/types"
)

// QABoard is the Q&A service. *qa.Service implements it.
type QABoard interface {
	CreateQuestion(ctx context.Context, in qa.QuestionInput) (*types.Question, error)
	ListQuestions(ctx context.Context, status types.QuestionStatus, limit, offset int) ([]types.Question, error)
	ListAnswers(ctx context.Context, questionID string) ([]types.Answer, error)
	PostAnswer(ctx context.Context, questionID, text string) (*types.Answer, error)
}

// AnswerRequest is the body of POST /v1/qa/questions/{id}/answers.
type AnswerRequest struct {
	Answer string `json:"answer" validate:"required"`
}

// QAHandler serves the Q&A board.
type QAHandler struct {
	board     QABoard
	validator *core.Validator
	logger    *slog.Logger
}

// NewQAHandler creates a QAHandler.
func NewQAHandler(board QABoard, v *core.Validator, l *slog.Logger) *QAHandler {
	if l == nil {
		l = slog.Default()
	}
	return &QAHandler{board: board, validator: v, logger: l}
}

// RegisterRoutes mounts /qa. Any signed-in user may ask and answer.
func (h *QAHandler) RegisterRoutes(r chi.Router, g Guards) {
	r.Route("/qa/questions", func(r chi.Router) {
		r.Use(g.User)
		r.Get("/", h.ListQuestions)
		r.Post("/", h.CreateQuestion)
		r.Get("/{id}/answers", h.ListAnswers)
		r.Post("/{id}/answers", h.PostAnswer)
	})
}

// CreateQuestion handles POST /v1/qa/questions.
func (h *QAHandler) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	var in qa.QuestionInput
	if err := core.DecodeJSON(w, r, &in); err != nil {
		core.Error(w, r, err)
		return
	}
	q, err := h.board.CreateQuestion(r.Context(), in)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, q)
}

// ListQuestions handles GET /v1/qa/questions?status=
func (h *QAHandler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := core.ParsePage(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	status := types.QuestionStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationQuestion,
			"unknown status", nil, map[string]any{"value": string(status)}))
		return
	}

	questions, err := h.board.ListQuestions(r.Context(), status, limit+1, offset)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, types.NewListResponse(questions, offset, limit))
}

// ListAnswers handles GET /v1/qa/questions/{id}/answers.
func (h *QAHandler) ListAnswers(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		core.Error(w, r, err)
		return
	}
	answers, err := h.board.ListAnswers(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if answers == nil {
		answers = []types.Answer{}
	}
	writeData(w, r, http.StatusOK, answers)
}

// PostAnswer handles POST /v1/qa/questions/{id}/answers.
func (h *QAHandler) PostAnswer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		core.Error(w, r, err)
		return
	}
	var req AnswerRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	answer, err := h.board.PostAnswer(r.Context(), id, req.Answer)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, answer)
}
