package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"smong-quiz-service/internal/app"
	"smong-quiz-service/internal/domain"
)

const maxBodyBytes = 1 << 16

// Handler serves the quiz REST API.
type Handler struct {
	service  *app.QuizService
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(service *app.QuizService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

type startRequest struct {
	UserID   string `json:"userId" validate:"omitempty,max=128"`
	QuizType string `json:"quizType" validate:"omitempty,max=128"`
}

type answerRequest struct {
	ChoiceID   string `json:"choiceId" validate:"required,max=128"`
	QuestionID string `json:"questionId" validate:"omitempty,max=128"`
}

func (h *Handler) StartQuiz(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := h.decode(r, &req, true); err != nil {
		h.writeError(w, r, err)
		return
	}
	started, err := h.service.Start(r.Context(), req.UserID, req.QuizType)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, started)
}

func (h *Handler) CurrentQuestion(w http.ResponseWriter, r *http.Request) {
	prompt, err := h.service.CurrentQuestion(r.Context(), mux.Vars(r)["sessionId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prompt)
}

func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := h.decode(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.service.SubmitAnswer(r.Context(), mux.Vars(r)["sessionId"], domain.AnswerSubmission{
		ChoiceID:   req.ChoiceID,
		QuestionID: req.QuestionID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Results(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.Results(r.Context(), mux.Vars(r)["sessionId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	query, err := leaderboardQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	lb, err := h.service.Leaderboard(r.Context(), query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	recs, err := h.service.ContentRecommendations(r.Context(), q.Get("userId"), q.Get("storyType"), q.Get("location"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

// decode reads a JSON body into dst and validates it. An empty body is
// accepted only when allowEmpty is set.
func (h *Handler) decode(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if !errors.Is(err, io.EOF) || !allowEmpty {
			return fmt.Errorf("%w: invalid request body: %v", domain.ErrInvalidInput, err)
		}
	}
	if err := h.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

func leaderboardQuery(r *http.Request) (domain.LeaderboardQuery, error) {
	q := r.URL.Query()
	query := domain.LeaderboardQuery{
		QuizType:  q.Get("quizType"),
		Timeframe: domain.Timeframe(q.Get("timeframe")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return query, fmt.Errorf("%w: limit must be an integer", domain.ErrInvalidInput)
		}
		query.Limit = limit
	}
	return query, nil
}
