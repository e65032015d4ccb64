package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"smong-quiz-service/internal/domain"
)

// SessionRepository abstracts how quiz sessions are stored (in-memory, Redis, SQL).
//
// Update must run fn on a private copy of the session under per-session mutual
// exclusion and persist the copy only when fn returns nil. Optimistic stores may
// call fn more than once.
type SessionRepository interface {
	Create(ctx context.Context, session domain.QuizSession) error
	Get(ctx context.Context, sessionID string) (domain.QuizSession, error)
	Update(ctx context.Context, sessionID string, fn func(*domain.QuizSession) error) (domain.QuizSession, error)
	ListCompleted(ctx context.Context, filter domain.CompletedFilter) ([]domain.QuizSession, error)
}

// LeaderboardCache memoizes full leaderboards per quiz type and timeframe.
type LeaderboardCache interface {
	Fetch(ctx context.Context, quizType string, tf domain.Timeframe, load func(context.Context) ([]domain.LeaderboardEntry, error)) ([]domain.LeaderboardEntry, error)
	Invalidate(ctx context.Context, quizType string)
}

// AnalyticsSink receives fire-and-forget events.
type AnalyticsSink interface {
	Track(ctx context.Context, event domain.AnalyticsEvent) error
}

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
	maxIdentifierLength     = 128
	createAttempts          = 3
)

// QuizService drives quiz sessions through their lifecycle.
type QuizService struct {
	catalog      *domain.Catalog
	sessions     SessionRepository
	cache        LeaderboardCache
	analytics    AnalyticsSink
	hub          *leaderboardHub
	logger       *slog.Logger
	now          func() time.Time
	newID        func() string
	trackTimeout time.Duration
}

// Option customizes a QuizService.
type Option func(*QuizService)

// WithLeaderboardCache serves leaderboards through cache.
func WithLeaderboardCache(cache LeaderboardCache) Option {
	return func(s *QuizService) { s.cache = cache }
}

// WithAnalytics sets the analytics sink.
func WithAnalytics(sink AnalyticsSink) Option {
	return func(s *QuizService) { s.analytics = sink }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *QuizService) { s.logger = logger }
}

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *QuizService) { s.now = now }
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *QuizService) { s.newID = newID }
}

// WithTrackTimeout bounds each analytics call.
func WithTrackTimeout(d time.Duration) Option {
	return func(s *QuizService) { s.trackTimeout = d }
}

func NewQuizService(catalog *domain.Catalog, store SessionRepository, opts ...Option) *QuizService {
	s := &QuizService{
		catalog:      catalog,
		sessions:     store,
		cache:        passthroughCache{},
		analytics:    discardSink{},
		logger:       slog.Default(),
		now:          time.Now,
		newID:        uuid.NewString,
		trackTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = newLeaderboardHub()
	return s
}

// Start creates a new session and returns its first question.
func (s *QuizService) Start(ctx context.Context, userID, quizType string) (domain.StartResult, error) {
	bank, err := s.bank(quizType)
	if err != nil {
		return domain.StartResult{}, err
	}
	userID = strings.TrimSpace(userID)
	if len(userID) > maxIdentifierLength {
		return domain.StartResult{}, fmt.Errorf("%w: userId too long", domain.ErrInvalidInput)
	}

	var session domain.QuizSession
	for attempt := 0; ; attempt++ {
		session = s.newSession(userID, bank.QuizType())
		err = s.sessions.Create(ctx, session)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrSessionExists) || attempt+1 >= createAttempts {
			return domain.StartResult{}, storageErr(err)
		}
	}

	s.track(ctx, domain.EventQuizStarted, session.UserID, map[string]any{
		"session_id": session.ID,
		"quiz_type":  session.QuizType,
	})

	first, _ := bank.PublicQuestion(0)
	return domain.StartResult{
		SessionID:       session.ID,
		UserID:          session.UserID,
		QuizType:        session.QuizType,
		TotalQuestions:  bank.Len(),
		CurrentQuestion: 0,
		FirstQuestion:   first,
	}, nil
}

func (s *QuizService) newSession(userID, quizType string) domain.QuizSession {
	id := s.newID()
	session := domain.QuizSession{
		ID:        id,
		UserID:    userID,
		QuizType:  quizType,
		Answers:   []domain.Answer{},
		CreatedAt: s.now().UTC(),
	}
	if userID == "" || strings.EqualFold(userID, domain.AnonymousUserSentinel) {
		session.UserID = domain.AnonymousUserSentinel + "-" + id
		session.Anonymous = true
	}
	return session
}

// CurrentQuestion returns the question the session is waiting on.
func (s *QuizService) CurrentQuestion(ctx context.Context, sessionID string) (domain.QuestionPrompt, error) {
	session, bank, err := s.load(ctx, sessionID)
	if err != nil {
		return domain.QuestionPrompt{}, err
	}
	if session.Completed || session.CurrentQuestion >= bank.Len() {
		return domain.QuestionPrompt{}, domain.ErrAlreadyCompleted
	}
	view, _ := bank.PublicQuestion(session.CurrentQuestion)
	return domain.QuestionPrompt{
		SessionID:      session.ID,
		QuestionNumber: session.CurrentQuestion + 1,
		TotalQuestions: bank.Len(),
		CurrentScore:   session.Score,
		Question:       view,
	}, nil
}

// SubmitAnswer records an answer for the session's current question.
func (s *QuizService) SubmitAnswer(ctx context.Context, sessionID string, submission domain.AnswerSubmission) (domain.AnswerResult, error) {
	if strings.TrimSpace(sessionID) == "" {
		return domain.AnswerResult{}, fmt.Errorf("%w: sessionId is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(submission.ChoiceID) == "" {
		return domain.AnswerResult{}, fmt.Errorf("%w: choiceId is required", domain.ErrInvalidInput)
	}

	var (
		outcome transition
		bank    *domain.QuestionBank
	)
	now := s.now().UTC()
	updated, err := s.sessions.Update(ctx, sessionID, func(session *domain.QuizSession) error {
		b, err := s.catalog.Bank(session.QuizType)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrSessionCorrupt, err)
		}
		bank = b
		outcome, err = applyAnswer(session, b, submission, now)
		return err
	})
	if err != nil {
		return domain.AnswerResult{}, storageErr(err)
	}

	result := domain.AnswerResult{
		Correct:        outcome.choice.Correct,
		Feedback:       outcome.choice.Feedback,
		PointsEarned:   outcome.choice.Points,
		TotalScore:     updated.Score,
		QuestionNumber: outcome.index + 1,
		TotalQuestions: bank.Len(),
	}

	s.track(ctx, domain.EventQuizAnswerSubmitted, updated.UserID, map[string]any{
		"session_id":  updated.ID,
		"question_id": outcome.question.ID,
		"choice_id":   outcome.choice.ID,
		"correct":     outcome.choice.Correct,
	})

	if !updated.Completed {
		next, _ := bank.PublicQuestion(updated.CurrentQuestion)
		result.NextQuestion = &next
		return result, nil
	}

	percentage := ScorePercentage(updated.Score, bank.MaxScore())
	eligible := CertificateEligible(percentage)
	result.QuizCompleted = true
	result.FinalScorePercentage = &percentage
	result.CertificateEligible = &eligible

	s.track(ctx, domain.EventQuizCompleted, updated.UserID, map[string]any{
		"session_id":  updated.ID,
		"final_score": updated.Score,
		"percentage":  percentage,
	})
	s.publishLeaderboard(ctx, updated.QuizType)
	return result, nil
}

// Results returns the full session record with per-question detail.
func (s *QuizService) Results(ctx context.Context, sessionID string) (domain.SessionResults, error) {
	session, bank, err := s.load(ctx, sessionID)
	if err != nil {
		return domain.SessionResults{}, err
	}

	percentage := ScorePercentage(session.Score, bank.MaxScore())
	details := make([]domain.ResultDetail, 0, len(session.Answers))
	for i, answer := range session.Answers {
		question, ok := bank.QuestionByID(answer.QuestionID)
		if !ok {
			s.logger.Warn("skipping answer for unknown question", "session_id", session.ID, "question_id", answer.QuestionID)
			continue
		}
		choice, ok := question.Choice(answer.ChoiceID)
		if !ok {
			s.logger.Warn("skipping answer for unknown choice", "session_id", session.ID, "question_id", answer.QuestionID, "choice_id", answer.ChoiceID)
			continue
		}
		details = append(details, domain.ResultDetail{
			QuestionNumber: i + 1,
			QuestionID:     question.ID,
			QuestionTitle:  question.Title,
			QuestionText:   question.Prompt,
			SelectedChoice: choice.Text,
			Correct:        answer.Correct,
			PointsEarned:   answer.Points,
			Feedback:       choice.Feedback,
		})
	}

	return domain.SessionResults{
		SessionID:           session.ID,
		UserID:              session.UserID,
		QuizType:            session.QuizType,
		Completed:           session.Completed,
		CompletedAt:         session.CompletedAt,
		TotalScore:          session.Score,
		TotalPossibleScore:  bank.MaxScore(),
		Percentage:          percentage,
		CertificateEligible: CertificateEligible(percentage),
		DetailedResults:     details,
		Recommendations:     Recommend(percentage, session.Answers),
	}, nil
}

// Leaderboard ranks completed sessions for a quiz type.
func (s *QuizService) Leaderboard(ctx context.Context, query domain.LeaderboardQuery) (domain.Leaderboard, error) {
	bank, err := s.bank(query.QuizType)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	limit, tf, err := normalizeQuery(query)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	entries, err := s.cache.Fetch(ctx, bank.QuizType(), tf, func(ctx context.Context) ([]domain.LeaderboardEntry, error) {
		sessions, err := s.sessions.ListCompleted(ctx, domain.CompletedFilter{
			QuizType: bank.QuizType(),
			Since:    tf.Since(s.now()),
		})
		if err != nil {
			return nil, err
		}
		return BuildLeaderboard(bank, sessions), nil
	})
	if err != nil {
		return domain.Leaderboard{}, storageErr(err)
	}

	total := len(entries)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return domain.Leaderboard{
		QuizType:          bank.QuizType(),
		Timeframe:         tf,
		Entries:           entries,
		TotalParticipants: total,
		UpdatedAt:         s.now().UTC(),
	}, nil
}

// Subscribe returns a channel that receives leaderboard updates for a quiz type.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe(ctx context.Context, quizType string) (<-chan domain.Leaderboard, func(), error) {
	bank, err := s.bank(quizType)
	if err != nil {
		return nil, nil, err
	}
	initial, err := s.Leaderboard(ctx, domain.LeaderboardQuery{QuizType: bank.QuizType()})
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.hub.subscribe(bank.QuizType(), initial)
	return ch, cancel, nil
}

// ContentRecommendations suggests follow-up content, tailored by past performance.
func (s *QuizService) ContentRecommendations(ctx context.Context, userID, storyType, location string) (domain.ContentRecommendations, error) {
	bank, err := s.bank("")
	if err != nil {
		return domain.ContentRecommendations{}, err
	}

	var perf *domain.UserPerformance
	userID = strings.TrimSpace(userID)
	if userID != "" && !strings.EqualFold(userID, domain.AnonymousUserSentinel) {
		sessions, err := s.sessions.ListCompleted(ctx, domain.CompletedFilter{QuizType: bank.QuizType(), UserID: userID})
		if err != nil {
			return domain.ContentRecommendations{}, storageErr(err)
		}
		perf = summarizePerformance(sessions)
	}

	return domain.ContentRecommendations{
		Recommendations: contentRecommendations(bank, perf, storyType, location),
		UserPerformance: perf,
	}, nil
}

func (s *QuizService) publishLeaderboard(ctx context.Context, quizType string) {
	s.cache.Invalidate(ctx, quizType)
	if !s.hub.hasSubscribers(quizType) {
		return
	}
	lb, err := s.Leaderboard(ctx, domain.LeaderboardQuery{QuizType: quizType})
	if err != nil {
		s.logger.Warn("leaderboard refresh failed", "quiz_type", quizType, "error", err)
		return
	}
	s.hub.broadcast(quizType, lb)
}

func (s *QuizService) load(ctx context.Context, sessionID string) (domain.QuizSession, *domain.QuestionBank, error) {
	if strings.TrimSpace(sessionID) == "" {
		return domain.QuizSession{}, nil, fmt.Errorf("%w: sessionId is required", domain.ErrInvalidInput)
	}
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.QuizSession{}, nil, storageErr(err)
	}
	bank, err := s.catalog.Bank(session.QuizType)
	if err != nil {
		return domain.QuizSession{}, nil, fmt.Errorf("%w: %v", domain.ErrSessionCorrupt, err)
	}
	return session, bank, nil
}

func (s *QuizService) bank(quizType string) (*domain.QuestionBank, error) {
	quizType = strings.TrimSpace(quizType)
	if len(quizType) > maxIdentifierLength {
		return nil, fmt.Errorf("%w: quizType too long", domain.ErrInvalidInput)
	}
	bank, err := s.catalog.Bank(quizType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return bank, nil
}

// track emits an analytics event. Failures are logged, never returned.
func (s *QuizService) track(ctx context.Context, eventType, userID string, data map[string]any) {
	event := domain.AnalyticsEvent{
		ID:        uuid.NewString(),
		EventType: eventType,
		EventData: data,
		UserID:    userID,
		CreatedAt: s.now().UTC(),
	}
	trackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.trackTimeout)
	defer cancel()
	if err := s.analytics.Track(trackCtx, event); err != nil {
		s.logger.Warn("analytics event dropped", "event_type", eventType, "error", err)
	}
}

func normalizeQuery(query domain.LeaderboardQuery) (int, domain.Timeframe, error) {
	limit := query.Limit
	switch {
	case limit < 0:
		return 0, "", fmt.Errorf("%w: limit must be positive", domain.ErrInvalidInput)
	case limit == 0:
		limit = defaultLeaderboardLimit
	case limit > maxLeaderboardLimit:
		limit = maxLeaderboardLimit
	}
	tf := query.Timeframe
	if tf == "" {
		tf = domain.TimeframeAll
	}
	if !tf.Valid() {
		return 0, "", fmt.Errorf("%w: unknown timeframe %q", domain.ErrInvalidInput, tf)
	}
	return limit, tf, nil
}

// storageErr keeps domain errors intact and marks everything else as a store outage.
func storageErr(err error) error {
	if err == nil || domain.IsDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
}

type passthroughCache struct{}

func (passthroughCache) Fetch(ctx context.Context, _ string, _ domain.Timeframe, load func(context.Context) ([]domain.LeaderboardEntry, error)) ([]domain.LeaderboardEntry, error) {
	return load(ctx)
}

func (passthroughCache) Invalidate(context.Context, string) {}

type discardSink struct{}

func (discardSink) Track(context.Context, domain.AnalyticsEvent) error { return nil }
