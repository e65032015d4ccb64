package domain

import "time"

// Choice is one selectable answer of a scenario question.
type Choice struct {
	ID       string `json:"id" yaml:"id" validate:"required"`
	Text     string `json:"text" yaml:"text" validate:"required"`
	Correct  bool   `json:"correct" yaml:"correct"`
	Points   int    `json:"points" yaml:"points" validate:"gte=0"`
	Feedback string `json:"feedback" yaml:"feedback"`
}

// Question models a scenario with a fixed set of choices.
type Question struct {
	ID      string   `json:"id" yaml:"id" validate:"required"`
	Title   string   `json:"title" yaml:"title"`
	Prompt  string   `json:"prompt" yaml:"prompt" validate:"required"`
	Choices []Choice `json:"choices" yaml:"choices" validate:"min=1,dive"`
}

// ChoiceView is the client-safe projection of a Choice.
type ChoiceView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// QuestionView is the client-safe projection of a Question.
type QuestionView struct {
	ID      string       `json:"id"`
	Title   string       `json:"title"`
	Prompt  string       `json:"prompt"`
	Choices []ChoiceView `json:"choices"`
}

// Answer is one recorded submission inside a session.
type Answer struct {
	QuestionID string    `json:"questionId"`
	ChoiceID   string    `json:"choiceId"`
	Correct    bool      `json:"correct"`
	Points     int       `json:"points"`
	AnsweredAt time.Time `json:"answeredAt"`
}

// QuizSession is one attempt at a quiz.
type QuizSession struct {
	ID              string     `json:"sessionId"`
	UserID          string     `json:"userId"`
	Anonymous       bool       `json:"anonymous"`
	QuizType        string     `json:"quizType"`
	CurrentQuestion int        `json:"currentQuestionIndex"`
	Score           int        `json:"score"`
	Answers         []Answer   `json:"answers"`
	Completed       bool       `json:"completed"`
	CreatedAt       time.Time  `json:"createdAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// Clone returns a deep copy so callers can mutate it without aliasing.
func (s QuizSession) Clone() QuizSession {
	out := s
	out.Answers = make([]Answer, len(s.Answers))
	copy(out.Answers, s.Answers)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// AnswerSum returns the sum of points over recorded answers.
func (s QuizSession) AnswerSum() int {
	total := 0
	for _, a := range s.Answers {
		total += a.Points
	}
	return total
}

// AnswerSubmission is what a client sends for the current question.
// QuestionID is optional; when set it must name the current question.
type AnswerSubmission struct {
	ChoiceID   string
	QuestionID string
}

// StartResult is returned when a session is created.
type StartResult struct {
	SessionID       string       `json:"sessionId"`
	UserID          string       `json:"userId"`
	QuizType        string       `json:"quizType"`
	TotalQuestions  int          `json:"totalQuestions"`
	CurrentQuestion int          `json:"currentQuestion"`
	FirstQuestion   QuestionView `json:"firstQuestion"`
}

// QuestionPrompt describes the question a session is waiting on.
type QuestionPrompt struct {
	SessionID      string       `json:"sessionId"`
	QuestionNumber int          `json:"questionNumber"`
	TotalQuestions int          `json:"totalQuestions"`
	CurrentScore   int          `json:"currentScore"`
	Question       QuestionView `json:"question"`
}

// AnswerResult summarizes the outcome of one accepted submission.
type AnswerResult struct {
	Correct        bool   `json:"correct"`
	Feedback       string `json:"feedback"`
	PointsEarned   int    `json:"pointsEarned"`
	TotalScore     int    `json:"totalScore"`
	QuestionNumber int    `json:"questionNumber"`
	TotalQuestions int    `json:"totalQuestions"`

	NextQuestion *QuestionView `json:"nextQuestion,omitempty"`

	QuizCompleted        bool  `json:"quizCompleted"`
	FinalScorePercentage *int  `json:"finalScorePercentage,omitempty"`
	CertificateEligible  *bool `json:"certificateEligible,omitempty"`
}

// ResultDetail is the per-question breakdown in SessionResults.
type ResultDetail struct {
	QuestionNumber int    `json:"questionNumber"`
	QuestionID     string `json:"questionId"`
	QuestionTitle  string `json:"questionTitle"`
	QuestionText   string `json:"questionText"`
	SelectedChoice string `json:"selectedChoice"`
	Correct        bool   `json:"correct"`
	PointsEarned   int    `json:"pointsEarned"`
	Feedback       string `json:"feedback"`
}

// Recommendation is a descriptive post-quiz suggestion.
type Recommendation struct {
	Type          string   `json:"type"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Topics        []string `json:"topics,omitempty"`
	Difficulty    string   `json:"difficulty,omitempty"`
	EstimatedTime string   `json:"estimatedTime,omitempty"`
	ActionURL     string   `json:"actionUrl,omitempty"`
}

const (
	RecommendationStudy        = "study"
	RecommendationAdvanced     = "advanced"
	RecommendationTargeted     = "targeted_learning"
	RecommendationQuiz         = "quiz"
	RecommendationStory        = "story"
	RecommendationEducational  = "educational"
	RecommendationAdvancedQuiz = "advanced_quiz"
)

const (
	// AnonymousUserSentinel is what clients send (or omit) for unidentified takers.
	AnonymousUserSentinel = "anonymous"
	AnonymousDisplayName  = "Anonymous User"
	DefaultQuizType       = "disaster-preparedness"

	CertificateThresholdPercent  = 70
	FundamentalsThresholdPercent = 50
)

// SessionResults is the full read model of a session.
type SessionResults struct {
	SessionID           string           `json:"sessionId"`
	UserID              string           `json:"userId"`
	QuizType            string           `json:"quizType"`
	Completed           bool             `json:"completed"`
	CompletedAt         *time.Time       `json:"completedAt,omitempty"`
	TotalScore          int              `json:"totalScore"`
	TotalPossibleScore  int              `json:"totalPossibleScore"`
	Percentage          int              `json:"percentage"`
	CertificateEligible bool             `json:"certificateEligible"`
	DetailedResults     []ResultDetail   `json:"detailedResults"`
	Recommendations     []Recommendation `json:"recommendations"`
}

// Timeframe bounds leaderboard input by completion time.
type Timeframe string

const (
	TimeframeWeek  Timeframe = "week"
	TimeframeMonth Timeframe = "month"
	TimeframeAll   Timeframe = "all"
)

// Timeframes lists every supported timeframe.
var Timeframes = []Timeframe{TimeframeWeek, TimeframeMonth, TimeframeAll}

// Valid reports whether tf is a known timeframe.
func (tf Timeframe) Valid() bool {
	switch tf {
	case TimeframeWeek, TimeframeMonth, TimeframeAll:
		return true
	}
	return false
}

// Since returns the earliest completion time in scope, or zero for all.
func (tf Timeframe) Since(now time.Time) time.Time {
	switch tf {
	case TimeframeWeek:
		return now.AddDate(0, 0, -7)
	case TimeframeMonth:
		return now.AddDate(0, 0, -30)
	}
	return time.Time{}
}

// CompletedFilter narrows ListCompleted queries. QuizType is required.
type CompletedFilter struct {
	QuizType string
	UserID   string
	Since    time.Time
}

// Matches applies the filter to one session in memory.
func (f CompletedFilter) Matches(s QuizSession) bool {
	if !s.Completed || s.QuizType != f.QuizType {
		return false
	}
	if f.UserID != "" && s.UserID != f.UserID {
		return false
	}
	if !f.Since.IsZero() && (s.CompletedAt == nil || s.CompletedAt.Before(f.Since)) {
		return false
	}
	return true
}

// LeaderboardEntry is one ranked user row.
type LeaderboardEntry struct {
	Rank            int       `json:"rank"`
	UserID          string    `json:"userId"`
	DisplayName     string    `json:"displayName"`
	Anonymous       bool      `json:"anonymous"`
	BestScore       int       `json:"bestScore"`
	Percentage      int       `json:"percentage"`
	Attempts        int       `json:"attempts"`
	LastCompletedAt time.Time `json:"lastCompletedAt"`
}

// Leaderboard captures the ordered ranking for a quiz type and timeframe.
type Leaderboard struct {
	QuizType          string             `json:"quizType"`
	Timeframe         Timeframe          `json:"timeframe"`
	Entries           []LeaderboardEntry `json:"leaderboard"`
	TotalParticipants int                `json:"totalParticipants"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

// LeaderboardQuery selects a leaderboard page.
type LeaderboardQuery struct {
	QuizType  string
	Limit     int
	Timeframe Timeframe
}

// AnalyticsEvent is a fire-and-forget record for the analytics sink.
type AnalyticsEvent struct {
	ID        string         `json:"id"`
	EventType string         `json:"eventType"`
	EventData map[string]any `json:"eventData"`
	UserID    string         `json:"userId,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

const (
	EventQuizStarted         = "quiz_started"
	EventQuizAnswerSubmitted = "quiz_answer_submitted"
	EventQuizCompleted       = "quiz_completed"
)

// UserPerformance aggregates an identified user's completed sessions.
type UserPerformance struct {
	AverageScore float64 `json:"averageScore"`
	QuizCount    int     `json:"quizCount"`
}

// ContentRecommendations is the response of the content recommendation read.
type ContentRecommendations struct {
	Recommendations []Recommendation `json:"recommendations"`
	UserPerformance *UserPerformance `json:"userPerformance"`
}
