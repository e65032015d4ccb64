package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smong-quiz-service/internal/app"
	"smong-quiz-service/internal/domain"
	"smong-quiz-service/internal/infra/memory"
	"smong-quiz-service/internal/questionbank"
)

func TestQuizFlowOverREST(t *testing.T) {
	server := newTestServer(t)

	var started domain.StartResult
	status := doJSON(t, server, http.MethodPost, "/quiz/start", map[string]string{"userId": "alice"}, &started)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 3, started.TotalQuestions)
	assert.Equal(t, "scenario-1", started.FirstQuestion.ID)

	var prompt domain.QuestionPrompt
	status = doJSON(t, server, http.MethodGet, "/quiz/"+started.SessionID+"/question", nil, &prompt)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, prompt.QuestionNumber)

	var last domain.AnswerResult
	for _, q := range []string{"scenario-1", "scenario-2", "scenario-3"} {
		status = doJSON(t, server, http.MethodPost, "/quiz/"+started.SessionID+"/answer",
			map[string]string{"choiceId": correctChoice(t, q), "questionId": q}, &last)
		require.Equal(t, http.StatusOK, status)
		assert.True(t, last.Correct)
	}
	assert.True(t, last.QuizCompleted)
	require.NotNil(t, last.FinalScorePercentage)
	assert.Equal(t, 100, *last.FinalScorePercentage)

	var results domain.SessionResults
	status = doJSON(t, server, http.MethodGet, "/quiz/"+started.SessionID+"/results", nil, &results)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 30, results.TotalScore)
	assert.Len(t, results.DetailedResults, 3)

	var lb domain.Leaderboard
	status = doJSON(t, server, http.MethodGet, "/quiz/leaderboard?limit=5&timeframe=week", nil, &lb)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, lb.Entries, 1)
	assert.Equal(t, "alice", lb.Entries[0].UserID)

	var recs domain.ContentRecommendations
	status = doJSON(t, server, http.MethodGet, "/recommendations?userId=alice&storyType=tsunami", nil, &recs)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, recs.Recommendations, 4)
}

func TestErrorMapping(t *testing.T) {
	server := newTestServer(t)

	var started domain.StartResult
	require.Equal(t, http.StatusOK, doJSON(t, server, http.MethodPost, "/quiz/start", nil, &started))

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown session", http.MethodGet, "/quiz/nope/question", nil, http.StatusNotFound, "session_not_found"},
		{"unknown choice", http.MethodPost, "/quiz/" + started.SessionID + "/answer", map[string]string{"choiceId": "z"}, http.StatusBadRequest, "invalid_choice"},
		{"missing choice", http.MethodPost, "/quiz/" + started.SessionID + "/answer", map[string]string{}, http.StatusBadRequest, "invalid_input"},
		{"bad limit", http.MethodGet, "/quiz/leaderboard?limit=abc", nil, http.StatusBadRequest, "invalid_input"},
		{"bad timeframe", http.MethodGet, "/quiz/leaderboard?timeframe=year", nil, http.StatusBadRequest, "invalid_input"},
		{"unknown quiz", http.MethodPost, "/quiz/start", map[string]string{"quizType": "volcano"}, http.StatusBadRequest, "invalid_input"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var msg HTTPMessage
			status := doJSON(t, server, tc.method, tc.path, tc.body, &msg)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, "error", msg.Type)
			assert.Equal(t, tc.code, msg.Code)
		})
	}
}

func TestAnswerAfterCompletionConflicts(t *testing.T) {
	server := newTestServer(t)

	var started domain.StartResult
	doJSON(t, server, http.MethodPost, "/quiz/start", map[string]string{"userId": "bob"}, &started)
	for i := 0; i < 3; i++ {
		doJSON(t, server, http.MethodPost, "/quiz/"+started.SessionID+"/answer", map[string]string{"choiceId": "a"}, nil)
	}

	var msg HTTPMessage
	status := doJSON(t, server, http.MethodPost, "/quiz/"+started.SessionID+"/answer", map[string]string{"choiceId": "a"}, &msg)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "already_completed", msg.Code)
}

func TestClassifyUnknownErrorIsInternal(t *testing.T) {
	status, code := classify(context.DeadlineExceeded)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal", code)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	service := newTestService(t)
	server := httptest.NewServer(NewRouter(service, nil, false))
	t.Cleanup(server.Close)
	return server
}

func newTestService(t *testing.T) *app.QuizService {
	t.Helper()
	loader, err := questionbank.Default()
	require.NoError(t, err)
	catalog, err := questionbank.LoadCatalog(context.Background(), loader, domain.DefaultQuizType, nil)
	require.NoError(t, err)
	return app.NewQuizService(catalog, memory.NewSessionStore())
}

func correctChoice(t *testing.T, questionID string) string {
	t.Helper()
	loader, err := questionbank.Default()
	require.NoError(t, err)
	bank, err := loader.LoadBank(context.Background(), domain.DefaultQuizType)
	require.NoError(t, err)
	q, ok := bank.QuestionByID(questionID)
	require.True(t, ok)
	for _, c := range q.Choices {
		if c.Correct {
			return c.ID
		}
	}
	t.Fatalf("question %s has no correct choice", questionID)
	return ""
}

func doJSON(t *testing.T, server *httptest.Server, method, path string, body, out any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, server.URL+APIPrefix+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}
