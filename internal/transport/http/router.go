package http

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"smong-quiz-service/internal/app"
)

// APIPrefix is where the quiz routes are mounted.
const APIPrefix = "/api/interactive"

// NewRouter wires REST and websocket routes, with CORS and panic recovery.
// Access logs go to stdout when accessLog is set.
func NewRouter(service *app.QuizService, logger *slog.Logger, accessLog bool) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	api := NewHandler(service, logger)
	ws := NewWSHandler(service, logger)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", api.Health).Methods(http.MethodGet)

	quiz := r.PathPrefix(APIPrefix).Subrouter()
	quiz.HandleFunc("/quiz/start", api.StartQuiz).Methods(http.MethodPost)
	quiz.HandleFunc("/quiz/leaderboard", api.Leaderboard).Methods(http.MethodGet)
	quiz.HandleFunc("/quiz/leaderboard/ws", ws.ServeWS).Methods(http.MethodGet)
	quiz.HandleFunc("/quiz/{sessionId}/question", api.CurrentQuestion).Methods(http.MethodGet)
	quiz.HandleFunc("/quiz/{sessionId}/answer", api.SubmitAnswer).Methods(http.MethodPost)
	quiz.HandleFunc("/quiz/{sessionId}/results", api.Results).Methods(http.MethodGet)
	quiz.HandleFunc("/recommendations", api.Recommendations).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "not_found", "route not found")
	})

	var h http.Handler = r
	h = handlers.CORS(
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedOrigins([]string{"*"}),
	)(h)
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError)))(h)
	if accessLog {
		h = handlers.CombinedLoggingHandler(os.Stdout, h)
	}
	return h
}
