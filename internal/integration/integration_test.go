package integration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"smong-quiz-service/internal/app"
	"smong-quiz-service/internal/domain"
	"smong-quiz-service/internal/infra/postgres"
	infraredis "smong-quiz-service/internal/infra/redis"
	"smong-quiz-service/internal/questionbank"
)

func TestQuizEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := postgres.OpenBun(pgURL)
	defer db.Close()
	if _, err := postgres.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	banks := postgres.NewBankLoader(pool)
	seedDefaultBank(t, ctx, banks)
	catalog, err := questionbank.LoadCatalog(ctx, banks, domain.DefaultQuizType, nil)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	sink := postgres.NewAnalyticsSink(db)
	service := app.NewQuizService(catalog, postgres.NewSessionStore(pool, nil),
		app.WithLeaderboardCache(infraredis.NewLeaderboardCache(redisClient, time.Minute, nil)),
		app.WithAnalytics(sink),
	)

	aliceScore := playQuiz(t, ctx, service, "alice", true)
	bobScore := playQuiz(t, ctx, service, "bob", false)
	if aliceScore <= bobScore {
		t.Fatalf("expected alice ahead, got alice=%d bob=%d", aliceScore, bobScore)
	}

	lb, err := service.Leaderboard(ctx, domain.LeaderboardQuery{Timeframe: domain.TimeframeWeek})
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 2 || lb.Entries[0].UserID != "alice" || lb.Entries[1].UserID != "bob" {
		t.Fatalf("unexpected leaderboard %+v", lb.Entries)
	}
	if redisClient.Exists(ctx, "quiz:leaderboard:"+domain.DefaultQuizType+":week").Val() != 1 {
		t.Fatalf("expected leaderboard cached in redis")
	}

	completed, err := sink.CountEvents(ctx, domain.EventQuizCompleted)
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	if completed != 2 {
		t.Fatalf("expected 2 completion events, got %d", completed)
	}
}

func TestConcurrentSubmissionsPostgres(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	db := postgres.OpenBun(pgURL)
	defer db.Close()
	if _, err := postgres.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader, err := questionbank.Default()
	if err != nil {
		t.Fatalf("default banks: %v", err)
	}
	catalog, err := questionbank.LoadCatalog(ctx, loader, domain.DefaultQuizType, nil)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	store := postgres.NewSessionStore(pool, nil)
	service := app.NewQuizService(catalog, store)

	started, err := service.Start(ctx, "racer", "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	const racers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.SubmitAnswer(ctx, started.SessionID, domain.AnswerSubmission{
				ChoiceID:   "a",
				QuestionID: started.FirstQuestion.ID,
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one accepted submission, got %d", successes)
	}
	session, err := store.Get(ctx, started.SessionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if session.CurrentQuestion != 1 || len(session.Answers) != 1 {
		t.Fatalf("expected one recorded answer, got %+v", session)
	}
}

// playQuiz answers every question, correctly when allCorrect is set, and
// returns the final score.
func playQuiz(t *testing.T, ctx context.Context, service *app.QuizService, userID string, allCorrect bool) int {
	t.Helper()
	started, err := service.Start(ctx, userID, "")
	if err != nil {
		t.Fatalf("start %s: %v", userID, err)
	}
	bankLoader, _ := questionbank.Default()
	bank, _ := bankLoader.LoadBank(ctx, domain.DefaultQuizType)

	var result domain.AnswerResult
	for i := 0; i < started.TotalQuestions; i++ {
		q, _ := bank.Question(i)
		choice := q.Choices[0].ID
		for _, c := range q.Choices {
			if c.Correct == allCorrect {
				choice = c.ID
				break
			}
		}
		result, err = service.SubmitAnswer(ctx, started.SessionID, domain.AnswerSubmission{ChoiceID: choice, QuestionID: q.ID})
		if err != nil {
			t.Fatalf("submit %s q%d: %v", userID, i, err)
		}
	}
	if !result.QuizCompleted {
		t.Fatalf("expected %s to complete", userID)
	}
	return result.TotalScore
}

func seedDefaultBank(t *testing.T, ctx context.Context, banks *postgres.BankLoader) {
	t.Helper()
	loader, err := questionbank.Default()
	if err != nil {
		t.Fatalf("default banks: %v", err)
	}
	bank, err := loader.LoadBank(ctx, domain.DefaultQuizType)
	if err != nil {
		t.Fatalf("default bank: %v", err)
	}
	if err := banks.SaveBank(ctx, bank); err != nil {
		t.Fatalf("seed bank: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
