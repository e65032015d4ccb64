package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"smong-quiz-service/internal/app"
	"smong-quiz-service/internal/config"
	"smong-quiz-service/internal/domain"
	"smong-quiz-service/internal/infra/kafka"
	"smong-quiz-service/internal/infra/memory"
	"smong-quiz-service/internal/infra/postgres"
	redisstore "smong-quiz-service/internal/infra/redis"
	"smong-quiz-service/internal/infra/sqlite"
	"smong-quiz-service/internal/questionbank"
	transport "smong-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := cfg.Logger()
	slog.SetDefault(logger)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	deps := &dependencies{logger: logger}
	defer deps.close()

	service, err := deps.build(ctx, cfg)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(service, logger, true),
		ReadTimeout:  config.TTLDuration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.TTLDuration(cfg.Server.WriteTimeout, 15*time.Second),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting quiz service", "port", finalPort, "store", cfg.Store.Driver, "analytics", cfg.Analytics.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// dependencies owns the external clients opened for the service.
type dependencies struct {
	logger  *slog.Logger
	pool    *pgxpool.Pool
	redis   *redis.Client
	closers []func() error
}

func (d *dependencies) build(ctx context.Context, cfg config.Config) (*app.QuizService, error) {
	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, d.logger); err != nil {
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		d.pool = pool
	}
	if cfg.Redis.Addr != "" {
		d.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		d.closers = append(d.closers, d.redis.Close)
	}

	catalog, err := d.catalog(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := d.sessionStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	sink, err := d.analytics(cfg)
	if err != nil {
		return nil, err
	}

	leaderboardTTL := config.TTLDuration(cfg.Quiz.LeaderboardTTL, 30*time.Second)
	var cache app.LeaderboardCache = memory.NewLeaderboardCache(leaderboardTTL)
	if d.redis != nil {
		cache = redisstore.NewLeaderboardCache(d.redis, leaderboardTTL, d.logger)
	}

	return app.NewQuizService(catalog, store,
		app.WithLeaderboardCache(cache),
		app.WithAnalytics(sink),
		app.WithLogger(d.logger),
		app.WithTrackTimeout(config.TTLDuration(cfg.Analytics.Timeout, 2*time.Second)),
	), nil
}

func (d *dependencies) catalog(ctx context.Context, cfg config.Config) (*domain.Catalog, error) {
	var loader questionbank.Loader
	switch cfg.Quiz.BankSource {
	case config.BankFile:
		static, err := questionbank.LoadFile(cfg.Quiz.BankFile)
		if err != nil {
			return nil, err
		}
		loader = static
	case config.BankPostgres:
		loader = postgres.NewBankLoader(d.pool)
	default:
		static, err := questionbank.Default()
		if err != nil {
			return nil, err
		}
		loader = static
	}
	catalog, err := questionbank.LoadCatalog(ctx, loader, cfg.Quiz.DefaultType, cfg.Quiz.Types)
	if err != nil {
		return nil, err
	}
	d.logger.Info("question banks loaded", "source", cfg.Quiz.BankSource, "types", catalog.Types())
	return catalog, nil
}

func (d *dependencies) sessionStore(ctx context.Context, cfg config.Config) (app.SessionRepository, error) {
	switch cfg.Store.Driver {
	case config.StoreRedis:
		return redisstore.NewSessionStore(d.redis, config.TTLDuration(cfg.Redis.TTL, 0), d.logger), nil
	case config.StorePostgres:
		return postgres.NewSessionStore(d.pool, d.logger), nil
	case config.StoreSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLite.Path, d.logger)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, store.Close)
		return store, nil
	}
	return memory.NewSessionStore(), nil
}

func (d *dependencies) analytics(cfg config.Config) (app.AnalyticsSink, error) {
	switch cfg.Analytics.Driver {
	case config.AnalyticsPostgres:
		db := postgres.OpenBun(cfg.Postgres.URL)
		d.closers = append(d.closers, db.Close)
		return postgres.NewAnalyticsSink(db), nil
	case config.AnalyticsKafka:
		pub, err := kafka.NewKafkaPublisher(kafka.Config{
			Brokers: cfg.Analytics.Kafka.Brokers,
			Topic:   cfg.Analytics.Kafka.Topic,
			Logger:  d.logger,
		})
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, pub.Close)
		return pub, nil
	}
	return memory.NewEventRecorder(d.logger, 0), nil
}

func (d *dependencies) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.logger.Warn("close failed", "error", err)
		}
	}
	if d.pool != nil {
		d.pool.Close()
	}
}
