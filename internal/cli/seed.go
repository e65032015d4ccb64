package cli

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"smong-quiz-service/internal/config"
	"smong-quiz-service/internal/infra/postgres"
	"smong-quiz-service/internal/questionbank"
)

// NewSeedCmd copies question banks from a YAML file (or the embedded default)
// into Postgres so the postgres bank source can serve them.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load question banks into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return runSeed(cmd.Context(), cfg, file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML bank file (default: embedded banks)")
	return cmd
}

func runSeed(ctx context.Context, cfg config.Config, file string) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	logger := cfg.Logger()

	var (
		source *questionbank.StaticLoader
		err    error
	)
	if file != "" {
		source, err = questionbank.LoadFile(file)
	} else {
		source, err = questionbank.Default()
	}
	if err != nil {
		return err
	}

	if err := runMigrations(ctx, cfg, logger); err != nil {
		return err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	target := postgres.NewBankLoader(pool)
	for _, quizType := range source.Types() {
		bank, err := source.LoadBank(ctx, quizType)
		if err != nil {
			return err
		}
		if err := target.SaveBank(ctx, bank); err != nil {
			return err
		}
		logger.Info("question bank seeded", "quiz_type", quizType, "questions", bank.Len())
	}
	return nil
}
