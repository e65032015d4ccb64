package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port         string `yaml:"port"`
		ReadTimeout  string `yaml:"readTimeout"`
		WriteTimeout string `yaml:"writeTimeout"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Store struct {
		Driver string `yaml:"driver"`
	} `yaml:"store"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Quiz struct {
		DefaultType    string   `yaml:"defaultType"`
		BankSource     string   `yaml:"bankSource"`
		BankFile       string   `yaml:"bankFile"`
		Types          []string `yaml:"types"`
		LeaderboardTTL string   `yaml:"leaderboardTtl"`
	} `yaml:"quiz"`
	Analytics struct {
		Driver  string `yaml:"driver"`
		Timeout string `yaml:"timeout"`
		Kafka   struct {
			Brokers []string `yaml:"brokers"`
			Topic   string   `yaml:"topic"`
		} `yaml:"kafka"`
	} `yaml:"analytics"`
}

const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"

	BankEmbedded = "embedded"
	BankFile     = "file"
	BankPostgres = "postgres"

	AnalyticsLog      = "log"
	AnalyticsPostgres = "postgres"
	AnalyticsKafka    = "kafka"
)

// Default returns the configuration used when no file is present.
func Default() Config {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Server.ReadTimeout = "15s"
	cfg.Server.WriteTimeout = "15s"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Store.Driver = StoreMemory
	cfg.SQLite.Path = "quiz.db"
	cfg.Quiz.DefaultType = "disaster-preparedness"
	cfg.Quiz.BankSource = BankEmbedded
	cfg.Quiz.LeaderboardTTL = "30s"
	cfg.Analytics.Driver = AnalyticsLog
	cfg.Analytics.Timeout = "2s"
	return cfg
}

// Load reads .env (if any), then YAML config from path over the defaults, then
// applies environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) {
	overrides := map[string]*string{
		"PORT":             &cfg.Server.Port,
		"QUIZ_STORE":       &cfg.Store.Driver,
		"REDIS_ADDR":       &cfg.Redis.Addr,
		"REDIS_PASSWORD":   &cfg.Redis.Password,
		"POSTGRES_URL":     &cfg.Postgres.URL,
		"SQLITE_PATH":      &cfg.SQLite.Path,
		"LOG_LEVEL":        &cfg.Log.Level,
		"ANALYTICS_SINK":   &cfg.Analytics.Driver,
		"QUIZ_BANK_FILE":   &cfg.Quiz.BankFile,
		"QUIZ_BANK_SOURCE": &cfg.Quiz.BankSource,
	}
	for key, dst := range overrides {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Analytics.Kafka.Brokers = strings.Split(v, ",")
	}
}

// Validate checks that the selected drivers have what they need.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory:
	case StoreRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("store driver redis requires redis.addr")
		}
	case StorePostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("store driver postgres requires postgres.url")
		}
	case StoreSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("store driver sqlite requires sqlite.path")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Quiz.BankSource {
	case BankEmbedded:
	case BankFile:
		if c.Quiz.BankFile == "" {
			return fmt.Errorf("bank source file requires quiz.bankFile")
		}
	case BankPostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("bank source postgres requires postgres.url")
		}
	default:
		return fmt.Errorf("unknown bank source %q", c.Quiz.BankSource)
	}

	switch c.Analytics.Driver {
	case AnalyticsLog:
	case AnalyticsPostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("analytics driver postgres requires postgres.url")
		}
	case AnalyticsKafka:
		if len(c.Analytics.Kafka.Brokers) == 0 {
			return fmt.Errorf("analytics driver kafka requires analytics.kafka.brokers")
		}
	default:
		return fmt.Errorf("unknown analytics driver %q", c.Analytics.Driver)
	}
	return nil
}

// Logger builds the process logger from the log section.
func (c Config) Logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
