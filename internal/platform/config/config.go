package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	BackendDirect = "direct"
	BackendBroker = "broker"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"votingapp"`
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`

	// VoteBackend selects how state-changing operations are dispatched.
	VoteBackend   string `env:"VOTE_BACKEND" envDefault:"direct"`
	CastVoteLimit int    `env:"CAST_VOTE_LIMIT" envDefault:"3"`

	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"postgres"`
	PostgresDSN    string `env:"POSTGRES_DSN"`
	SQLitePath     string `env:"SQLITE_PATH" envDefault:"votingapp.db"`
	AutoMigrate    bool   `env:"AUTO_MIGRATE" envDefault:"true"`

	RabbitMQ RabbitMQ `envPrefix:"RABBITMQ_"`

	RPCReplyTimeout time.Duration `env:"RPC_REPLY_TIMEOUT" envDefault:"3s"`

	// EnableEmbeddedConsumer runs the vote queue consumer inside the API
	// process, which is convenient for single-node setups.
	EnableEmbeddedConsumer bool `env:"ENABLE_EMBEDDED_CONSUMER" envDefault:"false"`
}

type RabbitMQ struct {
	Host      string `env:"HOST" envDefault:"localhost"`
	Port      int    `env:"PORT" envDefault:"5672"`
	User      string `env:"USER" envDefault:"guest"`
	Password  string `env:"PASSWORD" envDefault:"guest"`
	VHost     string `env:"VHOST" envDefault:"/"`
	VoteQueue string `env:"VOTE_QUEUE" envDefault:"vote-queue"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !isNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.VoteBackend = strings.ToLower(strings.TrimSpace(cfg.VoteBackend))
	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.VoteBackend {
	case BackendDirect, BackendBroker:
	default:
		errs = append(errs, fmt.Errorf("VOTE_BACKEND must be %q or %q, got %q", BackendDirect, BackendBroker, c.VoteBackend))
	}
	if c.CastVoteLimit <= 0 {
		errs = append(errs, fmt.Errorf("CAST_VOTE_LIMIT must be positive, got %d", c.CastVoteLimit))
	}
	switch c.DatabaseDriver {
	case DriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required when DATABASE_DRIVER=postgres"))
		}
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required when DATABASE_DRIVER=sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DatabaseDriver))
	}
	if c.RPCReplyTimeout <= 0 {
		errs = append(errs, fmt.Errorf("RPC_REPLY_TIMEOUT must be positive, got %s", c.RPCReplyTimeout))
	}
	return errors.Join(errs...)
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
