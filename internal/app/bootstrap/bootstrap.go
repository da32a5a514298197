package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ballotengine "votingapp/contexts/elections/ballot-engine"
	postgresadapter "votingapp/contexts/elections/ballot-engine/adapters/postgres"
	sqliteadapter "votingapp/contexts/elections/ballot-engine/adapters/sqlite"
	"votingapp/contexts/elections/ballot-engine/application/workers"
	"votingapp/contexts/elections/ballot-engine/ports"
	"votingapp/internal/platform/config"
	"votingapp/internal/platform/db"
	"votingapp/internal/platform/httpserver"
	"votingapp/internal/platform/messaging"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	consumer *workers.VoteQueueConsumer
	closers  []func() error
	logger   *slog.Logger
}

type WorkerApp struct {
	consumer workers.VoteQueueConsumer
	closers  []func() error
	logger   *slog.Logger
}

// storage is the set of ports one database backend provides.
type storage struct {
	store  ports.BallotStore
	reader ports.TallyReader
	users  ports.UserRegistry
	close  func() error
}

func BuildAPI(ctx context.Context) (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")

	st, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app := &APIApp{logger: logger, closers: []func() error{st.close}}

	var broker *messaging.RabbitMQ
	if cfg.VoteBackend == config.BackendBroker || cfg.EnableEmbeddedConsumer {
		broker = newBroker(cfg, logger)
		app.closers = append(app.closers, broker.Close)
	}

	module, err := ballotengine.NewModule(moduleDependencies(cfg, st, broker, logger))
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.server = httpserver.New(module, logger, normalizeAddr(cfg.HTTPPort))
	if cfg.EnableEmbeddedConsumer {
		// The consumer runs at READ COMMITTED and relies on being the only
		// one on the queue; cmd/worker must not run alongside it.
		logger.Warn("embedded vote queue consumer enabled",
			"event", "embedded_consumer_enabled",
			"module", "internal/app/bootstrap",
			"layer", "platform",
			"queue", cfg.RabbitMQ.VoteQueue,
		)
		consumer := module.Consumer
		app.consumer = &consumer
	}
	return app, nil
}

func BuildWorker(ctx context.Context) (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")

	st, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	broker := newBroker(cfg, logger)

	deps := moduleDependencies(cfg, st, broker, logger)
	// The worker only serves the queue, so its own dispatcher is always
	// in-process.
	deps.Backend = ballotengine.BackendDirect
	module, err := ballotengine.NewModule(deps)
	if err != nil {
		_ = broker.Close()
		_ = st.close()
		return nil, err
	}
	return &WorkerApp{
		consumer: module.Consumer,
		closers:  []func() error{broker.Close, st.close},
		logger:   logger,
	}, nil
}

func (a *APIApp) Run(ctx context.Context) error {
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"embedded_consumer", a.consumer != nil,
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.server.Run(groupCtx)
	})
	if a.consumer != nil {
		group.Go(func() error {
			return a.consumer.Run(groupCtx)
		})
	}
	return group.Wait()
}

func (a *APIApp) Close() error {
	return closeAll(a.closers)
}

func (w *WorkerApp) Run(ctx context.Context) error {
	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"queue", w.consumer.Queue,
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return w.consumer.Run(groupCtx)
	})
	return group.Wait()
}

func (w *WorkerApp) Close() error {
	return closeAll(w.closers)
}

func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		pg, err := db.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return storage{}, err
		}
		repo := postgresadapter.NewRepository(pg.DB, logger)
		if cfg.AutoMigrate {
			if err := repo.EnsureSchema(ctx); err != nil {
				_ = pg.Close()
				return storage{}, err
			}
		}
		return storage{store: repo, reader: repo, users: repo, close: pg.Close}, nil
	case config.DriverSQLite:
		sq, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return storage{}, err
		}
		store := sqliteadapter.NewStore(sq.DB, logger)
		if cfg.AutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = sq.Close()
				return storage{}, err
			}
		}
		return storage{store: store, reader: store, users: store, close: sq.Close}, nil
	default:
		return storage{}, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
}

func newBroker(cfg config.Config, logger *slog.Logger) *messaging.RabbitMQ {
	return messaging.NewRabbitMQ(messaging.RabbitMQConfig{
		Host:     cfg.RabbitMQ.Host,
		Port:     cfg.RabbitMQ.Port,
		Username: cfg.RabbitMQ.User,
		Password: cfg.RabbitMQ.Password,
		VHost:    cfg.RabbitMQ.VHost,
	}, logger)
}

func moduleDependencies(cfg config.Config, st storage, broker *messaging.RabbitMQ, logger *slog.Logger) ballotengine.Dependencies {
	deps := ballotengine.Dependencies{
		Backend:      ballotengine.Backend(cfg.VoteBackend),
		Store:        st.store,
		Reader:       st.reader,
		Users:        st.users,
		Clock:        postgresadapter.SystemClock{},
		IDGen:        postgresadapter.UUIDGenerator{},
		VoteLimit:    cfg.CastVoteLimit,
		Queue:        cfg.RabbitMQ.VoteQueue,
		ReplyTimeout: cfg.RPCReplyTimeout,
		BackOff:      newReconnectBackOff(),
		Logger:       logger,
	}
	// A nil *RabbitMQ must not become a non-nil interface value.
	if broker != nil {
		deps.Broker = broker
	}
	return deps
}

func newReconnectBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	return b
}

func closeAll(closers []func() error) error {
	var errs []error
	for _, closeFn := range closers {
		if closeFn == nil {
			continue
		}
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
