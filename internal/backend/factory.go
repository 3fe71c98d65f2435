package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dividi/internal/amqp"
	"dividi/internal/cache"
	"dividi/internal/groups/memory"
	"dividi/internal/storage"
	"dividi/internal/storage/mysql"
	"dividi/internal/storage/postgres"
)

const cacheCleanupInterval = time.Minute

type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend opens the configured store, layers the cache over it and
// connects the AMQP publisher. AMQP failures are logged, not fatal.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		res *Result
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		res, err = f.createSQLiteBackend(config)
	case PostgresBackend:
		res, err = f.createPostgresBackend(ctx, config)
	case MySQLBackend:
		res, err = f.createMySQLBackend(ctx, config)
	case MemoryBackend:
		res, err = f.createMemoryBackend(config)
	default:
		err = fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if config.CacheSize > 0 {
		f.addCache(ctx, res, config)
	}
	if config.AMQPURL != "" {
		f.addPublisher(res, config)
	}
	return res, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*Result, error) {
	store := memory.New()
	if config.SeedDir != "" {
		var err error
		if store, err = memory.NewFromDir(config.SeedDir); err != nil {
			return nil, fmt.Errorf("failed to seed memory backend: %w", err)
		}
	}

	f.logger.Info("Initialized memory backend", "seed_dir", config.SeedDir, "groups", store.Len())
	return &Result{
		Store:       store,
		ReadyChecks: map[string]func(context.Context) error{},
	}, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*Result, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return &Result{
		Store:       repo,
		Activity:    repo,
		ReadyChecks: map[string]func(context.Context) error{"sqlite": repo.Ping},
		Cleanup:     repo.Close,
	}, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*Result, error) {
	store, err := postgres.New(ctx, config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres store: %w", err)
	}
	if err := store.RunMigrations(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to run Postgres migrations: %w", err)
	}

	f.logger.Info("Initialized Postgres backend")
	return &Result{
		Store:       store,
		ReadyChecks: map[string]func(context.Context) error{"postgres": store.Ping},
		Cleanup:     store.Close,
	}, nil
}

func (f *DefaultFactory) createMySQLBackend(ctx context.Context, config Config) (*Result, error) {
	store, err := mysql.New(ctx, config.MySQLDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MySQL store: %w", err)
	}
	if err := store.RunMigrations(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to run MySQL migrations: %w", err)
	}

	f.logger.Info("Initialized MySQL backend")
	return &Result{
		Store:       store,
		ReadyChecks: map[string]func(context.Context) error{"mysql": store.Ping},
		Cleanup:     store.Close,
	}, nil
}

func (f *DefaultFactory) addCache(ctx context.Context, res *Result, config Config) {
	cached, lru := cache.NewStore(res.Store, config.CacheSize, config.CacheTTL)
	manager := cache.NewManager()
	manager.Register(lru)
	manager.StartCleanup(context.WithoutCancel(ctx), cacheCleanupInterval)

	res.Store = cached
	res.Cleanup = chain(func() error { manager.Stop(); return nil }, res.Cleanup)

	f.logger.Info("Enabled group cache", "size", config.CacheSize, "ttl", config.CacheTTL)
}

func (f *DefaultFactory) addPublisher(res *Result, config Config) {
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without notifications", "error", err)
		return
	}

	res.Publisher = client
	res.ReadyChecks["amqp"] = func(context.Context) error { return client.Ping() }
	res.Cleanup = chain(client.Close, res.Cleanup)

	f.logger.Info("Initialized AMQP client", "exchange", config.AMQPExchange, "queue", config.AMQPQueue)
}

// chain runs every non-nil cleanup in order and joins their errors.
func chain(fns ...CleanupFunc) CleanupFunc {
	return func() error {
		var errs []error
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			if err := fn(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

// Close runs the backend's cleanup, if any.
func (r *Result) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}
