// Package app assembles the reference engine from configuration. The server
// and the operator CLI share it so both run against the same wiring.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"refroute/internal/identity"
	"refroute/internal/notify"
	"refroute/internal/permission"
	"refroute/internal/platform/config"
	"refroute/internal/platform/kafka"
	"refroute/internal/platform/postgres"
	platformredis "refroute/internal/platform/redis"
	"refroute/internal/reference/identitysync"
	refmetrics "refroute/internal/reference/metrics"
	"refroute/internal/reference/query"
	"refroute/internal/reference/service"
	"refroute/internal/reference/store"
	id "refroute/pkg/domain"
)

// Store is everything the engine and the synchronizer need from persistence.
type Store interface {
	service.Store
	identitysync.Store
}

// App holds the assembled components and the resources they own.
type App struct {
	Config      config.Server
	Logger      *slog.Logger
	Store       Store
	Directory   *identity.CachedDirectory
	Permissions permission.Evaluator
	Metrics     *refmetrics.Metrics
	Service     *service.Service
	Sync        *identitysync.Synchronizer
	Redis       *platformredis.Client

	memDir   *identity.InMemoryDirectory
	producer *kgo.Client
	async    *notify.AsyncSink
	checks   map[string]func(context.Context) error
	closers  []func()
}

// Build connects to the configured backends. Without DATABASE_URL the stores
// and directory stay in process; without brokers events go to the log.
func Build(ctx context.Context, cfg config.Server, log *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: log, Metrics: refmetrics.New(), checks: map[string]func(context.Context) error{}}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	var source identity.Directory
	if cfg.UsesPostgres() {
		if cfg.Database.RunMigrations {
			if err := postgres.Migrate(cfg.Database.URL, a.Logger); err != nil {
				return err
			}
		}
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		pool, err := postgres.OpenPool(ctx, cfg.Database)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pool.Close)
		a.checks["postgres"] = db.PingContext
		a.Store = store.NewPostgres(db)
		source = identity.NewPostgresDirectory(pool)
	} else {
		seed, err := loadSeed(cfg.Identity.SeedFile)
		if err != nil {
			return err
		}
		a.Store = store.NewInMemory()
		a.memDir = identity.NewInMemoryDirectory(seed...)
		source = a.memDir
		a.Logger.Warn("no database configured, using in-memory stores", "seeded_identities", len(seed))
	}

	rc, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	a.Redis = rc
	var cacheOpts []identity.CacheOption
	var checkpoints identitysync.Checkpoints = identitysync.NewMemoryCheckpoints()
	if rc != nil {
		a.closers = append(a.closers, func() { _ = rc.Close() })
		a.checks["redis"] = rc.Health
		cacheOpts = append(cacheOpts, identity.WithRedis(rc.Client))
		checkpoints = identitysync.NewRedisCheckpoints(rc.Client, cfg.Identity.CheckpointTTL)
	}
	cacheOpts = append(cacheOpts, identity.WithCacheLogger(a.Logger))
	a.Directory = identity.NewCachedDirectory(source, cfg.Identity.CacheSize, cfg.Identity.CacheTTL, cacheOpts...)

	perms, err := permission.NewCasbinEvaluator(cfg.PolicyLines, a.Logger)
	if err != nil {
		return err
	}
	a.Permissions = perms

	var sink notify.Sink = notify.LogSink{Logger: a.Logger}
	if cfg.UsesKafka() {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.NotifyTopic)
		if err != nil {
			return err
		}
		a.producer = producer
		a.checks["kafka"] = producer.Ping
		a.closers = append(a.closers, func() {
			_ = producer.Flush(context.Background())
			producer.Close()
		})
		a.async = notify.NewAsyncSink(notify.NewKafkaSink(producer, cfg.Kafka.NotifyTopic, sink, a.Logger), cfg.Kafka.NotifyBuffer, a.Logger)
		sink = a.async
	}

	a.Service = service.New(a.Store, a.Directory, a.Permissions,
		service.WithLogger(a.Logger),
		service.WithMetrics(a.Metrics),
		service.WithNotifier(sink),
		service.WithConfig(service.Config{
			DatastoreTimeout:     cfg.Database.DatastoreTimeout,
			BulkConcurrency:      cfg.Engine.BulkConcurrency,
			BulkMaxItems:         cfg.Engine.BulkMaxItems,
			PendingThresholdDays: cfg.Engine.PendingThresholdDays,
			Limits: query.Limits{
				DefaultLimit: cfg.Engine.DefaultPageSize,
				MaxLimit:     cfg.Engine.MaxPageSize,
			},
		}),
	)
	a.Sync = identitysync.New(a.Store, a.Directory,
		identitysync.WithBatchSize(cfg.Engine.SyncBatchSize),
		identitysync.WithCheckpoints(checkpoints),
		identitysync.WithTimeout(cfg.Database.DatastoreTimeout),
		identitysync.WithLogger(a.Logger),
		identitysync.WithMetrics(a.Metrics),
	)
	if a.memDir != nil {
		a.memDir.Subscribe(a.Sync.Handle)
	}
	return nil
}

// Run starts the background workers: the notification drain and, with
// brokers configured, the identity change consumers. The group consumer
// resyncs a changed user on one replica; the tail consumer evicts the user
// from this replica's cache. It blocks until ctx is cancelled or a worker fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if a.async != nil {
		g.Go(func() error { return a.async.Run(ctx) })
	}
	if a.Config.UsesKafka() {
		kc := a.Config.Kafka
		if err := kafka.EnsureTopics(ctx, kc.Brokers, kc.Partitions, kc.NotifyTopic, kc.IdentityTopic); err != nil {
			return err
		}
		consumer, err := kafka.NewConsumer(kc.Brokers, kc.ConsumerGroup, kc.IdentityTopic)
		if err != nil {
			return err
		}
		defer consumer.Close()
		requeue := func(ctx context.Context, user id.UserID) error {
			return identity.PublishChange(ctx, a.producer, kc.IdentityTopic, user)
		}
		g.Go(func() error {
			return identity.NewChangeConsumer(consumer, a.Sync.Handle, a.Logger, identity.WithRequeue(requeue)).Run(ctx)
		})

		tail, err := kafka.NewTailConsumer(kc.Brokers, kc.IdentityTopic)
		if err != nil {
			return err
		}
		defer tail.Close()
		g.Go(func() error {
			return identity.NewBroadcastConsumer(tail, a.Directory.Forget, a.Logger).Run(ctx)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// PublishIdentityChange announces a directory change. One replica resyncs the
// user and every replica evicts its cached identity. Without brokers the
// change is handled in process.
func (a *App) PublishIdentityChange(ctx context.Context, user id.UserID) error {
	if a.producer == nil {
		return a.Sync.Handle(ctx, user)
	}
	return identity.PublishChange(ctx, a.producer, a.Config.Kafka.IdentityTopic, user)
}

// Ready pings every configured backend and returns the names of those that
// failed. An in-memory deployment is always ready.
func (a *App) Ready(ctx context.Context) []string {
	var failed []string
	for name, check := range a.checks {
		if err := check(ctx); err != nil {
			a.Logger.Warn("readiness check failed", "backend", name, "error", err)
			failed = append(failed, name)
		}
	}
	slices.Sort(failed)
	return failed
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func loadSeed(path string) ([]identity.Identity, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identity seed: %w", err)
	}
	var seed []identity.Identity
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("decode identity seed: %w", err)
	}
	return seed, nil
}
