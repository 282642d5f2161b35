package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/packfinderz-events/api/controllers"
	"github.com/angelmondragon/packfinderz-events/api/routes"
	"github.com/angelmondragon/packfinderz-events/internal/subscribers"
	"github.com/angelmondragon/packfinderz-events/pkg/config"
	"github.com/angelmondragon/packfinderz-events/pkg/db"
	"github.com/angelmondragon/packfinderz-events/pkg/eventbus"
	"github.com/angelmondragon/packfinderz-events/pkg/eventstore"
	"github.com/angelmondragon/packfinderz-events/pkg/idempotency"
	"github.com/angelmondragon/packfinderz-events/pkg/instance"
	"github.com/angelmondragon/packfinderz-events/pkg/lock"
	"github.com/angelmondragon/packfinderz-events/pkg/logger"
	"github.com/angelmondragon/packfinderz-events/pkg/metrics"
	"github.com/angelmondragon/packfinderz-events/pkg/migrate"
	"github.com/angelmondragon/packfinderz-events/pkg/pubsub"
	"github.com/angelmondragon/packfinderz-events/pkg/redis"
)

const serviceName = "eventbus"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	instanceID := instance.GetID()
	bootCtx := logg.WithFields(context.Background(), map[string]any{
		"env":         cfg.App.Env,
		"instance_id": instanceID,
		"store":       cfg.EventBus.StoreDriver,
		"channel":     cfg.EventBus.Channel,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	busMetrics := metrics.NewEventBusMetrics(registry)

	deps := map[string]pinger{}

	var redisClient *redis.Client
	if needsRedis(cfg) {
		redisClient, err = redis.New(bootCtx, cfg.Redis, logg)
		if err != nil {
			logg.Error(bootCtx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer closeResource(bootCtx, logg, "redis", redisClient.Close)
		deps["redis"] = redisClient
	}

	store, err := buildStore(bootCtx, cfg, logg, busMetrics, redisClient, deps)
	if err != nil {
		logg.Error(bootCtx, "failed to bootstrap event store", err)
		os.Exit(1)
	}
	if dbClient, ok := deps["database"].(*db.Client); ok {
		defer closeResource(bootCtx, logg, "database", dbClient.Close)
	}

	params := eventbus.Params{
		Logger:  logg,
		Store:   store,
		Metrics: busMetrics,
		Options: eventbus.OptionsFromConfig(cfg.EventBus, instanceID),
	}

	var receive receiveFunc
	switch strings.ToLower(cfg.EventBus.Channel) {
	case config.ChannelRedis:
		params.Channel = redisClient
	case config.ChannelPubSub:
		pubsubClient, err := pubsub.NewClient(bootCtx, cfg.GCP, cfg.PubSub, instanceID, logg)
		if err != nil {
			logg.Error(bootCtx, "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer closeResource(bootCtx, logg, "pubsub", pubsubClient.Close)
		deps["pubsub"] = pubsubClient
		params.Channel = pubsubClient
	}

	if params.Channel != nil && redisClient != nil {
		manager, err := idempotency.NewManager(redisClient, cfg.EventBus.IdempotencyTTL, cfg.EventBus.IdempotencyLease)
		if err != nil {
			logg.Error(bootCtx, "failed to build idempotency manager", err)
			os.Exit(1)
		}
		params.Idempotency = manager
	}

	if redisClient != nil && store != nil && strings.EqualFold(cfg.EventBus.StoreDriver, config.StoreDriverSQL) {
		sweepLock, err := lock.NewRedisLock(redisClient, strings.TrimSuffix(params.Options.ChannelPrefix, ":")+":retention-lock", params.Options.SweepInterval)
		if err != nil {
			logg.Error(bootCtx, "failed to build retention lock", err)
			os.Exit(1)
		}
		params.SweepLock = sweepLock
	}

	bus, err := eventbus.New(params)
	if err != nil {
		logg.Error(bootCtx, "failed to create event bus", err)
		os.Exit(1)
	}
	if err := subscribers.RegisterAll(bus, subscribers.Deps{Logger: logg, Metrics: busMetrics}); err != nil {
		logg.Error(bootCtx, "failed to register subscribers", err)
		os.Exit(1)
	}

	pattern := bus.Options().ChannelPattern()
	switch channel := params.Channel.(type) {
	case *redis.Client:
		receive = func(ctx context.Context) error { return channel.Receive(ctx, pattern, bus.HandleRemote) }
	case *pubsub.Client:
		receive = func(ctx context.Context) error { return channel.Receive(ctx, pattern, bus.HandleRemote) }
	}

	var handler http.Handler
	if cfg.Admin.Enabled {
		readiness := make(map[string]controllers.Pinger, len(deps)+1)
		for name, dep := range deps {
			readiness[name] = dep
		}
		// Not a startup dependency: the bus only turns ready once the service starts it.
		readiness["eventbus"] = bus
		var responseCache redis.ResponseStore
		if redisClient != nil {
			responseCache = redisClient
		}
		handler = routes.NewRouter(cfg, logg, bus, readiness, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), responseCache)
	}

	service, err := NewService(ServiceParams{
		Config:       cfg,
		Logger:       logg,
		Bus:          bus,
		Dependencies: deps,
		Receive:      receive,
		Handler:      handler,
	})
	if err != nil {
		logg.Error(bootCtx, "failed to create event bus service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(bootCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	logg.Info(ctx, "starting event bus")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "event bus stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "event bus shutting down gracefully")
}

func needsRedis(cfg *config.Config) bool {
	bus := cfg.EventBus
	return (bus.PersistenceEnabled && strings.EqualFold(bus.StoreDriver, config.StoreDriverRedis)) ||
		strings.EqualFold(bus.Channel, config.ChannelRedis) ||
		cfg.Redis.Configured()
}

// buildStore returns nil when persistence is disabled.
func buildStore(
	ctx context.Context,
	cfg *config.Config,
	logg *logger.Logger,
	m *metrics.EventBusMetrics,
	redisClient *redis.Client,
	deps map[string]pinger,
) (eventstore.Store, error) {
	if !cfg.EventBus.PersistenceEnabled {
		logg.Warn(ctx, "event persistence disabled")
		return nil, nil
	}

	switch strings.ToLower(cfg.EventBus.StoreDriver) {
	case config.StoreDriverRedis:
		if redisClient == nil {
			return nil, errors.New("redis client required for the redis store")
		}
		return eventstore.NewKVStore(redisClient, logg, eventstore.KVOptions{
			Retention: cfg.EventBus.RetentionTTL(),
			Metrics:   m,
		}), nil

	case config.StoreDriverSQL:
		dbClient, err := db.New(ctx, cfg.DB, logg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap database: %w", err)
		}
		if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
			_ = dbClient.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		deps["database"] = dbClient
		return eventstore.NewSQLStore(dbClient.DB()), nil

	case config.StoreDriverMemory:
		return eventstore.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.EventBus.StoreDriver)
}

func closeResource(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, fmt.Sprintf("error closing %s", name), err)
	}
}
