// Command cacheworker hosts the async side of the cache: it drains
// AsyncEvents (dispatched by Engine.Invalidate/Refresh in ASYNC mode) and
// routes each one back to the owning domain's Engine via
// Engine.HandleAsyncEvent. Host applications wire their own domains by
// calling registry.Register before Start; this binary wires one example
// domain end to end to demonstrate the shape.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"

	"cachecore/application/engine"
	"cachecore/application/events"
	"cachecore/application/ports"
	"cachecore/domain/jitter"
	"cachecore/domain/key"
	"cachecore/infrastructure/config"
	cacheeventbridge "cachecore/infrastructure/messaging/eventbridge"
	"cachecore/infrastructure/messaging/workerpool"
	"cachecore/infrastructure/observability"
	dynamostore "cachecore/infrastructure/persistence/dynamodb"
	"cachecore/infrastructure/resilience"
)

// exampleDomain is the cache domain this binary wires end to end. A host
// application registers one Engine per domain it owns, the same way; this
// name exists only so registry.Register below has a real target.
const exampleDomain = "example-domain"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		logger.Fatal("failed to load AWS configuration", zap.Error(err))
	}

	var store ports.StoreAdapter = dynamostore.New(awsdynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable, logger)
	if cfg.EnableCircuitBreaker {
		store = resilience.NewCircuitBreakerStore(store, "cache-store", resilience.DefaultCircuitBreakerConfig(), logger)
	}

	var metrics ports.Metrics = ports.NoopMetrics{}
	if cfg.EnableMetrics {
		metrics = observability.Default()
	}

	registry := events.NewRegistry(logger)

	var bus ports.EventBus
	switch cfg.EventBusMode {
	case "eventbridge":
		ebClient := awseventbridge.NewFromConfig(awsCfg)
		bus = cacheeventbridge.New(ebClient, cfg.EventBusName, logger)
	default:
		pool := workerpool.New(registry, logger, cfg.WorkerPoolQueueDepth, cfg.WorkerPoolWorkers)
		bus = pool
	}

	// Every cache domain the host application owns gets its own Engine,
	// built over the shared store/metrics/bus, and registered here so
	// events.Registry.Handle has somewhere to route its AsyncEvents.
	// Replace exampleLoader with the domain's real ports.Loader.
	exampleLoader := ports.LoaderFunc(func(ctx context.Context, k key.Key) (interface{}, error) {
		return nil, fmt.Errorf("%s: no loader wired; host applications must supply their own ports.Loader", exampleDomain)
	})
	exampleEngine := engine.New(store, exampleLoader, jitter.New(cfg.Policy.JitterPercent),
		engine.WithMetrics(metrics),
		engine.WithEventBus(bus),
		engine.WithLogger(logger),
		engine.WithTier4Defaults(cfg.Policy.Tier4PauseMs, cfg.Policy.Tier4MaxAttempts),
		engine.WithLockTTL(cfg.Policy.LockTTLSec),
	)
	registry.Register(exampleDomain, ports.EventHandlerFunc(exampleEngine.HandleAsyncEvent))

	switch pool := bus.(type) {
	case *workerpool.Bus:
		pool.Start()
		defer pool.Stop()
	default:
		consumer := cacheeventbridge.NewConsumer(registry, logger)
		_ = consumer // wired into the host's EventBridge-target handler (Lambda or SQS poller)
	}

	logger.Info("cache worker started",
		zap.String("environment", cfg.Environment),
		zap.String("eventBusMode", cfg.EventBusMode),
		zap.String("registeredDomains", registry.Stats()),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down cache worker")
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()
	cancel()

	select {
	case <-shutdownCtx.Done():
		logger.Warn("cache worker shutdown timeout exceeded")
	case <-time.After(2 * time.Second):
		logger.Info("cache worker stopped gracefully")
	}
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
