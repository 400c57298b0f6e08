// Command orders-service places orders over HTTP and relays the resulting
// outbox records to the configured broker.
package main

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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/velmie/txoutbox"
	"github.com/velmie/txoutbox/breaker"
	"github.com/velmie/txoutbox/codec"
	"github.com/velmie/txoutbox/internal/orders"
	"github.com/velmie/txoutbox/telemetry"
)

const httpShutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "orders-service: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	zapLogger, err := newZapLogger(cfg.logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = zapLogger.Sync() }()
	logger := newSlogLogger(zapLogger.Core(), cfg.serviceName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := setupTracing(ctx, cfg)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracer shutdown failed", "err", err)
		}
	}()

	workCodec, registry, err := newRegistry(cfg)
	if err != nil {
		return err
	}

	store, err := openStorage(ctx, cfg, workCodec, logger)
	if err != nil {
		return err
	}
	defer store.close()

	brk, err := openBroker(cfg, workCodec, logger)
	if err != nil {
		return err
	}
	defer brk.close()

	checks := []readyCheck{store.ready, brk.ready}
	publisher := guardPublisher(cfg, brk.publisher, logger, &checks)
	dispatcherOpts, closeGuard, err := dispatcherOptions(cfg, logger, &checks)
	if err != nil {
		return err
	}
	defer closeGuard()

	dispatcher := outbox.NewDispatcher(store.consumer, registry, telemetry.NewTracingPublisher(publisher, nil), dispatcherOpts...)

	mux := newBaseMux(checks...)
	orders.NewHandler(store.orders, logger).Register(mux)
	srv := &http.Server{
		Addr:              ":" + cfg.httpPort,
		Handler:           otelhttp.NewHandler(mux, cfg.serviceName),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "err", err)
		}
		logger.Info("http server stopped")
		return nil
	})

	return g.Wait()
}

// newRegistry returns the codec used to capture records and a registry that
// decodes both JSON and, when selected, msgpack payloads.
func newRegistry(cfg serviceConfig) (outbox.Codec, *outbox.Registry, error) {
	var workCodec outbox.Codec = outbox.JSONCodec{}
	if cfg.contentType == contentMsgpack {
		workCodec = codec.Msgpack{}
	}

	registry := outbox.NewRegistry(codec.Msgpack{})
	if err := orders.RegisterEvents(registry); err != nil {
		return nil, nil, err
	}
	if err := registry.Verify(orders.Kinds()...); err != nil {
		return nil, nil, err
	}

	return workCodec, registry, nil
}

// guardPublisher wraps the broker publisher in a circuit breaker when enabled.
func guardPublisher(cfg serviceConfig, pub outbox.Publisher, logger *slog.Logger, checks *[]readyCheck) outbox.Publisher {
	if !cfg.breaker {
		return pub
	}

	guarded := breaker.NewPublisher(pub,
		breaker.WithName(cfg.broker),
		breaker.WithConsecutiveFailures(uint32(cfg.breakerFailures)),
		breaker.WithOpenTimeout(cfg.breakerTimeout),
		breaker.WithLogger(logger),
	)
	*checks = append(*checks, readyCheck{name: "publisher-circuit", check: guarded.Ready})

	return guarded
}

func dispatcherOptions(cfg serviceConfig, logger *slog.Logger, checks *[]readyCheck) ([]outbox.DispatcherOption, func(), error) {
	metrics, err := telemetry.NewMetrics(
		otel.Meter(telemetry.ScopeName),
		attribute.String("outbox.table", cfg.outboxTable),
		attribute.String("outbox.driver", cfg.databaseDriver),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("outbox metrics: %w", err)
	}

	opts := []outbox.DispatcherOption{
		outbox.WithLogger(logger),
		outbox.WithMetrics(metrics),
		outbox.WithBatchSize(cfg.batchSize),
		outbox.WithPollInterval(cfg.pollInterval),
		outbox.WithShutdownTimeout(cfg.shutdownTimeout),
		outbox.WithPublishTimeout(cfg.publishTimeout),
		outbox.WithPendingInterval(cfg.pendingInterval),
	}

	if !cfg.cycleLock {
		return opts, func() {}, nil
	}

	guard, check, closeGuard, err := openCycleLock(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	*checks = append(*checks, check)

	return append(opts, outbox.WithCycleGuard(guard)), closeGuard, nil
}
