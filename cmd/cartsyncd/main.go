// Command cartsyncd launches the cart price-reconciliation daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sourcegraph/conc"

	"github.com/printforge/cartsync/internal/bus/cartbus"
	"github.com/printforge/cartsync/internal/config"
	"github.com/printforge/cartsync/internal/editor"
	"github.com/printforge/cartsync/internal/journal"
	"github.com/printforge/cartsync/internal/observability"
	"github.com/printforge/cartsync/internal/reconcile"
	"github.com/printforge/cartsync/internal/storefront"
	"github.com/printforge/cartsync/internal/telemetry"
)

const (
	daemonLoggerPrefix           = "cartsync "
	shutdownTimeout              = 30 * time.Second
	controlServerShutdownTimeout = 5 * time.Second
	lifecycleShutdownTimeout     = 10 * time.Second
	telemetryShutdownTimeout     = 5 * time.Second
	controlReadHeaderTimeout     = 5 * time.Second
)

func main() {
	cfgPath, debug := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	logger := log.New(os.Stdout, daemonLoggerPrefix, log.LstdFlags|log.Lmicroseconds)
	observability.SetLogger(observability.NewStdLogger(logger, debug))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	logger.Printf("configuration initialised: storefront=%s feeSync=%v details=%v journal=%v",
		cfg.Storefront.BaseURL, cfg.FeeSyncEnabled(), cfg.DetailsEnabled(), cfg.Journal.DSN != "")

	meterProvider, telemetryShutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatalf("initialize telemetry: %v", err)
	}
	observability.SetMetrics(telemetry.NewMetrics(meterProvider))
	if cfg.Telemetry.OTLPEndpoint != "" {
		logger.Printf("telemetry initialized: endpoint=%s service=%s", cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
	} else {
		logger.Print("telemetry disabled")
	}

	bus := cartbus.NewMemoryBus(cartbus.MemoryConfig{BufferSize: cfg.Bus.BufferSize})

	cart, err := storefront.NewClient(cfg.Storefront)
	if err != nil {
		logger.Fatalf("initialise storefront client: %v", err)
	}

	var details reconcile.DetailsFetcher
	if cfg.DetailsEnabled() {
		fetcher, err := editor.NewFetcher(cfg.Editor, cfg.Storefront.Shop)
		if err != nil {
			logger.Fatalf("initialise editor fetcher: %v", err)
		}
		details = fetcher
	}

	store, pool, err := newJournalStore(ctx, cfg.Journal)
	if err != nil {
		logger.Fatalf("initialise journal: %v", err)
	}

	engine, err := reconcile.NewEngine(reconcile.EngineConfig{
		FeeVariantID: cfg.Reconcile.FeeVariantID,
		Debounce:     cfg.Reconcile.Debounce,
		FetchWorkers: cfg.Reconcile.FetchWorkers,
	}, cart, details, bus, store)
	if err != nil {
		logger.Fatalf("initialise engine: %v", err)
	}

	var lifecycle conc.WaitGroup

	lifecycle.Go(func() {
		if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Printf("engine stopped: %v", err)
		}
	})

	if cfg.Storefront.FeedURL != "" {
		feed := storefront.NewFeed(cfg.Storefront.FeedURL, bus)
		lifecycle.Go(func() {
			if err := feed.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Printf("cart feed stopped: %v", err)
			}
		})
		logger.Printf("cart feed subscribing to %s", cfg.Storefront.FeedURL)
	}

	controlServer := &http.Server{
		Addr:              cfg.Reconcile.ControlAddr,
		Handler:           reconcile.NewControlHTTPHandler(bus, engine, store),
		ReadHeaderTimeout: controlReadHeaderTimeout,
	}
	lifecycle.Go(func() {
		if err := controlServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("control server: %v", err)
		}
	})
	logger.Printf("control API listening on %s", controlServer.Addr)

	// Kick an initial pass so the cart converges without waiting for events.
	if err := engine.RunPass(ctx); err != nil {
		logger.Printf("initial reconciliation pass failed: %v", err)
	}

	logger.Print("cartsync started; awaiting shutdown signal")
	<-ctx.Done()
	logger.Print("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	shutdownStart := time.Now()
	performGracefulShutdown(shutdownCtx, logger, gracefulShutdownConfig{
		server:     controlServer,
		mainCancel: cancel,
		lifecycle:  &lifecycle,
		bus:        bus,
		pool:       pool,
		telemetry:  telemetryShutdown,
	})

	logger.Printf("shutdown completed in %v", time.Since(shutdownStart))
}

func parseFlags() (string, bool) {
	cfgPath := flag.String("config", "", "Path to application configuration file (optional)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()
	return *cfgPath, *debug
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newJournalStore(ctx context.Context, cfg config.JournalConfig) (journal.Store, *pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return journal.NewMemoryStore(), nil, nil
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("journal pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("journal ping: %w", err)
	}
	return journal.NewPostgresStore(pool), pool, nil
}

type gracefulShutdownConfig struct {
	server     *http.Server
	mainCancel context.CancelFunc
	lifecycle  *conc.WaitGroup
	bus        cartbus.Bus
	pool       *pgxpool.Pool
	telemetry  func(context.Context) error
}

func performGracefulShutdown(ctx context.Context, logger *log.Logger, cfg gracefulShutdownConfig) {
	shutdownStep := func(name string, timeout time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		logger.Printf("shutdown: %s...", name)
		if err := fn(stepCtx); err != nil {
			logger.Printf("shutdown: %s failed: %v", name, err)
		} else {
			logger.Printf("shutdown: %s completed", name)
		}
	}

	if cfg.server != nil {
		shutdownStep("stopping control server", controlServerShutdownTimeout, func(stepCtx context.Context) error {
			return cfg.server.Shutdown(stepCtx)
		})
	}

	logger.Print("shutdown: cancelling main context")
	if cfg.mainCancel != nil {
		cfg.mainCancel()
	}

	if cfg.lifecycle != nil {
		shutdownStep("waiting for lifecycle goroutines", lifecycleShutdownTimeout, func(stepCtx context.Context) error {
			done := make(chan struct{})
			go func() {
				cfg.lifecycle.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-stepCtx.Done():
				return fmt.Errorf("timeout waiting for goroutines: %w", stepCtx.Err())
			}
		})
	}

	if cfg.bus != nil {
		cfg.bus.Close()
	}
	if cfg.pool != nil {
		cfg.pool.Close()
	}

	if cfg.telemetry != nil {
		shutdownStep("shutting down telemetry", telemetryShutdownTimeout, func(stepCtx context.Context) error {
			return cfg.telemetry(stepCtx)
		})
	}
}
