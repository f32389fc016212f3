package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wilhg/vault/pkg/api"
	"github.com/wilhg/vault/pkg/config"
	"github.com/wilhg/vault/pkg/export"
	"github.com/wilhg/vault/pkg/mcpserver"
	"github.com/wilhg/vault/pkg/metrics"
	votel "github.com/wilhg/vault/pkg/otel"
	"github.com/wilhg/vault/pkg/snapshot"
	"github.com/wilhg/vault/pkg/store"
	"github.com/wilhg/vault/pkg/store/entstore"
	"github.com/wilhg/vault/pkg/store/memory"
	"github.com/wilhg/vault/pkg/todo"
	"github.com/wilhg/vault/pkg/vault"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

const shutdownTimeout = 10 * time.Second

func main() {
	var showVersion bool
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("vault %s (commit=%s, date=%s)\n", version, commit, date)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("vault stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	shutdownTracing, err := votel.Init(ctx, votel.Config{
		ServiceName:    "vault",
		ServiceVersion: version,
		Environment:    string(cfg.Environment),
		UseStdout:      cfg.OTelStdout,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	st, err := openStore(ctx, cfg.DatabaseURL, cfg.StoreConnectTimeout, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	collector := metrics.NewCollector("vault")
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           buildHandler(cfg, st, logger, collector),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr), zap.String("environment", string(cfg.Environment)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// buildHandler assembles the service graph behind the HTTP surface.
func buildHandler(cfg *config.Config, st store.RecordStore, logger *zap.Logger, collector *metrics.Collector) http.Handler {
	svc := vault.New(st,
		vault.WithLogger(logger),
		vault.WithMetrics(collector),
		vault.WithSnapshotWriter(snapshot.New(st,
			snapshot.WithDir(cfg.BackupDir),
			snapshot.WithLogger(logger),
			snapshot.WithMetrics(collector),
		)),
		vault.WithExporter(export.New(st,
			export.WithDir(cfg.ExportDir),
			export.WithLogger(logger),
			export.WithMetrics(collector),
		)),
	)
	todos := todo.New(cfg.TodoAPIURL, todo.WithLogger(logger), todo.WithMetrics(collector))

	opts := []api.Option{api.WithLogger(logger), api.WithMetrics(collector)}
	if cfg.MCPEnabled {
		srv := mcpserver.New(svc, mcpserver.WithVersion(version), mcpserver.WithLogger(logger))
		opts = append(opts, api.WithMCP(mcpserver.Handler(srv)))
	}
	return api.NewServer(svc, todos, opts...).Handler()
}

// openStore connects to the record store, retrying with exponential backoff
// until timeout. Malformed URLs fail immediately.
func openStore(ctx context.Context, databaseURL string, timeout time.Duration, logger *zap.Logger) (store.RecordStore, error) {
	if strings.EqualFold(databaseURL, "memory:") {
		logger.Warn("using in-memory record store; data is lost on exit")
		return memory.New(), nil
	}
	connect := func() (*entstore.Store, error) {
		st, err := entstore.Open(ctx, databaseURL)
		if err != nil {
			if errors.Is(err, store.ErrUnavailable) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
		return st, nil
	}
	st, err := backoff.Retry(ctx, connect,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(timeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("record store not ready, retrying", zap.Error(err), zap.Duration("next", next))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect record store: %w", err)
	}
	logger.Info("record store connected")
	return st, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
