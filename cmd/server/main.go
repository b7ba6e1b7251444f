package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/gnan700/splitledger/internal/api"
	"github.com/gnan700/splitledger/internal/audit"
	"github.com/gnan700/splitledger/internal/cache"
	"github.com/gnan700/splitledger/internal/config"
	"github.com/gnan700/splitledger/internal/middleware"
	"github.com/gnan700/splitledger/internal/service"
	"github.com/gnan700/splitledger/internal/storage/sqlstore"
	"github.com/gnan700/splitledger/pkg/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	slog.Info("Storage initialized", "driver", store.Dialect())

	balances := openCache(ctx, cfg)
	if c, ok := balances.(io.Closer); ok {
		defer c.Close()
	}
	if _, local := balances.(*cache.Memory); local && store.Dialect() == "mysql" {
		slog.Warn("Balance cache is local to this instance; set REDIS_ADDR when several servers share the database")
	}
	svc := service.New(store, balances)

	if cfg.AuditSchedule != "" {
		c, err := audit.New(store, time.Minute).Start(cfg.AuditSchedule)
		if err != nil {
			return err
		}
		defer c.Stop()
	}

	mux := http.NewServeMux()
	api.NewHandler(svc).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := middleware.Logging(middleware.Metrics(middleware.CORS(cfg.CORSOrigin)(mux)))

	// h2c serves HTTP/2 without TLS alongside HTTP/1.1.
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "address", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openStore(cfg *config.Config) (*sqlstore.Store, error) {
	if cfg.DBDriver == "mysql" {
		return sqlstore.OpenMySQL(cfg.MySQLDSN)
	}
	return sqlstore.OpenSQLite(cfg.DBPath)
}

// openCache returns the Redis balance cache when configured and reachable,
// and the in-process cache otherwise.
func openCache(ctx context.Context, cfg *config.Config) cache.BalanceCache {
	if cfg.RedisAddr == "" {
		return cache.NewMemory()
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	r, err := cache.NewRedis(pingCtx, cfg.RedisAddr, cfg.CacheTTL)
	if err != nil {
		slog.Warn("Redis unavailable, using in-memory balance cache", "addr", cfg.RedisAddr, "error", err)
		return cache.NewMemory()
	}
	slog.Info("Redis balance cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.CacheTTL)
	return r
}
