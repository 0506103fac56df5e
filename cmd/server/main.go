// Command passvault-server starts the password vault HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/passvault/internal/auth"
	"github.com/and161185/passvault/internal/config"
	"github.com/and161185/passvault/internal/limiter"
	"github.com/and161185/passvault/internal/repository"
	"github.com/and161185/passvault/internal/repository/backend"
	"github.com/and161185/passvault/internal/repository/postgres"
	httpserver "github.com/and161185/passvault/internal/server/http"
	"github.com/and161185/passvault/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const shutdownTimeout = 10 * time.Second

// main loads configuration, opens the selected storage backend and serves the API
// until SIGINT or SIGTERM.
func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
		zap.String("database", cfg.DatabaseType),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	repo, err := backend.New(cfg.Backend(), logger)
	if err != nil {
		return err
	}
	if err := repo.Initialize(ctx); err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := repo.Close(cctx); err != nil {
			logger.Warn("close repository", zap.Error(err))
		}
	}()

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTAlgorithm, cfg.JWTExpiryHours)
	if err != nil {
		return err
	}

	lim := loginLimiter(repo, cfg.Limiter())
	authSvc := service.NewAuthService(repo, tokens, lim, cfg.HashConcurrency, logger)
	vaultSvc := service.NewVaultService(repo, cfg.MaxPasswordEntries)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpserver.New(authSvc, vaultSvc, logger, cfg.CORSOrigins).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if cfg.TLSCert != "" {
			logger.Info("listening (TLS)", zap.String("addr", cfg.Addr))
			err = srv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			logger.Info("listening", zap.String("addr", cfg.Addr))
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		pruneLoop(gctx, lim, cfg.LoginWindow, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// loginLimiter shares the Postgres pool when there is one so lockouts survive restarts
// and span replicas. Other backends get a process-local limiter.
func loginLimiter(repo repository.Repository, cfg limiter.Config) limiter.Limiter {
	if pg, ok := repo.(*postgres.Repository); ok {
		return limiter.NewPG(pg.DB().Pool, cfg)
	}
	return limiter.NewMemory(cfg)
}

// pruneLoop drops stale lockout buckets once per window until ctx ends.
func pruneLoop(ctx context.Context, lim limiter.Limiter, every time.Duration, logger *zap.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := lim.Prune(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("prune login limiter", zap.Error(err))
			}
		}
	}
}
