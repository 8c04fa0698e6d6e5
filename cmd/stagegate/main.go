// Command stagegate runs the rollout coordination server: an HTTP API in
// front of the rollout workflow engine, backed by SQLite.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/stagegate/stagegate-server/internal/application"
	"github.com/stagegate/stagegate-server/internal/config"
	"github.com/stagegate/stagegate-server/internal/domain"
	"github.com/stagegate/stagegate-server/internal/infrastructure/httpapi"
	"github.com/stagegate/stagegate-server/internal/infrastructure/sqlite"
	"github.com/stagegate/stagegate-server/internal/infrastructure/syncworkflow"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "stagegate:", err)
		os.Exit(1)
	}
}

// passingHealth approves every gate. Wire a real metrics-backed evaluator
// here once one exists; until then health gating is pace control only.
type passingHealth struct{}

func (passingHealth) Snapshot(ctx context.Context, subject domain.SubjectID, targets []domain.Target) (domain.HealthSnapshot, error) {
	return domain.HealthSnapshot{SuccessRate: 1.0}, nil
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	db, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	rolloutRepo := &sqlite.RolloutRepo{DB: db}
	targetRepo := &sqlite.TargetRepo{DB: db}
	deployer := domain.LimitDeployer(&sqlite.RecordingDeployer{DB: db}, cfg.GlobalConcurrency)

	wf := &domain.RolloutWorkflow{
		Rollouts: rolloutRepo,
		Deployer: deployer,
		Health:   passingHealth{},
		Config: domain.RolloutWorkflowConfig{
			MaxConcurrency:  cfg.MaxConcurrency,
			DeployTimeout:   cfg.DeployTimeout,
			SnapshotTimeout: cfg.SnapshotTimeout,
			DeployRetries:   cfg.DeployRetries,
			RevertRetries:   cfg.RevertRetries,
		},
		Logger: logger,
	}

	engine := &syncworkflow.Engine{}
	runner, err := engine.RolloutRunner(wf)
	if err != nil {
		return fmt.Errorf("build rollout runner: %w", err)
	}

	rolloutSvc := application.NewRolloutService(rolloutRepo, domain.NewSubjectLocks(), runner, logger)
	targetSvc := &application.TargetService{Targets: targetRepo}

	api := &httpapi.Server{Rollouts: rolloutSvc, Targets: targetSvc, Logger: logger}
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
