package dbosworkflows_test

import (
	"context"
	"testing"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/stagegate/stagegate-server/internal/application"
	"github.com/stagegate/stagegate-server/internal/domain"
	"github.com/stagegate/stagegate-server/internal/infrastructure/dbosworkflows"
	"github.com/stagegate/stagegate-server/internal/infrastructure/sqlite"
)

func startPostgres(t *testing.T) string {
	t.Helper()

	// Ryuk (the reaper) requires a Docker bridge network that does not
	// exist on Podman. We handle cleanup via t.Cleanup instead.
	t.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("dbos_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get postgres connection string: %v", err)
	}
	return connStr
}

type healthyEvaluator struct{}

func (healthyEvaluator) Snapshot(ctx context.Context, subject domain.SubjectID, targets []domain.Target) (domain.HealthSnapshot, error) {
	return domain.HealthSnapshot{SuccessRate: 1.0}, nil
}

func TestRollout_DBOS(t *testing.T) {
	connStr := startPostgres(t)

	ctx := context.Background()

	dbosCtx, err := dbos.NewDBOSContext(ctx, dbos.Config{
		AppName:     "stagegate-dbos-test",
		DatabaseURL: connStr,
	})
	if err != nil {
		t.Fatalf("NewDBOSContext: %v", err)
	}

	db := sqlite.OpenTestDB(t)
	rolloutRepo := &sqlite.RolloutRepo{DB: db}
	deployer := &sqlite.RecordingDeployer{DB: db}

	wf := &domain.RolloutWorkflow{
		Rollouts: rolloutRepo,
		Deployer: deployer,
		Health:   healthyEvaluator{},
	}

	engine := &dbosworkflows.Engine{DBOSCtx: dbosCtx}
	runner, err := engine.RolloutRunner(wf)
	if err != nil {
		t.Fatalf("RolloutRunner: %v", err)
	}

	if err := dbos.Launch(dbosCtx); err != nil {
		t.Fatalf("dbos.Launch: %v", err)
	}
	t.Cleanup(func() { dbos.Shutdown(dbosCtx, 5*time.Second) })

	svc := application.NewRolloutService(rolloutRepo, domain.NewSubjectLocks(), runner, nil)

	targets := []domain.Target{
		{ID: "t1", Key: "cluster-1", Name: "a", Environment: domain.EnvStaging},
		{ID: "t2", Key: "cluster-2", Name: "b", Environment: domain.EnvProduction},
	}

	id, err := svc.Start(ctx, application.StartRolloutInput{
		Subject:         "search-service",
		TargetVersion:   "v2",
		PreviousVersion: "v1",
		Strategy: domain.Strategy{
			Type: domain.StrategyRolling,
			Rolling: &domain.RollingConfig{
				EvaluationWindow: 10 * time.Millisecond,
				Thresholds:       domain.HealthThresholds{SuccessRateMin: 0.95},
			},
		},
		Targets: targets,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := svc.Await(ctx, id); err != nil {
		t.Fatalf("Await: %v", err)
	}

	ro, err := svc.Status(ctx, id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if ro.Status != domain.RolloutCompleted {
		t.Fatalf("Status = %q (error %q), want %q", ro.Status, ro.ErrorMessage, domain.RolloutCompleted)
	}
	for _, target := range targets {
		version, err := deployer.AppliedVersion(ctx, "search-service", target.ID)
		if err != nil {
			t.Fatalf("AppliedVersion %s: %v", target.ID, err)
		}
		if version != "v2" {
			t.Errorf("target %s version = %q, want %q", target.ID, version, "v2")
		}
	}
}
