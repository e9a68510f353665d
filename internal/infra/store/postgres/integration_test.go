//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Salako07/WKL/internal/domain/execution"
	"github.com/Salako07/WKL/internal/ports"
)

func TestStoreAgainstPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Postgres integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("codexec"),
		tcpostgres.WithUsername("codexec"),
		tcpostgres.WithPassword("codexec"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		t.Skipf("skipping Postgres integration test (requires Docker): %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	store, err := Open(ctx, dsn, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ended := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	code := int64(2)
	run := execution.Run{
		ID:         "run-pg",
		Submission: execution.Submission{EnvironmentID: "gcc13", Source: "int main(){return 2;}", Owner: "learner-1"},
		State:      execution.StateCompleted,
		CreatedAt:  ended.Add(-time.Second),
		EndedAt:    ended,
		Result:     &execution.Result{State: execution.StateCompleted, ExitCode: &code},
	}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := store.LoadRun(ctx, "run-pg")
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if got.Result == nil || got.Result.ExitCode == nil || *got.Result.ExitCode != 2 {
		t.Fatalf("unexpected result %+v", got.Result)
	}

	runs, err := store.ListRunsByOwner(ctx, "learner-1", 10)
	if err != nil {
		t.Fatalf("ListRunsByOwner: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected one run, got %d", len(runs))
	}

	if _, err := store.LoadRun(ctx, "missing"); !errors.Is(err, ports.ErrRunNotStored) {
		t.Fatalf("expected ErrRunNotStored, got %v", err)
	}
}
