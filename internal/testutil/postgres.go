package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/emvidros/atendente/db"
	"github.com/emvidros/atendente/internal/postgres"
)

// PostgresHandle wraps a disposable PostgreSQL instance with pgvector and the
// schema applied.
type PostgresHandle struct {
	Pool    *pgxpool.Pool
	ConnStr string
}

// StartPostgres spins up a pgvector-enabled PostgreSQL container, applies the
// embedded migrations, and registers cleanup with t. Skipped under -short.
func StartPostgres(t *testing.T) *PostgresHandle {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"pgvector/pgvector:pg16",
		tcpostgres.WithDatabase("atendente_test"),
		tcpostgres.WithUsername("atendente_test"),
		tcpostgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	if err := db.Migrate(connStr, NewNopLogger()); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}

	pool, err := postgres.Connect(ctx, connStr)
	if err != nil {
		t.Fatalf("connecting pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return &PostgresHandle{Pool: pool, ConnStr: connStr}
}
