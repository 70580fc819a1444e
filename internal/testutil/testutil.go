// Package testutil provides shared test infrastructure for integration tests
// that require a real PostgreSQL instance.
//
// Usage in TestMain:
//
//	func TestMain(m *testing.M) {
//	    tc := testutil.MustStartPostgres()
//	    defer tc.Terminate()
//	    testDB, _ = tc.NewTestDB(context.Background(), logger)
//	    os.Exit(m.Run())
//	}
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mc-bench/scoring-core/internal/storage"
	"github.com/mc-bench/scoring-core/migrations"
)

// TestContainer wraps a testcontainers container with a DSN for connecting.
type TestContainer struct {
	Container testcontainers.Container
	DSN       string
}

// MustStartPostgres starts a plain PostgreSQL container. Calls os.Exit(1) on
// failure (suitable for TestMain).
func MustStartPostgres() *TestContainer {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:17-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "scoring",
			"POSTGRES_PASSWORD": "scoring",
			"POSTGRES_DB":       "scoring",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: failed to start container: %v\n", err)
		os.Exit(1)
	}

	host, err := container.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: failed to get container host: %v\n", err)
		os.Exit(1)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: failed to get container port: %v\n", err)
		os.Exit(1)
	}

	dsn := fmt.Sprintf("postgres://scoring:scoring@%s:%s/scoring?sslmode=disable", host, port.Port())

	return &TestContainer{Container: container, DSN: dsn}
}

// NewTestDB creates a storage.DB connected to this container and runs all migrations.
func (tc *TestContainer) NewTestDB(ctx context.Context, logger *slog.Logger) (*storage.DB, error) {
	db, err := storage.New(ctx, tc.DSN, logger)
	if err != nil {
		return nil, fmt.Errorf("testutil: create DB: %w", err)
	}
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return nil, fmt.Errorf("testutil: run migrations: %w", err)
	}
	return db, nil
}

// Terminate stops and removes the container.
func (tc *TestContainer) Terminate() {
	_ = tc.Container.Terminate(context.Background())
}

// TestLogger returns a logger configured for test output (warns only).
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
