package pgutil

import (
	"context"
	"testing"
	"time"

	"github.com/chainsafe/bridge-tracker/pkg/config"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
)

// SetupTestDB starts a throwaway PostgreSQL container and connects to it. The returned
// function closes the pool and removes the container.
func SetupTestDB(t *testing.T) (*bun.DB, func()) {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("tracker_test"),
		postgres.WithUsername("tracker"),
		postgres.WithPassword("tracker"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	terminate := func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	host, err := container.Host(ctx)
	if err != nil {
		terminate()
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		terminate()
		t.Fatalf("failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		Host:     host,
		Port:     port.Int(),
		User:     "tracker",
		Password: "tracker",
		Database: "tracker_test",
		SSLMode:  "disable",
	}

	// the port may be mapped before postgres accepts TCP connections
	var db *bun.DB
	deadline := time.Now().Add(15 * time.Second)
	for backoff := 100 * time.Millisecond; ; backoff *= 2 {
		db, err = ConnectDB(ctx, cfg)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			terminate()
			t.Fatalf("failed to connect to test database: %v", err)
		}
		time.Sleep(backoff)
	}

	return db, func() {
		_ = db.Close()
		terminate()
	}
}

func queryExists(t *testing.T, db *bun.DB, query string, args ...any) bool {
	t.Helper()
	var exists bool
	if err := db.NewSelect().ColumnExpr("EXISTS ("+query+")", args...).Scan(context.Background(), &exists); err != nil {
		t.Fatalf("catalog query failed: %v", err)
	}
	return exists
}

const tableQuery = "SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = ?"

// AssertTableExists fails t unless table is in the public schema.
func AssertTableExists(t *testing.T, db *bun.DB, table string) {
	t.Helper()
	if !queryExists(t, db, tableQuery, table) {
		t.Errorf("table %s missing", table)
	}
}

// AssertTableNotExists fails t if table is in the public schema.
func AssertTableNotExists(t *testing.T, db *bun.DB, table string) {
	t.Helper()
	if queryExists(t, db, tableQuery, table) {
		t.Errorf("table %s still present", table)
	}
}

// AssertIndexExists fails t unless the named index exists.
func AssertIndexExists(t *testing.T, db *bun.DB, index string) {
	t.Helper()
	if !queryExists(t, db, "SELECT 1 FROM pg_indexes WHERE schemaname = 'public' AND indexname = ?", index) {
		t.Errorf("index %s missing", index)
	}
}
