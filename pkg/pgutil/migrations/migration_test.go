package migrations

import (
	"context"
	"testing"

	"github.com/uptrace/bun"

	"github.com/chainsafe/bridge-tracker/pkg/config"
	"github.com/chainsafe/bridge-tracker/pkg/pgutil"
)

type checkpointDao struct {
	bun.BaseModel `bun:"table:test_checkpoints"`
	ID            int64  `bun:",pk,autoincrement"`
	Chain         string `bun:",notnull,type:varchar(64)"`
	Block         int64  `bun:",nullzero"`
}

func TestConnectDB_InvalidHost(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host:     "invalid-host-that-does-not-exist",
		Port:     5432,
		User:     "test",
		Password: "test",
		Database: "test",
		SSLMode:  "disable",
	}

	db, err := pgutil.ConnectDB(context.Background(), cfg)
	if err == nil {
		db.Close()
		t.Error("ConnectDB() should fail with invalid host")
	}
}

func TestCreateAndDropSchema(t *testing.T) {
	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := CreateSchema(ctx, db, &checkpointDao{}); err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}
	pgutil.AssertTableExists(t, db, "test_checkpoints")

	if err := CreateSchema(ctx, db, &checkpointDao{}); err != nil {
		t.Errorf("CreateSchema() second call failed: %v", err)
	}

	if err := DropTables(ctx, db, &checkpointDao{}); err != nil {
		t.Fatalf("DropTables() failed: %v", err)
	}
	pgutil.AssertTableNotExists(t, db, "test_checkpoints")

	if err := DropTables(ctx, db, &checkpointDao{}); err != nil {
		t.Errorf("DropTables() second call failed: %v", err)
	}
}

func TestModelIndexes(t *testing.T) {
	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := CreateSchema(ctx, db, &checkpointDao{}); err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}
	if err := CreateModelIndexes(ctx, db, &checkpointDao{}, "chain", "block"); err != nil {
		t.Fatalf("CreateModelIndexes() failed: %v", err)
	}
	pgutil.AssertIndexExists(t, db, "idx_test_checkpoints_chain")
	pgutil.AssertIndexExists(t, db, "idx_test_checkpoints_block")

	if err := DropModelIndexes(ctx, db, &checkpointDao{}, "chain"); err != nil {
		t.Fatalf("DropModelIndexes() failed: %v", err)
	}
	var exists bool
	err := db.NewSelect().
		ColumnExpr("EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = ?)", "idx_test_checkpoints_chain").
		Scan(ctx, &exists)
	if err != nil {
		t.Fatalf("failed to query indexes: %v", err)
	}
	if exists {
		t.Errorf("index idx_test_checkpoints_chain should be dropped")
	}
}

func TestIndexName_NilModel(t *testing.T) {
	if _, err := indexName(nil, nil, "chain"); err == nil {
		t.Fatal("expected error for nil model")
	}
}
