// Package migrations has the table and index helpers used by bun migrations, plus the
// command runner behind cmd/tracker/migrate.
package migrations

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

const usageText = `Usage: migrate [-config FILE] <init|up|down|status>

  init     create the bun_migrations bookkeeping tables
  up       apply every pending migration
  down     roll back the last applied group
  status   list applied and pending migrations

Flags:
`

// Usage prints the command help and exits with status 2.
func Usage() {
	fmt.Fprint(os.Stderr, usageText)
	flag.PrintDefaults()
	os.Exit(2)
}

// Exitf reports a failure and then the usage text.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	Usage()
}

func eachModel(models []any, fn func(model any) error) error {
	for _, model := range models {
		if err := fn(model); err != nil {
			return fmt.Errorf("%T: %w", model, err)
		}
	}
	return nil
}

// CreateSchema creates one table per model, skipping tables that already exist.
func CreateSchema(ctx context.Context, db bun.IDB, models ...any) error {
	return eachModel(models, func(model any) error {
		_, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		return err
	})
}

// DropTables drops the model tables with CASCADE.
func DropTables(ctx context.Context, db bun.IDB, models ...any) error {
	return eachModel(models, func(model any) error {
		_, err := db.NewDropTable().Model(model).IfExists().Cascade().Exec(ctx)
		return err
	})
}

// CreateModelIndexes adds a single-column index idx_<table>_<column> per column.
func CreateModelIndexes(ctx context.Context, db bun.IDB, model any, columns ...string) error {
	for _, column := range columns {
		name, err := indexName(db, model, column)
		if err != nil {
			return err
		}
		if _, err := db.NewCreateIndex().Model(model).Index(name).Column(column).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
	}
	return nil
}

// DropModelIndexes is the reverse of CreateModelIndexes.
func DropModelIndexes(ctx context.Context, db bun.IDB, model any, columns ...string) error {
	for _, column := range columns {
		name, err := indexName(db, model, column)
		if err != nil {
			return err
		}
		if _, err := db.NewDropIndex().Model(model).Index(name).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("drop %s: %w", name, err)
		}
	}
	return nil
}

func indexName(db bun.IDB, model any, column string) (string, error) {
	if model == nil {
		return "", fmt.Errorf("index on %q: nil model", column)
	}
	table := db.NewCreateIndex().Model(model).GetTableName()
	if table == "" {
		return "", fmt.Errorf("no table name for %T", model)
	}
	table = strings.NewReplacer(`"`, "", ".", "_").Replace(table)
	return "idx_" + table + "_" + column, nil
}

// RunMigrations executes a single migrate command. up and down hold the migration lock.
func RunMigrations(migrator *migrate.Migrator, args ...string) error {
	if len(args) == 0 {
		return fmt.Errorf("no command given")
	}
	ctx := context.Background()

	switch cmd := args[0]; cmd {
	case "init":
		if err := migrator.Init(ctx); err != nil {
			return err
		}
		log.Println("migration tables ready")
	case "up", "down":
		return locked(ctx, migrator, func() error {
			var (
				group *migrate.MigrationGroup
				err   error
			)
			if cmd == "up" {
				group, err = migrator.Migrate(ctx)
			} else {
				group, err = migrator.Rollback(ctx)
			}
			if err != nil {
				return err
			}
			if group.IsZero() {
				log.Printf("%s: nothing to do", cmd)
			} else {
				log.Printf("%s: %s", cmd, group)
			}
			return nil
		})
	case "status":
		ms, err := migrator.MigrationsWithStatus(ctx)
		if err != nil {
			return err
		}
		log.Printf("applied group: %s", ms.LastGroup())
		log.Printf("pending: %s", ms.Unapplied())
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func locked(ctx context.Context, migrator *migrate.Migrator, fn func() error) error {
	if err := migrator.Lock(ctx); err != nil {
		return fmt.Errorf("migration lock: %w", err)
	}
	defer func() {
		if err := migrator.Unlock(ctx); err != nil {
			log.Printf("migration unlock: %v", err)
		}
	}()
	return fn()
}
