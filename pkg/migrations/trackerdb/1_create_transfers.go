package trackerdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	mghelper "github.com/chainsafe/bridge-tracker/pkg/pgutil/migrations"
	"github.com/chainsafe/bridge-tracker/pkg/store"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating transfers table...")
		if err := mghelper.CreateSchema(ctx, db, &store.TransferDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &store.TransferDao{}, "terminal", "route", "updated_at")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping transfers table...")
		if err := mghelper.DropModelIndexes(ctx, db, &store.TransferDao{}, "terminal", "route", "updated_at"); err != nil {
			return err
		}
		return mghelper.DropTables(ctx, db, &store.TransferDao{})
	})
}
