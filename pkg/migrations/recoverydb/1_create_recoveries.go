package recoverydb

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/hereafterlabs/guardian-middleware/pkg/pgutil/migrations"
	"github.com/hereafterlabs/guardian-middleware/pkg/recoverystore"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		if err := migrations.CreateSchema(ctx, db, (*recoverystore.RecoveryDao)(nil)); err != nil {
			return err
		}

		if err := migrations.CreateModelIndexes(ctx, db,
			(*recoverystore.RecoveryDao)(nil), "owner_id"); err != nil {
			return err
		}

		// One active recovery per wallet, case-insensitive.
		_, err := db.ExecContext(ctx,
			`CREATE UNIQUE INDEX IF NOT EXISTS uq_recoveries_active_wallet
			 ON recoveries (LOWER(wallet_address)) WHERE status = 'active'`)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		return migrations.DropTables(ctx, db, (*recoverystore.RecoveryDao)(nil))
	})
}
