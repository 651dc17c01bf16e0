package recoverydb

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/hereafterlabs/guardian-middleware/pkg/pgutil/migrations"
	"github.com/hereafterlabs/guardian-middleware/pkg/recoverystore"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		if err := migrations.CreateSchema(ctx, db, (*recoverystore.RecoveryKeyDao)(nil)); err != nil {
			return err
		}

		return migrations.CreateModelIndexes(ctx, db,
			(*recoverystore.RecoveryKeyDao)(nil), "recovery_id")
	}, func(ctx context.Context, db *bun.DB) error {
		return migrations.DropTables(ctx, db, (*recoverystore.RecoveryKeyDao)(nil))
	})
}
