// Package recoverydb holds migrations for the recovery database
package recoverydb

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations collection to be used by the migrator
var Migrations = migrate.NewMigrations()
