// Package migrations embeds the versioned schema of the warehouse tables and the
// run history, one directory per database type.
package migrations

import (
	"embed"
	"io/fs"

	"github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

//go:embed resource
var rawMigrationFS embed.FS

// ProvideMigrationsFS returns the embedded migrations rooted at the per-dialect
// directories ("sqlite", "postgres", "mysql").
func ProvideMigrationsFS() fs.FS {
	subFS, err := fs.Sub(rawMigrationFS, "resource")
	if err != nil {
		logger.Fatalf("Failed to create subdirectory for migration FS: %v", err)
	}
	return subFS
}
