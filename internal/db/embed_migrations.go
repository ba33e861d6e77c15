package db

import "embed"

// MigrationFS holds the SQL migrations applied by cmd/migrate and, when enabled, at
// server start.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
