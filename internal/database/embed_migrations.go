package database

import "embed"

// MigrationFS embeds the versioned SQL migrations applied by cmd/migrate for Postgres
// deployments that use the native pgx session store.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
