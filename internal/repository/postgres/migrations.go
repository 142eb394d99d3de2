package postgres

import "embed"

// migrations holds the schema for the remote cart record store.
//
//go:embed migrations/*.sql
var migrations embed.FS
