// Package migrations embeds the PostgreSQL schema for the catalog table.
package migrations

import "embed"

// FS holds the numbered up/down migration files.
//
//go:embed *.sql
var FS embed.FS
