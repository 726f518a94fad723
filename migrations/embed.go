// Package migrations embeds the SQL schema migrations. The statements
// stay within the subset Postgres and SQLite both accept.
package migrations

import "embed"

// FS holds the numbered up/down migration files
//
//go:embed *.sql
var FS embed.FS
