package migrations

import "embed"

// FS contains embedded Postgres migrations for engine storage.
//
//go:embed *.sql
var FS embed.FS
