package migrations

import "embed"

// FS contains embedded SQLite migrations for devbackend storage.
//
//go:embed *.sql
var FS embed.FS
