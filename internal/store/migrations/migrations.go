// Package migrations embeds the SQLite schema applied by store.NewSQLiteStore
// and the migrate command.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
