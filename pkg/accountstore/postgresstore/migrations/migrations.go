// Package migrations embeds the postgresstore schema migration files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
