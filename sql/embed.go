// Package sql embeds the goose migrations for the Postgres token store.
package sql

import "embed"

//go:embed *.sql
var FS embed.FS
