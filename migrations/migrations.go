// Package migrations embeds the schema so the migrate binary ships without the sql files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
