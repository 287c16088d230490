// Package migrations embeds the goose-format SQL migrations so the binary can apply its
// own schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
