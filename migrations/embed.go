// Package migrations embeds the inventory schema into the binary.
package migrations

import "embed"

//go:embed *.sql
var files embed.FS

// FS holds the *.up.sql and *.down.sql files at its root, ready for
// database.DB.Migrate.
var FS = files
