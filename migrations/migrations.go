// Package migrations embeds the schema migration files, one directory per
// supported database driver.
package migrations

import "embed"

//go:embed sqlite/*.sql
var Sqlite embed.FS

//go:embed postgres/*.sql
var Postgres embed.FS
