// Package migrations embeds the SQL schema migrations so the binary can
// initialize or upgrade a database without shipping loose files. Each
// supported backend has its own dialect directory; stores select theirs
// with fs.Sub.
package migrations

import "embed"

//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS
