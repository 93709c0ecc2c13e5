// Package appfs embeds the files shipped inside the binaries.
package appfs

import "embed"

// FS holds the goose SQL migrations, under "migrations", and the demo school data, under "demo".
//
//go:embed migrations/*.sql demo/*.yaml
var FS embed.FS
