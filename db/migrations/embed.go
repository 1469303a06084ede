// Package dbmigrations exposes embedded SQL migrations for cartsync binaries.
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations bundled into cartsync binaries.
//
//go:embed *.sql
var Files embed.FS
