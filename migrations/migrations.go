// Package migrations holds the SQL applied to the PostgreSQL backend.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
