// Package migrations holds the SQL schema for the record store.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
