package repository

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrations returns the postgres schema migrations in goose format.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}
