package sqlite

import (
	"database/sql"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4/database"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/mattn/go-sqlite3"

	"github.com/bryanwahyu/equity-ledger/internal/infra/db/migrations"
	"github.com/bryanwahyu/equity-ledger/internal/infra/db/sqlstore"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations is the embedded SQLite schema history.
var Migrations = migrations.Set{
	Name:  "sqlite3",
	Files: migrationFiles,
	Dir:   "migrations",
	Open: func(db *sql.DB) (database.Driver, error) {
		return migratesqlite.WithInstance(db, &migratesqlite.Config{})
	},
}

var Dialect = sqlstore.Dialect{
	Name:              "sqlite3",
	IsUniqueViolation: isUniqueViolation,
}

func NewStore(db *sql.DB) *sqlstore.Store {
	return sqlstore.New(db, Dialect)
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
