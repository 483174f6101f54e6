package postgres

import (
	"database/sql"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/lib/pq"

	"github.com/bryanwahyu/equity-ledger/internal/infra/db/migrations"
	"github.com/bryanwahyu/equity-ledger/internal/infra/db/sqlstore"
)

// unique_violation
const codeUniqueViolation = "23505"

//go:embed migrations/*.sql
var migrationFiles embed.FS

var Migrations = migrations.Set{
	Name:  "postgres",
	Files: migrationFiles,
	Dir:   "migrations",
	Open: func(db *sql.DB) (database.Driver, error) {
		return migratepg.WithInstance(db, &migratepg.Config{})
	},
}

var Dialect = sqlstore.Dialect{
	Name:              "postgres",
	Numbered:          true,
	IsUniqueViolation: isUniqueViolation,
}

func NewStore(db *sql.DB) *sqlstore.Store {
	return sqlstore.New(db, Dialect)
}

func isUniqueViolation(err error) bool {
	var pe *pq.Error
	return errors.As(err, &pe) && string(pe.Code) == codeUniqueViolation
}
