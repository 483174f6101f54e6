package mysql

import (
	"database/sql"
	"embed"
	"errors"

	driver "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"

	"github.com/bryanwahyu/equity-ledger/internal/infra/db/migrations"
	"github.com/bryanwahyu/equity-ledger/internal/infra/db/sqlstore"
)

// ER_DUP_ENTRY
const errDupEntry = 1062

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations needs multiStatements=true on the DSN.
var Migrations = migrations.Set{
	Name:  "mysql",
	Files: migrationFiles,
	Dir:   "migrations",
	Open: func(db *sql.DB) (database.Driver, error) {
		return migratemysql.WithInstance(db, &migratemysql.Config{})
	},
}

var Dialect = sqlstore.Dialect{
	Name:              "mysql",
	IsUniqueViolation: isDuplicateEntry,
}

func NewStore(db *sql.DB) *sqlstore.Store {
	return sqlstore.New(db, Dialect)
}

func isDuplicateEntry(err error) bool {
	var me *driver.MySQLError
	return errors.As(err, &me) && me.Number == errDupEntry
}
