package storage

import (
	"database/sql"
	_ "embed"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/fedeforai/frostdesk-core-sub003/internal/errors"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

var sqliteDialect = dialect{
	name:       "sqlite",
	migrations: sqliteMigrations,
	isUniqueViolation: func(err error) bool {
		return strings.Contains(err.Error(), "UNIQUE constraint failed")
	},
}

// NewSQLiteStorage opens (or creates) a single-file database.
// Writes are serialized through one connection.
func NewSQLiteStorage(path string, logger *zap.Logger) (*SQLStorage, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.NewPersistence("open sqlite", err)
	}
	db.SetMaxOpenConns(1)

	s, err := newSQLStorage(db, sqliteDialect, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Opened sqlite database", zap.String("path", path))
	return s, nil
}
