package storage

import (
	"database/sql"
	_ "embed"
	stderrors "errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/fedeforai/frostdesk-core-sub003/internal/errors"
)

//go:embed migrations.sql
var postgresMigrations string

type DatabaseConfig struct {
	Driver       string // memory, postgres or sqlite
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	SSLMode      string
	Path         string // sqlite file
	MaxOpenConns int
	MaxIdleConns int
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

var postgresDialect = dialect{
	name:           "postgres",
	numberedParams: true,
	migrations:     postgresMigrations,
	isUniqueViolation: func(err error) bool {
		var pqErr *pq.Error
		return stderrors.As(err, &pqErr) && pqErr.Code == "23505"
	},
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*SQLStorage, error) {
	return OpenPostgres(config.DSN(), config, logger)
}

// OpenPostgres connects with an explicit DSN, e.g. a postgres:// URL.
func OpenPostgres(dsn string, config DatabaseConfig, logger *zap.Logger) (*SQLStorage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.NewPersistence("open postgres", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.NewPersistence("connect postgres", err)
	}

	s, err := newSQLStorage(db, postgresDialect, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ConfigurePool(config.MaxOpenConns, config.MaxIdleConns, 0)

	logger.Info("Connected to postgres",
		zap.String("host", config.Host),
		zap.String("database", config.DBName))
	return s, nil
}
