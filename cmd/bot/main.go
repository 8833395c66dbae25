package main

import (
	"os"

	"go.uber.org/zap"

	"github.com/fedeforai/frostdesk-core-sub003/internal/classifier"
	"github.com/fedeforai/frostdesk-core-sub003/internal/storage"
	"github.com/fedeforai/frostdesk-core-sub003/pkg/config"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	app := newCLIApp(os.Stdin, os.Stdout)
	if err := app.Run(os.Args); err != nil {
		logger.Fatal("Command failed", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Log.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openStorage(cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		logger.Info("Using PostgreSQL storage")
		return storage.NewPostgresStorage(storage.DatabaseConfig{
			Driver:       cfg.Database.Driver,
			Host:         cfg.Database.Host,
			Port:         cfg.Database.Port,
			User:         cfg.Database.User,
			Password:     cfg.Database.Password,
			DBName:       cfg.Database.DBName,
			SSLMode:      cfg.Database.SSLMode,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
		}, logger)
	case config.DriverSQLite:
		logger.Info("Using SQLite storage", zap.String("path", cfg.Database.Path))
		return storage.NewSQLiteStorage(cfg.Database.Path, logger)
	default:
		logger.Info("Using in-memory storage")
		return storage.NewMemoryStorage(), nil
	}
}

func newClassifier(cfg *config.Config, logger *zap.Logger) classifier.Classifier {
	rules := classifier.NewRuleClassifier()
	if cfg.Classifier.Provider != config.ProviderOpenAI {
		return rules
	}
	logger.Info("Using OpenAI classifier", zap.String("model", cfg.OpenAI.Model))
	return classifier.NewGPTClassifier(
		cfg.OpenAI.APIKey,
		cfg.OpenAI.BaseURL,
		cfg.OpenAI.Model,
		cfg.OpenAI.MaxTokens,
		rules,
		logger,
	)
}
