package tests

import (
	"github.com/Layr-Labs/agentpay/internal/config"
	"github.com/Layr-Labs/agentpay/internal/logger"
	"github.com/Layr-Labs/agentpay/internal/sqlite"
	"github.com/Layr-Labs/agentpay/pkg/postgres/migrations"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func GetConfig() *config.Config {
	return config.NewTestConfig()
}

func GetLogger() *zap.Logger {
	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	return l
}

// GetMigratedTestDatabase opens a fresh in-memory database and runs every migration against it.
func GetMigratedTestDatabase(cfg *config.Config, l *zap.Logger) (*gorm.DB, error) {
	grm, err := sqlite.NewGormSqliteFromSqlite(sqlite.NewSqlite(sqlite.NewInMemoryPath()))
	if err != nil {
		return nil, err
	}
	sqlDb, err := grm.DB()
	if err != nil {
		return nil, err
	}

	migrator := migrations.NewMigrator(sqlDb, grm, l, cfg)
	if err := migrator.MigrateAll(); err != nil {
		return nil, err
	}
	return grm, nil
}

func TeardownTestDatabase(grm *gorm.DB) {
	if grm == nil {
		return
	}
	if sqlDb, err := grm.DB(); err == nil {
		_ = sqlDb.Close()
	}
}
