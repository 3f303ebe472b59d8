package cmd

import (
	"github.com/Layr-Labs/agentpay/internal/config"
	"github.com/Layr-Labs/agentpay/internal/logger"
	"github.com/Layr-Labs/agentpay/pkg/postgres"
	"github.com/Layr-Labs/agentpay/pkg/postgres/migrations"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var runDatabaseCmd = &cobra.Command{
	Use:   "database",
	Short: "Create the database if needed and run all pending migrations",
	Run: func(cmd *cobra.Command, args []string) {
		bindCommandFlags(cmd)
		cfg := config.NewConfig()

		l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})

		if _, err := openMigratedDatabase(cfg, l); err != nil {
			l.Sugar().Fatalw("Failed to migrate database", zap.Error(err))
		}
		l.Sugar().Infow("Database migrated", zap.String("dbName", cfg.DatabaseConfig.DbName))
	},
}

// openMigratedDatabase connects to postgres, creating the database when missing, and applies every migration.
func openMigratedDatabase(cfg *config.Config, l *zap.Logger) (*gorm.DB, error) {
	pgConfig := postgres.PostgresConfigFromDbConfig(&cfg.DatabaseConfig)
	pgConfig.CreateDbIfNotExists = true

	pg, err := postgres.NewPostgres(pgConfig, l)
	if err != nil {
		return nil, errors.Wrap(err, "failed to setup postgres connection")
	}

	grm, err := postgres.NewGormFromPostgresConnection(pg.Db)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gorm instance")
	}

	migrator := migrations.NewMigrator(pg.Db, grm, l, cfg)
	if err = migrator.MigrateAll(); err != nil {
		return nil, errors.Wrap(err, "failed to migrate")
	}
	return grm, nil
}
