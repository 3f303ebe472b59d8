package postgres

import (
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Layr-Labs/agentpay/internal/config"
	"github.com/Layr-Labs/agentpay/pkg/postgres/migrations"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultSSLMode = "disable"

var validSSLModes = []string{
	"disable",
	"require",
	"verify-ca",
	"verify-full",
}

type PostgresConfig struct {
	Host                string
	Port                int
	Username            string
	Password            string
	DbName              string
	CreateDbIfNotExists bool
	SchemaName          string
	SSLMode             string
	SSLCert             string
	SSLKey              string
	SSLRootCert         string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type Postgres struct {
	Db *sql.DB
}

func PostgresConfigFromDbConfig(dbCfg *config.DatabaseConfig) *PostgresConfig {
	return &PostgresConfig{
		Host:            dbCfg.Host,
		Port:            dbCfg.Port,
		Username:        dbCfg.User,
		Password:        dbCfg.Password,
		DbName:          dbCfg.DbName,
		SchemaName:      dbCfg.SchemaName,
		SSLMode:         dbCfg.SSLMode,
		SSLCert:         dbCfg.SSLCert,
		SSLKey:          dbCfg.SSLKey,
		SSLRootCert:     dbCfg.SSLRootCert,
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// withDbName returns a copy of cfg pointed at another database on the same server.
func (cfg *PostgresConfig) withDbName(name string) *PostgresConfig {
	c := *cfg
	c.DbName = name
	c.CreateDbIfNotExists = false
	return &c
}

func getPostgresConnectionString(cfg *PostgresConfig) (string, error) {
	sslMode := defaultSSLMode
	if cfg.SSLMode != "" {
		if !slices.Contains(validSSLModes, cfg.SSLMode) {
			return "", errors.Errorf("invalid ssl mode: %s. Must be one of: %s", cfg.SSLMode, strings.Join(validSSLModes, ", "))
		}
		sslMode = cfg.SSLMode
	}

	parts := []string{
		fmt.Sprintf("host=%s", cfg.Host),
		fmt.Sprintf("port=%d", cfg.Port),
		fmt.Sprintf("dbname=%s", cfg.DbName),
	}
	if cfg.Username != "" {
		parts = append(parts, fmt.Sprintf("user=%s", cfg.Username))
	}
	if cfg.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", cfg.Password))
	}
	parts = append(parts, fmt.Sprintf("sslmode=%s", sslMode), "TimeZone=UTC")

	if sslMode != defaultSSLMode {
		if cfg.SSLCert != "" {
			parts = append(parts, fmt.Sprintf("sslcert=%s", cfg.SSLCert))
		}
		if cfg.SSLKey != "" {
			parts = append(parts, fmt.Sprintf("sslkey=%s", cfg.SSLKey))
		}
		if cfg.SSLRootCert != "" {
			parts = append(parts, fmt.Sprintf("sslrootcert=%s", cfg.SSLRootCert))
		}
	}
	if cfg.SchemaName != "" {
		parts = append(parts, fmt.Sprintf("search_path=%s", cfg.SchemaName))
	}
	return strings.Join(parts, " "), nil
}

func openSqlDb(cfg *PostgresConfig) (*sql.DB, error) {
	connectString, err := getPostgresConnectionString(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", connectString)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database %s", cfg.DbName)
	}
	return db, nil
}

func CreateDatabaseIfNotExists(cfg *PostgresConfig, l *zap.Logger) error {
	root, err := openSqlDb(cfg.withDbName("postgres"))
	if err != nil {
		return err
	}
	defer root.Close()

	var exists bool
	err = root.QueryRow(`SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1)`, cfg.DbName).Scan(&exists)
	if err != nil {
		return errors.Wrap(err, "failed to check if database exists")
	}
	if exists {
		return nil
	}

	if _, err = root.Exec(fmt.Sprintf("CREATE DATABASE %s", pq.QuoteIdentifier(cfg.DbName))); err != nil {
		return errors.Wrapf(err, "failed to create database %s", cfg.DbName)
	}
	l.Sugar().Infow("Created database", zap.String("dbName", cfg.DbName))
	return nil
}

func DropDatabase(cfg *PostgresConfig, dbName string, l *zap.Logger) error {
	root, err := openSqlDb(cfg.withDbName("postgres"))
	if err != nil {
		return err
	}
	defer root.Close()

	if _, err = root.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS %s", pq.QuoteIdentifier(dbName))); err != nil {
		return errors.Wrapf(err, "failed to drop database %s", dbName)
	}
	l.Sugar().Infow("Dropped database", zap.String("dbName", dbName))
	return nil
}

func NewPostgres(cfg *PostgresConfig, l *zap.Logger) (*Postgres, error) {
	if cfg.CreateDbIfNotExists {
		if err := CreateDatabaseIfNotExists(cfg, l); err != nil {
			return nil, err
		}
	}

	db, err := openSqlDb(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "failed to reach postgres at %s:%d", cfg.Host, cfg.Port)
	}

	return &Postgres{
		Db: db,
	}, nil
}

func NewGormFromPostgresConnection(pgDb *sql.DB) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn: pgDb,
	}), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: NowUTC,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to setup gorm")
	}

	return db, nil
}

// GetTestPostgresDatabase creates a uniquely named, fully migrated database on the server described by cfg.
func GetTestPostgresDatabase(cfg config.DatabaseConfig, gCfg *config.Config, l *zap.Logger) (string, *gorm.DB, error) {
	testDbName := GenerateTestDbName()
	cfg.DbName = testDbName

	pgConfig := PostgresConfigFromDbConfig(&cfg)
	pgConfig.CreateDbIfNotExists = true

	pg, err := NewPostgres(pgConfig, l)
	if err != nil {
		return testDbName, nil, err
	}

	grm, err := NewGormFromPostgresConnection(pg.Db)
	if err != nil {
		return testDbName, nil, err
	}

	if err = migrations.NewMigrator(pg.Db, grm, l, gCfg).MigrateAll(); err != nil {
		return testDbName, nil, err
	}
	return testDbName, grm, nil
}

func TeardownTestDatabase(dbName string, cfg *config.Config, db *gorm.DB, l *zap.Logger) {
	if rawDb, err := db.DB(); err == nil {
		_ = rawDb.Close()
	}

	if err := DropDatabase(PostgresConfigFromDbConfig(&cfg.DatabaseConfig), dbName, l); err != nil {
		l.Sugar().Errorw("Failed to delete test database", zap.Error(err))
	}
}

// NowUTC is the gorm clock; all persisted timestamps are UTC.
func NowUTC() time.Time {
	return time.Now().UTC()
}

func GenerateTestDbName() string {
	return fmt.Sprintf("agentpay_test_%s", strings.ReplaceAll(uuid.New().String(), "-", ""))
}
