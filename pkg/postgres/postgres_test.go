package postgres

import (
	"os"
	"strconv"
	"testing"

	"github.com/Layr-Labs/agentpay/internal/config"
	"github.com/Layr-Labs/agentpay/internal/logger"
	"github.com/Layr-Labs/agentpay/pkg/postgres/migrations"
	"github.com/stretchr/testify/assert"
)

func Test_PostgresConnectionString(t *testing.T) {
	t.Run("defaults to sslmode disable", func(t *testing.T) {
		str, err := getPostgresConnectionString(&PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Username: "agentpay",
			Password: "secret",
			DbName:   "agentpay",
		})
		assert.Nil(t, err)
		assert.Contains(t, str, "host=localhost")
		assert.Contains(t, str, "user=agentpay")
		assert.Contains(t, str, "password=secret")
		assert.Contains(t, str, "dbname=agentpay")
		assert.Contains(t, str, "sslmode=disable")
		assert.Contains(t, str, "TimeZone=UTC")
	})
	t.Run("rejects unknown ssl mode", func(t *testing.T) {
		_, err := getPostgresConnectionString(&PostgresConfig{
			Host:    "localhost",
			DbName:  "agentpay",
			SSLMode: "sometimes",
		})
		assert.NotNil(t, err)
	})
	t.Run("includes certificates when ssl is enabled", func(t *testing.T) {
		str, err := getPostgresConnectionString(&PostgresConfig{
			Host:        "db.internal",
			Port:        5432,
			DbName:      "agentpay",
			SSLMode:     "verify-full",
			SSLRootCert: "/etc/ssl/root.crt",
			SchemaName:  "payments",
		})
		assert.Nil(t, err)
		assert.Contains(t, str, "sslmode=verify-full")
		assert.Contains(t, str, "sslrootcert=/etc/ssl/root.crt")
		assert.Contains(t, str, "search_path=payments")
	})
	t.Run("schema applies without ssl", func(t *testing.T) {
		str, err := getPostgresConnectionString(&PostgresConfig{
			Host:       "localhost",
			Port:       5432,
			DbName:     "agentpay",
			SchemaName: "payments",
		})
		assert.Nil(t, err)
		assert.Contains(t, str, "search_path=payments")
		assert.NotContains(t, str, "sslrootcert")
	})
	t.Run("test database names are unique", func(t *testing.T) {
		assert.NotEqual(t, GenerateTestDbName(), GenerateTestDbName())
	})
}

// Runs the migrations against a live postgres when one is configured through the environment.
func Test_PostgresMigrations(t *testing.T) {
	host := os.Getenv("AGENTPAY_DATABASE_HOST")
	if host == "" {
		t.Skip("AGENTPAY_DATABASE_HOST not set")
	}
	port, _ := strconv.Atoi(os.Getenv("AGENTPAY_DATABASE_PORT"))
	if port == 0 {
		port = 5432
	}

	cfg := config.NewTestConfig()
	cfg.DatabaseConfig = config.DatabaseConfig{
		Host:     host,
		Port:     port,
		User:     os.Getenv("AGENTPAY_DATABASE_USER"),
		Password: os.Getenv("AGENTPAY_DATABASE_PASSWORD"),
	}
	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	dbName, grm, err := GetTestPostgresDatabase(cfg.DatabaseConfig, cfg, l)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer TeardownTestDatabase(dbName, cfg, grm, l)

	t.Run("migrations are idempotent", func(t *testing.T) {
		sqlDb, err := grm.DB()
		assert.Nil(t, err)
		migrator := migrations.NewMigrator(sqlDb, grm, l, cfg)
		assert.Nil(t, migrator.MigrateAll())
	})
}
