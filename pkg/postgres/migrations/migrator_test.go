package migrations

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/Layr-Labs/agentpay/internal/config"
	"github.com/Layr-Labs/agentpay/internal/logger"
	"github.com/Layr-Labs/agentpay/internal/sqlite"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

type brokenMigration struct{}

func (b *brokenMigration) Up(db *sql.DB, grm *gorm.DB, cfg *config.Config) error {
	if res := grm.Exec(`create table half_done (id varchar primary key)`); res.Error != nil {
		return res.Error
	}
	return errors.New("boom")
}

func (b *brokenMigration) GetName() string {
	return "999999999999_broken"
}

func newMigrator(t *testing.T) *Migrator {
	grm, err := sqlite.NewGormSqliteFromSqlite(sqlite.NewSqlite(sqlite.NewInMemoryPath()))
	if err != nil {
		t.Fatal(err)
	}
	sqlDb, err := grm.DB()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sqlDb.Close() })

	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	return NewMigrator(sqlDb, grm, l, config.NewTestConfig())
}

func Test_Migrator(t *testing.T) {
	t.Run("Applies every migration once", func(t *testing.T) {
		m := newMigrator(t)
		assert.Nil(t, m.MigrateAll())
		assert.Nil(t, m.MigrateAll())

		applied, err := m.Applied()
		assert.Nil(t, err)
		assert.Len(t, applied, len(All()))
		assert.Equal(t, All()[0].GetName(), applied[0])

		for _, table := range []string{"wallets", "agent_tokens", "quotes", "executions", "reserves", "receipts"} {
			assert.True(t, m.GDb.Migrator().HasTable(table), table)
		}
	})
	t.Run("A failed migration is rolled back and not recorded", func(t *testing.T) {
		m := newMigrator(t)
		assert.Nil(t, m.MigrateAll())

		err := m.Migrate(&brokenMigration{})
		assert.ErrorContains(t, err, "boom")

		applied, err := m.Applied()
		assert.Nil(t, err)
		assert.NotContains(t, applied, "999999999999_broken")
		assert.False(t, m.GDb.Migrator().HasTable("half_done"))
	})
}
