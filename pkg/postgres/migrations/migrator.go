package migrations

import (
	"database/sql"
	"time"

	"github.com/Layr-Labs/agentpay/internal/config"
	"github.com/Layr-Labs/agentpay/pkg/postgres/helpers"
	_202610010900_usersAndAgents "github.com/Layr-Labs/agentpay/pkg/postgres/migrations/202610010900_usersAndAgents"
	_202610010910_quotesAndExecutions "github.com/Layr-Labs/agentpay/pkg/postgres/migrations/202610010910_quotesAndExecutions"
	_202610010920_onchainState "github.com/Layr-Labs/agentpay/pkg/postgres/migrations/202610010920_onchainState"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Migration interface {
	Up(db *sql.DB, grm *gorm.DB, cfg *config.Config) error
	GetName() string
}

// MigrationRecord marks a migration as applied.
type MigrationRecord struct {
	Name      string    `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"type:timestamp"`
}

func (MigrationRecord) TableName() string {
	return "migrations"
}

type Migrator struct {
	Db           *sql.DB
	GDb          *gorm.DB
	Logger       *zap.Logger
	globalConfig *config.Config
}

func NewMigrator(db *sql.DB, gDb *gorm.DB, l *zap.Logger, cfg *config.Config) *Migrator {
	return &Migrator{
		Db:           db,
		GDb:          gDb,
		Logger:       l,
		globalConfig: cfg,
	}
}

// All lists every migration in the order it must be applied.
func All() []Migration {
	return []Migration{
		&_202610010900_usersAndAgents.Migration{},
		&_202610010910_quotesAndExecutions.Migration{},
		&_202610010920_onchainState.Migration{},
	}
}

func (m *Migrator) MigrateAll() error {
	if err := m.GDb.AutoMigrate(&MigrationRecord{}); err != nil {
		return errors.Wrap(err, "failed to create migrations table")
	}
	for _, migration := range All() {
		if err := m.Migrate(migration); err != nil {
			return err
		}
	}
	return nil
}

// Migrate applies a single migration unless it is already recorded. The schema change and its record commit together.
func (m *Migrator) Migrate(migration Migration) error {
	name := migration.GetName()

	var count int64
	if res := m.GDb.Model(&MigrationRecord{}).Where("name = ?", name).Count(&count); res.Error != nil {
		return errors.Wrapf(res.Error, "failed to look up migration '%s'", name)
	}
	if count > 0 {
		m.Logger.Sugar().Debugw("Migration already applied", zap.String("name", name))
		return nil
	}

	m.Logger.Sugar().Infow("Running migration", zap.String("name", name))
	_, err := helpers.WrapTxAndCommit(func(tx *gorm.DB) (*MigrationRecord, error) {
		if err := migration.Up(m.Db, tx, m.globalConfig); err != nil {
			return nil, errors.Wrapf(err, "failed to run migration '%s'", name)
		}
		record := &MigrationRecord{Name: name, CreatedAt: time.Now().UTC()}
		if res := tx.Create(record); res.Error != nil {
			return nil, errors.Wrapf(res.Error, "failed to record migration '%s'", name)
		}
		return record, nil
	}, m.GDb, nil)
	if err != nil {
		m.Logger.Sugar().Errorw("Migration failed", zap.String("name", name), zap.Error(err))
	}
	return err
}

// Applied returns the names of recorded migrations, oldest first.
func (m *Migrator) Applied() ([]string, error) {
	var names []string
	res := m.GDb.Model(&MigrationRecord{}).Order("name asc").Pluck("name", &names)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "failed to list applied migrations")
	}
	return names, nil
}
