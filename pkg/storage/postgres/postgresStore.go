package postgres

import (
	"time"

	"github.com/Layr-Labs/agentpay/internal/config"
	"github.com/Layr-Labs/agentpay/pkg/storage"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PostgresStore is the gorm backed storage.Store. The SQL sticks to the subset postgres and sqlite share,
// so the same store runs against the in-memory test database.
type PostgresStore struct {
	Db           *gorm.DB
	Logger       *zap.Logger
	GlobalConfig *config.Config

	now func() time.Time
}

var _ storage.Store = (*PostgresStore)(nil)

func NewPostgresStore(db *gorm.DB, l *zap.Logger, cfg *config.Config) *PostgresStore {
	return &PostgresStore{
		Db:           db,
		Logger:       l,
		GlobalConfig: cfg,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// WithClock overrides the time source used for store-managed timestamps.
func (s *PostgresStore) WithClock(now func() time.Time) *PostgresStore {
	s.now = now
	return s
}

// firstOrNil maps gorm's not-found error to a nil record.
func firstOrNil[T any](res *gorm.DB, record *T) (*T, error) {
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, res.Error
	}
	return record, nil
}
