package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Layr-Labs/agentpay/internal/config"
	"github.com/Layr-Labs/agentpay/internal/metrics"
	"github.com/Layr-Labs/agentpay/internal/tests"
	"github.com/Layr-Labs/agentpay/pkg/storage"
	"github.com/Layr-Labs/agentpay/pkg/storage/postgres"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup() (*gorm.DB, *zap.Logger, *config.Config, error) {
	cfg := tests.GetConfig()
	l := tests.GetLogger()
	grm, err := tests.GetMigratedTestDatabase(cfg, l)
	return grm, l, cfg, err
}

func Test_Classify(t *testing.T) {
	assert.Equal(t, storage.Freshness_Fresh, Classify(0, 60, 600))
	assert.Equal(t, storage.Freshness_Fresh, Classify(60*time.Second, 60, 600))
	assert.Equal(t, storage.Freshness_Stale, Classify(61*time.Second, 60, 600))
	assert.Equal(t, storage.Freshness_Stale, Classify(600*time.Second, 60, 600))
	assert.Equal(t, storage.Freshness_Unknown, Classify(601*time.Second, 60, 600))
	assert.Equal(t, storage.Freshness_Fresh, Classify(-5*time.Second, 60, 600))
}

func Test_HealthMonitor(t *testing.T) {
	grm, l, cfg, err := setup()
	if err != nil {
		t.Fatal(err)
	}
	defer tests.TeardownTestDatabase(grm)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := postgres.NewPostgresStore(grm, l, cfg).WithClock(clock)
	chain := tests.NewFakeChain(100, now.Add(-10*time.Second))
	monitor := NewHealthMonitor(chain, store, metrics.NewNoopMetricsSink(), l, cfg).WithClock(clock)

	t.Run("Unknown before any head is observed", func(t *testing.T) {
		status, err := monitor.Freshness()
		assert.Nil(t, err)
		assert.Equal(t, storage.Freshness_Unknown, status)
	})
	t.Run("Fresh after a recent head", func(t *testing.T) {
		header, err := monitor.Refresh(context.Background())
		assert.Nil(t, err)
		assert.Equal(t, uint64(100), header.Number.Value())

		status, err := monitor.Freshness()
		assert.Nil(t, err)
		assert.Equal(t, storage.Freshness_Fresh, status)

		row, err := monitor.Status()
		assert.Nil(t, err)
		assert.Equal(t, uint64(100), row.LastGoodBlock)
		assert.Equal(t, "", row.LastError)
	})
	t.Run("Stale when the head is old", func(t *testing.T) {
		chain.SetHead(101, now.Add(-5*time.Minute))
		_, err := monitor.Refresh(context.Background())
		assert.Nil(t, err)

		status, err := monitor.Freshness()
		assert.Nil(t, err)
		assert.Equal(t, storage.Freshness_Stale, status)
	})
	t.Run("Head fetch failure degrades and propagates", func(t *testing.T) {
		chain.SetHead(102, now)
		_, err := monitor.Refresh(context.Background())
		assert.Nil(t, err)

		chain.HeadErr = errors.New("connection refused")
		_, err = monitor.Refresh(context.Background())
		assert.NotNil(t, err)

		status, err := monitor.Freshness()
		assert.Nil(t, err)
		assert.Equal(t, storage.Freshness_Stale, status)

		row, err := monitor.Status()
		assert.Nil(t, err)
		assert.Equal(t, uint64(102), row.LastGoodBlock)
		assert.Contains(t, row.LastError, "connection refused")
		chain.HeadErr = nil
	})
	t.Run("Persisted status ages out", func(t *testing.T) {
		chain.SetHead(103, now)
		_, err := monitor.Refresh(context.Background())
		assert.Nil(t, err)

		later := now.Add(20 * time.Minute)
		monitor.WithClock(func() time.Time { return later })
		status, err := monitor.Freshness()
		assert.Nil(t, err)
		assert.Equal(t, storage.Freshness_Unknown, status)
		monitor.WithClock(clock)
	})
}

func Test_HealthMonitorNeverObserved(t *testing.T) {
	grm, l, cfg, err := setup()
	if err != nil {
		t.Fatal(err)
	}
	defer tests.TeardownTestDatabase(grm)

	store := postgres.NewPostgresStore(grm, l, cfg)
	chain := tests.NewFakeChain(1, time.Now())
	chain.HeadErr = errors.New("dial tcp: timeout")
	monitor := NewHealthMonitor(chain, store, metrics.NewNoopMetricsSink(), l, cfg)

	_, err = monitor.Refresh(context.Background())
	assert.NotNil(t, err)

	status, err := monitor.Freshness()
	assert.Nil(t, err)
	assert.Equal(t, storage.Freshness_Unknown, status)
}
