package spendPower

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Layr-Labs/agentpay/internal/config"
	"github.com/Layr-Labs/agentpay/internal/metrics"
	"github.com/Layr-Labs/agentpay/internal/tests"
	"github.com/Layr-Labs/agentpay/pkg/health"
	"github.com/Layr-Labs/agentpay/pkg/storage"
	"github.com/Layr-Labs/agentpay/pkg/storage/postgres"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const walletAddress = "0x00000000000000000000000000000000000000aa"

func setup() (*gorm.DB, *zap.Logger, *config.Config, error) {
	cfg := tests.GetConfig()
	l := tests.GetLogger()
	grm, err := tests.GetMigratedTestDatabase(cfg, l)
	return grm, l, cfg, err
}

func Test_Compute(t *testing.T) {
	for _, b := range []int64{0, 1, 999, 10_000, 1_000_000} {
		for _, r := range []int64{0, 1, 2500, 20_000} {
			for _, s := range []int64{0, 7, 300} {
				for _, d := range []int64{0, 5, 1000} {
					expected := b - r - s - d
					if expected < 0 {
						expected = 0
					}
					assert.Equal(t, expected, Compute(b, r, s, d))
				}
			}
		}
	}
}

func Test_Buffers(t *testing.T) {
	t.Run("Safety buffer floors and clamps", func(t *testing.T) {
		cfg := config.SpendPowerConfig{SafetyBps: 150}
		assert.Equal(t, int64(150), SafetyBuffer(10_000, cfg))
		assert.Equal(t, int64(1), SafetyBuffer(99, cfg))

		cfg.SafetyFloorCents = 500
		assert.Equal(t, int64(500), SafetyBuffer(10_000, cfg))

		cfg = config.SpendPowerConfig{SafetyBps: 1000, SafetyCapCents: 200}
		assert.Equal(t, int64(200), SafetyBuffer(10_000, cfg))
	})
	t.Run("Degradation only applies when not fresh", func(t *testing.T) {
		cfg := config.SpendPowerConfig{DegradationBps: 2500}
		assert.Equal(t, int64(0), DegradationBuffer(10_000, storage.Freshness_Fresh, cfg))
		assert.Equal(t, int64(2500), DegradationBuffer(10_000, storage.Freshness_Stale, cfg))
		assert.Equal(t, int64(2500), DegradationBuffer(10_000, storage.Freshness_Unknown, cfg))
	})
}

func Test_SpendPowerEngine(t *testing.T) {
	grm, l, cfg, err := setup()
	if err != nil {
		t.Fatal(err)
	}
	defer tests.TeardownTestDatabase(grm)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := postgres.NewPostgresStore(grm, l, cfg).WithClock(clock)
	chain := tests.NewFakeChain(500, now)
	monitor := health.NewHealthMonitor(chain, store, metrics.NewNoopMetricsSink(), l, cfg).WithClock(clock)
	engine := NewSpendPowerEngine(chain, monitor, store, metrics.NewNoopMetricsSink(), l, cfg).WithClock(clock)

	_, err = store.UpsertWallet("user-1", walletAddress)
	assert.Nil(t, err)
	// 100.00 USDC
	chain.SetBalance(walletAddress, 100_000_000)

	t.Run("Balance minus active reserves", func(t *testing.T) {
		quoteId := "quote-1"
		_, created, err := store.CreateReserveAndExecution(&storage.Reserve{
			ReserveId:   "reserve-1",
			UserId:      "user-1",
			AmountCents: 2500,
			Status:      storage.ReserveStatus_Active,
			ExternalRef: quoteId,
		}, &storage.Execution{
			ExecId:         "exec-1",
			QuoteId:        &quoteId,
			UserId:         "user-1",
			AgentId:        "agent-1",
			Status:         storage.ExecutionStatus_Queued,
			AmountCents:    2500,
			IdempotencyKey: "k1",
		})
		assert.Nil(t, err)
		assert.True(t, created)

		b, err := engine.Calculate(context.Background(), "user-1")
		assert.Nil(t, err)
		assert.Equal(t, int64(10_000), b.ConfirmedBalanceCents)
		assert.Equal(t, int64(2500), b.ActiveReservesCents)
		assert.Equal(t, int64(7500), b.SpendPowerCents)
		assert.Equal(t, storage.Freshness_Fresh, b.Freshness)

		snapshot, err := store.GetSpendPowerSnapshot("user-1")
		assert.Nil(t, err)
		assert.Equal(t, int64(7500), snapshot.SpendPowerCents)
	})
	t.Run("Settled reserves no longer count", func(t *testing.T) {
		settled, err := store.SettleReserve("quote-1", storage.ReserveStatus_Released)
		assert.Nil(t, err)
		assert.True(t, settled)

		b, err := engine.Calculate(context.Background(), "user-1")
		assert.Nil(t, err)
		assert.Equal(t, int64(10_000), b.SpendPowerCents)
	})
	t.Run("Degradation buffer applies on a stale head", func(t *testing.T) {
		cfg.SpendPowerConfig = config.SpendPowerConfig{SafetyBps: 100, DegradationBps: 1000}
		defer func() { cfg.SpendPowerConfig = config.SpendPowerConfig{} }()

		chain.SetHead(501, now.Add(-3*time.Minute))
		b, err := engine.Calculate(context.Background(), "user-1")
		assert.Nil(t, err)
		assert.Equal(t, storage.Freshness_Stale, b.Freshness)
		assert.Equal(t, int64(100), b.SafetyBufferCents)
		assert.Equal(t, int64(1000), b.DegradationBufferCents)
		assert.Equal(t, int64(8900), b.SpendPowerCents)
		chain.SetHead(502, now)
	})
	t.Run("Sub-cent balances floor", func(t *testing.T) {
		chain.SetBalance(walletAddress, 19_999)
		b, err := engine.Calculate(context.Background(), "user-1")
		assert.Nil(t, err)
		assert.Equal(t, int64(1), b.ConfirmedBalanceCents)
		chain.SetBalance(walletAddress, 100_000_000)
	})
	t.Run("Head failure propagates and degrades health", func(t *testing.T) {
		chain.HeadErr = errors.New("rpc down")
		defer func() { chain.HeadErr = nil }()

		_, err := engine.Calculate(context.Background(), "user-1")
		assert.NotNil(t, err)

		status, err := monitor.Freshness()
		assert.Nil(t, err)
		assert.Equal(t, storage.Freshness_Stale, status)
	})
	t.Run("Unknown wallet", func(t *testing.T) {
		_, err := engine.Calculate(context.Background(), "nobody")
		assert.ErrorIs(t, err, ErrWalletNotFound)
	})
}
