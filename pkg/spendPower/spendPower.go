package spendPower

import (
	"context"
	"math/big"
	"time"

	"github.com/Layr-Labs/agentpay/internal/config"
	"github.com/Layr-Labs/agentpay/internal/metrics"
	"github.com/Layr-Labs/agentpay/internal/metrics/metricsTypes"
	"github.com/Layr-Labs/agentpay/pkg/clients/ethereum"
	"github.com/Layr-Labs/agentpay/pkg/storage"
	"github.com/Layr-Labs/agentpay/pkg/types/numbers"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrWalletNotFound = errors.New("wallet not found")

type BalanceReader interface {
	GetErc20Balance(ctx context.Context, token string, holder string) (*big.Int, error)
}

// HealthSource refreshes and reports provider freshness.
type HealthSource interface {
	Refresh(ctx context.Context) (*ethereum.EthereumBlockHeader, error)
	Freshness() (string, error)
}

type Store interface {
	storage.WalletStore
	storage.ReserveStore
	storage.SpendPowerSnapshotStore
}

type Breakdown struct {
	UserId                 string    `json:"user_id"`
	ConfirmedBalanceCents  int64     `json:"confirmed_balance_cents"`
	ActiveReservesCents    int64     `json:"active_reserves_cents"`
	SafetyBufferCents      int64     `json:"safety_buffer_cents"`
	DegradationBufferCents int64     `json:"degradation_buffer_cents"`
	SpendPowerCents        int64     `json:"spend_power_cents"`
	Freshness              string    `json:"freshness"`
	ComputedAt             time.Time `json:"computed_at"`
}

type SpendPowerEngine struct {
	balances     BalanceReader
	health       HealthSource
	store        Store
	metricsSink  *metrics.MetricsSink
	logger       *zap.Logger
	globalConfig *config.Config
	now          func() time.Time
}

func NewSpendPowerEngine(
	balances BalanceReader,
	health HealthSource,
	store Store,
	ms *metrics.MetricsSink,
	l *zap.Logger,
	cfg *config.Config,
) *SpendPowerEngine {
	return &SpendPowerEngine{
		balances:     balances,
		health:       health,
		store:        store,
		metricsSink:  ms,
		logger:       l,
		globalConfig: cfg,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (e *SpendPowerEngine) WithClock(now func() time.Time) *SpendPowerEngine {
	e.now = now
	return e
}

// SafetyBuffer is floor(balance * bps / 10000) clamped to [floor, cap]. A zero cap means no cap.
func SafetyBuffer(balanceCents int64, cfg config.SpendPowerConfig) int64 {
	buffer := numbers.BpsOf(balanceCents, cfg.SafetyBps)
	if buffer < cfg.SafetyFloorCents {
		buffer = cfg.SafetyFloorCents
	}
	if cfg.SafetyCapCents > 0 && buffer > cfg.SafetyCapCents {
		buffer = cfg.SafetyCapCents
	}
	return buffer
}

// DegradationBuffer is zero while fresh, otherwise floor(balance * bps / 10000).
func DegradationBuffer(balanceCents int64, freshness string, cfg config.SpendPowerConfig) int64 {
	if freshness == storage.Freshness_Fresh {
		return 0
	}
	return numbers.BpsOf(balanceCents, cfg.DegradationBps)
}

// Compute returns max(0, balance - reserves - safety - degradation).
func Compute(balanceCents, reservesCents, safetyCents, degradationCents int64) int64 {
	spendPower := balanceCents - reservesCents - safetyCents - degradationCents
	if spendPower < 0 {
		return 0
	}
	return spendPower
}

// Calculate refreshes chain health, reads the live balance and active reserves, and persists the result as
// the user's snapshot.
func (e *SpendPowerEngine) Calculate(ctx context.Context, userId string) (*Breakdown, error) {
	wallet, err := e.store.GetWallet(userId)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, errors.Wrapf(ErrWalletNotFound, "user '%s'", userId)
	}

	if _, err := e.health.Refresh(ctx); err != nil {
		return nil, err
	}

	baseUnits, err := e.balances.GetErc20Balance(ctx, e.globalConfig.GetUsdcContractAddress(), wallet.Address)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read balance for user '%s'", userId)
	}
	balanceCents := numbers.BaseUnitsToCents(baseUnits)

	reservesCents, err := e.store.SumActiveReservesCents(userId)
	if err != nil {
		return nil, err
	}

	freshness, err := e.health.Freshness()
	if err != nil {
		return nil, err
	}

	cfg := e.globalConfig.SpendPowerConfig
	safety := SafetyBuffer(balanceCents, cfg)
	degradation := DegradationBuffer(balanceCents, freshness, cfg)

	breakdown := &Breakdown{
		UserId:                 userId,
		ConfirmedBalanceCents:  balanceCents,
		ActiveReservesCents:    reservesCents,
		SafetyBufferCents:      safety,
		DegradationBufferCents: degradation,
		SpendPowerCents:        Compute(balanceCents, reservesCents, safety, degradation),
		Freshness:              freshness,
		ComputedAt:             e.now(),
	}

	err = e.store.UpsertSpendPowerSnapshot(&storage.SpendPowerSnapshot{
		UserId:                 breakdown.UserId,
		ConfirmedBalanceCents:  breakdown.ConfirmedBalanceCents,
		ActiveReservesCents:    breakdown.ActiveReservesCents,
		SafetyBufferCents:      breakdown.SafetyBufferCents,
		DegradationBufferCents: breakdown.DegradationBufferCents,
		SpendPowerCents:        breakdown.SpendPowerCents,
		Freshness:              breakdown.Freshness,
		ComputedAt:             breakdown.ComputedAt,
	})
	if err != nil {
		return nil, err
	}
	_ = e.metricsSink.Gauge(metricsTypes.Metric_Gauge_SpendPowerCents, float64(breakdown.SpendPowerCents), nil)

	e.logger.Sugar().Debugw("Calculated spend power",
		zap.String("userId", userId),
		zap.Int64("balanceCents", balanceCents),
		zap.Int64("reservesCents", reservesCents),
		zap.Int64("spendPowerCents", breakdown.SpendPowerCents),
		zap.String("freshness", freshness),
	)
	return breakdown, nil
}
