package health

import (
	"context"
	"time"

	"github.com/Layr-Labs/agentpay/internal/config"
	"github.com/Layr-Labs/agentpay/internal/metrics"
	"github.com/Layr-Labs/agentpay/internal/metrics/metricsTypes"
	"github.com/Layr-Labs/agentpay/pkg/clients/ethereum"
	"github.com/Layr-Labs/agentpay/pkg/storage"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// HeadFetcher is the slice of the RPC client the monitor needs.
type HeadFetcher interface {
	GetLatestBlockHeader(ctx context.Context) (*ethereum.EthereumBlockHeader, error)
}

// HealthMonitor owns the rpc_health row for one provider. It is the only writer of freshness.
type HealthMonitor struct {
	client       HeadFetcher
	store        storage.RpcHealthStore
	metricsSink  *metrics.MetricsSink
	logger       *zap.Logger
	globalConfig *config.Config
	providerName string
	now          func() time.Time
}

func NewHealthMonitor(
	client HeadFetcher,
	store storage.RpcHealthStore,
	ms *metrics.MetricsSink,
	l *zap.Logger,
	cfg *config.Config,
) *HealthMonitor {
	return &HealthMonitor{
		client:       client,
		store:        store,
		metricsSink:  ms,
		logger:       l,
		globalConfig: cfg,
		providerName: cfg.EthereumRpcConfig.ProviderName,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (h *HealthMonitor) WithClock(now func() time.Time) *HealthMonitor {
	h.now = now
	return h
}

func (h *HealthMonitor) ProviderName() string {
	return h.providerName
}

// Classify maps the age of the newest observed head to a freshness status.
func Classify(age time.Duration, freshSeconds int, staleSeconds int) string {
	if age < 0 {
		age = 0
	}
	switch {
	case age <= time.Duration(freshSeconds)*time.Second:
		return storage.Freshness_Fresh
	case age <= time.Duration(staleSeconds)*time.Second:
		return storage.Freshness_Stale
	default:
		return storage.Freshness_Unknown
	}
}

func rank(status string) int {
	switch status {
	case storage.Freshness_Fresh:
		return 2
	case storage.Freshness_Stale:
		return 1
	default:
		return 0
	}
}

func (h *HealthMonitor) classifyHead(headTime *time.Time) string {
	if headTime == nil {
		return storage.Freshness_Unknown
	}
	return Classify(h.now().Sub(*headTime), h.globalConfig.HealthConfig.FreshSeconds, h.globalConfig.HealthConfig.StaleSeconds)
}

// Refresh fetches the chain head and records it. A failed fetch marks the provider degraded and the error is
// returned to the caller.
func (h *HealthMonitor) Refresh(ctx context.Context) (*ethereum.EthereumBlockHeader, error) {
	header, err := h.client.GetLatestBlockHeader(ctx)
	if err != nil {
		if markErr := h.MarkDegraded(err); markErr != nil {
			h.logger.Sugar().Errorw("Failed to mark rpc health degraded", zap.Error(markErr))
		}
		return nil, errors.Wrap(err, "failed to fetch chain head")
	}
	if _, err := h.RecordHead(header); err != nil {
		return nil, err
	}
	return header, nil
}

// RecordHead persists a successfully observed head.
func (h *HealthMonitor) RecordHead(header *ethereum.EthereumBlockHeader) (*storage.RpcHealth, error) {
	now := h.now()
	headTime := time.Unix(int64(header.Timestamp.Value()), 0).UTC()

	row := &storage.RpcHealth{
		ProviderName:  h.providerName,
		LastGoodAt:    &now,
		LastGoodBlock: header.Number.Value(),
		HeadBlockTime: &headTime,
		Status:        h.classifyHead(&headTime),
		LastError:     "",
		UpdatedAt:     now,
	}
	if err := h.store.UpsertRpcHealth(row); err != nil {
		return nil, err
	}
	h.emit(row)
	return row, nil
}

// MarkDegraded records a failed head fetch. A fresh provider drops to stale; one that never produced a head
// stays unknown.
func (h *HealthMonitor) MarkDegraded(cause error) error {
	existing, err := h.store.GetRpcHealth(h.providerName)
	if err != nil {
		return err
	}
	row := &storage.RpcHealth{
		ProviderName: h.providerName,
		Status:       storage.Freshness_Unknown,
		UpdatedAt:    h.now(),
	}
	if cause != nil {
		row.LastError = cause.Error()
	}
	if existing != nil {
		row.LastGoodAt = existing.LastGoodAt
		row.LastGoodBlock = existing.LastGoodBlock
		row.HeadBlockTime = existing.HeadBlockTime

		status := h.classifyHead(existing.HeadBlockTime)
		if status == storage.Freshness_Fresh {
			status = storage.Freshness_Stale
		}
		row.Status = status
	}
	h.logger.Sugar().Warnw("RPC provider degraded",
		zap.String("provider", h.providerName),
		zap.String("status", row.Status),
		zap.Error(cause),
	)
	if err := h.store.UpsertRpcHealth(row); err != nil {
		return err
	}
	h.emit(row)
	return nil
}

// Freshness reads the persisted status. A row that has aged past its thresholds since it was written is
// reported at the lower level; it is never upgraded.
func (h *HealthMonitor) Freshness() (string, error) {
	row, err := h.store.GetRpcHealth(h.providerName)
	if err != nil {
		return storage.Freshness_Unknown, err
	}
	if row == nil {
		return storage.Freshness_Unknown, nil
	}
	aged := h.classifyHead(row.HeadBlockTime)
	if rank(aged) < rank(row.Status) {
		return aged, nil
	}
	return row.Status, nil
}

// Status returns the raw persisted row, or nil when the provider was never observed.
func (h *HealthMonitor) Status() (*storage.RpcHealth, error) {
	return h.store.GetRpcHealth(h.providerName)
}

func (h *HealthMonitor) emit(row *storage.RpcHealth) {
	labels := []metricsTypes.MetricsLabel{{Name: "provider", Value: h.providerName}}
	_ = h.metricsSink.Gauge(metricsTypes.Metric_Gauge_RpcFreshness, float64(rank(row.Status)), labels)
	if row.LastGoodBlock > 0 {
		_ = h.metricsSink.Gauge(metricsTypes.Metric_Gauge_HeadBlock, float64(row.LastGoodBlock), nil)
	}
}
