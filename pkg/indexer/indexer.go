package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/Layr-Labs/agentpay/internal/config"
	"github.com/Layr-Labs/agentpay/internal/metrics"
	"github.com/Layr-Labs/agentpay/internal/metrics/metricsTypes"
	"github.com/Layr-Labs/agentpay/pkg/clients/ethereum"
	"github.com/Layr-Labs/agentpay/pkg/storage"
	"go.uber.org/zap"
)

type ChainClient interface {
	GetLogs(ctx context.Context, filter *ethereum.EthereumLogFilter) ([]*ethereum.EthereumEventLog, error)
	GetTransactionReceipt(ctx context.Context, txHash string) (*ethereum.EthereumTransactionReceipt, error)
}

// HeadSource fetches the chain head and records it as the provider's health.
type HeadSource interface {
	Refresh(ctx context.Context) (*ethereum.EthereumBlockHeader, error)
}

type EventProcessor interface {
	Process(event *storage.NormalizedEvent) error
}

type Store interface {
	storage.WalletStore
	storage.ExecutionStore
	storage.OnchainTransferStore
	storage.NormalizedEventStore
	storage.OnchainCursorStore
}

type IndexErrorType int

const (
	IndexError_FailedToDecodeLog    IndexErrorType = 1
	IndexError_FailedToFetchLogs    IndexErrorType = 2
	IndexError_FailedToStoreEvent   IndexErrorType = 3
	IndexError_FailedToFetchReceipt IndexErrorType = 4
)

type IndexError struct {
	Type            IndexErrorType
	Err             error
	BlockNumber     uint64
	TransactionHash string
	LogIndex        uint64
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("IndexError: %s", e.Err.Error())
}

func (e *IndexError) Unwrap() error {
	return e.Err
}

func NewIndexError(t IndexErrorType, err error) *IndexError {
	return &IndexError{
		Type: t,
		Err:  err,
	}
}

func (e *IndexError) WithBlockNumber(blockNumber uint64) *IndexError {
	e.BlockNumber = blockNumber
	return e
}

func (e *IndexError) WithTransactionHash(txHash string) *IndexError {
	e.TransactionHash = txHash
	return e
}

func (e *IndexError) WithLogIndex(logIndex uint64) *IndexError {
	e.LogIndex = logIndex
	return e
}

type Indexer struct {
	client       ChainClient
	health       HeadSource
	kernel       EventProcessor
	store        Store
	metricsSink  *metrics.MetricsSink
	logger       *zap.Logger
	globalConfig *config.Config
	now          func() time.Time
}

// TickResult summarizes one pass over the chain.
type TickResult struct {
	Head                 uint64
	FromBlock            uint64
	LogsSeen             int
	TransfersUpserted    int
	EventsProcessed      int
	ExecutionsReconciled int
}

func NewIndexer(
	client ChainClient,
	health HeadSource,
	kernel EventProcessor,
	store Store,
	ms *metrics.MetricsSink,
	l *zap.Logger,
	cfg *config.Config,
) *Indexer {
	return &Indexer{
		client:       client,
		health:       health,
		kernel:       kernel,
		store:        store,
		metricsSink:  ms,
		logger:       l,
		globalConfig: cfg,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (idx *Indexer) WithClock(now func() time.Time) *Indexer {
	idx.now = now
	return idx
}

// Tick scans the window ending at the current head for USDC transfers touching tracked wallets, reconciles
// broadcast executions and then advances the cursor to head. Re-running a tick over the same blocks is safe.
func (idx *Indexer) Tick(ctx context.Context) (*TickResult, error) {
	startTime := time.Now()
	result, err := idx.tick(ctx)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	_ = idx.metricsSink.Incr(metricsTypes.Metric_Incr_IndexerTick, []metricsTypes.MetricsLabel{
		{Name: "outcome", Value: outcome},
	}, 1)
	_ = idx.metricsSink.Timing(metricsTypes.Metric_Timing_TickDuration, time.Since(startTime), nil)
	return result, err
}

func (idx *Indexer) tick(ctx context.Context) (*TickResult, error) {
	header, err := idx.health.Refresh(ctx)
	if err != nil {
		idx.logger.Sugar().Errorw("Failed to fetch chain head", zap.Error(err))
		return nil, err
	}
	head := header.Number.Value()
	chainId := idx.globalConfig.ChainId

	cursor, err := idx.store.GetOnchainCursor(chainId)
	if err != nil {
		return nil, err
	}
	result := &TickResult{
		Head:      head,
		FromBlock: ScanWindowStart(cursor, head, idx.globalConfig.IndexerConfig),
	}

	tracked, err := idx.trackedWallets()
	if err != nil {
		return nil, err
	}

	if err := idx.scanTransfers(ctx, result, tracked); err != nil {
		return nil, err
	}

	reconciled, err := idx.ReconcileExecutions(ctx, head)
	if err != nil {
		return nil, err
	}
	result.ExecutionsReconciled = reconciled

	if err := idx.store.AdvanceOnchainCursor(chainId, head); err != nil {
		return nil, err
	}
	_ = idx.metricsSink.Gauge(metricsTypes.Metric_Gauge_CursorBlock, float64(head), nil)

	idx.logger.Sugar().Infow("Indexer tick complete",
		zap.Uint64("fromBlock", result.FromBlock),
		zap.Uint64("head", head),
		zap.Int("logsSeen", result.LogsSeen),
		zap.Int("transfersUpserted", result.TransfersUpserted),
		zap.Int("eventsProcessed", result.EventsProcessed),
		zap.Int("executionsReconciled", result.ExecutionsReconciled),
	)
	return result, nil
}

// ScanWindowStart re-scans reorgBuffer blocks behind the cursor, or lookbackBlocks behind head on the first
// run. The start never passes head.
func ScanWindowStart(cursor *storage.OnchainCursor, head uint64, cfg config.IndexerConfig) uint64 {
	var start uint64
	if cursor != nil {
		start = saturatingSub(cursor.LastBlock, cfg.ReorgBuffer)
	} else {
		start = saturatingSub(head, cfg.LookbackBlocks)
	}
	if start > head {
		return head
	}
	return start
}

// Confirmations counts the block containing the log as the first confirmation.
func Confirmations(head uint64, block uint64) uint64 {
	if block > head {
		return 0
	}
	return head - block + 1
}

func saturatingSub(a uint64, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// trackedWallets maps lowercased wallet addresses to their user.
func (idx *Indexer) trackedWallets() (map[string]string, error) {
	wallets, err := idx.store.ListWallets()
	if err != nil {
		return nil, err
	}
	tracked := make(map[string]string, len(wallets))
	for _, w := range wallets {
		tracked[w.Address] = w.UserId
	}
	return tracked, nil
}

// Run ticks immediately and then on every poll interval until ctx is canceled. Failed ticks are logged and
// retried on the next interval.
func (idx *Indexer) Run(ctx context.Context) {
	interval := time.Duration(idx.globalConfig.IndexerConfig.PollIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}
	idx.logger.Sugar().Infow("Starting indexer", zap.Duration("pollInterval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := idx.Tick(ctx); err != nil {
			idx.logger.Sugar().Errorw("Indexer tick failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			idx.logger.Sugar().Infow("Stopping indexer")
			return
		case <-ticker.C:
		}
	}
}
