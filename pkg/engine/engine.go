package engine

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/Layr-Labs/agentpay/internal/config"
	"github.com/Layr-Labs/agentpay/internal/metrics"
	"github.com/Layr-Labs/agentpay/pkg/clients/ethereum"
	"github.com/Layr-Labs/agentpay/pkg/eventBus"
	"github.com/Layr-Labs/agentpay/pkg/eventKernel"
	"github.com/Layr-Labs/agentpay/pkg/health"
	"github.com/Layr-Labs/agentpay/pkg/indexer"
	"github.com/Layr-Labs/agentpay/pkg/orchestrator"
	"github.com/Layr-Labs/agentpay/pkg/receipts"
	"github.com/Layr-Labs/agentpay/pkg/rpcServer"
	"github.com/Layr-Labs/agentpay/pkg/signer"
	"github.com/Layr-Labs/agentpay/pkg/spendPower"
	"github.com/Layr-Labs/agentpay/pkg/storage/postgres"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ChainClient is everything the engine reads from or sends to the chain.
type ChainClient interface {
	GetLatestBlockHeader(ctx context.Context) (*ethereum.EthereumBlockHeader, error)
	GetErc20Balance(ctx context.Context, token string, holder string) (*big.Int, error)
	GetLogs(ctx context.Context, filter *ethereum.EthereumLogFilter) ([]*ethereum.EthereumEventLog, error)
	GetTransactionReceipt(ctx context.Context, txHash string) (*ethereum.EthereumTransactionReceipt, error)
	SendRawTransaction(ctx context.Context, rawTx string) (string, error)
}

// Engine holds one constructed instance of every component, wired together.
type Engine struct {
	Logger       *zap.Logger
	GlobalConfig *config.Config
	Store        *postgres.PostgresStore
	EventBus     *eventBus.EventBus
	Health       *health.HealthMonitor
	SpendPower   *spendPower.SpendPowerEngine
	Receipts     *receipts.ReceiptLedger
	Kernel       *eventKernel.EventKernel
	Indexer      *indexer.Indexer
	Signer       signer.Signer
	Orchestrator *orchestrator.Orchestrator
	RpcServer    *rpcServer.RpcServer
	ShutdownChan chan bool

	shouldShutdown *atomic.Bool
}

func NewEngine(grm *gorm.DB, client ChainClient, ms *metrics.MetricsSink, l *zap.Logger, cfg *config.Config) (*Engine, error) {
	store := postgres.NewPostgresStore(grm, l, cfg)
	eb := eventBus.NewEventBus(ms, l)

	s, err := newSigner(client, store, l, cfg)
	if err != nil {
		return nil, err
	}

	monitor := health.NewHealthMonitor(client, store, ms, l, cfg)
	sp := spendPower.NewSpendPowerEngine(client, monitor, store, ms, l, cfg)
	ledger := receipts.NewReceiptLedger(store, eb, ms, l)
	kernel := eventKernel.NewEventKernel(store, ledger, ms, l)
	idx := indexer.NewIndexer(client, monitor, kernel, store, ms, l, cfg)
	o := orchestrator.NewOrchestrator(store, sp, monitor, s, ledger, ms, l, cfg)

	shouldShutdown := &atomic.Bool{}
	shouldShutdown.Store(false)
	return &Engine{
		Logger:         l,
		GlobalConfig:   cfg,
		Store:          store,
		EventBus:       eb,
		Health:         monitor,
		SpendPower:     sp,
		Receipts:       ledger,
		Kernel:         kernel,
		Indexer:        idx,
		Signer:         s,
		Orchestrator:   o,
		RpcServer:      rpcServer.NewRpcServer(o, monitor, eb, ms, l, cfg),
		ShutdownChan:   make(chan bool),
		shouldShutdown: shouldShutdown,
	}, nil
}

// newSigner picks the custody signer when server-custody signing is on, otherwise the signer that only relays
// user-signed transactions.
func newSigner(client ChainClient, store *postgres.PostgresStore, l *zap.Logger, cfg *config.Config) (signer.Signer, error) {
	if !cfg.SignerConfig.ServerCustody {
		return signer.NewRpcSigner(client, store, l), nil
	}
	if cfg.SignerConfig.Url == "" {
		return nil, errors.New("signer.url is required when signer.server-custody is enabled")
	}
	return signer.NewCustodySigner(cfg.SignerConfig.Url, l), nil
}

// Start runs the indexer loop and the HTTP API until ctx is canceled or a shutdown is requested.
func (e *Engine) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	watcher := e.watchShutdown(ctx, cancel)

	e.Logger.Sugar().Infow("Starting engine",
		zap.Int64("chainId", e.GlobalConfig.ChainId),
		zap.String("usdc", e.GlobalConfig.GetUsdcContractAddress()),
		zap.Bool("serverCustody", e.GlobalConfig.SignerConfig.ServerCustody),
		zap.Bool("allowDegraded", e.GlobalConfig.ExecutionConfig.AllowDegraded),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.Indexer.Run(ctx)
	}()

	err := e.RpcServer.Serve(ctx, e.GlobalConfig.RpcConfig.HttpPort)
	cancel()
	wg.Wait()
	<-watcher
	if e.ShuttingDown() {
		e.Logger.Sugar().Infow("Engine stopped on request")
	}
	return err
}

// watchShutdown cancels the engine on the first shutdown request. The returned channel closes once the
// watcher has exited, which happens as soon as ctx is done.
func (e *Engine) watchShutdown(ctx context.Context, cancel context.CancelFunc) <-chan struct{} {
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-ctx.Done():
		case <-e.ShutdownChan:
			e.Logger.Sugar().Infow("Received shutdown signal")
			e.shouldShutdown.Store(true)
			cancel()
		}
	}()
	return stopped
}

func (e *Engine) ShuttingDown() bool {
	return e.shouldShutdown.Load()
}
