package indexer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Layr-Labs/agentpay/internal/config"
	"github.com/Layr-Labs/agentpay/internal/metrics"
	"github.com/Layr-Labs/agentpay/internal/tests"
	"github.com/Layr-Labs/agentpay/pkg/eventKernel"
	"github.com/Layr-Labs/agentpay/pkg/health"
	"github.com/Layr-Labs/agentpay/pkg/receipts"
	"github.com/Layr-Labs/agentpay/pkg/storage"
	"github.com/Layr-Labs/agentpay/pkg/storage/postgres"
	"github.com/stretchr/testify/assert"
)

const (
	aliceWallet = "0x00000000000000000000000000000000000000aa"
	bobWallet   = "0x00000000000000000000000000000000000000bb"
	strangerOne = "0x00000000000000000000000000000000000000c1"
	strangerTwo = "0x00000000000000000000000000000000000000c2"
)

type indexerFixture struct {
	chain   *tests.FakeChain
	store   *postgres.PostgresStore
	indexer *Indexer
	cfg     *config.Config
	now     time.Time
}

func setupIndexer(t *testing.T) (*indexerFixture, func()) {
	cfg := tests.GetConfig()
	l := tests.GetLogger()
	grm, err := tests.GetMigratedTestDatabase(cfg, l)
	if err != nil {
		t.Fatal(err)
	}

	f := &indexerFixture{cfg: cfg, now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }

	f.chain = tests.NewFakeChain(100, f.now)
	f.store = postgres.NewPostgresStore(grm, l, cfg).WithClock(clock)
	ms := metrics.NewNoopMetricsSink()

	monitor := health.NewHealthMonitor(f.chain, f.store, ms, l, cfg).WithClock(clock)
	ledger := receipts.NewReceiptLedger(f.store, nil, ms, l).WithClock(clock)
	kernel := eventKernel.NewEventKernel(f.store, ledger, ms, l)
	f.indexer = NewIndexer(f.chain, monitor, kernel, f.store, ms, l, cfg).WithClock(clock)

	_, err = f.store.UpsertWallet("alice", aliceWallet)
	assert.Nil(t, err)
	_, err = f.store.UpsertWallet("bob", bobWallet)
	assert.Nil(t, err)

	return f, func() { tests.TeardownTestDatabase(grm) }
}

func (f *indexerFixture) receiptTypes(t *testing.T, userId string) []string {
	list, err := f.store.ListReceipts(userId, 200)
	assert.Nil(t, err)
	out := make([]string, 0, len(list))
	for _, r := range list {
		out = append(out, r.Type)
	}
	return out
}

func Test_ScanWindowStart(t *testing.T) {
	cfg := config.IndexerConfig{LookbackBlocks: 100, ReorgBuffer: 5}

	assert.Equal(t, uint64(900), ScanWindowStart(nil, 1000, cfg))
	assert.Equal(t, uint64(0), ScanWindowStart(nil, 50, cfg))
	assert.Equal(t, uint64(995), ScanWindowStart(&storage.OnchainCursor{LastBlock: 1000}, 1010, cfg))
	assert.Equal(t, uint64(0), ScanWindowStart(&storage.OnchainCursor{LastBlock: 3}, 10, cfg))
	// the cursor can be ahead of a lagging provider
	assert.Equal(t, uint64(900), ScanWindowStart(&storage.OnchainCursor{LastBlock: 1000}, 900, cfg))
}

func Test_Confirmations(t *testing.T) {
	assert.Equal(t, uint64(1), Confirmations(100, 100))
	assert.Equal(t, uint64(3), Confirmations(102, 100))
	assert.Equal(t, uint64(0), Confirmations(99, 100))
}

func Test_IndexerTick(t *testing.T) {
	t.Run("First tick scans the lookback window in batches", func(t *testing.T) {
		f, teardown := setupIndexer(t)
		defer teardown()

		res, err := f.indexer.Tick(context.Background())
		assert.Nil(t, err)
		assert.Equal(t, uint64(100), res.Head)
		assert.Equal(t, uint64(0), res.FromBlock)
		assert.Equal(t, [][2]uint64{{0, 49}, {50, 99}, {100, 100}}, f.chain.LogCalls)

		cursor, err := f.store.GetOnchainCursor(f.cfg.ChainId)
		assert.Nil(t, err)
		assert.Equal(t, uint64(100), cursor.LastBlock)

		f.chain.LogCalls = nil
		f.chain.SetHead(110, f.now)
		res, err = f.indexer.Tick(context.Background())
		assert.Nil(t, err)
		assert.Equal(t, uint64(95), res.FromBlock)
		assert.Equal(t, [][2]uint64{{95, 110}}, f.chain.LogCalls)
	})
	t.Run("Transfers emit funds events only once confirmed", func(t *testing.T) {
		f, teardown := setupIndexer(t)
		defer teardown()
		usdc := f.cfg.GetUsdcContractAddress()

		// 25.00 USDC from an outsider to alice
		f.chain.AddTransferLog(usdc, "0xaaa1", 0, 99, strangerOne, aliceWallet, 25_000_000)

		res, err := f.indexer.Tick(context.Background())
		assert.Nil(t, err)
		assert.Equal(t, 1, res.TransfersUpserted)
		assert.Equal(t, 0, res.EventsProcessed)
		assert.Len(t, f.receiptTypes(t, "alice"), 0)

		f.chain.SetHead(101, f.now)
		res, err = f.indexer.Tick(context.Background())
		assert.Nil(t, err)
		assert.Equal(t, 1, res.EventsProcessed)
		assert.Equal(t, []string{receipts.Type_FundsIn}, f.receiptTypes(t, "alice"))

		// re-scanning the reorg buffer does not duplicate anything
		res, err = f.indexer.Tick(context.Background())
		assert.Nil(t, err)
		assert.Equal(t, 1, res.TransfersUpserted)
		assert.Equal(t, 0, res.EventsProcessed)
		assert.Len(t, f.receiptTypes(t, "alice"), 1)

		// a lagging provider never un-confirms a transfer
		f.chain.SetHead(99, f.now)
		_, err = f.indexer.Tick(context.Background())
		assert.Nil(t, err)
		var transfer storage.OnchainTransfer
		assert.Nil(t, f.store.Db.Where("transaction_hash = ?", "0xaaa1").First(&transfer).Error)
		assert.True(t, transfer.Confirmed)
		assert.Equal(t, "25000000", transfer.Amount)
	})
	t.Run("Transfers between tracked wallets notify both sides", func(t *testing.T) {
		f, teardown := setupIndexer(t)
		defer teardown()
		usdc := f.cfg.GetUsdcContractAddress()

		f.chain.AddTransferLog(usdc, "0xbbb1", 2, 90, aliceWallet, bobWallet, 1_000_000)
		res, err := f.indexer.Tick(context.Background())
		assert.Nil(t, err)
		assert.Equal(t, 2, res.EventsProcessed)
		assert.Equal(t, []string{receipts.Type_FundsOut}, f.receiptTypes(t, "alice"))
		assert.Equal(t, []string{receipts.Type_FundsIn}, f.receiptTypes(t, "bob"))
	})
	t.Run("Irrelevant logs are skipped", func(t *testing.T) {
		f, teardown := setupIndexer(t)
		defer teardown()
		usdc := f.cfg.GetUsdcContractAddress()

		f.chain.AddTransferLog(usdc, "0xccc1", 0, 90, aliceWallet, aliceWallet, 1_000_000)
		f.chain.AddTransferLog(usdc, "0xccc2", 0, 90, strangerOne, strangerTwo, 1_000_000)
		f.chain.AddTransferLog(usdc, "0xccc3", 0, 90, strangerOne, aliceWallet, 0)
		removed := f.chain.AddTransferLog(usdc, "0xccc4", 0, 90, strangerOne, aliceWallet, 5_000_000)
		removed.Removed = true
		// another token
		f.chain.AddTransferLog("0x00000000000000000000000000000000000000dd", "0xccc5", 0, 90, strangerOne, aliceWallet, 5_000_000)

		res, err := f.indexer.Tick(context.Background())
		assert.Nil(t, err)
		assert.Equal(t, 4, res.LogsSeen)
		assert.Equal(t, 1, res.TransfersUpserted)
		assert.Equal(t, 0, res.EventsProcessed)
		assert.Len(t, f.receiptTypes(t, "alice"), 0)
	})
	t.Run("Head failure fails the tick and leaves the cursor", func(t *testing.T) {
		f, teardown := setupIndexer(t)
		defer teardown()

		_, err := f.indexer.Tick(context.Background())
		assert.Nil(t, err)

		f.chain.HeadErr = errors.New("connection refused")
		f.chain.SetHead(200, f.now)
		_, err = f.indexer.Tick(context.Background())
		assert.NotNil(t, err)

		cursor, err := f.store.GetOnchainCursor(f.cfg.ChainId)
		assert.Nil(t, err)
		assert.Equal(t, uint64(100), cursor.LastBlock)
	})
	t.Run("Log fetch failure fails the tick", func(t *testing.T) {
		f, teardown := setupIndexer(t)
		defer teardown()

		f.chain.LogsErr = errors.New("query returned more than 10000 results")
		_, err := f.indexer.Tick(context.Background())
		assert.NotNil(t, err)

		cursor, err := f.store.GetOnchainCursor(f.cfg.ChainId)
		assert.Nil(t, err)
		assert.Nil(t, cursor)
	})
}

func createBroadcastExecution(t *testing.T, store *postgres.PostgresStore, execId string, txHash string) {
	quoteId := "quote-" + execId
	_, _, err := store.CreateReserveAndExecution(&storage.Reserve{
		ReserveId:   "reserve-" + execId,
		UserId:      "alice",
		AmountCents: 1500,
		Status:      storage.ReserveStatus_Active,
		ExternalRef: quoteId,
	}, &storage.Execution{
		ExecId:         execId,
		QuoteId:        &quoteId,
		UserId:         "alice",
		AgentId:        "agent-1",
		Status:         storage.ExecutionStatus_Queued,
		AmountCents:    1500,
		ToAddress:      bobWallet,
		IdempotencyKey: "key-" + execId,
	})
	assert.Nil(t, err)
	ok, err := store.TransitionExecution(execId, []string{storage.ExecutionStatus_Queued}, &storage.ExecutionUpdate{
		Status: storage.ExecutionStatus_Broadcast,
		TxHash: txHash,
	})
	assert.Nil(t, err)
	assert.True(t, ok)
}

func Test_ReconcileExecutions(t *testing.T) {
	t.Run("Confirmed once enough blocks pass", func(t *testing.T) {
		f, teardown := setupIndexer(t)
		defer teardown()

		createBroadcastExecution(t, f.store, "exec-1", "0xd001")
		f.chain.SetReceipt("0xd001", true, 99)

		res, err := f.indexer.Tick(context.Background())
		assert.Nil(t, err)
		assert.Equal(t, 0, res.ExecutionsReconciled)

		f.chain.SetHead(101, f.now)
		res, err = f.indexer.Tick(context.Background())
		assert.Nil(t, err)
		assert.Equal(t, 1, res.ExecutionsReconciled)

		execution, err := f.store.GetExecution("exec-1")
		assert.Nil(t, err)
		assert.Equal(t, storage.ExecutionStatus_Confirmed, execution.Status)

		reserve, err := f.store.GetReserveByExternalRef("quote-exec-1")
		assert.Nil(t, err)
		assert.Equal(t, storage.ReserveStatus_Released, reserve.Status)
		assert.ElementsMatch(t,
			[]string{receipts.Type_ReserveReleased, receipts.Type_ExecutionConfirmed},
			f.receiptTypes(t, "alice"),
		)

		// no longer broadcast, so nothing left to reconcile
		res, err = f.indexer.Tick(context.Background())
		assert.Nil(t, err)
		assert.Equal(t, 0, res.ExecutionsReconciled)
	})
	t.Run("Reverted transactions fail the execution", func(t *testing.T) {
		f, teardown := setupIndexer(t)
		defer teardown()

		createBroadcastExecution(t, f.store, "exec-2", "0xd002")
		f.chain.SetReceipt("0xd002", false, 100)

		reconciled, err := f.indexer.ReconcileExecutions(context.Background(), 100)
		assert.Nil(t, err)
		assert.Equal(t, 1, reconciled)

		execution, err := f.store.GetExecution("exec-2")
		assert.Nil(t, err)
		assert.Equal(t, storage.ExecutionStatus_Failed, execution.Status)

		active, err := f.store.SumActiveReservesCents("alice")
		assert.Nil(t, err)
		assert.Equal(t, int64(0), active)
	})
	t.Run("Pending transactions are left alone", func(t *testing.T) {
		f, teardown := setupIndexer(t)
		defer teardown()

		createBroadcastExecution(t, f.store, "exec-3", "0xd003")
		reconciled, err := f.indexer.ReconcileExecutions(context.Background(), 100)
		assert.Nil(t, err)
		assert.Equal(t, 0, reconciled)

		execution, err := f.store.GetExecution("exec-3")
		assert.Nil(t, err)
		assert.Equal(t, storage.ExecutionStatus_Broadcast, execution.Status)
	})
}

func Test_IndexerRun(t *testing.T) {
	f, teardown := setupIndexer(t)
	defer teardown()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.indexer.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		cursor, err := f.store.GetOnchainCursor(f.cfg.ChainId)
		return err == nil && cursor != nil && cursor.LastBlock == 100
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("indexer did not stop")
	}
}
