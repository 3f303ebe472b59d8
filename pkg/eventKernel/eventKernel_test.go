package eventKernel

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Layr-Labs/agentpay/internal/metrics"
	"github.com/Layr-Labs/agentpay/internal/tests"
	"github.com/Layr-Labs/agentpay/pkg/receipts"
	"github.com/Layr-Labs/agentpay/pkg/storage"
	"github.com/Layr-Labs/agentpay/pkg/storage/postgres"
	"github.com/stretchr/testify/assert"
)

// countingStore records how many settlements actually changed a reserve.
type countingStore struct {
	*postgres.PostgresStore
	settled int
}

func (c *countingStore) SettleReserve(externalRef string, status string) (bool, error) {
	ok, err := c.PostgresStore.SettleReserve(externalRef, status)
	if ok {
		c.settled++
	}
	return ok, err
}

func mustJson(t *testing.T, v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func createBroadcastExecution(t *testing.T, store *postgres.PostgresStore, execId string, quoteId string) {
	_, created, err := store.CreateReserveAndExecution(&storage.Reserve{
		ReserveId:   "reserve-" + execId,
		UserId:      "user-1",
		AmountCents: 1500,
		Status:      storage.ReserveStatus_Active,
		ExternalRef: quoteId,
	}, &storage.Execution{
		ExecId:         execId,
		QuoteId:        &quoteId,
		UserId:         "user-1",
		AgentId:        "agent-1",
		Status:         storage.ExecutionStatus_Queued,
		AmountCents:    1500,
		ToAddress:      "0x00000000000000000000000000000000000000bb",
		IdempotencyKey: "key-" + execId,
	})
	assert.Nil(t, err)
	assert.True(t, created)

	ok, err := store.TransitionExecution(execId, []string{storage.ExecutionStatus_Queued}, &storage.ExecutionUpdate{
		Status: storage.ExecutionStatus_Broadcast,
		TxHash: "0xtx-" + execId,
	})
	assert.Nil(t, err)
	assert.True(t, ok)
}

func Test_EventKernel(t *testing.T) {
	cfg := tests.GetConfig()
	l := tests.GetLogger()
	grm, err := tests.GetMigratedTestDatabase(cfg, l)
	if err != nil {
		t.Fatal(err)
	}
	defer tests.TeardownTestDatabase(grm)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	pgStore := postgres.NewPostgresStore(grm, l, cfg).WithClock(func() time.Time { return now })
	store := &countingStore{PostgresStore: pgStore}
	ledger := receipts.NewReceiptLedger(pgStore, nil, metrics.NewNoopMetricsSink(), l)
	kernel := NewEventKernel(store, ledger, metrics.NewNoopMetricsSink(), l)

	t.Run("TX_CONFIRMED twice releases the reserve once", func(t *testing.T) {
		createBroadcastExecution(t, pgStore, "exec-1", "quote-1")
		event := &storage.NormalizedEvent{
			EventId:    "event-1",
			Source:     Source_Indexer,
			EventType:  EventType_TxConfirmed,
			ExternalId: "exec-1",
			UserId:     "user-1",
			Payload:    mustJson(t, &TxPayload{ExecId: "exec-1", TxHash: "0xtx-exec-1", BlockNumber: 100}),
		}

		assert.Nil(t, kernel.Process(event))
		assert.Nil(t, kernel.Process(event))
		assert.Equal(t, 1, store.settled)

		execution, err := pgStore.GetExecution("exec-1")
		assert.Nil(t, err)
		assert.Equal(t, storage.ExecutionStatus_Confirmed, execution.Status)

		reserve, err := pgStore.GetReserveByExternalRef("quote-1")
		assert.Nil(t, err)
		assert.Equal(t, storage.ReserveStatus_Released, reserve.Status)

		list, err := pgStore.ListReceipts("user-1", 50)
		assert.Nil(t, err)
		assert.Len(t, list, 2)
		types := []string{list[0].Type, list[1].Type}
		assert.ElementsMatch(t, []string{receipts.Type_ReserveReleased, receipts.Type_ExecutionConfirmed}, types)
	})
	t.Run("A failure after confirmation is ignored", func(t *testing.T) {
		settledBefore := store.settled
		event := &storage.NormalizedEvent{
			EventId:    "event-2",
			EventType:  EventType_TxFailed,
			ExternalId: "exec-1:failed",
			UserId:     "user-1",
			Payload:    mustJson(t, &TxPayload{ExecId: "exec-1"}),
		}
		assert.Nil(t, kernel.Process(event))
		assert.Equal(t, settledBefore, store.settled)

		execution, err := pgStore.GetExecution("exec-1")
		assert.Nil(t, err)
		assert.Equal(t, storage.ExecutionStatus_Confirmed, execution.Status)
	})
	t.Run("TX_FAILED cancels the reserve", func(t *testing.T) {
		createBroadcastExecution(t, pgStore, "exec-2", "quote-2")
		event := &storage.NormalizedEvent{
			EventId:    "event-3",
			EventType:  EventType_TxFailed,
			ExternalId: "exec-2",
			UserId:     "user-1",
			Payload:    mustJson(t, &TxPayload{ExecId: "exec-2"}),
		}
		assert.Nil(t, kernel.Process(event))

		execution, err := pgStore.GetExecution("exec-2")
		assert.Nil(t, err)
		assert.Equal(t, storage.ExecutionStatus_Failed, execution.Status)
		assert.Equal(t, "Transaction reverted onchain", execution.FailureReason)

		reserve, err := pgStore.GetReserveByExternalRef("quote-2")
		assert.Nil(t, err)
		assert.Equal(t, storage.ReserveStatus_Canceled, reserve.Status)

		active, err := pgStore.SumActiveReservesCents("user-1")
		assert.Nil(t, err)
		assert.Equal(t, int64(0), active)
	})
	t.Run("Funds events only write receipts", func(t *testing.T) {
		event := &storage.NormalizedEvent{
			EventId:    "event-4",
			EventType:  EventType_FundsIn,
			ExternalId: "0xabc:3",
			UserId:     "user-3",
			Payload: mustJson(t, &FundsPayload{
				TransactionHash: "0xabc",
				LogIndex:        3,
				From:            "0x00000000000000000000000000000000000000cc",
				To:              "0x00000000000000000000000000000000000000aa",
				Amount:          "25000000",
			}),
		}
		assert.Nil(t, kernel.Process(event))
		assert.Nil(t, kernel.Process(event))

		list, err := pgStore.ListReceipts("user-3", 50)
		assert.Nil(t, err)
		assert.Len(t, list, 1)
		assert.Equal(t, receipts.Type_FundsIn, list[0].Type)
		assert.Equal(t, int64(2500), list[0].AmountCents)
		assert.Equal(t, int64(2500), list[0].SpendPowerDeltaCents)
	})
	t.Run("Unknown executions are skipped", func(t *testing.T) {
		event := &storage.NormalizedEvent{
			EventId:   "event-5",
			EventType: EventType_TxConfirmed,
			Payload:   mustJson(t, &TxPayload{ExecId: "missing"}),
		}
		assert.Nil(t, kernel.Process(event))
	})
	t.Run("Unknown event types fail", func(t *testing.T) {
		err := kernel.Process(&storage.NormalizedEvent{EventId: "event-6", EventType: "SOMETHING"})
		assert.ErrorIs(t, err, ErrUnknownEventType)
	})
}
