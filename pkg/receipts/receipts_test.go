package receipts

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Layr-Labs/agentpay/internal/metrics"
	"github.com/Layr-Labs/agentpay/internal/tests"
	"github.com/Layr-Labs/agentpay/pkg/eventBus"
	"github.com/Layr-Labs/agentpay/pkg/eventBus/eventBusTypes"
	"github.com/Layr-Labs/agentpay/pkg/storage/postgres"
	"github.com/stretchr/testify/assert"
)

func Test_ReceiptLedger(t *testing.T) {
	cfg := tests.GetConfig()
	l := tests.GetLogger()
	grm, err := tests.GetMigratedTestDatabase(cfg, l)
	if err != nil {
		t.Fatal(err)
	}
	defer tests.TeardownTestDatabase(grm)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := postgres.NewPostgresStore(grm, l, cfg).WithClock(clock)
	eb := eventBus.NewEventBus(metrics.NewNoopMetricsSink(), l)
	consumer := &eventBusTypes.Consumer{
		Id:      "receipts-test",
		Channel: make(chan *eventBusTypes.Event, 100),
		Context: context.Background(),
	}
	eb.Subscribe(consumer)

	ledger := NewReceiptLedger(store, eb, metrics.NewNoopMetricsSink(), l).WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	})

	t.Run("Record is idempotent and publishes once", func(t *testing.T) {
		entry := &Entry{
			UserId:          "user-1",
			Source:          Source_Orchestrator,
			ProviderEventId: "exec-1:broadcast",
			Type:            Type_ExecutionBroadcast,
			AmountCents:     1500,
			ExecId:          "exec-1",
			Counterparty:    "0x00000000000000000000000000000000000000bb",
		}
		first, created, err := ledger.Record(entry)
		assert.Nil(t, err)
		assert.True(t, created)
		assert.Equal(t, int64(-1500), first.SpendPowerDeltaCents)
		assert.Equal(t, "Sending $15.00 to 0x0000...00bb", first.Title)
		assert.Len(t, first.ReceiptId, 26)

		second, created, err := ledger.Record(entry)
		assert.Nil(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ReceiptId, second.ReceiptId)

		assert.Len(t, consumer.Channel, 1)
		event := <-consumer.Channel
		assert.Equal(t, eventBusTypes.Event_ReceiptRecorded, event.Name)
		assert.Equal(t, first.ReceiptId, event.Data.(*eventBusTypes.ReceiptRecordedData).Receipt.ReceiptId)
	})
	t.Run("Cancel before broadcast gives no spend power back", func(t *testing.T) {
		canceled, created, err := ledger.Record(&Entry{
			UserId:          "user-1",
			Source:          Source_Orchestrator,
			ProviderEventId: "exec-2:reserve_canceled",
			Type:            Type_ReserveCanceled,
			AmountCents:     900,
			ExecId:          "exec-2",
			NeverBroadcast:  true,
		})
		assert.Nil(t, err)
		assert.True(t, created)
		assert.Equal(t, int64(0), canceled.SpendPowerDeltaCents)
		assert.Equal(t, int64(900), canceled.AmountCents)
		<-consumer.Channel
	})
	t.Run("Same provider event for another source is a separate receipt", func(t *testing.T) {
		_, created, err := ledger.Record(&Entry{
			UserId:          "user-1",
			Source:          Source_Onchain,
			ProviderEventId: "exec-1:broadcast",
			Type:            Type_FundsOut,
			AmountCents:     1500,
		})
		assert.Nil(t, err)
		assert.True(t, created)
		<-consumer.Channel
	})
	t.Run("Missing fields are rejected", func(t *testing.T) {
		_, _, err := ledger.Record(&Entry{UserId: "user-1", Type: Type_FundsIn})
		assert.NotNil(t, err)
	})
	t.Run("List returns newest first and clamps the limit", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			_, _, err := ledger.Record(&Entry{
				UserId:          "user-2",
				Source:          Source_Onchain,
				ProviderEventId: fmt.Sprintf("0xabc:%d", i),
				Type:            Type_FundsIn,
				AmountCents:     int64(100 * (i + 1)),
			})
			assert.Nil(t, err)
		}

		list, err := ledger.List("user-2", 0)
		assert.Nil(t, err)
		assert.Len(t, list, 5)
		assert.Equal(t, "0xabc:4", list[0].ProviderEventId)
		assert.Equal(t, "0xabc:0", list[4].ProviderEventId)

		list, err = ledger.List("user-2", 2)
		assert.Nil(t, err)
		assert.Len(t, list, 2)
		assert.Equal(t, "0xabc:4", list[0].ProviderEventId)
	})
}

func Test_ClampLimit(t *testing.T) {
	assert.Equal(t, DefaultListLimit, ClampLimit(0))
	assert.Equal(t, DefaultListLimit, ClampLimit(-3))
	assert.Equal(t, 10, ClampLimit(10))
	assert.Equal(t, MaxListLimit, ClampLimit(5000))
}

func Test_Describe(t *testing.T) {
	t.Run("Denied quotes carry the policy reason", func(t *testing.T) {
		text := Describe(&Entry{Type: Type_QuoteDenied, AmountCents: 1500, Reason: "Daily limit exceeded"})
		assert.Equal(t, "Agent request to send $15.00 was denied", text.Title)
		assert.Equal(t, "Daily limit exceeded", text.Why)
	})
	t.Run("Step-up quotes explain approval", func(t *testing.T) {
		text := Describe(&Entry{Type: Type_QuoteCreated, AmountCents: 250_000, RequiresStepUp: true})
		assert.Contains(t, text.Title, "$2500.00")
		assert.Contains(t, text.Next, "approve")
	})
	t.Run("Failures fall back to a generic reason", func(t *testing.T) {
		text := Describe(&Entry{Type: Type_ExecutionFailed, AmountCents: 5})
		assert.Equal(t, "The transfer did not complete.", text.Why)
	})
}

func Test_SpendPowerDelta(t *testing.T) {
	assert.Equal(t, int64(-700), SpendPowerDelta(Type_ExecutionBroadcast, 700))
	assert.Equal(t, int64(700), SpendPowerDelta(Type_ReserveCanceled, 700))
	assert.Equal(t, int64(0), SpendPowerDelta(Type_ReserveReleased, 700))
	assert.Equal(t, int64(0), SpendPowerDelta(Type_QuoteDenied, 700))
}
