package eventKernel

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/Layr-Labs/agentpay/internal/metrics"
	"github.com/Layr-Labs/agentpay/internal/metrics/metricsTypes"
	"github.com/Layr-Labs/agentpay/pkg/receipts"
	"github.com/Layr-Labs/agentpay/pkg/storage"
	"github.com/Layr-Labs/agentpay/pkg/types/numbers"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	EventType_FundsIn     = "FUNDS_IN"
	EventType_FundsOut    = "FUNDS_OUT"
	EventType_TxConfirmed = "TX_CONFIRMED"
	EventType_TxFailed    = "TX_FAILED"
)

const Source_Indexer = "onchain_indexer"

var ErrUnknownEventType = errors.New("unknown event type")

// FundsPayload describes a confirmed USDC transfer touching a tracked wallet.
type FundsPayload struct {
	TransactionHash string `json:"transaction_hash"`
	LogIndex        uint64 `json:"log_index"`
	BlockNumber     uint64 `json:"block_number"`
	From            string `json:"from"`
	To              string `json:"to"`
	// base units
	Amount string `json:"amount"`
}

// TxPayload describes the onchain outcome of a broadcast execution.
type TxPayload struct {
	ExecId      string `json:"exec_id"`
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	Reason      string `json:"reason,omitempty"`
}

type Store interface {
	storage.ExecutionStore
	storage.ReserveStore
}

type ReceiptRecorder interface {
	Record(entry *receipts.Entry) (*storage.Receipt, bool, error)
}

// EventKernel applies normalized events to execution and reserve state. Every handler is safe to run more
// than once for the same event.
type EventKernel struct {
	store       Store
	receipts    ReceiptRecorder
	metricsSink *metrics.MetricsSink
	logger      *zap.Logger
}

func NewEventKernel(store Store, rr ReceiptRecorder, ms *metrics.MetricsSink, l *zap.Logger) *EventKernel {
	return &EventKernel{
		store:       store,
		receipts:    rr,
		metricsSink: ms,
		logger:      l,
	}
}

func (k *EventKernel) Process(event *storage.NormalizedEvent) error {
	k.logger.Sugar().Debugw("Processing event",
		zap.String("eventId", event.EventId),
		zap.String("eventType", event.EventType),
		zap.String("externalId", event.ExternalId),
	)

	var err error
	switch event.EventType {
	case EventType_FundsIn, EventType_FundsOut:
		err = k.handleFunds(event)
	case EventType_TxConfirmed:
		err = k.handleTxOutcome(event, storage.ExecutionStatus_Confirmed)
	case EventType_TxFailed:
		err = k.handleTxOutcome(event, storage.ExecutionStatus_Failed)
	default:
		err = errors.Wrapf(ErrUnknownEventType, "'%s'", event.EventType)
	}
	if err != nil {
		k.logger.Sugar().Errorw("Failed to process event",
			zap.String("eventId", event.EventId),
			zap.String("eventType", event.EventType),
			zap.Error(err),
		)
		return err
	}
	_ = k.metricsSink.Incr(metricsTypes.Metric_Incr_EventProcessed, []metricsTypes.MetricsLabel{
		{Name: "event_type", Value: event.EventType},
	}, 1)
	return nil
}

func (k *EventKernel) handleFunds(event *storage.NormalizedEvent) error {
	payload := &FundsPayload{}
	if err := json.Unmarshal([]byte(event.Payload), payload); err != nil {
		return errors.Wrap(err, "failed to decode funds payload")
	}
	amount, ok := new(big.Int).SetString(payload.Amount, 10)
	if !ok {
		return errors.Errorf("invalid transfer amount '%s'", payload.Amount)
	}

	entry := &receipts.Entry{
		UserId:          event.UserId,
		Source:          Source_Indexer,
		ProviderEventId: fmt.Sprintf("%s:%s", event.EventType, event.ExternalId),
		Type:            receipts.Type_FundsIn,
		AmountCents:     numbers.BaseUnitsToCents(amount),
		TxHash:          payload.TransactionHash,
		Counterparty:    payload.From,
	}
	if event.EventType == EventType_FundsOut {
		entry.Type = receipts.Type_FundsOut
		entry.Counterparty = payload.To
	}
	_, created, err := k.receipts.Record(entry)
	if err != nil {
		return err
	}
	if created {
		k.logger.Sugar().Infow("Recorded funds movement",
			zap.String("userId", event.UserId),
			zap.String("type", entry.Type),
			zap.String("amount", numbers.FormatBaseUnits(amount)),
			zap.String("txHash", payload.TransactionHash),
		)
	}
	return nil
}

// handleTxOutcome moves a broadcast execution to a terminal status and settles its reserve. When the
// execution is already in the target status the transition is skipped, but settlement and receipts still
// run so a crash between the steps is repaired on redelivery.
func (k *EventKernel) handleTxOutcome(event *storage.NormalizedEvent, target string) error {
	payload := &TxPayload{}
	if err := json.Unmarshal([]byte(event.Payload), payload); err != nil {
		return errors.Wrap(err, "failed to decode tx payload")
	}

	update := &storage.ExecutionUpdate{Status: target}
	if target == storage.ExecutionStatus_Failed {
		update.FailureReason = withDefault(payload.Reason, "Transaction reverted onchain")
	}
	transitioned, err := k.store.TransitionExecution(payload.ExecId, []string{
		storage.ExecutionStatus_Queued,
		storage.ExecutionStatus_Broadcast,
	}, update)
	if err != nil {
		return err
	}

	execution, err := k.store.GetExecution(payload.ExecId)
	if err != nil {
		return err
	}
	if execution == nil {
		k.logger.Sugar().Warnw("Event references an unknown execution", zap.String("execId", payload.ExecId))
		return nil
	}
	if !transitioned && !execution.IsTerminal() {
		k.logger.Sugar().Warnw("Outcome arrived for an execution in an unexpected status",
			zap.String("execId", execution.ExecId),
			zap.String("status", execution.Status),
			zap.String("eventType", event.EventType),
		)
		return nil
	}
	if !transitioned && execution.Status != target {
		k.logger.Sugar().Warnw("Execution already settled with a different outcome",
			zap.String("execId", execution.ExecId),
			zap.String("status", execution.Status),
			zap.String("eventType", event.EventType),
		)
		return nil
	}

	reserveStatus := storage.ReserveStatus_Released
	reserveReceipt := receipts.Type_ReserveReleased
	executionReceipt := receipts.Type_ExecutionConfirmed
	if target == storage.ExecutionStatus_Failed {
		reserveStatus = storage.ReserveStatus_Canceled
		reserveReceipt = receipts.Type_ReserveCanceled
		executionReceipt = receipts.Type_ExecutionFailed
	}

	quoteId := ""
	if execution.QuoteId != nil {
		quoteId = *execution.QuoteId
		settled, err := k.store.SettleReserve(quoteId, reserveStatus)
		if err != nil {
			return err
		}
		if settled {
			k.logger.Sugar().Infow("Settled reserve",
				zap.String("quoteId", quoteId),
				zap.String("status", reserveStatus),
			)
		}
	}

	for _, receiptType := range []string{reserveReceipt, executionReceipt} {
		_, _, err := k.receipts.Record(&receipts.Entry{
			UserId:          execution.UserId,
			Source:          Source_Indexer,
			ProviderEventId: fmt.Sprintf("%s:%s", execution.ExecId, receiptType),
			Type:            receiptType,
			AmountCents:     execution.AmountCents,
			ExecId:          execution.ExecId,
			QuoteId:         quoteId,
			TxHash:          execution.TxHash,
			Reason:          execution.FailureReason,
			Counterparty:    execution.ToAddress,
		})
		if err != nil {
			return err
		}
	}

	if transitioned {
		_ = k.metricsSink.Incr(metricsTypes.Metric_Incr_ExecutionStatus, []metricsTypes.MetricsLabel{
			{Name: "status", Value: target},
		}, 1)
	}
	return nil
}

func withDefault(value string, def string) string {
	if value == "" {
		return def
	}
	return value
}
