package receipts

import (
	"fmt"
	"time"

	"github.com/Layr-Labs/agentpay/internal/metrics"
	"github.com/Layr-Labs/agentpay/internal/metrics/metricsTypes"
	"github.com/Layr-Labs/agentpay/pkg/eventBus/eventBusTypes"
	"github.com/Layr-Labs/agentpay/pkg/storage"
	"github.com/Layr-Labs/agentpay/pkg/types/numbers"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	Source_Orchestrator = "orchestrator"
	Source_Onchain      = "onchain"
	Source_Admin        = "admin"
)

const (
	Type_QuoteCreated       = "quote_created"
	Type_QuoteDenied        = "quote_denied"
	Type_ExecutionBroadcast = "execution_broadcast"
	Type_ExecutionConfirmed = "execution_confirmed"
	Type_ExecutionFailed    = "execution_failed"
	Type_ReserveReleased    = "reserve_released"
	Type_ReserveCanceled    = "reserve_canceled"
	Type_DegradedOverride   = "degraded_override"
	Type_FundsIn            = "funds_in"
	Type_FundsOut           = "funds_out"
	Type_UserFrozen         = "user_frozen"
	Type_UserUnfrozen       = "user_unfrozen"
	Type_AgentRevoked       = "agent_revoked"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Entry is what a producer knows about a state change. The ledger turns it into receipt text.
type Entry struct {
	UserId          string
	Source          string
	ProviderEventId string
	Type            string
	AmountCents     int64
	ExecId          string
	QuoteId         string
	TxHash          string
	// Reason is the policy or failure reason, when there is one.
	Reason string
	// Counterparty is the other side of a transfer.
	Counterparty string
	// ExpiresAt is set for quotes.
	ExpiresAt      *time.Time
	RequiresStepUp bool
	// NeverBroadcast marks changes for an execution that never reached the chain. No broadcast receipt
	// took spend power for it, so these entries give none back.
	NeverBroadcast bool
}

type ReceiptLedger struct {
	store       storage.ReceiptStore
	eventBus    eventBusTypes.IEventBus
	metricsSink *metrics.MetricsSink
	logger      *zap.Logger
	now         func() time.Time
}

func NewReceiptLedger(store storage.ReceiptStore, eb eventBusTypes.IEventBus, ms *metrics.MetricsSink, l *zap.Logger) *ReceiptLedger {
	return &ReceiptLedger{
		store:       store,
		eventBus:    eb,
		metricsSink: ms,
		logger:      l,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (r *ReceiptLedger) WithClock(now func() time.Time) *ReceiptLedger {
	r.now = now
	return r
}

// Record writes the receipt unless one already exists for (user, source, provider event id). Only newly
// written receipts are published.
func (r *ReceiptLedger) Record(entry *Entry) (*storage.Receipt, bool, error) {
	if entry.UserId == "" || entry.Source == "" || entry.ProviderEventId == "" || entry.Type == "" {
		return nil, false, errors.New("receipt requires user, source, provider event id and type")
	}
	now := r.now()
	text := Describe(entry)
	delta := SpendPowerDelta(entry.Type, entry.AmountCents)
	if entry.NeverBroadcast {
		delta = 0
	}

	receipt := &storage.Receipt{
		ReceiptId:            ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		UserId:               entry.UserId,
		Source:               entry.Source,
		ProviderEventId:      entry.ProviderEventId,
		Type:                 entry.Type,
		Title:                text.Title,
		Why:                  text.Why,
		Next:                 text.Next,
		AmountCents:          entry.AmountCents,
		SpendPowerDeltaCents: delta,
		ExecId:               entry.ExecId,
		QuoteId:              entry.QuoteId,
		TxHash:               entry.TxHash,
		CreatedAt:            now,
	}

	stored, created, err := r.store.InsertReceipt(receipt)
	if err != nil {
		r.logger.Sugar().Errorw("Failed to record receipt",
			zap.String("userId", entry.UserId),
			zap.String("type", entry.Type),
			zap.String("providerEventId", entry.ProviderEventId),
			zap.Error(err),
		)
		return nil, false, err
	}
	if !created {
		r.logger.Sugar().Debugw("Receipt already recorded",
			zap.String("receiptId", stored.ReceiptId),
			zap.String("providerEventId", entry.ProviderEventId),
		)
		return stored, false, nil
	}

	_ = r.metricsSink.Incr(metricsTypes.Metric_Incr_ReceiptRecorded, []metricsTypes.MetricsLabel{
		{Name: "type", Value: stored.Type},
	}, 1)
	if r.eventBus != nil {
		r.eventBus.Publish(&eventBusTypes.Event{
			Name: eventBusTypes.Event_ReceiptRecorded,
			Data: &eventBusTypes.ReceiptRecordedData{Receipt: stored},
		})
	}
	return stored, true, nil
}

// List returns the newest receipts first. A non-positive limit means the default; limits are capped.
func (r *ReceiptLedger) List(userId string, limit int) ([]*storage.Receipt, error) {
	return r.store.ListReceipts(userId, ClampLimit(limit))
}

func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// SpendPowerDelta is the effect the recorded change has on the user's spend power.
func SpendPowerDelta(receiptType string, amountCents int64) int64 {
	switch receiptType {
	case Type_ExecutionBroadcast, Type_FundsOut:
		return -amountCents
	case Type_ReserveCanceled, Type_FundsIn:
		return amountCents
	default:
		return 0
	}
}

type Text struct {
	Title string
	Why   string
	Next  string
}

// Describe renders what happened, why, and what happens next.
func Describe(e *Entry) Text {
	amount := numbers.FormatCents(e.AmountCents)
	to := shortAddress(e.Counterparty)

	switch e.Type {
	case Type_QuoteCreated:
		next := "The agent can execute this transfer until the quote expires."
		if e.ExpiresAt != nil {
			next = fmt.Sprintf("The agent can execute this transfer until %s.", e.ExpiresAt.UTC().Format(time.RFC3339))
		}
		why := "The request passed every spend policy check."
		if e.RequiresStepUp {
			why = "The request passed the spend policy but is above your approval threshold."
			next = "You will be asked to approve and sign the transfer before it is sent."
		}
		return Text{Title: fmt.Sprintf("Quote approved: send %s to %s", amount, to), Why: why, Next: next}
	case Type_QuoteDenied:
		return Text{
			Title: fmt.Sprintf("Agent request to send %s was denied", amount),
			Why:   e.Reason,
			Next:  "Nothing was reserved or sent.",
		}
	case Type_ExecutionBroadcast:
		return Text{
			Title: fmt.Sprintf("Sending %s to %s", amount, to),
			Why:   "The transfer was signed and submitted to the network.",
			Next:  "The amount stays reserved until the transfer is confirmed onchain.",
		}
	case Type_ExecutionConfirmed:
		return Text{
			Title: fmt.Sprintf("Sent %s to %s", amount, to),
			Why:   "The transfer reached the required number of confirmations.",
			Next:  "No further action is needed.",
		}
	case Type_ExecutionFailed:
		return Text{
			Title: fmt.Sprintf("Transfer of %s to %s failed", amount, to),
			Why:   withDefault(e.Reason, "The transfer did not complete."),
			Next:  "No funds left your wallet. The agent may request a new transfer.",
		}
	case Type_ReserveReleased:
		return Text{
			Title: fmt.Sprintf("Released %s hold", amount),
			Why:   "The transfer it was held for is confirmed, so the balance already reflects it.",
			Next:  "Your spend power is now based on the updated balance.",
		}
	case Type_ReserveCanceled:
		return Text{
			Title: fmt.Sprintf("Canceled %s hold", amount),
			Why:   "The transfer it was held for did not go through.",
			Next:  "The amount is available to spend again.",
		}
	case Type_DegradedOverride:
		return Text{
			Title: fmt.Sprintf("Sent %s while chain data was stale", amount),
			Why:   "Degraded execution is enabled, so the transfer proceeded without fresh chain data.",
			Next:  "The transfer is tracked like any other and will be reconciled once the chain is reachable.",
		}
	case Type_FundsIn:
		return Text{
			Title: fmt.Sprintf("Received %s from %s", amount, to),
			Why:   "A confirmed USDC transfer into your wallet was observed onchain.",
			Next:  "The funds count toward your spend power.",
		}
	case Type_FundsOut:
		return Text{
			Title: fmt.Sprintf("%s left your wallet to %s", amount, to),
			Why:   "A confirmed USDC transfer out of your wallet was observed onchain.",
			Next:  "Your spend power reflects the lower balance.",
		}
	case Type_UserFrozen:
		return Text{
			Title: "Agent spending frozen",
			Why:   withDefault(e.Reason, "Spending was frozen for this account."),
			Next:  "Agents cannot quote or send until spending is unfrozen.",
		}
	case Type_UserUnfrozen:
		return Text{
			Title: "Agent spending resumed",
			Why:   "The freeze on this account was lifted.",
			Next:  "Agents can request transfers again within their limits.",
		}
	case Type_AgentRevoked:
		return Text{
			Title: "Agent access revoked",
			Why:   "The agent's token was revoked.",
			Next:  "The agent can no longer quote or send. Revocation cannot be undone.",
		}
	default:
		return Text{Title: e.Type, Why: e.Reason}
	}
}

func shortAddress(address string) string {
	if len(address) < 12 {
		if address == "" {
			return "unknown"
		}
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

func withDefault(value string, def string) string {
	if value == "" {
		return def
	}
	return value
}
