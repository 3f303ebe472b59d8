package storage

import (
	"time"
)

// Getters return (nil, nil) when the row does not exist.

type WalletStore interface {
	UpsertWallet(userId string, address string) (*Wallet, error)
	GetWallet(userId string) (*Wallet, error)
	ListWallets() ([]*Wallet, error)
}

type AgentTokenStore interface {
	CreateAgentToken(userId string, scopes string) (*AgentToken, error)
	GetAgentToken(agentId string) (*AgentToken, error)
	// RevokeAgentToken returns false when the agent does not belong to the user or is already revoked.
	RevokeAgentToken(userId string, agentId string) (bool, error)
}

type UserFlagsStore interface {
	GetUserFlags(userId string) (*UserFlags, error)
	SetUserFrozen(userId string, frozen bool, reason string) (*UserFlags, error)
}

type QuoteStore interface {
	// InsertQuote inserts the quote unless one already exists for (user_id, agent_id, idempotency_key),
	// in which case the existing row is returned and created is false.
	InsertQuote(quote *Quote) (q *Quote, created bool, err error)
	GetQuote(quoteId string) (*Quote, error)
	GetQuoteByIdempotencyKey(userId string, agentId string, idempotencyKey string) (*Quote, error)
}

type ExecutionStore interface {
	GetExecution(execId string) (*Execution, error)
	GetExecutionByQuoteId(quoteId string) (*Execution, error)
	GetExecutionByIdempotencyKey(userId string, agentId string, idempotencyKey string) (*Execution, error)

	// CreateReserveAndExecution writes the reserve (keyed by external_ref) and the queued execution in one
	// transaction. When another execution already holds the quote or idempotency key, nothing is written
	// and the existing execution is returned with created=false.
	CreateReserveAndExecution(reserve *Reserve, execution *Execution) (e *Execution, created bool, err error)

	// TransitionExecution moves an execution to a new status only when its current status is one of from.
	TransitionExecution(execId string, from []string, update *ExecutionUpdate) (bool, error)
	ListBroadcastExecutions() ([]*Execution, error)
	SumSpentCentsSince(userId string, agentId string, since time.Time) (int64, error)
}

type ExecutionUpdate struct {
	Status        string
	TxHash        string
	FailureReason string
}

type ReserveStore interface {
	GetReserveByExternalRef(externalRef string) (*Reserve, error)
	SumActiveReservesCents(userId string) (int64, error)
	// SettleReserve moves an active reserve to released or canceled. Settled reserves are left untouched.
	SettleReserve(externalRef string, status string) (bool, error)
}

type SpendPowerSnapshotStore interface {
	UpsertSpendPowerSnapshot(snapshot *SpendPowerSnapshot) error
	GetSpendPowerSnapshot(userId string) (*SpendPowerSnapshot, error)
}

type RpcHealthStore interface {
	GetRpcHealth(providerName string) (*RpcHealth, error)
	UpsertRpcHealth(health *RpcHealth) error
}

type OnchainTransferStore interface {
	// UpsertOnchainTransfer never flips confirmed back to false.
	UpsertOnchainTransfer(transfer *OnchainTransfer) (*OnchainTransfer, error)
}

type NormalizedEventStore interface {
	// InsertNormalizedEvent returns the existing row when (source, event_type, external_id) was already recorded.
	InsertNormalizedEvent(event *NormalizedEvent) (e *NormalizedEvent, created bool, err error)
	MarkEventProcessed(eventId string, processedAt time.Time) error
}

type ReceiptStore interface {
	// InsertReceipt is insert-or-ignore by (user_id, source, provider_event_id).
	InsertReceipt(receipt *Receipt) (r *Receipt, created bool, err error)
	ListReceipts(userId string, limit int) ([]*Receipt, error)
}

type OnchainCursorStore interface {
	GetOnchainCursor(chainId int64) (*OnchainCursor, error)
	// AdvanceOnchainCursor only ever moves the cursor forward.
	AdvanceOnchainCursor(chainId int64, block uint64) error
}

type Store interface {
	WalletStore
	AgentTokenStore
	UserFlagsStore
	QuoteStore
	ExecutionStore
	ReserveStore
	SpendPowerSnapshotStore
	RpcHealthStore
	OnchainTransferStore
	NormalizedEventStore
	ReceiptStore
	OnchainCursorStore
}
