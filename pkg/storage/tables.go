package storage

import "time"

const (
	AgentStatus_Active  = "active"
	AgentStatus_Revoked = "revoked"

	ExecutionStatus_Queued    = "queued"
	ExecutionStatus_Broadcast = "broadcast"
	ExecutionStatus_Confirmed = "confirmed"
	ExecutionStatus_Failed    = "failed"

	ReserveStatus_Active   = "active"
	ReserveStatus_Released = "released"
	ReserveStatus_Canceled = "canceled"

	Freshness_Fresh   = "fresh"
	Freshness_Stale   = "stale"
	Freshness_Unknown = "unknown"
)

// Wallet maps a user to the onchain address the engine reads balances and transfers for.
type Wallet struct {
	UserId    string `gorm:"primaryKey"`
	Address   string
	CreatedAt time.Time
}

func (Wallet) TableName() string { return "wallets" }

type AgentToken struct {
	AgentId string `gorm:"primaryKey"`
	UserId  string
	// raw JSON, parsed by the policy package
	Scopes    string
	Status    string
	CreatedAt time.Time
	RevokedAt *time.Time
}

func (AgentToken) TableName() string { return "agent_tokens" }

type UserFlags struct {
	UserId       string `gorm:"primaryKey"`
	Frozen       bool
	FreezeReason string
	UpdatedAt    time.Time
}

func (UserFlags) TableName() string { return "user_flags" }

// Quote is immutable once written.
type Quote struct {
	QuoteId        string `gorm:"primaryKey"`
	UserId         string
	AgentId        string
	IntentType     string
	ToAddress      string
	AmountCents    int64
	Allowed        bool
	RequiresStepUp bool
	Reason         string
	ExpiresAt      time.Time
	IdempotencyKey string
	CreatedAt      time.Time
}

func (Quote) TableName() string { return "quotes" }

type Execution struct {
	ExecId           string `gorm:"primaryKey"`
	QuoteId          *string
	UserId           string
	AgentId          string
	Status           string
	AmountCents      int64
	ToAddress        string
	TxHash           string
	FailureReason    string
	IdempotencyKey   string
	DegradedOverride bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (Execution) TableName() string { return "executions" }

func (e *Execution) IsTerminal() bool {
	return e.Status == ExecutionStatus_Confirmed || e.Status == ExecutionStatus_Failed
}

type Reserve struct {
	ReserveId   string `gorm:"primaryKey"`
	UserId      string
	AmountCents int64
	Status      string
	ExternalRef string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Reserve) TableName() string { return "reserves" }

type SpendPowerSnapshot struct {
	UserId                 string `gorm:"primaryKey"`
	ConfirmedBalanceCents  int64
	ActiveReservesCents    int64
	SafetyBufferCents      int64
	DegradationBufferCents int64
	SpendPowerCents        int64
	Freshness              string
	ComputedAt             time.Time
}

func (SpendPowerSnapshot) TableName() string { return "spend_power_snapshots" }

type RpcHealth struct {
	ProviderName  string `gorm:"primaryKey"`
	LastGoodAt    *time.Time
	LastGoodBlock uint64
	HeadBlockTime *time.Time
	Status        string
	LastError     string
	UpdatedAt     time.Time
}

func (RpcHealth) TableName() string { return "rpc_health" }

type OnchainTransfer struct {
	TransactionHash string `gorm:"primaryKey"`
	LogIndex        uint64 `gorm:"primaryKey"`
	BlockNumber     uint64
	FromAddress     string
	ToAddress       string
	// base units as a decimal string; transfers can exceed int64
	Amount        string
	Confirmations uint64
	Confirmed     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (OnchainTransfer) TableName() string { return "onchain_transfers" }

type NormalizedEvent struct {
	EventId     string `gorm:"primaryKey"`
	Source      string
	EventType   string
	ExternalId  string
	UserId      string
	Payload     string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

func (NormalizedEvent) TableName() string { return "normalized_events" }

// Receipt is append-only.
type Receipt struct {
	ReceiptId            string `gorm:"primaryKey"`
	UserId               string
	Source               string
	ProviderEventId      string
	Type                 string
	Title                string
	Why                  string
	Next                 string
	AmountCents          int64
	SpendPowerDeltaCents int64
	ExecId               string
	QuoteId              string
	TxHash               string
	CreatedAt            time.Time
}

func (Receipt) TableName() string { return "receipts" }

type OnchainCursor struct {
	ChainId   int64 `gorm:"primaryKey"`
	LastBlock uint64
	UpdatedAt time.Time
}

func (OnchainCursor) TableName() string { return "onchain_cursors" }
