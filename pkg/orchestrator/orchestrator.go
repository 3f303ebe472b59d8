package orchestrator

import (
	"context"
	"time"

	"github.com/Layr-Labs/agentpay/internal/config"
	"github.com/Layr-Labs/agentpay/internal/metrics"
	"github.com/Layr-Labs/agentpay/pkg/policy"
	"github.com/Layr-Labs/agentpay/pkg/receipts"
	"github.com/Layr-Labs/agentpay/pkg/signer"
	"github.com/Layr-Labs/agentpay/pkg/spendPower"
	"github.com/Layr-Labs/agentpay/pkg/storage"
	"github.com/Layr-Labs/agentpay/pkg/utils"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	Reason_MissingFields         = "Missing required fields"
	Reason_WalletNotFound        = "No wallet registered for user"
	Reason_UserFrozen            = "User is frozen"
	Reason_RpcHealthStale        = "RPC health stale"
	Reason_AgentNotFound         = "Agent not found"
	Reason_AgentRevoked          = "Agent is revoked"
	Reason_QuoteNotFound         = "Quote not found"
	Reason_QuoteExpired          = "Quote expired"
	Reason_QuoteNotApproved      = "Quote was not approved"
	Reason_SignedPayloadRequired = "Signed payload required"
	Reason_BroadcastFailed       = "Broadcast failed"
)

const (
	Status_RequiresStepUp = "requires_step_up"
)

var (
	ErrInvalidAddress = errors.New("invalid wallet address")
	ErrInvalidScopes  = errors.New("invalid agent scopes")
)

type SpendPowerCalculator interface {
	Calculate(ctx context.Context, userId string) (*spendPower.Breakdown, error)
}

type FreshnessReader interface {
	Freshness() (string, error)
}

type ReceiptLedger interface {
	Record(entry *receipts.Entry) (*storage.Receipt, bool, error)
	List(userId string, limit int) ([]*storage.Receipt, error)
}

type Store interface {
	storage.WalletStore
	storage.AgentTokenStore
	storage.UserFlagsStore
	storage.QuoteStore
	storage.ExecutionStore
	storage.ReserveStore
}

// Orchestrator owns the quote and execute protocol. Every write it makes is keyed by a unique constraint, so
// concurrent duplicate requests converge on the same rows without in-process locks.
type Orchestrator struct {
	store        Store
	spendPower   SpendPowerCalculator
	health       FreshnessReader
	signer       signer.Signer
	receipts     ReceiptLedger
	metricsSink  *metrics.MetricsSink
	logger       *zap.Logger
	globalConfig *config.Config
	now          func() time.Time
}

func NewOrchestrator(
	store Store,
	sp SpendPowerCalculator,
	health FreshnessReader,
	s signer.Signer,
	rl ReceiptLedger,
	ms *metrics.MetricsSink,
	l *zap.Logger,
	cfg *config.Config,
) *Orchestrator {
	return &Orchestrator{
		store:        store,
		spendPower:   sp,
		health:       health,
		signer:       s,
		receipts:     rl,
		metricsSink:  ms,
		logger:       l,
		globalConfig: cfg,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// currentFreshness is best effort; a read failure reports unknown.
func (o *Orchestrator) currentFreshness() string {
	status, err := o.health.Freshness()
	if err != nil {
		o.logger.Sugar().Warnw("Failed to read rpc freshness", zap.Error(err))
		return storage.Freshness_Unknown
	}
	return status
}

func startOfUtcDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// frozenReason returns the reason the user is frozen, or "" when they are not.
func (o *Orchestrator) frozenReason(userId string) (string, error) {
	flags, err := o.store.GetUserFlags(userId)
	if err != nil {
		return "", err
	}
	if flags == nil || !flags.Frozen {
		return "", nil
	}
	if flags.FreezeReason != "" {
		return flags.FreezeReason, nil
	}
	return Reason_UserFrozen, nil
}

// activeAgent returns the agent when it belongs to the user and is still active, otherwise a denial reason.
func (o *Orchestrator) activeAgent(userId string, agentId string) (*storage.AgentToken, string, error) {
	agent, err := o.store.GetAgentToken(agentId)
	if err != nil {
		return nil, "", err
	}
	if agent == nil || agent.UserId != userId {
		return nil, Reason_AgentNotFound, nil
	}
	if agent.Status != storage.AgentStatus_Active {
		return nil, Reason_AgentRevoked, nil
	}
	return agent, "", nil
}

// evaluate runs the policy against live spend power and today's spend for the agent.
func (o *Orchestrator) evaluate(userId string, agent *storage.AgentToken, intent policy.Intent, spendPowerCents int64) (policy.Decision, error) {
	scopes, ok := policy.ParseScopes(agent.Scopes)
	if !ok {
		// fails closed in Evaluate
		scopes = nil
	}
	dailySpent, err := o.store.SumSpentCentsSince(userId, agent.AgentId, startOfUtcDay(o.now()))
	if err != nil {
		return policy.Decision{}, err
	}
	return policy.Evaluate(intent, scopes, spendPowerCents, dailySpent), nil
}

// FreezeUser blocks (or unblocks) every quote and execution for the user.
func (o *Orchestrator) FreezeUser(ctx context.Context, userId string, frozen bool, reason string) (*storage.UserFlags, error) {
	if userId == "" {
		return nil, errors.New("user id is required")
	}
	flags, err := o.store.SetUserFrozen(userId, frozen, reason)
	if err != nil {
		return nil, err
	}

	receiptType := receipts.Type_UserUnfrozen
	if frozen {
		receiptType = receipts.Type_UserFrozen
	}
	_, _, err = o.receipts.Record(&receipts.Entry{
		UserId:          userId,
		Source:          receipts.Source_Admin,
		ProviderEventId: utils.NewId(),
		Type:            receiptType,
		Reason:          reason,
	})
	if err != nil {
		return nil, err
	}
	o.logger.Sugar().Infow("Updated user freeze",
		zap.String("userId", userId),
		zap.Bool("frozen", frozen),
	)
	return flags, nil
}

// RevokeAgent permanently revokes the agent. It returns false when the agent does not belong to the user or
// was already revoked.
func (o *Orchestrator) RevokeAgent(ctx context.Context, userId string, agentId string) (bool, error) {
	if userId == "" || agentId == "" {
		return false, errors.New("user id and agent id are required")
	}
	revoked, err := o.store.RevokeAgentToken(userId, agentId)
	if err != nil {
		return false, err
	}
	if !revoked {
		return false, nil
	}
	_, _, err = o.receipts.Record(&receipts.Entry{
		UserId:          userId,
		Source:          receipts.Source_Admin,
		ProviderEventId: agentId + ":revoked",
		Type:            receipts.Type_AgentRevoked,
	})
	if err != nil {
		return true, err
	}
	o.logger.Sugar().Infow("Revoked agent",
		zap.String("userId", userId),
		zap.String("agentId", agentId),
	)
	return true, nil
}

func (o *Orchestrator) ListReceipts(ctx context.Context, userId string, limit int) ([]*storage.Receipt, error) {
	return o.receipts.List(userId, limit)
}

// RegisterWallet links a user to the onchain address the engine reads. With server custody on, an empty
// address is filled in from the custody signer.
func (o *Orchestrator) RegisterWallet(ctx context.Context, userId string, address string) (*storage.Wallet, error) {
	if userId != "" && address == "" && o.globalConfig.SignerConfig.ServerCustody {
		custodied, err := o.signer.WalletAddress(ctx, userId)
		if err != nil {
			if errors.Is(err, signer.ErrUnknownWallet) {
				return nil, errors.Wrapf(ErrInvalidAddress, "no custodied wallet for user '%s'", userId)
			}
			return nil, errors.Wrap(err, "failed to resolve custodied wallet")
		}
		address = custodied
	}
	normalized := utils.NormalizeAddress(address)
	if userId == "" || normalized == "" {
		return nil, ErrInvalidAddress
	}
	return o.store.UpsertWallet(userId, normalized)
}

// CreateAgent issues a new active agent token with the given scopes.
func (o *Orchestrator) CreateAgent(ctx context.Context, userId string, scopesJson string) (*storage.AgentToken, error) {
	if userId == "" {
		return nil, errors.New("user id is required")
	}
	if _, ok := policy.ParseScopes(scopesJson); !ok {
		return nil, ErrInvalidScopes
	}
	return o.store.CreateAgentToken(userId, scopesJson)
}

// SpendPower computes a fresh breakdown for the user.
func (o *Orchestrator) SpendPower(ctx context.Context, userId string) (*spendPower.Breakdown, error) {
	return o.spendPower.Calculate(ctx, userId)
}
