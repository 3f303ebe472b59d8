package orchestrator

import (
	"context"
	"time"

	"github.com/Layr-Labs/agentpay/internal/metrics/metricsTypes"
	"github.com/Layr-Labs/agentpay/pkg/policy"
	"github.com/Layr-Labs/agentpay/pkg/receipts"
	"github.com/Layr-Labs/agentpay/pkg/spendPower"
	"github.com/Layr-Labs/agentpay/pkg/storage"
	"github.com/Layr-Labs/agentpay/pkg/utils"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type CanActRequest struct {
	UserId         string        `json:"user_id"`
	AgentId        string        `json:"agent_id"`
	Intent         policy.Intent `json:"intent"`
	IdempotencyKey string        `json:"idempotency_key"`
}

type CanActResponse struct {
	Allowed         bool       `json:"allowed"`
	Reason          string     `json:"reason"`
	RequiresStepUp  bool       `json:"requires_step_up"`
	QuoteId         string     `json:"quote_id,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	FreshnessStatus string     `json:"freshness_status"`
}

func (r *CanActRequest) missingFields() bool {
	return r.UserId == "" || r.AgentId == "" || r.IdempotencyKey == "" || r.Intent.Type == "" || r.Intent.To == ""
}

func quoteResponse(quote *storage.Quote, freshness string) *CanActResponse {
	expiresAt := quote.ExpiresAt
	return &CanActResponse{
		Allowed:         quote.Allowed,
		Reason:          quote.Reason,
		RequiresStepUp:  quote.RequiresStepUp,
		QuoteId:         quote.QuoteId,
		ExpiresAt:       &expiresAt,
		FreshnessStatus: freshness,
	}
}

// CanAct decides whether the agent may carry out the intent and, when it may, persists a quote that
// Execute can later redeem. Repeating a call with the same idempotency key returns the original quote.
func (o *Orchestrator) CanAct(ctx context.Context, req *CanActRequest) (*CanActResponse, error) {
	if req == nil || req.missingFields() {
		return o.deny(req, Reason_MissingFields, o.currentFreshness(), false), nil
	}

	existing, err := o.store.GetQuoteByIdempotencyKey(req.UserId, req.AgentId, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return quoteResponse(existing, o.currentFreshness()), nil
	}

	breakdown, err := o.spendPower.Calculate(ctx, req.UserId)
	if err != nil {
		if errors.Is(err, spendPower.ErrWalletNotFound) {
			return o.deny(req, Reason_WalletNotFound, o.currentFreshness(), true), nil
		}
		return nil, errors.Wrap(err, "failed to compute spend power")
	}

	frozen, err := o.frozenReason(req.UserId)
	if err != nil {
		return nil, err
	}
	if frozen != "" {
		return o.deny(req, frozen, breakdown.Freshness, true), nil
	}
	if breakdown.Freshness != storage.Freshness_Fresh {
		return o.deny(req, Reason_RpcHealthStale, breakdown.Freshness, true), nil
	}
	agent, reason, err := o.activeAgent(req.UserId, req.AgentId)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return o.deny(req, reason, breakdown.Freshness, true), nil
	}

	decision, err := o.evaluate(req.UserId, agent, req.Intent, breakdown.SpendPowerCents)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return o.deny(req, decision.Reason, breakdown.Freshness, true), nil
	}

	now := o.now()
	quote, created, err := o.store.InsertQuote(&storage.Quote{
		QuoteId:        utils.NewId(),
		UserId:         req.UserId,
		AgentId:        req.AgentId,
		IntentType:     req.Intent.Type,
		ToAddress:      utils.NormalizeAddress(req.Intent.To),
		AmountCents:    req.Intent.AmountCents,
		Allowed:        true,
		RequiresStepUp: decision.RequiresStepUp,
		Reason:         decision.Reason,
		ExpiresAt:      now.Add(time.Duration(o.globalConfig.QuoteConfig.TtlSeconds) * time.Second),
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
	})
	if err != nil {
		return nil, err
	}
	if created {
		expiresAt := quote.ExpiresAt
		_, _, err = o.receipts.Record(&receipts.Entry{
			UserId:          quote.UserId,
			Source:          receipts.Source_Orchestrator,
			ProviderEventId: quote.QuoteId + ":" + receipts.Type_QuoteCreated,
			Type:            receipts.Type_QuoteCreated,
			AmountCents:     quote.AmountCents,
			QuoteId:         quote.QuoteId,
			Reason:          quote.Reason,
			Counterparty:    quote.ToAddress,
			ExpiresAt:       &expiresAt,
			RequiresStepUp:  quote.RequiresStepUp,
		})
		if err != nil {
			return nil, err
		}
		o.emitDecision("allowed")
		o.logger.Sugar().Infow("Created quote",
			zap.String("quoteId", quote.QuoteId),
			zap.String("userId", quote.UserId),
			zap.String("agentId", quote.AgentId),
			zap.Int64("amountCents", quote.AmountCents),
			zap.Bool("requiresStepUp", quote.RequiresStepUp),
		)
	}
	return quoteResponse(quote, breakdown.Freshness), nil
}

// deny builds a denial. When record is set a quote_denied receipt is written, deduplicated by agent and
// idempotency key; requests missing required fields never reach storage.
func (o *Orchestrator) deny(req *CanActRequest, reason string, freshness string, record bool) *CanActResponse {
	o.emitDecision("denied")
	res := &CanActResponse{
		Allowed:         false,
		Reason:          reason,
		FreshnessStatus: freshness,
	}
	if !record {
		return res
	}

	_, _, err := o.receipts.Record(&receipts.Entry{
		UserId:          req.UserId,
		Source:          receipts.Source_Orchestrator,
		ProviderEventId: req.AgentId + ":" + req.IdempotencyKey + ":denied",
		Type:            receipts.Type_QuoteDenied,
		AmountCents:     req.Intent.AmountCents,
		Reason:          reason,
		Counterparty:    utils.NormalizeAddress(req.Intent.To),
	})
	if err != nil {
		o.logger.Sugar().Errorw("Failed to record denial receipt",
			zap.String("userId", req.UserId),
			zap.String("agentId", req.AgentId),
			zap.Error(err),
		)
	}
	o.logger.Sugar().Debugw("Denied intent",
		zap.String("userId", req.UserId),
		zap.String("agentId", req.AgentId),
		zap.String("reason", reason),
	)
	return res
}

func (o *Orchestrator) emitDecision(decision string) {
	_ = o.metricsSink.Incr(metricsTypes.Metric_Incr_QuoteDecision, []metricsTypes.MetricsLabel{
		{Name: "decision", Value: decision},
	}, 1)
}
