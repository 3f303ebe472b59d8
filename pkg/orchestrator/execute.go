package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/Layr-Labs/agentpay/internal/metrics/metricsTypes"
	"github.com/Layr-Labs/agentpay/pkg/erc20"
	"github.com/Layr-Labs/agentpay/pkg/policy"
	"github.com/Layr-Labs/agentpay/pkg/receipts"
	"github.com/Layr-Labs/agentpay/pkg/signer"
	"github.com/Layr-Labs/agentpay/pkg/storage"
	"github.com/Layr-Labs/agentpay/pkg/txCodec"
	"github.com/Layr-Labs/agentpay/pkg/types/numbers"
	"github.com/Layr-Labs/agentpay/pkg/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type ExecuteRequest struct {
	QuoteId        string `json:"quote_id"`
	IdempotencyKey string `json:"idempotency_key"`
	StepUpToken    string `json:"step_up_token,omitempty"`
	SignedPayload  string `json:"signed_payload,omitempty"`
}

// Instructions tell the caller what the user must co-sign before the execution can proceed.
type Instructions struct {
	Message   string            `json:"message"`
	TxRequest *signer.TxRequest `json:"tx_request"`
}

type ExecuteResponse struct {
	Status         string        `json:"status"`
	ExecId         string        `json:"exec_id,omitempty"`
	TxHash         string        `json:"tx_hash,omitempty"`
	FailureReason  string        `json:"failure_reason,omitempty"`
	RequiresStepUp bool          `json:"requires_step_up,omitempty"`
	Instructions   *Instructions `json:"instructions,omitempty"`
}

func failed(reason string) *ExecuteResponse {
	return &ExecuteResponse{Status: storage.ExecutionStatus_Failed, FailureReason: reason}
}

func executionResponse(e *storage.Execution) *ExecuteResponse {
	return &ExecuteResponse{
		Status:        e.Status,
		ExecId:        e.ExecId,
		TxHash:        e.TxHash,
		FailureReason: e.FailureReason,
	}
}

// Execute redeems a quote: it reserves the amount, creates the execution and broadcasts the transfer.
// Requests that fail before the reserve is written leave no state behind.
func (o *Orchestrator) Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteResponse, error) {
	if req == nil || req.QuoteId == "" || req.IdempotencyKey == "" {
		return failed(Reason_MissingFields), nil
	}

	quote, err := o.store.GetQuote(req.QuoteId)
	if err != nil {
		return nil, err
	}
	if quote == nil {
		return failed(Reason_QuoteNotFound), nil
	}
	if !quote.Allowed {
		return failed(Reason_QuoteNotApproved), nil
	}

	existing, err := o.findExecution(quote, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return executionResponse(existing), nil
	}

	if !quote.ExpiresAt.After(o.now()) {
		return failed(Reason_QuoteExpired), nil
	}

	frozen, err := o.frozenReason(quote.UserId)
	if err != nil {
		return nil, err
	}
	if frozen != "" {
		return failed(frozen), nil
	}
	agent, reason, err := o.activeAgent(quote.UserId, quote.AgentId)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return failed(reason), nil
	}

	breakdown, err := o.spendPower.Calculate(ctx, quote.UserId)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute spend power")
	}
	degraded := false
	if breakdown.Freshness != storage.Freshness_Fresh {
		if !o.globalConfig.ExecutionConfig.AllowDegraded {
			return failed(Reason_RpcHealthStale), nil
		}
		degraded = true
	}

	intent := policy.Intent{
		Type:        quote.IntentType,
		To:          quote.ToAddress,
		AmountCents: quote.AmountCents,
	}
	decision, err := o.evaluate(quote.UserId, agent, intent, breakdown.SpendPowerCents)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return failed(decision.Reason), nil
	}

	// A step-up is only approved by a transfer signed with the user's wallet. The token carries no proof.
	requiresStepUp := quote.RequiresStepUp || decision.RequiresStepUp
	if requiresStepUp && req.SignedPayload == "" {
		if req.StepUpToken != "" {
			o.logger.Sugar().Infow("Step-up token without a signed payload",
				zap.String("quoteId", quote.QuoteId),
				zap.String("agentId", quote.AgentId),
			)
		}
		txRequest, err := o.transferRequest(quote)
		if err != nil {
			return nil, err
		}
		return &ExecuteResponse{
			Status:         Status_RequiresStepUp,
			RequiresStepUp: true,
			Instructions: &Instructions{
				Message:   fmt.Sprintf("Approve sending %s to %s", numbers.FormatCents(quote.AmountCents), quote.ToAddress),
				TxRequest: txRequest,
			},
		}, nil
	}

	if req.SignedPayload != "" {
		result := txCodec.ValidateSignedTransaction(req.SignedPayload, &txCodec.Expectation{
			ChainId:      o.globalConfig.ChainId,
			TokenAddress: o.globalConfig.GetUsdcContractAddress(),
			To:           quote.ToAddress,
			AmountCents:  quote.AmountCents,
		})
		if !result.Valid {
			o.logger.Sugar().Infow("Rejected signed transaction",
				zap.String("quoteId", quote.QuoteId),
				zap.String("reason", result.Reason),
			)
			return failed(result.Reason), nil
		}
	} else if !o.globalConfig.SignerConfig.ServerCustody {
		return failed(Reason_SignedPayloadRequired), nil
	}

	now := o.now()
	quoteId := quote.QuoteId
	execution, created, err := o.store.CreateReserveAndExecution(
		&storage.Reserve{
			ReserveId:   utils.NewId(),
			UserId:      quote.UserId,
			AmountCents: quote.AmountCents,
			Status:      storage.ReserveStatus_Active,
			ExternalRef: quote.QuoteId,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		&storage.Execution{
			ExecId:           utils.NewId(),
			QuoteId:          &quoteId,
			UserId:           quote.UserId,
			AgentId:          quote.AgentId,
			Status:           storage.ExecutionStatus_Queued,
			AmountCents:      quote.AmountCents,
			ToAddress:        quote.ToAddress,
			IdempotencyKey:   req.IdempotencyKey,
			DegradedOverride: degraded,
			CreatedAt:        now,
			UpdatedAt:        now,
		},
	)
	if err != nil {
		return nil, err
	}
	if !created {
		return executionResponse(execution), nil
	}
	o.emitStatus(storage.ExecutionStatus_Queued)

	return o.broadcast(ctx, quote, execution, req.SignedPayload)
}

func (o *Orchestrator) findExecution(quote *storage.Quote, idempotencyKey string) (*storage.Execution, error) {
	existing, err := o.store.GetExecutionByQuoteId(quote.QuoteId)
	if err != nil || existing != nil {
		return existing, err
	}
	return o.store.GetExecutionByIdempotencyKey(quote.UserId, quote.AgentId, idempotencyKey)
}

// transferRequest builds the unsigned USDC transfer that carries out the quote.
func (o *Orchestrator) transferRequest(quote *storage.Quote) (*signer.TxRequest, error) {
	data, err := erc20.PackTransfer(common.HexToAddress(quote.ToAddress), numbers.CentsToBaseUnits(quote.AmountCents))
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack transfer call")
	}
	return &signer.TxRequest{
		To:      o.globalConfig.GetUsdcContractAddress(),
		Data:    hexutil.Encode(data),
		Value:   "0x0",
		ChainId: o.globalConfig.ChainId,
	}, nil
}

func (o *Orchestrator) broadcast(ctx context.Context, quote *storage.Quote, execution *storage.Execution, signedPayload string) (*ExecuteResponse, error) {
	start := time.Now()
	var txHash string
	var err error
	if signedPayload != "" {
		txHash, err = o.signer.Broadcast(ctx, execution.UserId, signedPayload)
	} else {
		var txRequest *signer.TxRequest
		txRequest, err = o.transferRequest(quote)
		if err == nil {
			txHash, err = o.signer.SignAndBroadcast(ctx, execution.UserId, txRequest)
		}
	}
	_ = o.metricsSink.Timing(metricsTypes.Metric_Timing_BroadcastLatency, time.Since(start), nil)

	if err != nil {
		return o.failBroadcast(execution, err)
	}

	_, err = o.store.TransitionExecution(execution.ExecId, []string{storage.ExecutionStatus_Queued}, &storage.ExecutionUpdate{
		Status: storage.ExecutionStatus_Broadcast,
		TxHash: txHash,
	})
	if err != nil {
		return nil, err
	}
	o.emitStatus(storage.ExecutionStatus_Broadcast)

	_, _, err = o.receipts.Record(&receipts.Entry{
		UserId:          execution.UserId,
		Source:          receipts.Source_Orchestrator,
		ProviderEventId: execution.ExecId + ":" + receipts.Type_ExecutionBroadcast,
		Type:            receipts.Type_ExecutionBroadcast,
		AmountCents:     execution.AmountCents,
		ExecId:          execution.ExecId,
		QuoteId:         quote.QuoteId,
		TxHash:          txHash,
		Counterparty:    execution.ToAddress,
	})
	if err != nil {
		return nil, err
	}
	if execution.DegradedOverride {
		_, _, err = o.receipts.Record(&receipts.Entry{
			UserId:          execution.UserId,
			Source:          receipts.Source_Orchestrator,
			ProviderEventId: execution.ExecId + ":" + receipts.Type_DegradedOverride,
			Type:            receipts.Type_DegradedOverride,
			AmountCents:     execution.AmountCents,
			ExecId:          execution.ExecId,
			QuoteId:         quote.QuoteId,
			TxHash:          txHash,
			Reason:          Reason_RpcHealthStale,
		})
		if err != nil {
			return nil, err
		}
	}

	o.logger.Sugar().Infow("Broadcast execution",
		zap.String("execId", execution.ExecId),
		zap.String("txHash", txHash),
		zap.Bool("degradedOverride", execution.DegradedOverride),
	)
	return &ExecuteResponse{
		Status: storage.ExecutionStatus_Broadcast,
		ExecId: execution.ExecId,
		TxHash: txHash,
	}, nil
}

// failBroadcast moves the execution to its terminal failed state and gives the reserve back.
func (o *Orchestrator) failBroadcast(execution *storage.Execution, cause error) (*ExecuteResponse, error) {
	reason := Reason_BroadcastFailed + ": " + cause.Error()
	o.logger.Sugar().Warnw("Broadcast failed",
		zap.String("execId", execution.ExecId),
		zap.Error(cause),
	)

	_, err := o.store.TransitionExecution(execution.ExecId, []string{storage.ExecutionStatus_Queued}, &storage.ExecutionUpdate{
		Status:        storage.ExecutionStatus_Failed,
		FailureReason: reason,
	})
	if err != nil {
		return nil, err
	}
	o.emitStatus(storage.ExecutionStatus_Failed)

	quoteId := ""
	if execution.QuoteId != nil {
		quoteId = *execution.QuoteId
	}
	if _, err := o.store.SettleReserve(quoteId, storage.ReserveStatus_Canceled); err != nil {
		return nil, err
	}

	for _, receiptType := range []string{receipts.Type_ReserveCanceled, receipts.Type_ExecutionFailed} {
		_, _, err = o.receipts.Record(&receipts.Entry{
			UserId:          execution.UserId,
			Source:          receipts.Source_Orchestrator,
			ProviderEventId: execution.ExecId + ":" + receiptType,
			Type:            receiptType,
			AmountCents:     execution.AmountCents,
			ExecId:          execution.ExecId,
			QuoteId:         quoteId,
			Reason:          reason,
			Counterparty:    execution.ToAddress,
			NeverBroadcast:  true,
		})
		if err != nil {
			return nil, err
		}
	}

	return &ExecuteResponse{
		Status:        storage.ExecutionStatus_Failed,
		ExecId:        execution.ExecId,
		FailureReason: reason,
	}, nil
}

func (o *Orchestrator) emitStatus(status string) {
	_ = o.metricsSink.Incr(metricsTypes.Metric_Incr_ExecutionStatus, []metricsTypes.MetricsLabel{
		{Name: "status", Value: status},
	}, 1)
}
