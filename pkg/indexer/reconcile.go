package indexer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Layr-Labs/agentpay/pkg/eventKernel"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ReconcileExecutions looks up the receipt of every broadcast execution. Reverted transactions become
// TX_FAILED and sufficiently confirmed ones TX_CONFIRMED; pending ones are left for a later tick. A receipt
// lookup failure only skips that execution.
func (idx *Indexer) ReconcileExecutions(ctx context.Context, head uint64) (int, error) {
	executions, err := idx.store.ListBroadcastExecutions()
	if err != nil {
		return 0, err
	}

	reconciled := 0
	for _, execution := range executions {
		receipt, err := idx.client.GetTransactionReceipt(ctx, execution.TxHash)
		if err != nil {
			idxErr := NewIndexError(IndexError_FailedToFetchReceipt, err).WithTransactionHash(execution.TxHash)
			idx.logger.Sugar().Warnw("Failed to fetch receipt for broadcast execution",
				zap.String("execId", execution.ExecId),
				zap.Error(idxErr),
			)
			continue
		}
		if receipt == nil {
			continue
		}

		block := receipt.BlockNumber.Value()
		payload := &eventKernel.TxPayload{
			ExecId:      execution.ExecId,
			TxHash:      execution.TxHash,
			BlockNumber: block,
		}

		var eventType string
		switch {
		case !receipt.Succeeded():
			eventType = eventKernel.EventType_TxFailed
			payload.Reason = "Transaction reverted onchain"
		case Confirmations(head, block) >= idx.globalConfig.IndexerConfig.Confirmations:
			eventType = eventKernel.EventType_TxConfirmed
		default:
			idx.logger.Sugar().Debugw("Execution awaiting confirmations",
				zap.String("execId", execution.ExecId),
				zap.Uint64("confirmations", Confirmations(head, block)),
			)
			continue
		}

		encoded, err := json.Marshal(payload)
		if err != nil {
			return reconciled, errors.Wrap(err, "failed to encode tx payload")
		}
		externalId := fmt.Sprintf("%s:%s", execution.ExecId, execution.TxHash)
		ok, err := idx.deliver(eventType, externalId, execution.UserId, string(encoded))
		if err != nil {
			return reconciled, err
		}
		if ok {
			reconciled++
		}
	}
	return reconciled, nil
}
