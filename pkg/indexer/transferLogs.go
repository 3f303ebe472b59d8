package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Layr-Labs/agentpay/internal/metrics/metricsTypes"
	"github.com/Layr-Labs/agentpay/pkg/clients/ethereum"
	"github.com/Layr-Labs/agentpay/pkg/erc20"
	"github.com/Layr-Labs/agentpay/pkg/eventKernel"
	"github.com/Layr-Labs/agentpay/pkg/storage"
	"github.com/Layr-Labs/agentpay/pkg/utils"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// scanTransfers fetches Transfer logs for the configured token in spans of at most BatchSize blocks.
func (idx *Indexer) scanTransfers(ctx context.Context, result *TickResult, tracked map[string]string) error {
	batchSize := idx.globalConfig.IndexerConfig.BatchSize
	if batchSize == 0 {
		batchSize = result.Head - result.FromBlock + 1
	}
	token := idx.globalConfig.GetUsdcContractAddress()
	topic := ethereum.EthereumHexString(strings.ToLower(erc20.TransferEventTopic.Hex()))

	for from := result.FromBlock; from <= result.Head; from += batchSize {
		to := from + batchSize - 1
		if to > result.Head {
			to = result.Head
		}
		logs, err := idx.client.GetLogs(ctx, &ethereum.EthereumLogFilter{
			FromBlock: ethereum.EthereumQuantity(from),
			ToBlock:   ethereum.EthereumQuantity(to),
			Address:   ethereum.EthereumHexString(token),
			Topics:    []ethereum.EthereumHexString{topic},
		})
		if err != nil {
			idxErr := NewIndexError(IndexError_FailedToFetchLogs, err).WithBlockNumber(from)
			idx.logger.Sugar().Errorw("Failed to fetch transfer logs",
				zap.Uint64("fromBlock", from),
				zap.Uint64("toBlock", to),
				zap.Error(err),
			)
			return idxErr
		}
		idx.logger.Sugar().Debugw("Fetched transfer logs",
			zap.Uint64("fromBlock", from),
			zap.Uint64("toBlock", to),
			zap.Int("count", len(logs)),
		)

		for _, log := range logs {
			result.LogsSeen++
			upserted, processed, err := idx.handleTransferLog(log, result.Head, tracked)
			if err != nil {
				return err
			}
			if upserted {
				result.TransfersUpserted++
			}
			result.EventsProcessed += processed
		}

		// guards against wrapping when Head is near the top of the uint64 range
		if to == result.Head {
			break
		}
	}
	return nil
}

// handleTransferLog mirrors one Transfer log and, once it is confirmed, hands FUNDS_IN / FUNDS_OUT events to
// the kernel for each tracked side. Logs that cannot be decoded are skipped.
func (idx *Indexer) handleTransferLog(log *ethereum.EthereumEventLog, head uint64, tracked map[string]string) (bool, int, error) {
	if log.Removed {
		return false, 0, nil
	}
	txHash := log.TransactionHash.Value()
	logIndex := log.LogIndex.Value()
	block := log.BlockNumber.Value()

	parsed, err := erc20.ParseTransferLog(log.TopicStrings(), log.Data.Value())
	if err != nil {
		idxErr := NewIndexError(IndexError_FailedToDecodeLog, err).
			WithBlockNumber(block).
			WithTransactionHash(txHash).
			WithLogIndex(logIndex)
		idx.logger.Sugar().Warnw("Skipping undecodable transfer log", zap.Error(idxErr))
		return false, 0, nil
	}

	from := strings.ToLower(parsed.From.Hex())
	to := strings.ToLower(parsed.To.Hex())
	if utils.AreAddressesEqual(from, to) {
		return false, 0, nil
	}
	fromUser, fromTracked := tracked[from]
	toUser, toTracked := tracked[to]
	if !fromTracked && !toTracked {
		return false, 0, nil
	}

	confirmations := Confirmations(head, block)
	stored, err := idx.store.UpsertOnchainTransfer(&storage.OnchainTransfer{
		TransactionHash: txHash,
		LogIndex:        logIndex,
		BlockNumber:     block,
		FromAddress:     from,
		ToAddress:       to,
		Amount:          parsed.Amount.String(),
		Confirmations:   confirmations,
		Confirmed:       confirmations >= idx.globalConfig.IndexerConfig.Confirmations,
	})
	if err != nil {
		return false, 0, err
	}
	_ = idx.metricsSink.Incr(metricsTypes.Metric_Incr_TransferIndexed, []metricsTypes.MetricsLabel{
		{Name: "confirmed", Value: fmt.Sprintf("%t", stored.Confirmed)},
	}, 1)

	if !stored.Confirmed || parsed.Amount.Sign() <= 0 {
		return true, 0, nil
	}

	payload, err := json.Marshal(&eventKernel.FundsPayload{
		TransactionHash: txHash,
		LogIndex:        logIndex,
		BlockNumber:     block,
		From:            from,
		To:              to,
		Amount:          parsed.Amount.String(),
	})
	if err != nil {
		return true, 0, errors.Wrap(err, "failed to encode funds payload")
	}
	externalId := fmt.Sprintf("%s:%d", txHash, logIndex)

	processed := 0
	if fromTracked {
		ok, err := idx.deliver(eventKernel.EventType_FundsOut, externalId, fromUser, string(payload))
		if err != nil {
			return true, processed, err
		}
		if ok {
			processed++
		}
	}
	if toTracked {
		ok, err := idx.deliver(eventKernel.EventType_FundsIn, externalId, toUser, string(payload))
		if err != nil {
			return true, processed, err
		}
		if ok {
			processed++
		}
	}
	return true, processed, nil
}

// deliver records the normalized event and hands it to the kernel unless it was already processed. The
// event is marked processed only after the kernel succeeds, so a failure is retried on the next tick.
func (idx *Indexer) deliver(eventType string, externalId string, userId string, payload string) (bool, error) {
	event, _, err := idx.store.InsertNormalizedEvent(&storage.NormalizedEvent{
		EventId:    utils.NewId(),
		Source:     eventKernel.Source_Indexer,
		EventType:  eventType,
		ExternalId: externalId,
		UserId:     userId,
		Payload:    payload,
	})
	if err != nil {
		return false, NewIndexError(IndexError_FailedToStoreEvent, err)
	}
	if event.ProcessedAt != nil {
		return false, nil
	}

	if err := idx.kernel.Process(event); err != nil {
		return false, err
	}
	if err := idx.store.MarkEventProcessed(event.EventId, idx.now()); err != nil {
		return false, err
	}
	return true, nil
}
