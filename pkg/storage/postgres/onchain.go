package postgres

import (
	"time"

	"github.com/Layr-Labs/agentpay/pkg/storage"
	"github.com/pkg/errors"
	"gorm.io/gorm/clause"
)

func (s *PostgresStore) UpsertSpendPowerSnapshot(snapshot *storage.SpendPowerSnapshot) error {
	res := s.Db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(snapshot)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "failed to upsert spend power snapshot for user '%s'", snapshot.UserId)
	}
	return nil
}

func (s *PostgresStore) GetSpendPowerSnapshot(userId string) (*storage.SpendPowerSnapshot, error) {
	var snapshot storage.SpendPowerSnapshot
	return firstOrNil(s.Db.Where("user_id = ?", userId).First(&snapshot), &snapshot)
}

func (s *PostgresStore) GetRpcHealth(providerName string) (*storage.RpcHealth, error) {
	var health storage.RpcHealth
	return firstOrNil(s.Db.Where("provider_name = ?", providerName).First(&health), &health)
}

func (s *PostgresStore) UpsertRpcHealth(health *storage.RpcHealth) error {
	if health.UpdatedAt.IsZero() {
		health.UpdatedAt = s.now()
	}
	res := s.Db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_name"}},
		UpdateAll: true,
	}).Create(health)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "failed to upsert rpc health for provider '%s'", health.ProviderName)
	}
	return nil
}

func (s *PostgresStore) UpsertOnchainTransfer(transfer *storage.OnchainTransfer) (*storage.OnchainTransfer, error) {
	now := s.now()
	query := `
		insert into onchain_transfers (
			transaction_hash, log_index, block_number, from_address, to_address,
			amount, confirmations, confirmed, created_at, updated_at
		) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		on conflict (transaction_hash, log_index) do update set
			block_number = excluded.block_number,
			confirmations = excluded.confirmations,
			confirmed = (onchain_transfers.confirmed or excluded.confirmed),
			updated_at = excluded.updated_at
	`
	res := s.Db.Exec(query,
		transfer.TransactionHash,
		transfer.LogIndex,
		transfer.BlockNumber,
		transfer.FromAddress,
		transfer.ToAddress,
		transfer.Amount,
		transfer.Confirmations,
		transfer.Confirmed,
		now,
		now,
	)
	if res.Error != nil {
		return nil, errors.Wrapf(res.Error, "failed to upsert transfer '%s:%d'", transfer.TransactionHash, transfer.LogIndex)
	}

	var stored storage.OnchainTransfer
	res = s.Db.Where("transaction_hash = ? and log_index = ?", transfer.TransactionHash, transfer.LogIndex).First(&stored)
	if res.Error != nil {
		return nil, errors.Wrapf(res.Error, "failed to read back transfer '%s:%d'", transfer.TransactionHash, transfer.LogIndex)
	}
	return &stored, nil
}

func (s *PostgresStore) InsertNormalizedEvent(event *storage.NormalizedEvent) (*storage.NormalizedEvent, bool, error) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}
	res := s.Db.Clauses(clause.OnConflict{DoNothing: true}).Create(event)
	if res.Error != nil {
		return nil, false, errors.Wrapf(res.Error, "failed to insert event '%s'", event.ExternalId)
	}
	if res.RowsAffected > 0 {
		return event, true, nil
	}

	var existing storage.NormalizedEvent
	res = s.Db.Where("source = ? and event_type = ? and external_id = ?", event.Source, event.EventType, event.ExternalId).First(&existing)
	if res.Error != nil {
		return nil, false, errors.Wrapf(res.Error, "failed to fetch existing event '%s'", event.ExternalId)
	}
	return &existing, false, nil
}

func (s *PostgresStore) MarkEventProcessed(eventId string, processedAt time.Time) error {
	res := s.Db.Model(&storage.NormalizedEvent{}).
		Where("event_id = ? and processed_at is null", eventId).
		Update("processed_at", processedAt.UTC())
	if res.Error != nil {
		return errors.Wrapf(res.Error, "failed to mark event '%s' processed", eventId)
	}
	return nil
}

func (s *PostgresStore) InsertReceipt(receipt *storage.Receipt) (*storage.Receipt, bool, error) {
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = s.now()
	}
	res := s.Db.Clauses(clause.OnConflict{DoNothing: true}).Create(receipt)
	if res.Error != nil {
		return nil, false, errors.Wrapf(res.Error, "failed to insert receipt '%s'", receipt.ProviderEventId)
	}
	if res.RowsAffected > 0 {
		return receipt, true, nil
	}

	var existing storage.Receipt
	res = s.Db.Where("user_id = ? and source = ? and provider_event_id = ?", receipt.UserId, receipt.Source, receipt.ProviderEventId).First(&existing)
	if res.Error != nil {
		return nil, false, errors.Wrapf(res.Error, "failed to fetch existing receipt '%s'", receipt.ProviderEventId)
	}
	return &existing, false, nil
}

func (s *PostgresStore) ListReceipts(userId string, limit int) ([]*storage.Receipt, error) {
	receipts := make([]*storage.Receipt, 0)
	res := s.Db.Model(&storage.Receipt{}).
		Where("user_id = ?", userId).
		Order("created_at desc, receipt_id desc").
		Limit(limit).
		Find(&receipts)
	if res.Error != nil {
		return nil, errors.Wrapf(res.Error, "failed to list receipts for user '%s'", userId)
	}
	return receipts, nil
}

func (s *PostgresStore) GetOnchainCursor(chainId int64) (*storage.OnchainCursor, error) {
	var cursor storage.OnchainCursor
	return firstOrNil(s.Db.Where("chain_id = ?", chainId).First(&cursor), &cursor)
}

func (s *PostgresStore) AdvanceOnchainCursor(chainId int64, block uint64) error {
	query := `
		insert into onchain_cursors (chain_id, last_block, updated_at)
		values (?, ?, ?)
		on conflict (chain_id) do update set
			last_block = excluded.last_block,
			updated_at = excluded.updated_at
		where onchain_cursors.last_block < excluded.last_block
	`
	res := s.Db.Exec(query, chainId, block, s.now())
	if res.Error != nil {
		return errors.Wrapf(res.Error, "failed to advance cursor for chain '%d'", chainId)
	}
	return nil
}
