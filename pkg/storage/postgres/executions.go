package postgres

import (
	"time"

	"github.com/Layr-Labs/agentpay/pkg/postgres/helpers"
	"github.com/Layr-Labs/agentpay/pkg/storage"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errExecutionExists = errors.New("execution already exists")

func (s *PostgresStore) InsertQuote(quote *storage.Quote) (*storage.Quote, bool, error) {
	if quote.CreatedAt.IsZero() {
		quote.CreatedAt = s.now()
	}
	res := s.Db.Clauses(clause.OnConflict{DoNothing: true}).Create(quote)
	if res.Error != nil {
		return nil, false, errors.Wrapf(res.Error, "failed to insert quote '%s'", quote.QuoteId)
	}
	if res.RowsAffected > 0 {
		return quote, true, nil
	}
	existing, err := s.GetQuoteByIdempotencyKey(quote.UserId, quote.AgentId, quote.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, errors.Errorf("quote insert for key '%s' conflicted but no row was found", quote.IdempotencyKey)
	}
	return existing, false, nil
}

func (s *PostgresStore) GetQuote(quoteId string) (*storage.Quote, error) {
	var quote storage.Quote
	return firstOrNil(s.Db.Where("quote_id = ?", quoteId).First(&quote), &quote)
}

func (s *PostgresStore) GetQuoteByIdempotencyKey(userId string, agentId string, idempotencyKey string) (*storage.Quote, error) {
	var quote storage.Quote
	res := s.Db.Where("user_id = ? and agent_id = ? and idempotency_key = ?", userId, agentId, idempotencyKey).First(&quote)
	return firstOrNil(res, &quote)
}

func (s *PostgresStore) GetExecution(execId string) (*storage.Execution, error) {
	var execution storage.Execution
	return firstOrNil(s.Db.Where("exec_id = ?", execId).First(&execution), &execution)
}

func (s *PostgresStore) GetExecutionByQuoteId(quoteId string) (*storage.Execution, error) {
	var execution storage.Execution
	return firstOrNil(s.Db.Where("quote_id = ?", quoteId).First(&execution), &execution)
}

func (s *PostgresStore) GetExecutionByIdempotencyKey(userId string, agentId string, idempotencyKey string) (*storage.Execution, error) {
	var execution storage.Execution
	res := s.Db.Where("user_id = ? and agent_id = ? and idempotency_key = ?", userId, agentId, idempotencyKey).First(&execution)
	return firstOrNil(res, &execution)
}

func (s *PostgresStore) CreateReserveAndExecution(reserve *storage.Reserve, execution *storage.Execution) (*storage.Execution, bool, error) {
	now := s.now()
	if reserve.CreatedAt.IsZero() {
		reserve.CreatedAt = now
		reserve.UpdatedAt = now
	}
	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = now
		execution.UpdatedAt = now
	}

	_, err := helpers.WrapTxAndCommit(func(tx *gorm.DB) (*storage.Execution, error) {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_ref"}},
			DoNothing: true,
		}).Create(reserve)
		if res.Error != nil {
			return nil, errors.Wrapf(res.Error, "failed to insert reserve for '%s'", reserve.ExternalRef)
		}

		res = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(execution)
		if res.Error != nil {
			return nil, errors.Wrapf(res.Error, "failed to insert execution '%s'", execution.ExecId)
		}
		if res.RowsAffected == 0 {
			return nil, errExecutionExists
		}
		return execution, nil
	}, s.Db, nil)
	if err == nil {
		return execution, true, nil
	}
	if !errors.Is(err, errExecutionExists) {
		return nil, false, err
	}

	// lost the race; hand back whichever execution won
	var existing *storage.Execution
	if execution.QuoteId != nil {
		existing, err = s.GetExecutionByQuoteId(*execution.QuoteId)
		if err != nil {
			return nil, false, err
		}
	}
	if existing == nil {
		existing, err = s.GetExecutionByIdempotencyKey(execution.UserId, execution.AgentId, execution.IdempotencyKey)
		if err != nil {
			return nil, false, err
		}
	}
	if existing == nil {
		return nil, false, errors.Errorf("execution insert for key '%s' conflicted but no row was found", execution.IdempotencyKey)
	}
	return existing, false, nil
}

func (s *PostgresStore) TransitionExecution(execId string, from []string, update *storage.ExecutionUpdate) (bool, error) {
	updates := map[string]interface{}{
		"status":     update.Status,
		"updated_at": s.now(),
	}
	if update.TxHash != "" {
		updates["tx_hash"] = update.TxHash
	}
	if update.FailureReason != "" {
		updates["failure_reason"] = update.FailureReason
	}
	res := s.Db.Model(&storage.Execution{}).
		Where("exec_id = ? and status in ?", execId, from).
		Updates(updates)
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "failed to transition execution '%s' to '%s'", execId, update.Status)
	}
	return res.RowsAffected > 0, nil
}

func (s *PostgresStore) ListBroadcastExecutions() ([]*storage.Execution, error) {
	executions := make([]*storage.Execution, 0)
	res := s.Db.Model(&storage.Execution{}).
		Where("status = ? and tx_hash <> ''", storage.ExecutionStatus_Broadcast).
		Order("created_at asc").
		Find(&executions)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "failed to list broadcast executions")
	}
	return executions, nil
}

func (s *PostgresStore) SumSpentCentsSince(userId string, agentId string, since time.Time) (int64, error) {
	var total int64
	err := s.Db.Model(&storage.Execution{}).
		Select("coalesce(sum(amount_cents), 0)").
		Where("user_id = ? and agent_id = ? and status in ? and created_at >= ?",
			userId,
			agentId,
			[]string{storage.ExecutionStatus_Queued, storage.ExecutionStatus_Broadcast, storage.ExecutionStatus_Confirmed},
			since.UTC(),
		).
		Row().
		Scan(&total)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to sum spent cents for user '%s'", userId)
	}
	return total, nil
}

func (s *PostgresStore) GetReserveByExternalRef(externalRef string) (*storage.Reserve, error) {
	var reserve storage.Reserve
	return firstOrNil(s.Db.Where("external_ref = ?", externalRef).First(&reserve), &reserve)
}

func (s *PostgresStore) SumActiveReservesCents(userId string) (int64, error) {
	var total int64
	err := s.Db.Model(&storage.Reserve{}).
		Select("coalesce(sum(amount_cents), 0)").
		Where("user_id = ? and status = ?", userId, storage.ReserveStatus_Active).
		Row().
		Scan(&total)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to sum active reserves for user '%s'", userId)
	}
	return total, nil
}

func (s *PostgresStore) SettleReserve(externalRef string, status string) (bool, error) {
	if status != storage.ReserveStatus_Released && status != storage.ReserveStatus_Canceled {
		return false, errors.Errorf("invalid reserve settlement status '%s'", status)
	}
	res := s.Db.Model(&storage.Reserve{}).
		Where("external_ref = ? and status = ?", externalRef, storage.ReserveStatus_Active).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": s.now(),
		})
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "failed to settle reserve '%s'", externalRef)
	}
	return res.RowsAffected > 0, nil
}
