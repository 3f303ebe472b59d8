package postgres

import (
	"github.com/Layr-Labs/agentpay/pkg/storage"
	"github.com/Layr-Labs/agentpay/pkg/utils"
	"github.com/pkg/errors"
	"gorm.io/gorm/clause"
)

func (s *PostgresStore) UpsertWallet(userId string, address string) (*storage.Wallet, error) {
	wallet := &storage.Wallet{
		UserId:    userId,
		Address:   utils.NormalizeAddress(address),
		CreatedAt: s.now(),
	}
	res := s.Db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"address"}),
	}).Create(wallet)
	if res.Error != nil {
		return nil, errors.Wrapf(res.Error, "failed to upsert wallet for user '%s'", userId)
	}
	return s.GetWallet(userId)
}

func (s *PostgresStore) GetWallet(userId string) (*storage.Wallet, error) {
	var wallet storage.Wallet
	return firstOrNil(s.Db.Where("user_id = ?", userId).First(&wallet), &wallet)
}

func (s *PostgresStore) ListWallets() ([]*storage.Wallet, error) {
	wallets := make([]*storage.Wallet, 0)
	res := s.Db.Model(&storage.Wallet{}).Order("user_id asc").Find(&wallets)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "failed to list wallets")
	}
	return wallets, nil
}

func (s *PostgresStore) CreateAgentToken(userId string, scopes string) (*storage.AgentToken, error) {
	agent := &storage.AgentToken{
		AgentId:   utils.NewId(),
		UserId:    userId,
		Scopes:    scopes,
		Status:    storage.AgentStatus_Active,
		CreatedAt: s.now(),
	}
	if res := s.Db.Create(agent); res.Error != nil {
		return nil, errors.Wrapf(res.Error, "failed to create agent token for user '%s'", userId)
	}
	return agent, nil
}

func (s *PostgresStore) GetAgentToken(agentId string) (*storage.AgentToken, error) {
	var agent storage.AgentToken
	return firstOrNil(s.Db.Where("agent_id = ?", agentId).First(&agent), &agent)
}

func (s *PostgresStore) RevokeAgentToken(userId string, agentId string) (bool, error) {
	res := s.Db.Model(&storage.AgentToken{}).
		Where("agent_id = ? and user_id = ? and status = ?", agentId, userId, storage.AgentStatus_Active).
		Updates(map[string]interface{}{
			"status":     storage.AgentStatus_Revoked,
			"revoked_at": s.now(),
		})
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "failed to revoke agent '%s'", agentId)
	}
	return res.RowsAffected > 0, nil
}

func (s *PostgresStore) GetUserFlags(userId string) (*storage.UserFlags, error) {
	var flags storage.UserFlags
	return firstOrNil(s.Db.Where("user_id = ?", userId).First(&flags), &flags)
}

func (s *PostgresStore) SetUserFrozen(userId string, frozen bool, reason string) (*storage.UserFlags, error) {
	if !frozen {
		reason = ""
	}
	flags := &storage.UserFlags{
		UserId:       userId,
		Frozen:       frozen,
		FreezeReason: reason,
		UpdatedAt:    s.now(),
	}
	res := s.Db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"frozen", "freeze_reason", "updated_at"}),
	}).Create(flags)
	if res.Error != nil {
		return nil, errors.Wrapf(res.Error, "failed to set frozen flag for user '%s'", userId)
	}
	return flags, nil
}
