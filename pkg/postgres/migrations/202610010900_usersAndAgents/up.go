package _202610010900_usersAndAgents

import (
	"database/sql"

	"github.com/Layr-Labs/agentpay/internal/config"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type Migration struct {
}

func (m *Migration) Up(db *sql.DB, grm *gorm.DB, cfg *config.Config) error {
	queries := []string{
		`create table if not exists wallets (
			user_id varchar not null primary key,
			address varchar not null,
			created_at timestamp
		)`,
		`create index if not exists idx_wallets_address on wallets (address)`,
		`create table if not exists agent_tokens (
			agent_id varchar not null primary key,
			user_id varchar not null,
			scopes text not null default '{}',
			status varchar not null default 'active',
			created_at timestamp,
			revoked_at timestamp
		)`,
		`create index if not exists idx_agent_tokens_user_id on agent_tokens (user_id)`,
		`create table if not exists user_flags (
			user_id varchar not null primary key,
			frozen boolean not null default false,
			freeze_reason text not null default '',
			updated_at timestamp
		)`,
	}

	for _, query := range queries {
		if res := grm.Exec(query); res.Error != nil {
			return errors.Wrapf(res.Error, "failed to execute query: %s", query)
		}
	}
	return nil
}

func (m *Migration) GetName() string {
	return "202610010900_usersAndAgents"
}
