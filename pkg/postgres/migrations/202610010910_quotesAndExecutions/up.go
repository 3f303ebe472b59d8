package _202610010910_quotesAndExecutions

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
		`create table if not exists quotes (
			quote_id varchar not null primary key,
			user_id varchar not null,
			agent_id varchar not null,
			intent_type varchar not null,
			to_address varchar not null,
			amount_cents bigint not null,
			allowed boolean not null,
			requires_step_up boolean not null,
			reason text not null default '',
			expires_at timestamp not null,
			idempotency_key varchar not null,
			created_at timestamp
		)`,
		`create unique index if not exists uniq_quotes_idempotency on quotes (user_id, agent_id, idempotency_key)`,
		`create table if not exists executions (
			exec_id varchar not null primary key,
			quote_id varchar,
			user_id varchar not null,
			agent_id varchar not null,
			status varchar not null,
			amount_cents bigint not null,
			to_address varchar not null default '',
			tx_hash varchar not null default '',
			failure_reason text not null default '',
			idempotency_key varchar not null,
			degraded_override boolean not null default false,
			created_at timestamp,
			updated_at timestamp
		)`,
		`create unique index if not exists uniq_executions_idempotency on executions (user_id, agent_id, idempotency_key)`,
		`create unique index if not exists uniq_executions_quote_id on executions (quote_id)`,
		`create index if not exists idx_executions_status on executions (status)`,
		`create table if not exists reserves (
			reserve_id varchar not null primary key,
			user_id varchar not null,
			amount_cents bigint not null,
			status varchar not null,
			external_ref varchar not null,
			created_at timestamp,
			updated_at timestamp
		)`,
		`create unique index if not exists uniq_reserves_external_ref on reserves (external_ref)`,
		`create index if not exists idx_reserves_user_status on reserves (user_id, status)`,
	}

	for _, query := range queries {
		if res := grm.Exec(query); res.Error != nil {
			return errors.Wrapf(res.Error, "failed to execute query: %s", query)
		}
	}
	return nil
}

func (m *Migration) GetName() string {
	return "202610010910_quotesAndExecutions"
}
