package _202610010920_onchainState

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
		`create table if not exists rpc_health (
			provider_name varchar not null primary key,
			last_good_at timestamp,
			last_good_block bigint not null default 0,
			head_block_time timestamp,
			status varchar not null,
			last_error text not null default '',
			updated_at timestamp
		)`,
		`create table if not exists spend_power_snapshots (
			user_id varchar not null primary key,
			confirmed_balance_cents bigint not null,
			active_reserves_cents bigint not null,
			safety_buffer_cents bigint not null,
			degradation_buffer_cents bigint not null,
			spend_power_cents bigint not null,
			freshness varchar not null,
			computed_at timestamp
		)`,
		`create table if not exists onchain_transfers (
			transaction_hash varchar not null,
			log_index bigint not null,
			block_number bigint not null,
			from_address varchar not null,
			to_address varchar not null,
			amount varchar not null,
			confirmations bigint not null,
			confirmed boolean not null default false,
			created_at timestamp,
			updated_at timestamp,
			primary key (transaction_hash, log_index)
		)`,
		`create index if not exists idx_onchain_transfers_block_number on onchain_transfers (block_number)`,
		`create table if not exists normalized_events (
			event_id varchar not null primary key,
			source varchar not null,
			event_type varchar not null,
			external_id varchar not null,
			user_id varchar not null default '',
			payload text not null default '{}',
			created_at timestamp,
			processed_at timestamp
		)`,
		`create unique index if not exists uniq_normalized_events_key on normalized_events (source, event_type, external_id)`,
		`create table if not exists receipts (
			receipt_id varchar not null primary key,
			user_id varchar not null,
			source varchar not null,
			provider_event_id varchar not null,
			type varchar not null,
			title text not null,
			why text not null default '',
			next text not null default '',
			amount_cents bigint not null default 0,
			spend_power_delta_cents bigint not null default 0,
			exec_id varchar not null default '',
			quote_id varchar not null default '',
			tx_hash varchar not null default '',
			created_at timestamp
		)`,
		`create unique index if not exists uniq_receipts_provider_event on receipts (user_id, source, provider_event_id)`,
		`create index if not exists idx_receipts_user_created on receipts (user_id, created_at)`,
		`create table if not exists onchain_cursors (
			chain_id bigint not null primary key,
			last_block bigint not null,
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
	return "202610010920_onchainState"
}
