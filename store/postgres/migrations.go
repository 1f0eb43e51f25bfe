package postgres

import (
	"context"
	"fmt"
)

type migration struct {
	version int
	name    string
	sql     string
}

// migrations are applied in order; never edit one that has shipped.
var migrations = []migration{
	{
		version: 1,
		name:    "ledger tables",
		sql: `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			name TEXT NOT NULL,
			community TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'resident'
				CHECK (role IN ('resident', 'admin', 'supadmin')),
			active BOOLEAN NOT NULL DEFAULT TRUE,
			first_login_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS balances (
			user_id TEXT PRIMARY KEY REFERENCES users(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			amount BIGINT NOT NULL,
			tx_type TEXT NOT NULL
				CHECK (tx_type IN ('signup_bonus', 'report_resolved', 'redemption_approved', 'redemption_rejected')),
			status TEXT NOT NULL
				CHECK (status IN ('pending', 'completed', 'failed')),
			related_report_id TEXT,
			processed_by TEXT REFERENCES users(id),
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT transactions_sign_by_type CHECK (
				(tx_type = 'redemption_approved' AND amount <= 0)
				OR (tx_type <> 'redemption_approved' AND amount >= 0)
			)
		);

		CREATE INDEX IF NOT EXISTS idx_transactions_user
			ON transactions(user_id, id);
		CREATE INDEX IF NOT EXISTS idx_transactions_redemptions
			ON transactions(tx_type, status, created_at);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_signup_bonus
			ON transactions(user_id)
			WHERE tx_type = 'signup_bonus';
		CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_report_award
			ON transactions(user_id, related_report_id, tx_type)
			WHERE related_report_id IS NOT NULL;
		`,
	},
	{
		version: 2,
		name:    "append-only guard",
		sql: `
		CREATE OR REPLACE FUNCTION transactions_guard() RETURNS trigger AS $$
		BEGIN
			IF TG_OP = 'DELETE' THEN
				RAISE EXCEPTION 'transactions are append-only';
			END IF;
			IF NEW.user_id <> OLD.user_id OR NEW.amount <> OLD.amount OR NEW.tx_type <> OLD.tx_type THEN
				RAISE EXCEPTION 'transaction amount, type and owner are immutable';
			END IF;
			IF NEW.status <> OLD.status AND OLD.status <> 'pending' THEN
				RAISE EXCEPTION 'only pending transactions may change status';
			END IF;
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql;

		DROP TRIGGER IF EXISTS trg_transactions_guard ON transactions;
		CREATE TRIGGER trg_transactions_guard
			BEFORE UPDATE OR DELETE ON transactions
			FOR EACH ROW EXECUTE FUNCTION transactions_guard();
		`,
	},
	{
		version: 3,
		name:    "redemption decisions",
		sql: `
		CREATE TABLE IF NOT EXISTS redemption_decisions (
			id TEXT PRIMARY KEY,
			transaction_id BIGINT NOT NULL REFERENCES transactions(id),
			actor_id TEXT NOT NULL REFERENCES users(id),
			action TEXT NOT NULL CHECK (action IN ('approve', 'reject')),
			notes TEXT NOT NULL DEFAULT '',
			decided_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_redemption_decisions_tx
			ON redemption_decisions(transaction_id);
		`,
	},
}

// migrate applies every migration not yet recorded in schema_migrations.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		if err := s.apply(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) apply(ctx context.Context, m migration) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", m.version, err)
	}
	defer tx.Rollback(ctx)

	var applied bool
	if err := tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", m.version,
	).Scan(&applied); err != nil {
		return fmt.Errorf("failed to check migration %d: %w", m.version, err)
	}
	if applied {
		return nil
	}

	if _, err := tx.Exec(ctx, m.sql); err != nil {
		return fmt.Errorf("failed to apply migration %d (%s): %w", m.version, m.name, err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", m.version, m.name,
	); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", m.version, err)
	}
	return tx.Commit(ctx)
}
