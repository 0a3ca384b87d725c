package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// migrations are applied in order; each statement is idempotent.
var migrations = []struct {
	name string
	sql  string
}{
	{
		name: "users table",
		sql: `
			CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				telegram_id TEXT NOT NULL UNIQUE,
				username VARCHAR(255) NOT NULL DEFAULT '',
				points BIGINT NOT NULL DEFAULT 0,
				points_balance BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_users_points ON users(points DESC);
		`,
	},
	{
		name: "tasks table",
		sql: `
			CREATE TABLE IF NOT EXISTS tasks (
				id TEXT PRIMARY KEY,
				title VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				points BIGINT NOT NULL DEFAULT 0,
				type VARCHAR(32) NOT NULL,
				category VARCHAR(64) NOT NULL DEFAULT '',
				image TEXT NOT NULL DEFAULT '',
				call_to_action TEXT NOT NULL DEFAULT '',
				task_data JSONB,
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
		`,
	},
	{
		name: "user_tasks table",
		sql: `
			CREATE TABLE IF NOT EXISTS user_tasks (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
				task_start_timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				is_completed BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE (user_id, task_id)
			);
		`,
	},
	{
		name: "points_transactions table",
		sql: `
			CREATE TABLE IF NOT EXISTS points_transactions (
				id BIGSERIAL PRIMARY KEY,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				amount BIGINT NOT NULL,
				type VARCHAR(50) NOT NULL,
				reference TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_points_transactions_user_time ON points_transactions(user_id, created_at DESC);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_points_transactions_task_reward
				ON points_transactions(user_id, reference) WHERE type = 'task_reward';
		`,
	},
}

// Migrate applies the schema.
func Migrate(ctx context.Context, db Execer) error {
	log.Info().Msg("Running database migrations...")

	for i, m := range migrations {
		if _, err := db.Exec(ctx, m.sql); err != nil {
			return err
		}
		log.Info().Int("step", i+1).Str("migration", m.name).Msg("Migration applied")
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}
