package postgres

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_access",
			UpSQL:   migration001Up,
		},
	}
}

const migration001Up = `
-- Migration: Create access-control tables
-- Version: 001

-- Telegram accounts granted lookup access
CREATE TABLE IF NOT EXISTS allowed_users (
    telegram_id BIGINT PRIMARY KEY,
    username VARCHAR(64) NOT NULL DEFAULT '',
    added_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_telegram_id CHECK (telegram_id > 0)
);

CREATE INDEX IF NOT EXISTS idx_allowed_users_added_at ON allowed_users(added_at);

-- Activity trail of user actions
CREATE TABLE IF NOT EXISTS activity_log (
    id UUID PRIMARY KEY,
    user_id BIGINT NOT NULL,
    username VARCHAR(64) NOT NULL DEFAULT '',
    action VARCHAR(20) NOT NULL,
    details TEXT NOT NULL DEFAULT '',
    occurred_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_activity_log_occurred_at ON activity_log(occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_activity_log_user_id ON activity_log(user_id);
`
