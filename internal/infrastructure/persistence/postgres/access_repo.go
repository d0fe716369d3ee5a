package postgres

import (
	"context"
	"fmt"

	"github.com/nant-dev/pddikti-bot/internal/domain/access"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACCESS REPOSITORIES
// ══════════════════════════════════════════════════════════════════════════════

// UserStore implements access.UserStore for PostgreSQL.
type UserStore struct {
	conn *Connection
}

// NewUserStore creates a new UserStore.
func NewUserStore(conn *Connection) *UserStore {
	return &UserStore{conn: conn}
}

// Grant adds a user to the allow list.
func (s *UserStore) Grant(ctx context.Context, user access.AllowedUser) error {
	query := `
		INSERT INTO allowed_users (telegram_id, username, added_at)
		VALUES ($1, $2, $3)
	`

	_, err := s.conn.Exec(ctx, query, int64(user.ID), user.Username, user.AddedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return access.ErrAlreadyAllowed
		}
		return fmt.Errorf("failed to grant access: %w", err)
	}

	return nil
}

// Revoke removes a user from the allow list.
func (s *UserStore) Revoke(ctx context.Context, id access.TelegramID) error {
	result, err := s.conn.Exec(ctx, "DELETE FROM allowed_users WHERE telegram_id = $1", int64(id))
	if err != nil {
		return fmt.Errorf("failed to revoke access: %w", err)
	}
	if result.RowsAffected() == 0 {
		return access.ErrNotAllowed
	}

	return nil
}

// IsAllowed reports whether the user is on the allow list.
func (s *UserStore) IsAllowed(ctx context.Context, id access.TelegramID) (bool, error) {
	var exists bool
	err := s.conn.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM allowed_users WHERE telegram_id = $1)", int64(id),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check access: %w", err)
	}

	return exists, nil
}

// List returns every allowed user, oldest grant first.
func (s *UserStore) List(ctx context.Context) ([]access.AllowedUser, error) {
	rows, err := s.conn.Query(ctx,
		"SELECT telegram_id, username, added_at FROM allowed_users ORDER BY added_at")
	if err != nil {
		return nil, fmt.Errorf("failed to list allowed users: %w", err)
	}
	defer rows.Close()

	var users []access.AllowedUser
	for rows.Next() {
		var u access.AllowedUser
		var id int64
		if err := rows.Scan(&id, &u.Username, &u.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan allowed user: %w", err)
		}
		u.ID = access.TelegramID(id)
		users = append(users, u)
	}

	return users, rows.Err()
}

// ActivityLog implements access.ActivityLog for PostgreSQL.
type ActivityLog struct {
	conn *Connection
}

// NewActivityLog creates a new ActivityLog.
func NewActivityLog(conn *Connection) *ActivityLog {
	return &ActivityLog{conn: conn}
}

// Record appends one entry.
func (l *ActivityLog) Record(ctx context.Context, entry access.ActivityEntry) error {
	query := `
		INSERT INTO activity_log (id, user_id, username, action, details, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := l.conn.Exec(ctx, query,
		entry.ID,
		int64(entry.UserID),
		entry.Username,
		entry.Action,
		entry.Details,
		entry.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}

	return nil
}

// Recent returns up to limit entries, newest first.
func (l *ActivityLog) Recent(ctx context.Context, limit int) ([]access.ActivityEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.conn.Query(ctx, `
		SELECT id, user_id, username, action, details, occurred_at
		FROM activity_log
		ORDER BY occurred_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity log: %w", err)
	}
	defer rows.Close()

	var entries []access.ActivityEntry
	for rows.Next() {
		var e access.ActivityEntry
		var userID int64
		if err := rows.Scan(&e.ID, &userID, &e.Username, &e.Action, &e.Details, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity entry: %w", err)
		}
		e.UserID = access.TelegramID(userID)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
