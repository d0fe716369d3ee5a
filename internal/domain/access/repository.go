package access

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence. The JSON file store is
// the default backend; Postgres is an optional one.
// ══════════════════════════════════════════════════════════════════════════════

// UserStore defines operations on the allow list.
type UserStore interface {
	// Grant adds a user to the allow list.
	// Returns ErrAlreadyAllowed if the user is already listed.
	Grant(ctx context.Context, user AllowedUser) error

	// Revoke removes a user from the allow list.
	// Returns ErrNotAllowed if the user is not listed.
	Revoke(ctx context.Context, id TelegramID) error

	// IsAllowed reports whether the user is on the allow list.
	IsAllowed(ctx context.Context, id TelegramID) (bool, error)

	// List returns every allowed user, oldest grant first.
	List(ctx context.Context) ([]AllowedUser, error)
}

// ActivityLog defines operations on the activity trail.
type ActivityLog interface {
	// Record appends one entry.
	Record(ctx context.Context, entry ActivityEntry) error

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]ActivityEntry, error)
}
