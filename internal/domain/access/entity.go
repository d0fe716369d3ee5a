// Package access contains the access-control model for the lookup bot:
// which Telegram users may query the registry, and the activity trail of
// what they did. This is core business logic with no external dependencies.
package access

import (
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// TelegramID is a Telegram user identifier.
type TelegramID int64

// IsValid reports whether the id is positive.
func (t TelegramID) IsValid() bool {
	return t > 0
}

// AllowedUser is one Telegram account granted lookup access.
type AllowedUser struct {
	// ID is the Telegram user id.
	ID TelegramID `json:"id"`

	// Username is the Telegram username at grant time, without the @.
	// Informational only; the id is the identity.
	Username string `json:"username,omitempty"`

	// AddedAt is when access was granted.
	AddedAt time.Time `json:"added_at"`
}

// ActivityEntry is one recorded user action.
type ActivityEntry struct {
	// ID uniquely identifies the entry.
	ID string `json:"id"`

	// UserID is the acting Telegram user.
	UserID TelegramID `json:"user_id"`

	// Username is the acting user's username at the time, without the @.
	Username string `json:"username,omitempty"`

	// Action is a short verb: "search", "detail", "start", "regist".
	Action string `json:"action"`

	// Details carries the action argument, e.g. the search keyword.
	Details string `json:"details,omitempty"`

	// OccurredAt is when the action happened.
	OccurredAt time.Time `json:"occurred_at"`
}

// Actions recorded in the activity trail.
const (
	ActionStart  = "start"
	ActionSearch = "search"
	ActionDetail = "detail"
	ActionRegist = "regist"
	ActionDenied = "denied"
)
