package telegram

import (
	"context"
	"time"

	"github.com/nant-dev/pddikti-bot/internal/infrastructure/polling"
)

// ══════════════════════════════════════════════════════════════════════════════
// POLLING ADAPTER
// Exposes a bot identity's update feed as a polling source. Each adapter owns
// its client; two bots never share one feed.
// ══════════════════════════════════════════════════════════════════════════════

// UpdateFetcher adapts the Telegram client to the polling supervisor.
type UpdateFetcher struct {
	client         *Client
	allowedUpdates []string
}

// NewUpdateFetcher creates a fetcher restricted to the given update kinds.
// An empty allowedUpdates keeps the Telegram-side default.
func NewUpdateFetcher(client *Client, allowedUpdates []string) *UpdateFetcher {
	return &UpdateFetcher{
		client:         client,
		allowedUpdates: allowedUpdates,
	}
}

// Fetch implements polling.Fetcher. The payload of each returned update is a
// *telegram.Update.
func (f *UpdateFetcher) Fetch(ctx context.Context, offset int64, limit int, timeout time.Duration) ([]polling.Update, error) {
	updates, err := f.client.GetUpdates(ctx, offset, limit, int(timeout.Seconds()), f.allowedUpdates)
	if err != nil {
		return nil, err
	}

	out := make([]polling.Update, 0, len(updates))
	for i := range updates {
		u := updates[i]
		out = append(out, polling.Update{ID: u.UpdateID, Payload: &u})
	}
	return out, nil
}

// Close implements polling.Fetcher. Deleting the webhook releases the bot's
// update feed; pending updates are kept for the next start.
func (f *UpdateFetcher) Close(ctx context.Context) error {
	return f.client.DeleteWebhook(ctx, false)
}
