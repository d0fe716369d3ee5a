package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nant-dev/pddikti-bot/internal/infrastructure/external/telegram"
	"github.com/nant-dev/pddikti-bot/internal/infrastructure/polling"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOT
// One bot identity: a Telegram client plus the router that interprets its
// updates. The polling supervisor feeds HandleUpdate.
// ══════════════════════════════════════════════════════════════════════════════

// BotConfig contains configuration for a Bot.
type BotConfig struct {
	// Name identifies the bot in logs (e.g. "admin", "student").
	Name string

	// Logger for structured logging.
	Logger *slog.Logger
}

// Bot ties a Telegram client to a router.
type Bot struct {
	name   string
	client *telegram.Client
	router *Router
	logger *slog.Logger
}

// NewBot creates a Bot.
func NewBot(config BotConfig, client *telegram.Client, router *Router) *Bot {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Bot{
		name:   config.Name,
		client: client,
		router: router,
		logger: config.Logger.With("bot", config.Name),
	}
}

// Client returns the bot's Telegram client.
func (b *Bot) Client() *telegram.Client {
	return b.client
}

// HandleUpdate is the polling.Handler for this bot. A non-Telegram payload or
// an update with no usable sender is reported as malformed; handler failures
// are logged here and absorbed so one bad update never stalls the stream.
func (b *Bot) HandleUpdate(ctx context.Context, u polling.Update) error {
	upd, ok := u.Payload.(*telegram.Update)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", u.Payload)
	}

	switch {
	case upd.CallbackQuery != nil:
		return b.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil:
		return b.handleMessage(ctx, upd.Message)
	default:
		// Update kinds we did not subscribe to; ignore.
		return nil
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *telegram.Message) error {
	if msg.Chat == nil {
		return fmt.Errorf("message %d has no chat", msg.MessageID)
	}

	cmdCtx := CommandContext{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Message:   msg,
		Client:    b.client,
	}
	if msg.From != nil {
		cmdCtx.TelegramID = msg.From.ID
		cmdCtx.Username = msg.From.Username
	}

	if command := telegram.ExtractCommand(msg); command != "" {
		cmdCtx.Args = telegram.ExtractCommandArgs(msg)
		if err := b.router.HandleCommand(ctx, command, cmdCtx); err != nil {
			b.logger.Error("command failed", "command", command, "user_id", cmdCtx.TelegramID, "error", err)
		}
		return nil
	}

	cmdCtx.Args = msg.Text
	if err := b.router.HandleText(ctx, cmdCtx); err != nil {
		b.logger.Error("text handling failed", "user_id", cmdCtx.TelegramID, "error", err)
	}
	return nil
}

func (b *Bot) handleCallback(ctx context.Context, query *telegram.CallbackQuery) error {
	if query.From == nil {
		return fmt.Errorf("callback %s has no sender", query.ID)
	}

	cbCtx := CallbackContext{
		TelegramID: query.From.ID,
		Username:   query.From.Username,
		QueryID:    query.ID,
		Data:       query.Data,
		Query:      query,
		Client:     b.client,
	}
	if query.Message != nil && query.Message.Chat != nil {
		cbCtx.ChatID = query.Message.Chat.ID
		cbCtx.MessageID = query.Message.MessageID
	}

	if err := b.router.HandleCallback(ctx, query.Data, cbCtx); err != nil {
		b.logger.Error("callback failed", "data", query.Data, "user_id", cbCtx.TelegramID, "error", err)
	}
	return nil
}
