// Package telegram implements the Telegram-facing interface layer: one Bot
// per bot identity, each with its own router, command handlers, and access
// rules.
package telegram

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/nant-dev/pddikti-bot/internal/infrastructure/external/telegram"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	// Logger for structured logging.
	Logger *slog.Logger

	// Debug enables debug logging for routing decisions.
	Debug bool
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT TYPES
// These types carry context information through the routing process.
// ══════════════════════════════════════════════════════════════════════════════

// CommandContext contains context for command handling.
type CommandContext struct {
	// TelegramID is the user's Telegram ID.
	TelegramID int64

	// Username is the user's Telegram username, without the @.
	Username string

	// ChatID is the chat ID where the command was sent.
	ChatID int64

	// MessageID is the ID of the message containing the command.
	MessageID int64

	// Args is the command arguments (text after the command).
	Args string

	// Message is the original Telegram message.
	Message *telegram.Message

	// Client is the Telegram client for sending responses.
	Client *telegram.Client
}

// CallbackContext contains context for callback query handling.
type CallbackContext struct {
	// TelegramID is the user's Telegram ID.
	TelegramID int64

	// Username is the user's Telegram username, without the @.
	Username string

	// ChatID is the chat ID where the callback originated.
	ChatID int64

	// MessageID is the ID of the message with the inline keyboard.
	MessageID int64

	// QueryID is the callback query ID (for answering).
	QueryID string

	// Data is the callback data string.
	Data string

	// Query is the original callback query.
	Query *telegram.CallbackQuery

	// Client is the Telegram client for sending responses.
	Client *telegram.Client
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// CommandHandler is the interface for command handlers.
type CommandHandler interface {
	// Handle processes the command, sending responses through cmdCtx.Client.
	Handle(ctx context.Context, cmdCtx CommandContext) error
}

// CommandHandlerFunc adapts a function to the CommandHandler interface.
type CommandHandlerFunc func(ctx context.Context, cmdCtx CommandContext) error

// Handle implements CommandHandler.
func (f CommandHandlerFunc) Handle(ctx context.Context, cmdCtx CommandContext) error {
	return f(ctx, cmdCtx)
}

// CallbackHandler is the interface for callback handlers.
type CallbackHandler interface {
	// Handle processes the callback query.
	Handle(ctx context.Context, cbCtx CallbackContext) error
}

// CallbackHandlerFunc adapts a function to the CallbackHandler interface.
type CallbackHandlerFunc func(ctx context.Context, cbCtx CallbackContext) error

// Handle implements CallbackHandler.
func (f CallbackHandlerFunc) Handle(ctx context.Context, cbCtx CallbackContext) error {
	return f(ctx, cbCtx)
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER
// Routes incoming updates to the appropriate handlers.
// ══════════════════════════════════════════════════════════════════════════════

// Router routes Telegram updates to registered handlers.
type Router struct {
	config RouterConfig
	logger *slog.Logger

	// Command handlers by command name (without /)
	commandHandlers   map[string]CommandHandler
	commandHandlersMu sync.RWMutex

	// Callback handlers by prefix
	callbackPrefixHandlers   map[string]CallbackHandler
	callbackPrefixHandlersMu sync.RWMutex

	// Fallback for plain text and unknown commands
	fallbackHandler CommandHandler
}

// NewRouter creates a new router.
func NewRouter(config RouterConfig) *Router {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Router{
		config:                 config,
		logger:                 config.Logger,
		commandHandlers:        make(map[string]CommandHandler),
		callbackPrefixHandlers: make(map[string]CallbackHandler),
	}
}

// RegisterCommand registers a handler for a specific command.
// The command should be without the leading "/".
func (r *Router) RegisterCommand(command string, handler CommandHandler) {
	r.commandHandlersMu.Lock()
	defer r.commandHandlersMu.Unlock()

	r.commandHandlers[command] = handler

	if r.config.Debug {
		r.logger.Debug("registered command handler", "command", command)
	}
}

// RegisterCallbackPrefix registers a handler for callbacks matching a prefix.
// The prefix should include the trailing delimiter (e.g., "detail:").
func (r *Router) RegisterCallbackPrefix(prefix string, handler CallbackHandler) {
	r.callbackPrefixHandlersMu.Lock()
	defer r.callbackPrefixHandlersMu.Unlock()

	r.callbackPrefixHandlers[prefix] = handler

	if r.config.Debug {
		r.logger.Debug("registered callback prefix handler", "prefix", prefix)
	}
}

// SetFallbackHandler sets the handler for plain text and unknown commands.
func (r *Router) SetFallbackHandler(handler CommandHandler) {
	r.fallbackHandler = handler
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING METHODS
// ══════════════════════════════════════════════════════════════════════════════

// HandleCommand routes a command to its handler. Unknown commands go to the
// fallback handler.
func (r *Router) HandleCommand(ctx context.Context, command string, cmdCtx CommandContext) error {
	r.commandHandlersMu.RLock()
	h, ok := r.commandHandlers[command]
	r.commandHandlersMu.RUnlock()

	if !ok {
		if r.config.Debug {
			r.logger.Debug("no handler for command", "command", command)
		}
		return r.handleFallback(ctx, cmdCtx)
	}

	return h.Handle(ctx, cmdCtx)
}

// HandleCallback routes a callback to the handler with the longest matching
// prefix.
func (r *Router) HandleCallback(ctx context.Context, data string, cbCtx CallbackContext) error {
	r.callbackPrefixHandlersMu.RLock()
	var matchedPrefix string
	var matchedHandler CallbackHandler
	for prefix, h := range r.callbackPrefixHandlers {
		if strings.HasPrefix(data, prefix) && len(prefix) > len(matchedPrefix) {
			matchedPrefix = prefix
			matchedHandler = h
		}
	}
	r.callbackPrefixHandlersMu.RUnlock()

	if matchedHandler == nil {
		r.logger.Warn("unknown callback", "data", data)
		return nil
	}

	return matchedHandler.Handle(ctx, cbCtx)
}

// HandleText routes a non-command text message to the fallback handler.
func (r *Router) HandleText(ctx context.Context, cmdCtx CommandContext) error {
	return r.handleFallback(ctx, cmdCtx)
}

func (r *Router) handleFallback(ctx context.Context, cmdCtx CommandContext) error {
	if r.fallbackHandler == nil {
		return nil
	}
	return r.fallbackHandler.Handle(ctx, cmdCtx)
}

// GetRegisteredCommands returns a list of registered command names.
func (r *Router) GetRegisteredCommands() []string {
	r.commandHandlersMu.RLock()
	defer r.commandHandlersMu.RUnlock()

	commands := make([]string, 0, len(r.commandHandlers))
	for cmd := range r.commandHandlers {
		commands = append(commands, cmd)
	}
	return commands
}
