// Package handler implements the command and callback handlers for both bot
// identities. Handlers talk to the access repositories and the registry
// client; all user-facing replies are in Indonesian.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nant-dev/pddikti-bot/internal/domain/access"
	ifacetg "github.com/nant-dev/pddikti-bot/internal/interface/telegram"
	"github.com/nant-dev/pddikti-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN HANDLERS
// Every admin command is gated on the configured admin id. The gate replies
// itself, so individual handlers only see authorized traffic.
// ══════════════════════════════════════════════════════════════════════════════

const deniedReply = "❌ Maaf, Anda tidak memiliki akses ke bot ini."

// AdminHandlers bundles the control-bot command handlers.
type AdminHandlers struct {
	adminID access.TelegramID
	users   access.UserStore
	log     access.ActivityLog
	logger  *slog.Logger
}

// NewAdminHandlers creates the admin handler set.
func NewAdminHandlers(adminID access.TelegramID, users access.UserStore, log access.ActivityLog, logger *slog.Logger) *AdminHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandlers{
		adminID: adminID,
		users:   users,
		log:     log,
		logger:  logger,
	}
}

// Register wires every admin command into the router.
func (h *AdminHandlers) Register(router *ifacetg.Router) {
	router.RegisterCommand("start", h.gate(h.Start))
	router.RegisterCommand("list", h.gate(h.List))
	router.RegisterCommand("add", h.gate(h.Add))
	router.RegisterCommand("remove", h.gate(h.Remove))
	router.RegisterCommand("logs", h.gate(h.Logs))
	router.RegisterCommand("getid", h.gate(h.GetID))
	router.RegisterCommand("chatid", h.gate(h.ChatID))
	router.SetFallbackHandler(h.gate(h.Fallback))
}

// gate wraps a handler with the admin-id check.
func (h *AdminHandlers) gate(next func(ctx context.Context, cmdCtx ifacetg.CommandContext) error) ifacetg.CommandHandler {
	return ifacetg.CommandHandlerFunc(func(ctx context.Context, cmdCtx ifacetg.CommandContext) error {
		if access.TelegramID(cmdCtx.TelegramID) != h.adminID {
			h.logger.Warn("unauthorized admin bot access",
				"user_id", cmdCtx.TelegramID, "username", cmdCtx.Username)
			_, err := cmdCtx.Client.SendText(ctx, cmdCtx.ChatID, deniedReply)
			return err
		}
		return next(ctx, cmdCtx)
	})
}

// Start handles /start.
func (h *AdminHandlers) Start(ctx context.Context, cmdCtx ifacetg.CommandContext) error {
	text := "👋 Welcome to Admin Bot\n\n" +
		"🔑 Available Commands:\n" +
		"-------------------\n" +
		"📋 /list - View all allowed users\n" +
		"➕ /add <user_id> <username> - Add new user\n" +
		"❌ /remove <user_id> - Remove user access\n" +
		"📊 /logs - View user activity logs\n" +
		"🆔 /getid - Get user ID from forwarded message\n" +
		"🆔 /chatid - Get the current chat ID\n\n" +
		"💡 Tips:\n" +
		"• Forward any message to get user ID\n" +
		"• Use /getid command on forwarded message\n" +
		"• Check logs regularly for monitoring"

	_, err := cmdCtx.Client.SendText(ctx, cmdCtx.ChatID, text)
	return err
}

// List handles /list.
func (h *AdminHandlers) List(ctx context.Context, cmdCtx ifacetg.CommandContext) error {
	users, err := h.users.List(ctx)
	if err != nil {
		h.logger.Error("failed to list allowed users", "error", err)
		_, sendErr := cmdCtx.Client.SendText(ctx, cmdCtx.ChatID,
			"❌ Terjadi kesalahan saat mengambil daftar pengguna.")
		return sendErr
	}

	if len(users) == 0 {
		_, err := cmdCtx.Client.SendText(ctx, cmdCtx.ChatID, "📝 Belum ada pengguna yang diizinkan.")
		return err
	}

	var b strings.Builder
	b.WriteString("📋 *Daftar Pengguna yang Diizinkan:*\n\n")
	for _, u := range users {
		fmt.Fprintf(&b, "• ID: `%d`\n", u.ID)
		username := u.Username
		if username == "" {
			username = "N/A"
		}
		fmt.Fprintf(&b, "  Username: @%s\n", username)
		fmt.Fprintf(&b, "  Ditambahkan: %s\n\n", timeutil.Timestamp(u.AddedAt))
	}

	_, err = cmdCtx.Client.SendMarkdown(ctx, cmdCtx.ChatID, b.String())
	return err
}

// Add handles /add <user_id> [username].
func (h *AdminHandlers) Add(ctx context.Context, cmdCtx ifacetg.CommandContext) error {
	fields := strings.Fields(cmdCtx.Args)
	if len(fields) == 0 {
		_, err := cmdCtx.Client.SendText(ctx, cmdCtx.ChatID, "❌ Gunakan format: /add <user_id>")
		return err
	}

	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || !access.TelegramID(id).IsValid() {
		_, sendErr := cmdCtx.Client.SendText(ctx, cmdCtx.ChatID, "❌ ID pengguna harus berupa angka.")
		return sendErr
	}

	user := access.AllowedUser{
		ID:      access.TelegramID(id),
		AddedAt: time.Now(),
	}
	if len(fields) > 1 {
		user.Username = strings.TrimPrefix(fields[1], "@")
	}

	if err := h.users.Grant(ctx, user); err != nil {
		if errors.Is(err, access.ErrAlreadyAllowed) {
			_, sendErr := cmdCtx.Client.SendText(ctx, cmdCtx.ChatID, "❌ Pengguna sudah terdaftar.")
			return sendErr
		}
		h.logger.Error("failed to grant access", "user_id", id, "error", err)
		_, sendErr := cmdCtx.Client.SendText(ctx, cmdCtx.ChatID, "❌ Terjadi kesalahan saat menambahkan pengguna.")
		return sendErr
	}

	h.record(ctx, cmdCtx, "add_user", fmt.Sprintf("Added user ID: %d", id))
	_, err = cmdCtx.Client.SendText(ctx, cmdCtx.ChatID,
		fmt.Sprintf("✅ Pengguna dengan ID %d berhasil ditambahkan.", id))
	return err
}

// Remove handles /remove <user_id>.
func (h *AdminHandlers) Remove(ctx context.Context, cmdCtx ifacetg.CommandContext) error {
	fields := strings.Fields(cmdCtx.Args)
	if len(fields) == 0 {
		_, err := cmdCtx.Client.SendText(ctx, cmdCtx.ChatID, "❌ Gunakan format: /remove <user_id>")
		return err
	}

	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		_, sendErr := cmdCtx.Client.SendText(ctx, cmdCtx.ChatID, "❌ ID pengguna harus berupa angka.")
		return sendErr
	}

	if err := h.users.Revoke(ctx, access.TelegramID(id)); err != nil {
		if errors.Is(err, access.ErrNotAllowed) {
			_, sendErr := cmdCtx.Client.SendText(ctx, cmdCtx.ChatID, "❌ Pengguna tidak ditemukan.")
			return sendErr
		}
		h.logger.Error("failed to revoke access", "user_id", id, "error", err)
		_, sendErr := cmdCtx.Client.SendText(ctx, cmdCtx.ChatID, "❌ Terjadi kesalahan saat menghapus pengguna.")
		return sendErr
	}

	h.record(ctx, cmdCtx, "remove_user", fmt.Sprintf("Removed user ID: %d", id))
	_, err = cmdCtx.Client.SendText(ctx, cmdCtx.ChatID,
		fmt.Sprintf("✅ Pengguna dengan ID %d berhasil dihapus.", id))
	return err
}

// Logs handles /logs, showing the last 10 activity entries.
func (h *AdminHandlers) Logs(ctx context.Context, cmdCtx ifacetg.CommandContext) error {
	entries, err := h.log.Recent(ctx, 10)
	if err != nil {
		h.logger.Error("failed to read activity log", "error", err)
		_, sendErr := cmdCtx.Client.SendText(ctx, cmdCtx.ChatID, "❌ Terjadi kesalahan saat mengambil log.")
		return sendErr
	}

	if len(entries) == 0 {
		_, err := cmdCtx.Client.SendText(ctx, cmdCtx.ChatID, "📝 Belum ada log aktivitas.")
		return err
	}

	var b strings.Builder
	b.WriteString("📋 10 log aktivitas terakhir:\n\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "Waktu: %s\n", timeutil.Timestamp(e.OccurredAt))
		fmt.Fprintf(&b, "User ID: %d\n", e.UserID)
		fmt.Fprintf(&b, "Username: %s\n", e.Username)
		fmt.Fprintf(&b, "Aksi: %s\n", e.Action)
		if e.Details != "" {
			fmt.Fprintf(&b, "Detail: %s\n", e.Details)
		}
		b.WriteString("-------------------\n")
	}

	h.record(ctx, cmdCtx, "view_logs", "Viewed recent logs")
	_, err = cmdCtx.Client.SendText(ctx, cmdCtx.ChatID, b.String())
	return err
}

// GetID handles /getid on a forwarded message.
func (h *AdminHandlers) GetID(ctx context.Context, cmdCtx ifacetg.CommandContext) error {
	var info string
	switch {
	case cmdCtx.Message != nil && cmdCtx.Message.ForwardFrom != nil:
		from := cmdCtx.Message.ForwardFrom
		info = fmt.Sprintf("User ID: %d\nNama: %s", from.ID, strings.TrimSpace(from.FirstName+" "+from.LastName))
		if from.Username != "" {
			info += "\nUsername: @" + from.Username
		}
	case cmdCtx.Message != nil && cmdCtx.Message.ForwardSenderName != "":
		info = "Forwarded from: " + cmdCtx.Message.ForwardSenderName
	default:
		info = "Tidak dapat mendapatkan informasi pengirim"
	}

	h.record(ctx, cmdCtx, "get_user_id", "Got user info: "+info)
	_, err := cmdCtx.Client.SendText(ctx, cmdCtx.ChatID, "ℹ️ Informasi pengirim:\n\n"+info)
	return err
}

// ChatID handles /chatid.
func (h *AdminHandlers) ChatID(ctx context.Context, cmdCtx ifacetg.CommandContext) error {
	_, err := cmdCtx.Client.SendMarkdown(ctx, cmdCtx.ChatID,
		fmt.Sprintf("Your chat ID is: `%d`", cmdCtx.ChatID))
	return err
}

// Fallback handles unknown commands and plain text. Forwarded messages get
// the /getid treatment so the admin can just forward something.
func (h *AdminHandlers) Fallback(ctx context.Context, cmdCtx ifacetg.CommandContext) error {
	if cmdCtx.Message != nil && (cmdCtx.Message.ForwardFrom != nil || cmdCtx.Message.ForwardSenderName != "") {
		return h.GetID(ctx, cmdCtx)
	}
	_, err := cmdCtx.Client.SendText(ctx, cmdCtx.ChatID,
		"❓ Perintah tidak dikenali. Gunakan /start untuk melihat daftar perintah.")
	return err
}

// record appends to the activity trail; failures are logged, never surfaced
// to the admin.
func (h *AdminHandlers) record(ctx context.Context, cmdCtx ifacetg.CommandContext, action, details string) {
	entry := access.ActivityEntry{
		ID:         uuid.NewString(),
		UserID:     access.TelegramID(cmdCtx.TelegramID),
		Username:   cmdCtx.Username,
		Action:     action,
		Details:    details,
		OccurredAt: time.Now(),
	}
	if err := h.log.Record(ctx, entry); err != nil {
		h.logger.Error("failed to record activity", "action", action, "error", err)
	}
}
