package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/nant-dev/pddikti-bot/internal/domain/access"
	"github.com/nant-dev/pddikti-bot/internal/infrastructure/external/pddikti"
	"github.com/nant-dev/pddikti-bot/internal/infrastructure/external/telegram"
	ifacetg "github.com/nant-dev/pddikti-bot/internal/interface/telegram"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT BOT HANDLERS
// The lookup bot: keyword search over the registry with an inline keyboard of
// hits, detail lookup per hit, and self-registration behind a passphrase.
// ══════════════════════════════════════════════════════════════════════════════

// DetailCallbackPrefix marks inline-keyboard callbacks carrying a
// registration id.
const DetailCallbackPrefix = "detail:"

// Registry is the slice of the registry client the handlers need.
type Registry interface {
	Search(ctx context.Context, keyword string) ([]pddikti.SearchResult, error)
	Detail(ctx context.Context, registrationID string) (pddikti.StudentDetail, error)
}

// SearchCache is the optional lookup cache. A nil cache disables caching.
type SearchCache interface {
	GetSearch(ctx context.Context, keyword string) ([]pddikti.SearchResult, error)
	SetSearch(ctx context.Context, keyword string, results []pddikti.SearchResult) error
	GetDetail(ctx context.Context, registrationID string) (pddikti.StudentDetail, error)
	SetDetail(ctx context.Context, registrationID string, detail pddikti.StudentDetail) error
}

// StudentHandlersConfig contains configuration for the student handler set.
type StudentHandlersConfig struct {
	// PassphraseHash is the bcrypt hash gating /regist. Empty disables
	// self-registration.
	PassphraseHash string

	// Logger for structured logging.
	Logger *slog.Logger
}

// StudentHandlers bundles the lookup-bot handlers.
type StudentHandlers struct {
	config   StudentHandlersConfig
	users    access.UserStore
	log      access.ActivityLog
	registry Registry
	cache    SearchCache
	logger   *slog.Logger
}

// NewStudentHandlers creates the student handler set. cache may be nil.
func NewStudentHandlers(
	config StudentHandlersConfig,
	users access.UserStore,
	log access.ActivityLog,
	registry Registry,
	cache SearchCache,
) *StudentHandlers {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &StudentHandlers{
		config:   config,
		users:    users,
		log:      log,
		registry: registry,
		cache:    cache,
		logger:   config.Logger,
	}
}

// Register wires every student-bot handler into the router.
func (h *StudentHandlers) Register(router *ifacetg.Router) {
	router.RegisterCommand("start", ifacetg.CommandHandlerFunc(h.Start))
	router.RegisterCommand("cari", h.gate(h.Search))
	router.RegisterCommand("regist", ifacetg.CommandHandlerFunc(h.Regist))
	router.RegisterCallbackPrefix(DetailCallbackPrefix, ifacetg.CallbackHandlerFunc(h.DetailCallback))
	router.SetFallbackHandler(ifacetg.CommandHandlerFunc(h.Fallback))
}

// gate wraps a handler with the allow-list check.
func (h *StudentHandlers) gate(next func(ctx context.Context, cmdCtx ifacetg.CommandContext) error) ifacetg.CommandHandler {
	return ifacetg.CommandHandlerFunc(func(ctx context.Context, cmdCtx ifacetg.CommandContext) error {
		allowed, err := h.users.IsAllowed(ctx, access.TelegramID(cmdCtx.TelegramID))
		if err != nil {
			h.logger.Error("allow-list check failed", "user_id", cmdCtx.TelegramID, "error", err)
			_, sendErr := cmdCtx.Client.SendText(ctx, cmdCtx.ChatID, "❌ Terjadi kesalahan. Coba lagi nanti.")
			return sendErr
		}
		if !allowed {
			h.record(ctx, cmdCtx.TelegramID, cmdCtx.Username, access.ActionDenied, "")
			_, sendErr := cmdCtx.Client.SendText(ctx, cmdCtx.ChatID,
				"❌ Maaf, Anda tidak memiliki akses ke bot ini.\n"+
					"Gunakan /regist <kode akses> untuk mendaftar.")
			return sendErr
		}
		return next(ctx, cmdCtx)
	})
}

// Start handles /start.
func (h *StudentHandlers) Start(ctx context.Context, cmdCtx ifacetg.CommandContext) error {
	h.record(ctx, cmdCtx.TelegramID, cmdCtx.Username, access.ActionStart, "")

	allowed, err := h.users.IsAllowed(ctx, access.TelegramID(cmdCtx.TelegramID))
	if err != nil {
		h.logger.Error("allow-list check failed", "user_id", cmdCtx.TelegramID, "error", err)
		allowed = false
	}

	if !allowed {
		_, err := cmdCtx.Client.SendText(ctx, cmdCtx.ChatID,
			"👋 Selamat datang di Bot Pencarian Mahasiswa PDDikti!\n\n"+
				"Anda belum terdaftar sebagai pengguna.\n"+
				"Gunakan /regist <kode akses> untuk mendaftar.")
		return err
	}

	_, err = cmdCtx.Client.SendText(ctx, cmdCtx.ChatID,
		"👋 Selamat datang di Bot Pencarian Mahasiswa PDDikti!\n\n"+
			"🔎 Gunakan perintah:\n"+
			"/cari <nama atau NIM> - Cari data mahasiswa\n\n"+
			"Contoh: /cari Budi Santoso")
	return err
}

// Search handles /cari <keyword>.
func (h *StudentHandlers) Search(ctx context.Context, cmdCtx ifacetg.CommandContext) error {
	keyword := strings.TrimSpace(cmdCtx.Args)
	if keyword == "" {
		_, err := cmdCtx.Client.SendText(ctx, cmdCtx.ChatID, "❌ Gunakan format: /cari <nama atau NIM>")
		return err
	}

	h.record(ctx, cmdCtx.TelegramID, cmdCtx.Username, access.ActionSearch, keyword)

	results, err := h.search(ctx, keyword)
	if err != nil {
		h.logger.Error("registry search failed", "keyword", keyword, "error", err)
		_, sendErr := cmdCtx.Client.SendText(ctx, cmdCtx.ChatID,
			"❌ Pencarian gagal. Coba lagi beberapa saat lagi.")
		return sendErr
	}

	if len(results) == 0 {
		_, err := cmdCtx.Client.SendText(ctx, cmdCtx.ChatID,
			fmt.Sprintf("🔍 Tidak ditemukan hasil untuk \"%s\".", keyword))
		return err
	}

	keyboard := make([][]telegram.InlineKeyboardButton, 0, len(results))
	for _, r := range results {
		label := r.Name
		if r.NIM != "" {
			label += " - " + r.NIM
		}
		keyboard = append(keyboard, []telegram.InlineKeyboardButton{{
			Text:         label,
			CallbackData: DetailCallbackPrefix + r.RegistrationID,
		}})
	}

	text := fmt.Sprintf("🔍 Ditemukan %d hasil untuk \"%s\".\nPilih salah satu untuk melihat detail:",
		len(results), keyword)
	_, err = cmdCtx.Client.SendWithKeyboard(ctx, cmdCtx.ChatID, text, keyboard)
	return err
}

// search consults the cache first, then the registry, then fills the cache.
func (h *StudentHandlers) search(ctx context.Context, keyword string) ([]pddikti.SearchResult, error) {
	if h.cache != nil {
		if results, err := h.cache.GetSearch(ctx, keyword); err == nil {
			return results, nil
		}
	}

	results, err := h.registry.Search(ctx, keyword)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		if err := h.cache.SetSearch(ctx, keyword, results); err != nil {
			h.logger.Warn("failed to cache search results", "keyword", keyword, "error", err)
		}
	}
	return results, nil
}

// Regist handles /regist <passphrase>.
func (h *StudentHandlers) Regist(ctx context.Context, cmdCtx ifacetg.CommandContext) error {
	allowed, err := h.users.IsAllowed(ctx, access.TelegramID(cmdCtx.TelegramID))
	if err == nil && allowed {
		_, sendErr := cmdCtx.Client.SendText(ctx, cmdCtx.ChatID, "✅ Anda sudah terdaftar.")
		return sendErr
	}

	if h.config.PassphraseHash == "" {
		_, err := cmdCtx.Client.SendText(ctx, cmdCtx.ChatID,
			"❌ Pendaftaran mandiri tidak tersedia. Hubungi admin.")
		return err
	}

	passphrase := strings.TrimSpace(cmdCtx.Args)
	if passphrase == "" {
		_, err := cmdCtx.Client.SendText(ctx, cmdCtx.ChatID, "❌ Gunakan format: /regist <kode akses>")
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(h.config.PassphraseHash), []byte(passphrase)); err != nil {
		h.record(ctx, cmdCtx.TelegramID, cmdCtx.Username, access.ActionDenied, "invalid passphrase")
		_, sendErr := cmdCtx.Client.SendText(ctx, cmdCtx.ChatID, "❌ Kode akses salah.")
		return sendErr
	}

	user := access.AllowedUser{
		ID:       access.TelegramID(cmdCtx.TelegramID),
		Username: cmdCtx.Username,
		AddedAt:  time.Now(),
	}
	if err := h.users.Grant(ctx, user); err != nil && !errors.Is(err, access.ErrAlreadyAllowed) {
		h.logger.Error("failed to grant access", "user_id", cmdCtx.TelegramID, "error", err)
		_, sendErr := cmdCtx.Client.SendText(ctx, cmdCtx.ChatID, "❌ Terjadi kesalahan. Coba lagi nanti.")
		return sendErr
	}

	h.record(ctx, cmdCtx.TelegramID, cmdCtx.Username, access.ActionRegist, "")
	_, err = cmdCtx.Client.SendText(ctx, cmdCtx.ChatID,
		"✅ Pendaftaran berhasil! Gunakan /cari <nama atau NIM> untuk mencari data mahasiswa.")
	return err
}

// DetailCallback handles a detail button press.
func (h *StudentHandlers) DetailCallback(ctx context.Context, cbCtx ifacetg.CallbackContext) error {
	registrationID := strings.TrimPrefix(cbCtx.Data, DetailCallbackPrefix)
	if registrationID == "" {
		return cbCtx.Client.AnswerCallbackQuery(ctx, cbCtx.QueryID, "")
	}

	allowed, err := h.users.IsAllowed(ctx, access.TelegramID(cbCtx.TelegramID))
	if err != nil || !allowed {
		return cbCtx.Client.AnswerCallbackQuery(ctx, cbCtx.QueryID, "Anda tidak memiliki akses.")
	}

	if err := cbCtx.Client.AnswerCallbackQuery(ctx, cbCtx.QueryID, ""); err != nil {
		h.logger.Warn("failed to answer callback query", "error", err)
	}

	h.record(ctx, cbCtx.TelegramID, cbCtx.Username, access.ActionDetail, registrationID)

	detail, err := h.detail(ctx, registrationID)
	if err != nil {
		h.logger.Error("registry detail lookup failed", "registration_id", registrationID, "error", err)
		_, sendErr := cbCtx.Client.SendText(ctx, cbCtx.ChatID,
			"❌ Gagal mengambil detail mahasiswa. Coba lagi beberapa saat lagi.")
		return sendErr
	}

	if len(detail) == 0 {
		_, err := cbCtx.Client.SendText(ctx, cbCtx.ChatID, "🔍 Detail mahasiswa tidak ditemukan.")
		return err
	}

	_, err = cbCtx.Client.SendMarkdown(ctx, cbCtx.ChatID, formatDetail(detail))
	return err
}

// detail consults the cache first, then the registry, then fills the cache.
func (h *StudentHandlers) detail(ctx context.Context, registrationID string) (pddikti.StudentDetail, error) {
	if h.cache != nil {
		if detail, err := h.cache.GetDetail(ctx, registrationID); err == nil {
			return detail, nil
		}
	}

	detail, err := h.registry.Detail(ctx, registrationID)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		if err := h.cache.SetDetail(ctx, registrationID, detail); err != nil {
			h.logger.Warn("failed to cache detail", "registration_id", registrationID, "error", err)
		}
	}
	return detail, nil
}

// Fallback handles anything that is not a recognized command.
func (h *StudentHandlers) Fallback(ctx context.Context, cmdCtx ifacetg.CommandContext) error {
	_, err := cmdCtx.Client.SendText(ctx, cmdCtx.ChatID,
		"❓ Perintah tidak dikenali.\nGunakan /cari <nama atau NIM> untuk mencari data mahasiswa.")
	return err
}

// record appends to the activity trail; failures are logged, never surfaced.
func (h *StudentHandlers) record(ctx context.Context, userID int64, username, action, details string) {
	entry := access.ActivityEntry{
		ID:         uuid.NewString(),
		UserID:     access.TelegramID(userID),
		Username:   username,
		Action:     action,
		Details:    details,
		OccurredAt: time.Now(),
	}
	if err := h.log.Record(ctx, entry); err != nil {
		h.logger.Error("failed to record activity", "action", action, "error", err)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DETAIL PRESENTATION
// ══════════════════════════════════════════════════════════════════════════════

// detailFields maps registry field keys to display labels, in display order.
var detailFields = []struct {
	key   string
	label string
}{
	{"nm_pd", "Nama"},
	{"nipd", "NIM"},
	{"namapt", "Perguruan Tinggi"},
	{"namaprodi", "Program Studi"},
	{"namajenjang", "Jenjang"},
	{"nm_jns_daftar", "Jenis Pendaftaran"},
	{"mulai_smt", "Semester Awal"},
	{"nm_stat_mhs", "Status"},
	{"nm_agama", "Agama"},
	{"jk", "Jenis Kelamin"},
	{"tmpt_lahir", "Tempat Lahir"},
	{"tgl_lahir", "Tanggal Lahir"},
}

// formatDetail renders a detail record, skipping empty fields.
func formatDetail(detail pddikti.StudentDetail) string {
	var b strings.Builder
	b.WriteString("🎓 *Detail Mahasiswa*\n\n")
	for _, f := range detailFields {
		if v := detail.StringField(f.key); v != "" {
			fmt.Fprintf(&b, "*%s:* %s\n", f.label, v)
		}
	}
	return b.String()
}
