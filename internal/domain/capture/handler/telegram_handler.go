package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/FACorreiaa/quick-capture/internal/domain/capture/parser"
	"github.com/FACorreiaa/quick-capture/internal/domain/capture/service"
	"github.com/FACorreiaa/quick-capture/internal/domain/common"
	ledgerRepo "github.com/FACorreiaa/quick-capture/internal/domain/ledger/repository"
	ledgerService "github.com/FACorreiaa/quick-capture/internal/domain/ledger/service"
	"github.com/FACorreiaa/quick-capture/pkg/observability"
	"github.com/FACorreiaa/quick-capture/pkg/telegram"
)

// DefaultDedupTTL is how long an update_id is remembered. Telegram gives up
// redelivering well within it.
const DefaultDedupTTL = 10 * time.Minute

// WebhookPath is where Telegram delivers updates.
const WebhookPath = "/webhooks/telegram"

// SecretHeader carries the secret_token registered with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const (
	maxUpdateBytes = 1 << 20
	limiterTTL     = time.Hour
	replyTimeout   = 10 * time.Second
	updateTimeout  = 20 * time.Second
)

// Webhook update results, used as the metric label.
const (
	resultCaptured     = "captured"
	resultCommand      = "command"
	resultDuplicate    = "duplicate"
	resultIgnored      = "ignored"
	resultNotAllowed   = "not_allowed"
	resultRateLimited  = "rate_limited"
	resultInvalid      = "invalid"
	resultFailed       = "failed"
	resultUnauthorized = "unauthorized"
)

// Reporter supplies the /stats, /summary, /weeks and /ask commands.
type Reporter interface {
	Stats(ctx context.Context) (*ledgerRepo.Stats, error)
	Summary(ctx context.Context, req ledgerService.PeriodRequest) (*ledgerService.PeriodSummary, error)
	CompareWeeks(ctx context.Context, n int) (*ledgerService.WeekComparison, error)
	Ask(ctx context.Context, question string) (string, error)
}

// WebhookConfig configures TelegramHandler.
type WebhookConfig struct {
	Secret         string
	AllowedUserIDs []int64
	// RatePerSecond and Burst bound each sender separately. Zero disables
	// the limit.
	RatePerSecond float64
	Burst         int
	// DedupTTL defaults to DefaultDedupTTL.
	DedupTTL time.Duration
}

// TelegramHandler receives Telegram webhook updates and captures the
// messages they carry.
type TelegramHandler struct {
	capture service.CaptureService
	reports Reporter
	bot     telegram.Sender
	logger  *slog.Logger

	secret  []byte
	allowed map[int64]struct{}

	seen *cache.Cache

	limit    rate.Limit
	burst    int
	limitMu  sync.Mutex
	limiters *cache.Cache
}

// NewTelegramHandler creates the webhook handler. An empty allow list admits
// every sender.
func NewTelegramHandler(
	capture service.CaptureService,
	reports Reporter,
	bot telegram.Sender,
	cfg WebhookConfig,
	logger *slog.Logger,
) *TelegramHandler {
	allowed := make(map[int64]struct{}, len(cfg.AllowedUserIDs))
	for _, id := range cfg.AllowedUserIDs {
		allowed[id] = struct{}{}
	}
	dedupTTL := cfg.DedupTTL
	if dedupTTL <= 0 {
		dedupTTL = DefaultDedupTTL
	}
	return &TelegramHandler{
		capture:  capture,
		reports:  reports,
		bot:      bot,
		logger:   logger,
		secret:   []byte(cfg.Secret),
		allowed:  allowed,
		seen:     cache.New(dedupTTL, dedupTTL),
		limit:    rate.Limit(cfg.RatePerSecond),
		burst:    cfg.Burst,
		limiters: cache.New(limiterTTL, 10*time.Minute),
	}
}

// ServeHTTP implements http.Handler.
func (h *TelegramHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.authenticated(r) {
		h.record(resultUnauthorized)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	// Telegram retries anything but a 2xx, so past this point every outcome
	// is acknowledged.
	defer w.WriteHeader(http.StatusOK)

	var update telegram.Update
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUpdateBytes)).Decode(&update); err != nil {
		h.logger.WarnContext(r.Context(), "Invalid telegram update", slog.Any("error", err))
		h.record(resultInvalid)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), updateTimeout)
	defer cancel()
	h.record(h.handleUpdate(ctx, &update))
}

func (h *TelegramHandler) authenticated(r *http.Request) bool {
	if len(h.secret) == 0 {
		return false
	}
	got := []byte(r.Header.Get(SecretHeader))
	return subtle.ConstantTimeCompare(got, h.secret) == 1
}

func (h *TelegramHandler) handleUpdate(ctx context.Context, update *telegram.Update) string {
	if err := h.seen.Add(strconv.FormatInt(update.UpdateID, 10), struct{}{}, cache.DefaultExpiration); err != nil {
		return resultDuplicate
	}

	msg := update.EffectiveMessage()
	if msg == nil || msg.From == nil || msg.From.IsBot || strings.TrimSpace(msg.Body()) == "" {
		return resultIgnored
	}

	l := h.logger.With(
		slog.Int64("update_id", update.UpdateID),
		slog.Int64("userID", msg.From.ID),
	)

	if !h.isAllowed(msg.From.ID) {
		l.WarnContext(ctx, "Sender not on allow list", slog.Any("error", common.ErrNotAllowed))
		return resultNotAllowed
	}
	if !h.allow(msg.From.ID) {
		l.WarnContext(ctx, "Sender rate limited")
		return resultRateLimited
	}

	sender := common.Sender{
		UserID:   msg.From.ID,
		Username: msg.From.DisplayName(),
		ChatID:   msg.Chat.ID,
	}
	text := msg.Body()

	if err := h.capture.Validate(text); err != nil {
		h.reply(ctx, sender.ChatID, "That message is too long to log.")
		return resultInvalid
	}

	captured, err := h.capture.Capture(ctx, sender, text)
	if err != nil {
		l.ErrorContext(ctx, "Failed to capture telegram message", slog.Any("error", err))
		h.reply(ctx, sender.ChatID, "Sorry, I couldn't save that. Please try again.")
		return resultFailed
	}
	if captured.Kind == parser.KindCommand {
		h.reply(ctx, sender.ChatID, h.runCommand(ctx, sender, text))
		return resultCommand
	}
	h.reply(ctx, sender.ChatID, FormatReply(captured))
	return resultCaptured
}

func (h *TelegramHandler) runCommand(ctx context.Context, sender common.Sender, text string) string {
	fields := strings.Fields(text)
	name := strings.ToLower(fields[0])
	// Group chats address commands as /stats@botname.
	name, _, _ = strings.Cut(name, "@")
	name = strings.TrimLeft(name, "/")
	args := fields[1:]

	switch name {
	case "start", "help":
		return usageText
	case "stats":
		if h.reports == nil {
			return "Statistics are not available."
		}
		stats, err := h.reports.Stats(ctx)
		if err != nil {
			h.logger.ErrorContext(ctx, "Failed to load stats for command", slog.Any("error", err))
			return "Sorry, statistics are unavailable right now."
		}
		return formatStats(stats)
	case "summary":
		if h.reports == nil {
			return "Summaries are not available."
		}
		req, ok := summaryRequest(args)
		if !ok {
			return summaryUsage
		}
		summary, err := h.reports.Summary(ctx, req)
		if err != nil {
			h.logger.ErrorContext(ctx, "Failed to build summary for command", slog.Any("error", err))
			return "Sorry, I couldn't build that summary right now."
		}
		return summary.Text()
	case "weeks":
		if h.reports == nil {
			return "Summaries are not available."
		}
		n := 0
		if len(args) > 0 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v < 2 || v > ledgerService.MaxCompareWeeks {
				return fmt.Sprintf("Usage: /weeks [2-%d]", ledgerService.MaxCompareWeeks)
			}
			n = v
		}
		comparison, err := h.reports.CompareWeeks(ctx, n)
		if err != nil {
			h.logger.ErrorContext(ctx, "Failed to compare weeks for command", slog.Any("error", err))
			return "Sorry, I couldn't compare your weeks right now."
		}
		return comparison.Text()
	case "ask":
		if h.reports == nil {
			return "Questions are not available."
		}
		question := strings.Join(args, " ")
		if question == "" {
			return "Usage: /ask <question>, for example /ask where did most of my money go?"
		}
		answer, err := h.reports.Ask(ctx, question)
		switch {
		case errors.Is(err, common.ErrUnavailable):
			return "Questions need a language model, and none is configured."
		case errors.Is(err, common.ErrBadRequest):
			return fmt.Sprintf("Please keep questions under %d characters.", ledgerService.MaxQuestionLength)
		case err != nil:
			h.logger.ErrorContext(ctx, "Failed to answer question", slog.Any("error", err))
			return "Sorry, I couldn't answer that right now."
		}
		return answer
	case "recent":
		msgs, err := h.capture.RecentMessages(ctx, sender.UserID, service.DefaultRecentLimit)
		if err != nil {
			return "Sorry, I couldn't load your recent messages."
		}
		return formatRecent(msgs)
	default:
		return "Unknown command. Send /help for usage."
	}
}

const summaryUsage = "Usage: /summary [week|lastweek|month|quarter|year]"

// summaryRequest maps /summary arguments onto a period. No argument means
// the current week.
func summaryRequest(args []string) (ledgerService.PeriodRequest, bool) {
	if len(args) == 0 {
		return ledgerService.PeriodRequest{Kind: ledgerService.PeriodWeek}, true
	}
	if len(args) > 1 {
		return ledgerService.PeriodRequest{}, false
	}
	switch strings.ToLower(args[0]) {
	case "week", "thisweek":
		return ledgerService.PeriodRequest{Kind: ledgerService.PeriodWeek}, true
	case "lastweek", "last":
		return ledgerService.PeriodRequest{Kind: ledgerService.PeriodWeek, WeeksAgo: 1}, true
	case "month":
		return ledgerService.PeriodRequest{Kind: ledgerService.PeriodMonth}, true
	case "quarter":
		return ledgerService.PeriodRequest{Kind: ledgerService.PeriodQuarter}, true
	case "year":
		return ledgerService.PeriodRequest{Kind: ledgerService.PeriodYear}, true
	default:
		return ledgerService.PeriodRequest{}, false
	}
}

func (h *TelegramHandler) isAllowed(userID int64) bool {
	if len(h.allowed) == 0 {
		return true
	}
	_, ok := h.allowed[userID]
	return ok
}

func (h *TelegramHandler) allow(userID int64) bool {
	if h.limit <= 0 || h.burst <= 0 {
		return true
	}
	key := strconv.FormatInt(userID, 10)

	h.limitMu.Lock()
	defer h.limitMu.Unlock()
	v, ok := h.limiters.Get(key)
	if !ok {
		v = rate.NewLimiter(h.limit, h.burst)
	}
	// Set refreshes the expiry so active senders keep their bucket.
	h.limiters.SetDefault(key, v)
	return v.(*rate.Limiter).Allow()
}

func (h *TelegramHandler) reply(ctx context.Context, chatID int64, text string) {
	if h.bot == nil || chatID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), replyTimeout)
	defer cancel()
	if err := h.bot.SendMessage(ctx, chatID, text); err != nil {
		h.logger.WarnContext(ctx, "Failed to send telegram reply", slog.Int64("chat_id", chatID), slog.Any("error", err))
	}
}

func (h *TelegramHandler) record(result string) {
	observability.WebhookUpdatesTotal.WithLabelValues(result).Inc()
}
