// Package bot dispatches inbound Telegram updates through an explicit
// middleware pipeline to command, button and free-text handlers.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/access"
	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/audit"
	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/broadcast"
	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/referral"
	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/storage/postgres"
)

// API is the transport surface the handler replies through. Satisfied by
// *tgbotapi.BotAPI.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Store is the ledger persistence the handler depends on directly.
type Store interface {
	UpsertUser(ctx context.Context, userID int64, username string) (postgres.User, error)
	GetUser(ctx context.Context, userID int64) (postgres.User, error)
}

// Cache is the key-value surface used by the flood gate.
type Cache interface {
	Exists(ctx context.Context, key string) (bool, error)
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
}

// Ledger covers referral registration and cached counts.
type Ledger interface {
	Register(ctx context.Context, inviterID, invitedID int64) error
	Count(ctx context.Context, userID int64) (int, error)
	Required() int
}

// Policy decides whether a user may consume an AI answer.
type Policy interface {
	Decide(ctx context.Context, userID int64) (access.Decision, error)
}

// Completer is the AI gateway surface.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	SetAPIKey(key string)
}

// Broadcaster launches broadcast runs.
type Broadcaster interface {
	Start(ctx context.Context, payload broadcast.Payload, onDone func(broadcast.Summary)) (broadcast.Started, error)
}

// StatsSource serves the formatted statistics snapshot.
type StatsSource interface {
	Text(ctx context.Context) (string, error)
}

// Options configure the handler.
type Options struct {
	AdminID     int64
	BotUsername string
	FloodLimit  time.Duration
	EnvFile     string
	LogFile     string
}

// Handler routes updates. The middleware pipeline is composed once at
// construction; HandleUpdate runs every message through it.
type Handler struct {
	api         API
	store       Store
	cache       Cache
	ledger      Ledger
	policy      Policy
	gateway     Completer
	broadcaster Broadcaster
	stats       StatsSource
	audit       audit.Emitter
	fsm         *FSM
	logger      *zap.Logger

	adminID     int64
	botUsername string
	floodLimit  time.Duration
	envFile     string
	logFile     string

	// runCtx outlives individual updates; broadcast dispatch and its
	// completion report run on it so a finished update does not cancel them.
	runCtx   context.Context
	pipeline HandlerFunc
}

// NewHandler wires the handler and composes the middleware pipeline:
// recover (outermost) → flood gate → activity upsert → dispatch.
func NewHandler(
	runCtx context.Context,
	api API,
	store Store,
	cacheStore Cache,
	ledger Ledger,
	policy Policy,
	gateway Completer,
	broadcaster Broadcaster,
	statsSource StatsSource,
	auditEmitter audit.Emitter,
	logger *zap.Logger,
	opts Options,
) *Handler {
	if opts.FloodLimit <= 0 {
		opts.FloodLimit = 2 * time.Second
	}
	h := &Handler{
		api:         api,
		store:       store,
		cache:       cacheStore,
		ledger:      ledger,
		policy:      policy,
		gateway:     gateway,
		broadcaster: broadcaster,
		stats:       statsSource,
		audit:       auditEmitter,
		fsm:         NewFSM(),
		logger:      logger.With(zap.String("component", "bot")),
		adminID:     opts.AdminID,
		botUsername: opts.BotUsername,
		floodLimit:  opts.FloodLimit,
		envFile:     opts.EnvFile,
		logFile:     opts.LogFile,
		runCtx:      runCtx,
	}
	h.pipeline = Chain(h.dispatch,
		h.recoverMiddleware,
		h.floodMiddleware,
		h.activityMiddleware,
	)
	return h
}

// HandleUpdate is the polling loop entry point.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.From == nil || msg.From.IsBot {
		return
	}
	_ = h.pipeline(ctx, msg)
}

// dispatch routes a message by command, conversation state and button label,
// in that order. Free text falls through to the gated AI question path.
func (h *Handler) dispatch(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			return h.handleStart(ctx, msg)
		case "admin":
			return h.handleAdminPanel(ctx, msg)
		}
	}

	if msg.From.ID == h.adminID {
		switch h.fsm.State(msg.Chat.ID) {
		case StateAwaitingBroadcastContent:
			return h.handleBroadcastContent(ctx, msg)
		case StateAwaitingAPIKey:
			return h.handleAPIKey(ctx, msg)
		}
	}

	switch msg.Text {
	case ButtonStartDialog:
		return h.handleStartDialog(ctx, msg)
	case ButtonStats:
		return h.handleStats(ctx, msg)
	case ButtonBroadcast:
		return h.handleBroadcastPrompt(ctx, msg)
	case ButtonLogs:
		return h.handleLogs(ctx, msg)
	case ButtonRotateKey:
		return h.handleAPIKeyPrompt(ctx, msg)
	}

	if msg.Text == "" {
		h.reply(ctx, msg.Chat.ID, MsgTextOnly)
		return nil
	}
	return h.handleQuestion(ctx, msg)
}

// handleStart services /start with an optional referrer argument. The user
// row already exists (activity middleware runs first).
func (h *Handler) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	userID := msg.From.ID

	if arg := strings.TrimSpace(msg.CommandArguments()); arg != "" {
		if inviterID, err := strconv.ParseInt(arg, 10, 64); err == nil {
			if done := h.registerReferral(ctx, inviterID, userID, msg.Chat.ID); done {
				return nil
			}
		}
	}

	h.emitAudit(ctx, audit.NewEvent(audit.ActionUserStart, userID, 0, nil))

	count, err := h.ledger.Count(ctx, userID)
	if err != nil {
		return fmt.Errorf("start referral count: %w", err)
	}

	if count >= h.ledger.Required() {
		h.replyWithMarkup(ctx, msg.Chat.ID, MsgWelcomeUnlocked, startDialogKeyboard())
		return nil
	}
	h.replyWithMarkup(ctx, msg.Chat.ID, MsgWelcomeGated, referralKeyboard(h.botUsername, userID))
	return nil
}

// registerReferral maps ledger rejections to their user-visible texts.
// Returns true when the /start flow should stop at the rejection message.
func (h *Handler) registerReferral(ctx context.Context, inviterID, invitedID, chatID int64) bool {
	err := h.ledger.Register(ctx, inviterID, invitedID)
	switch {
	case err == nil:
		h.emitAudit(ctx, audit.NewEvent(audit.ActionReferralCreated, inviterID, invitedID, nil))
		return false
	case errors.Is(err, referral.ErrSelfReferral):
		h.reply(ctx, chatID, MsgSelfReferral)
	case errors.Is(err, referral.ErrAlreadyReferred):
		h.reply(ctx, chatID, MsgAlreadyReferred)
	case errors.Is(err, referral.ErrDuplicate):
		h.reply(ctx, chatID, MsgDuplicateReferral)
	case errors.Is(err, referral.ErrUnknownUser):
		h.reply(ctx, chatID, MsgUnknownReferrer)
	default:
		h.logger.Error("referral registration failed",
			zap.Int64("inviter_id", inviterID), zap.Int64("invited_id", invitedID), zap.Error(err))
		h.reply(ctx, chatID, MsgUnavailable)
	}
	return true
}

func (h *Handler) handleStartDialog(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From.ID != h.adminID {
		count, err := h.ledger.Count(ctx, msg.From.ID)
		if err != nil {
			return fmt.Errorf("dialog referral count: %w", err)
		}
		if count < h.ledger.Required() {
			h.replyWithMarkup(ctx, msg.Chat.ID, MsgNotEnoughReferrals,
				referralKeyboard(h.botUsername, msg.From.ID))
			return nil
		}
	}
	h.reply(ctx, msg.Chat.ID, MsgDialogPrompt)
	return nil
}

// handleQuestion is the gated AI answer path: policy decision, completion,
// reply. A policy error fails closed; a gateway failure degrades to the
// fixed error string. While a completion is in flight the chat sits in
// AwaitingAnswer and further questions are turned away.
func (h *Handler) handleQuestion(ctx context.Context, msg *tgbotapi.Message) error {
	userID := msg.From.ID

	decision, err := h.policy.Decide(ctx, userID)
	if err != nil {
		h.logger.Error("access decision failed", zap.Int64("user_id", userID), zap.Error(err))
		h.reply(ctx, msg.Chat.ID, MsgUnavailable)
		return nil
	}
	if !decision.Allow {
		h.replyWithMarkup(ctx, msg.Chat.ID, MsgNotEnoughReferrals,
			referralKeyboard(h.botUsername, userID))
		return nil
	}

	if !h.fsm.Transition(msg.Chat.ID, StateAwaitingAnswer) {
		h.reply(ctx, msg.Chat.ID, MsgAnswerPending)
		return nil
	}
	defer h.fsm.Transition(msg.Chat.ID, StateIdle)

	answer, err := h.gateway.Complete(ctx, msg.Text)
	if err != nil {
		h.logger.Warn("completion failed", zap.Int64("user_id", userID), zap.Error(err))
		h.reply(ctx, msg.Chat.ID, MsgAIError)
		return nil
	}
	h.reply(ctx, msg.Chat.ID, answer)
	return nil
}

func (h *Handler) emitAudit(ctx context.Context, event audit.Event) {
	if err := h.audit.Emit(ctx, event); err != nil {
		h.logger.Warn("audit emission failed",
			zap.String("action", event.Action), zap.Error(err))
	}
}

func (h *Handler) notifyOperator(ctx context.Context, text string) {
	h.reply(ctx, h.adminID, text)
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	if ctx.Err() != nil {
		return
	}
	if _, err := h.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		h.logger.Warn("reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (h *Handler) replyWithMarkup(ctx context.Context, chatID int64, text string, markup any) {
	if ctx.Err() != nil {
		return
	}
	out := tgbotapi.NewMessage(chatID, text)
	out.ReplyMarkup = markup
	if _, err := h.api.Send(out); err != nil {
		h.logger.Warn("reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
