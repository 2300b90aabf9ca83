package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/audit"
	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/broadcast"
)

const minAPIKeyLength = 20

// isAdmin gates an admin action, replying with the denial text for everyone
// else.
func (h *Handler) isAdmin(ctx context.Context, msg *tgbotapi.Message) bool {
	if msg.From.ID == h.adminID {
		return true
	}
	h.reply(ctx, msg.Chat.ID, MsgAdminDenied)
	return false
}

func (h *Handler) handleAdminPanel(ctx context.Context, msg *tgbotapi.Message) error {
	if !h.isAdmin(ctx, msg) {
		return nil
	}
	h.replyWithMarkup(ctx, msg.Chat.ID, MsgAdminPanel, adminKeyboard())
	return nil
}

func (h *Handler) handleStats(ctx context.Context, msg *tgbotapi.Message) error {
	if !h.isAdmin(ctx, msg) {
		return nil
	}
	text, err := h.stats.Text(ctx)
	if err != nil {
		return fmt.Errorf("stats snapshot: %w", err)
	}
	h.reply(ctx, msg.Chat.ID, text)
	return nil
}

func (h *Handler) handleBroadcastPrompt(ctx context.Context, msg *tgbotapi.Message) error {
	if !h.isAdmin(ctx, msg) {
		return nil
	}
	if !h.fsm.Transition(msg.Chat.ID, StateAwaitingBroadcastContent) {
		h.fsm.Reset(msg.Chat.ID)
		h.fsm.Transition(msg.Chat.ID, StateAwaitingBroadcastContent)
	}
	h.reply(ctx, msg.Chat.ID, MsgBroadcastPrompt)
	return nil
}

// handleBroadcastContent turns the admin's message into the broadcast payload
// and launches the coordinator. The acknowledgment is immediate; the summary
// arrives asynchronously after dispatch completes and the lock is released.
func (h *Handler) handleBroadcastContent(ctx context.Context, msg *tgbotapi.Message) error {
	h.fsm.Transition(msg.Chat.ID, StateIdle)

	payload := payloadFromMessage(msg)
	adminChat := msg.Chat.ID

	started, err := h.broadcaster.Start(h.runCtx, payload, func(summary broadcast.Summary) {
		h.reply(h.runCtx, adminChat,
			fmt.Sprintf(MsgBroadcastFinished, summary.Delivered, summary.Failed))
		h.emitAudit(h.runCtx, audit.NewEvent(audit.ActionBroadcastFinish, h.adminID, 0, map[string]any{
			"delivered": summary.Delivered,
			"failed":    summary.Failed,
			"cancelled": summary.Cancelled,
		}))
	})
	if err != nil {
		if errors.Is(err, broadcast.ErrBusy) {
			h.reply(ctx, adminChat, MsgBroadcastBusy)
			return nil
		}
		return fmt.Errorf("start broadcast: %w", err)
	}

	h.emitAudit(ctx, audit.NewEvent(audit.ActionBroadcastStart, h.adminID, 0, map[string]any{
		"recipients": started.Total,
		"kind":       string(payload.Kind),
	}))
	h.reply(ctx, adminChat, fmt.Sprintf(MsgBroadcastStarted, started.Total))
	return nil
}

// payloadFromMessage selects the richest media the message carries. Telegram
// delivers photos in multiple resolutions; the last entry is the largest.
func payloadFromMessage(msg *tgbotapi.Message) broadcast.Payload {
	switch {
	case len(msg.Photo) > 0:
		return broadcast.PhotoPayload(msg.Photo[len(msg.Photo)-1].FileID, msg.Caption)
	case msg.Video != nil:
		return broadcast.VideoPayload(msg.Video.FileID, msg.Caption)
	default:
		return broadcast.TextPayload(msg.Text)
	}
}

// handleLogs ships the admin action log as a document and truncates it so
// the next retrieval starts fresh.
func (h *Handler) handleLogs(ctx context.Context, msg *tgbotapi.Message) error {
	if !h.isAdmin(ctx, msg) {
		return nil
	}

	if _, err := os.Stat(h.logFile); err != nil {
		h.reply(ctx, msg.Chat.ID, MsgLogsMissing)
		return nil
	}

	doc := tgbotapi.NewDocument(msg.Chat.ID, tgbotapi.FilePath(h.logFile))
	if _, err := h.api.Send(doc); err != nil {
		h.logger.Error("log shipping failed", zap.Error(err))
		h.reply(ctx, msg.Chat.ID, MsgLogsFailed)
		return nil
	}

	if err := os.Truncate(h.logFile, 0); err != nil {
		h.logger.Warn("log truncate failed", zap.Error(err))
	}
	h.reply(ctx, msg.Chat.ID, MsgLogsSent)
	return nil
}

func (h *Handler) handleAPIKeyPrompt(ctx context.Context, msg *tgbotapi.Message) error {
	if !h.isAdmin(ctx, msg) {
		return nil
	}
	if !h.fsm.Transition(msg.Chat.ID, StateAwaitingAPIKey) {
		h.fsm.Reset(msg.Chat.ID)
		h.fsm.Transition(msg.Chat.ID, StateAwaitingAPIKey)
	}
	h.reply(ctx, msg.Chat.ID, MsgAPIKeyPrompt)
	return nil
}

// handleAPIKey validates and applies a new completion service key: the env
// file is rewritten so the key survives restarts, then the live gateway is
// switched over.
func (h *Handler) handleAPIKey(ctx context.Context, msg *tgbotapi.Message) error {
	key := strings.TrimSpace(msg.Text)
	if len(key) < minAPIKeyLength {
		h.reply(ctx, msg.Chat.ID, MsgAPIKeyInvalid)
		return nil
	}
	h.fsm.Transition(msg.Chat.ID, StateIdle)

	if err := rewriteEnvValue(h.envFile, "AI_TOKEN", key); err != nil {
		return fmt.Errorf("persist api key: %w", err)
	}
	h.gateway.SetAPIKey(key)

	h.emitAudit(ctx, audit.NewEvent(audit.ActionAPIKeyRotate, h.adminID, 0, nil))
	h.reply(ctx, msg.Chat.ID, MsgAPIKeyUpdated)
	return nil
}

// rewriteEnvValue replaces (or appends) a KEY=value line in a dotenv file.
func rewriteEnvValue(path, key, value string) error {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	prefix := key + "="
	lines := strings.Split(string(data), "\n")
	replaced := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), prefix) {
			lines[i] = prefix + value
			replaced = true
		}
	}
	if !replaced {
		if len(lines) > 0 && lines[len(lines)-1] == "" {
			lines[len(lines)-1] = prefix + value
			lines = append(lines, "")
		} else {
			lines = append(lines, prefix+value)
		}
	}
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o600)
}
