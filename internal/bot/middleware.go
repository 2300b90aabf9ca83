package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/cache"
	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/metrics"
)

// HandlerFunc processes a single inbound message.
type HandlerFunc func(ctx context.Context, msg *tgbotapi.Message) error

// Middleware wraps a HandlerFunc. A stage short-circuits by not invoking next.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares around h. The first middleware is the outermost
// stage; pipeline order is explicit configuration, set once in NewHandler.
func Chain(h HandlerFunc, mws ...Middleware) HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// recoverMiddleware is the outermost stage. Panics and handler errors are
// logged and reported to the operator identity; one failing update must not
// take down the polling loop, and end users never see a raw error.
func (h *Handler) recoverMiddleware(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, msg *tgbotapi.Message) (err error) {
		defer func() {
			if r := recover(); r != nil {
				metrics.UpdatesHandled.WithLabelValues("panic").Inc()
				h.logger.Error("handler panic",
					zap.Int64("user_id", msg.From.ID), zap.Any("panic", r))
				h.notifyOperator(ctx, fmt.Sprintf("⚠️ Бот упал! Ошибка: %v", r))
				err = nil
			}
		}()

		if err := next(ctx, msg); err != nil {
			metrics.UpdatesHandled.WithLabelValues("error").Inc()
			h.logger.Error("handler error",
				zap.Int64("user_id", msg.From.ID), zap.Error(err))
			h.notifyOperator(ctx, fmt.Sprintf("⚠️ Бот упал! Ошибка: %v", err))
			h.reply(ctx, msg.Chat.ID, MsgInternalError)
			return nil
		}
		metrics.UpdatesHandled.WithLabelValues("handled").Inc()
		return nil
	}
}

// floodMiddleware gates message frequency per user through the flood cache
// key. A cache outage lets the message through; flood control is advisory.
func (h *Handler) floodMiddleware(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, msg *tgbotapi.Message) error {
		key := cache.FloodKey(msg.From.ID)
		limited, err := h.cache.Exists(ctx, key)
		if err != nil {
			h.logger.Warn("flood check failed", zap.Error(err))
			return next(ctx, msg)
		}
		if limited {
			metrics.UpdatesHandled.WithLabelValues("flood_limited").Inc()
			h.reply(ctx, msg.Chat.ID, MsgFloodLimited)
			return nil
		}
		if err := h.cache.SetEx(ctx, key, "1", h.floodLimit); err != nil {
			h.logger.Warn("flood gate write failed", zap.Error(err))
		}
		return next(ctx, msg)
	}
}

// activityMiddleware creates the user row on first contact and touches
// last_activity on every message. Downstream handlers rely on the row
// existing.
func (h *Handler) activityMiddleware(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, msg *tgbotapi.Message) error {
		if _, err := h.store.UpsertUser(ctx, msg.From.ID, msg.From.UserName); err != nil {
			return fmt.Errorf("upsert user: %w", err)
		}
		return next(ctx, msg)
	}
}
