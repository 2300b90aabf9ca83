// Package telegram adapts the Bot API client to the transport interfaces used
// by the broadcast coordinator and the referral ledger.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/broadcast"
)

// Transport sends messages through the Telegram Bot API. The underlying
// client is safe for concurrent use.
type Transport struct {
	api *tgbotapi.BotAPI
}

// NewTransport wraps an initialized Bot API client.
func NewTransport(api *tgbotapi.BotAPI) *Transport {
	return &Transport{api: api}
}

// Send delivers a broadcast payload to a single recipient. A Telegram
// "retry after" response maps to broadcast.RetryAfterError; everything else
// (blocked bot, deactivated account) is a generic delivery failure.
func (t *Transport) Send(ctx context.Context, recipient int64, payload broadcast.Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg tgbotapi.Chattable
	switch payload.Kind {
	case broadcast.KindPhoto:
		photo := tgbotapi.NewPhoto(recipient, tgbotapi.FileID(payload.FileID))
		photo.Caption = payload.Caption
		msg = photo
	case broadcast.KindVideo:
		video := tgbotapi.NewVideo(recipient, tgbotapi.FileID(payload.FileID))
		video.Caption = payload.Caption
		msg = video
	default:
		msg = tgbotapi.NewMessage(recipient, payload.Text)
	}

	_, err := t.api.Send(msg)
	return mapSendError(err)
}

// SendText delivers a plain text message to a chat.
func (t *Transport) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.api.Send(tgbotapi.NewMessage(chatID, text))
	return mapSendError(err)
}

// SendDocument uploads a local file to a chat. Used for log retrieval.
func (t *Transport) SendDocument(ctx context.Context, chatID int64, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.api.Send(tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path)))
	return mapSendError(err)
}

// NotifyRegistered implements referral.Notifier.
func (t *Transport) NotifyRegistered(ctx context.Context, invitedID int64) error {
	return t.SendText(ctx, invitedID, MsgReferralRegistered)
}

// NotifyAccessGranted implements referral.Notifier.
func (t *Transport) NotifyAccessGranted(ctx context.Context, inviterID int64) error {
	return t.SendText(ctx, inviterID, MsgAccessGranted)
}

// NotifyProgress implements referral.Notifier.
func (t *Transport) NotifyProgress(ctx context.Context, inviterID int64, count, required int) error {
	return t.SendText(ctx, inviterID, fmt.Sprintf(MsgReferralProgress, count, required))
}

func mapSendError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return &broadcast.RetryAfterError{After: time.Duration(apiErr.RetryAfter) * time.Second}
	}
	return err
}
