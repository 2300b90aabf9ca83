package bot

import (
	"fmt"
	"net/url"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// referralKeyboard builds the inline keyboard with the user's personal invite
// link and a share shortcut.
func referralKeyboard(botUsername string, userID int64) tgbotapi.InlineKeyboardMarkup {
	link := fmt.Sprintf("https://t.me/%s?start=%d", botUsername, userID)
	share := "https://t.me/share/url?url=" + url.QueryEscape(link)
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("🔗 Пригласить друга", share),
		),
	)
}

// startDialogKeyboard is shown to unlocked users.
func startDialogKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(ButtonStartDialog)),
	)
	kb.ResizeKeyboard = true
	return kb
}

// adminKeyboard is the admin panel action menu.
func adminKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonStats),
			tgbotapi.NewKeyboardButton(ButtonBroadcast),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(ButtonLogs),
			tgbotapi.NewKeyboardButton(ButtonRotateKey),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}
