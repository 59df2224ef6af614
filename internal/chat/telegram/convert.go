package telegram

import (
	"strings"

	tgmodels "github.com/go-telegram/bot/models"

	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/chat"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/models"
)

// Photos arrive re-encoded by Telegram.
const photoMIME = "image/jpeg"

// Markup builds an inline keyboard. A nil keyboard yields a nil interface so
// the field is left out of the request.
func Markup(kb *chat.Keyboard) tgmodels.ReplyMarkup {
	if kb == nil || len(kb.Rows) == 0 {
		return nil
	}
	rows := make([][]tgmodels.InlineKeyboardButton, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		buttons := make([]tgmodels.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			btn := tgmodels.InlineKeyboardButton{Text: b.Text}
			if b.WebAppURL != "" {
				btn.WebApp = &tgmodels.WebAppInfo{URL: b.WebAppURL}
			} else {
				btn.CallbackData = b.CallbackData
			}
			buttons = append(buttons, btn)
		}
		rows = append(rows, buttons)
	}
	return &tgmodels.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// Convert reduces a Bot API update to a chat.Update. Updates the bot has no
// use for report false.
func Convert(update *tgmodels.Update) (chat.Update, bool) {
	switch {
	case update == nil:
		return chat.Update{}, false

	case update.PreCheckoutQuery != nil:
		q := update.PreCheckoutQuery
		if q.From == nil {
			return chat.Update{}, false
		}
		return chat.Update{
			Kind:   chat.KindCheckout,
			UserID: q.From.ID,
			Checkout: &chat.Checkout{
				QueryID:  q.ID,
				Amount:   q.TotalAmount,
				Currency: q.Currency,
				Payload:  q.InvoicePayload,
			},
		}, true

	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		u := chat.Update{
			Kind:       chat.KindCallback,
			UserID:     q.From.ID,
			Data:       q.Data,
			CallbackID: q.ID,
		}
		if m := q.Message.Message; m != nil {
			u.Origin = models.MessageRef{ChatID: m.Chat.ID, MessageID: m.ID}
		}
		return u, true

	case update.Message != nil:
		return convertMessage(update.Message)
	}
	return chat.Update{}, false
}

func convertMessage(m *tgmodels.Message) (chat.Update, bool) {
	if m.From == nil {
		return chat.Update{}, false
	}
	u := chat.Update{UserID: m.From.ID}

	switch {
	case m.SuccessfulPayment != nil:
		p := m.SuccessfulPayment
		u.Kind = chat.KindPayment
		u.Payment = &chat.Payment{
			Amount:   p.TotalAmount,
			Currency: p.Currency,
			Payload:  p.InvoicePayload,
			ChargeID: p.TelegramPaymentChargeID,
		}

	case len(m.Photo) > 0:
		largest := m.Photo[len(m.Photo)-1]
		u.Kind = chat.KindUpload
		u.Upload = &chat.Upload{
			FileRef:  largest.FileID,
			MIME:     photoMIME,
			IsPhoto:  true,
			FileSize: int64(largest.FileSize),
		}

	case m.Document != nil:
		d := m.Document
		u.Kind = chat.KindUpload
		u.Upload = &chat.Upload{
			FileRef:  d.FileID,
			FileName: d.FileName,
			MIME:     d.MimeType,
			FileSize: d.FileSize,
		}

	case strings.HasPrefix(m.Text, "/"):
		u.Kind = chat.KindCommand
		u.Command = command(m.Text)
		u.Text = m.Text

	case m.Text != "":
		u.Kind = chat.KindText
		u.Text = m.Text

	default:
		return chat.Update{}, false
	}
	return u, true
}

// command extracts "start" from "/start@StoriesWallBot payload".
func command(text string) string {
	name := strings.Fields(text)[0]
	name = strings.TrimPrefix(name, "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	return strings.ToLower(name)
}
