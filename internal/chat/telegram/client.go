// Package telegram adapts the Telegram Bot API to the chat interfaces.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/chat"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/config"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/models"
)

const defaultPollTimeout = 30 * time.Second

// Client implements chat.Messenger, chat.Payments and chat.Notifier.
type Client struct {
	bot           *tgbot.Bot
	http          *http.Client
	currency      string
	providerToken string
	logger        zerolog.Logger
}

var (
	_ chat.Messenger = (*Client)(nil)
	_ chat.Payments  = (*Client)(nil)
	_ chat.Notifier  = (*Client)(nil)
)

// New connects to the Bot API. Updates are converted and passed to handler
// once Start is running.
func New(cfg config.TelegramConfig, handler chat.Handler, logger zerolog.Logger) (*Client, error) {
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}
	c := &Client{
		http:          &http.Client{},
		currency:      cfg.Currency,
		providerToken: cfg.ProviderToken,
		logger:        logger.With().Str("component", "telegram").Logger(),
	}

	b, err := tgbot.New(cfg.Token,
		tgbot.WithDefaultHandler(func(ctx context.Context, _ *tgbot.Bot, update *tgmodels.Update) {
			u, ok := Convert(update)
			if !ok {
				c.logger.Debug().Int64("update_id", update.ID).Msg("update ignored")
				return
			}
			handler.HandleUpdate(ctx, u)
		}),
		tgbot.WithHTTPClient(pollTimeout, c.http),
		tgbot.WithErrorsHandler(func(err error) {
			c.logger.Error().Err(err).Msg("bot api error")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	c.bot = b
	return c, nil
}

// Start long-polls for updates until ctx is cancelled.
func (c *Client) Start(ctx context.Context) {
	c.logger.Info().Msg("long-polling started")
	c.bot.Start(ctx)
	c.logger.Info().Msg("long-polling stopped")
}

func (c *Client) SendMessage(ctx context.Context, userID int64, text string, kb *chat.Keyboard) (models.MessageRef, error) {
	msg, err := c.bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:             userID,
		Text:               text,
		ParseMode:          tgmodels.ParseModeHTML,
		ReplyMarkup:        Markup(kb),
		LinkPreviewOptions: &tgmodels.LinkPreviewOptions{IsDisabled: tgbot.True()},
	})
	if err != nil {
		return models.MessageRef{}, fmt.Errorf("telegram: send message: %w", err)
	}
	return models.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.ID}, nil
}

func (c *Client) EditMessage(ctx context.Context, ref models.MessageRef, text string, kb *chat.Keyboard) error {
	_, err := c.bot.EditMessageText(ctx, &tgbot.EditMessageTextParams{
		ChatID:             ref.ChatID,
		MessageID:          ref.MessageID,
		Text:               text,
		ParseMode:          tgmodels.ParseModeHTML,
		ReplyMarkup:        Markup(kb),
		LinkPreviewOptions: &tgmodels.LinkPreviewOptions{IsDisabled: tgbot.True()},
	})
	if err != nil {
		return fmt.Errorf("telegram: edit message: %w", err)
	}
	return nil
}

func (c *Client) DeleteMessage(ctx context.Context, ref models.MessageRef) error {
	if _, err := c.bot.DeleteMessage(ctx, &tgbot.DeleteMessageParams{
		ChatID:    ref.ChatID,
		MessageID: ref.MessageID,
	}); err != nil {
		return fmt.Errorf("telegram: delete message: %w", err)
	}
	return nil
}

// DownloadFile resolves fileRef and streams the file into dst.
func (c *Client) DownloadFile(ctx context.Context, fileRef string, dst io.Writer) (int64, error) {
	file, err := c.bot.GetFile(ctx, &tgbot.GetFileParams{FileID: fileRef})
	if err != nil {
		return 0, fmt.Errorf("telegram: get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.bot.FileDownloadLink(file), nil)
	if err != nil {
		return 0, fmt.Errorf("telegram: build download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("telegram: download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("telegram: download file: unexpected status %s", resp.Status)
	}
	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return n, fmt.Errorf("telegram: read file: %w", err)
	}
	return n, nil
}

func (c *Client) SendFile(ctx context.Context, userID int64, name string, r io.Reader, caption string) error {
	if _, err := c.bot.SendDocument(ctx, &tgbot.SendDocumentParams{
		ChatID:    userID,
		Document:  &tgmodels.InputFileUpload{Filename: name, Data: r},
		Caption:   caption,
		ParseMode: tgmodels.ParseModeHTML,
	}); err != nil {
		return fmt.Errorf("telegram: send document: %w", err)
	}
	return nil
}

func (c *Client) RequestPayment(ctx context.Context, inv chat.Invoice) error {
	if inv.Amount <= 0 {
		return errors.New("telegram: invoice amount must be positive")
	}
	if _, err := c.bot.SendInvoice(ctx, &tgbot.SendInvoiceParams{
		ChatID:        inv.UserID,
		Title:         inv.Title,
		Description:   inv.Description,
		Payload:       inv.Payload,
		ProviderToken: c.providerToken,
		Currency:      c.currency,
		Prices:        []tgmodels.LabeledPrice{{Label: inv.Title, Amount: inv.Amount}},
	}); err != nil {
		return fmt.Errorf("telegram: send invoice: %w", err)
	}
	return nil
}

func (c *Client) AnswerCheckout(ctx context.Context, queryID string, ok bool, reason string) error {
	params := &tgbot.AnswerPreCheckoutQueryParams{PreCheckoutQueryID: queryID, OK: ok}
	if !ok {
		params.ErrorMessage = reason
	}
	if _, err := c.bot.AnswerPreCheckoutQuery(ctx, params); err != nil {
		return fmt.Errorf("telegram: answer pre-checkout: %w", err)
	}
	return nil
}

func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	if _, err := c.bot.AnswerCallbackQuery(ctx, &tgbot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       alert,
	}); err != nil {
		return fmt.Errorf("telegram: answer callback: %w", err)
	}
	return nil
}
