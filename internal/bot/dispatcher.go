// Package bot routes chat updates to the creation wizard and the menus.
package bot

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/chat"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/messages"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/models"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/wizard"
)

// Creations is the part of the wizard the dispatcher drives.
type Creations interface {
	State(userID int64) wizard.State
	Start(ctx context.Context, userID int64, origin models.MessageRef) error
	DiscardAndStart(ctx context.Context, userID int64, origin models.MessageRef) error
	Cancel(ctx context.Context, userID int64) bool
	ReceiveImage(ctx context.Context, userID int64, up chat.Upload) error
	SelectParts(ctx context.Context, userID int64, value string, origin models.MessageRef) error
	SelectFit(ctx context.Context, userID int64, value string, origin models.MessageRef) error
	Confirm(ctx context.Context, userID int64, origin models.MessageRef) error
	RequestInvoice(ctx context.Context, userID int64, origin models.MessageRef) error
	ApproveCheckout(ctx context.Context, userID int64, amount int) bool
	PaymentSucceeded(ctx context.Context, userID int64, amount int) error
}

type Stats interface {
	GetUserRecord(ctx context.Context, userID int64) (models.UserRecord, error)
	Aggregate(ctx context.Context) (models.AggregateStats, error)
	IsPrivilegedUser(userID int64) bool
}

type Menu interface {
	Render(ctx context.Context, userID int64, welcome bool) (string, *chat.Keyboard)
}

type Deps struct {
	Creations Creations
	Stats     Stats
	Menu      Menu
	Texts     *messages.Catalog
	Messenger chat.Messenger
	Payments  chat.Payments
	Notifier  chat.Notifier
	Logger    zerolog.Logger
}

// Dispatcher implements chat.Handler.
type Dispatcher struct {
	creations Creations
	stats     Stats
	menu      Menu
	texts     *messages.Catalog
	chat      chat.Messenger
	payments  chat.Payments
	notifier  chat.Notifier
	logger    zerolog.Logger
	now       func() time.Time
}

var _ chat.Handler = (*Dispatcher)(nil)

func NewDispatcher(d Deps) *Dispatcher {
	return &Dispatcher{
		creations: d.Creations,
		stats:     d.Stats,
		menu:      d.Menu,
		texts:     d.Texts,
		chat:      d.Messenger,
		payments:  d.Payments,
		notifier:  d.Notifier,
		logger:    d.Logger.With().Str("component", "dispatcher").Logger(),
		now:       time.Now,
	}
}

func (d *Dispatcher) HandleUpdate(ctx context.Context, u chat.Update) {
	logger := d.logger.With().Int64("user_id", u.UserID).Stringer("kind", u.Kind).Logger()

	switch u.Kind {
	case chat.KindCommand:
		d.command(ctx, logger, u)
	case chat.KindCallback:
		d.callback(ctx, logger, u)
	case chat.KindUpload:
		d.report(logger, "receive image", d.creations.ReceiveImage(ctx, u.UserID, *u.Upload))
	case chat.KindText:
		if d.creations.State(u.UserID) == wizard.AwaitingImage {
			d.send(ctx, logger, u.UserID, d.texts.NotAnImage(), nil)
		}
	case chat.KindCheckout:
		d.checkout(ctx, logger, u)
	case chat.KindPayment:
		logger.Info().
			Int("amount", u.Payment.Amount).
			Str("currency", u.Payment.Currency).
			Str("payload", u.Payment.Payload).
			Str("charge_id", u.Payment.ChargeID).
			Msg("payment received")
		d.report(logger, "payment", d.creations.PaymentSucceeded(ctx, u.UserID, u.Payment.Amount))
	default:
		logger.Debug().Msg("update ignored")
	}
}

func (d *Dispatcher) command(ctx context.Context, logger zerolog.Logger, u chat.Update) {
	switch u.Command {
	case "start":
		text, kb := d.menu.Render(ctx, u.UserID, true)
		d.send(ctx, logger, u.UserID, text, kb)
	case "help":
		text, kb := d.texts.Help()
		d.send(ctx, logger, u.UserID, text, kb)
	case "stats":
		text, kb, err := d.userStats(ctx, u.UserID)
		if err != nil {
			logger.Error().Err(err).Msg("load stats")
			d.send(ctx, logger, u.UserID, d.texts.Failure(), nil)
			return
		}
		d.send(ctx, logger, u.UserID, text, kb)
	default:
		logger.Debug().Str("command", u.Command).Msg("unknown command")
	}
}

func (d *Dispatcher) callback(ctx context.Context, logger zerolog.Logger, u chat.Update) {
	var (
		notice string
		alert  bool
	)
	defer func() {
		if u.CallbackID == "" {
			return
		}
		if err := d.notifier.AnswerCallback(ctx, u.CallbackID, notice, alert); err != nil {
			logger.Debug().Err(err).Msg("answer callback")
		}
	}()

	prefix, value := messages.Split(u.Data)
	switch prefix {
	case messages.PartsPrefix:
		d.report(logger, "select parts", d.creations.SelectParts(ctx, u.UserID, value, u.Origin))
		return
	case messages.FitPrefix:
		d.report(logger, "select fit", d.creations.SelectFit(ctx, u.UserID, value, u.Origin))
		return
	case messages.PayPrefix:
		d.report(logger, "request invoice", d.creations.RequestInvoice(ctx, u.UserID, u.Origin))
		return
	}

	switch u.Data {
	case messages.CBStartCreation:
		d.report(logger, "start", d.creations.Start(ctx, u.UserID, u.Origin))
	case messages.CBCancelAndStart:
		d.report(logger, "restart", d.creations.DiscardAndStart(ctx, u.UserID, u.Origin))
	case messages.CBCancelCreation:
		d.creations.Cancel(ctx, u.UserID)
		text, kb := d.menu.Render(ctx, u.UserID, false)
		d.show(ctx, logger, u, text, kb)
	case messages.CBCreateNow:
		d.report(logger, "confirm", d.creations.Confirm(ctx, u.UserID, u.Origin))
	case messages.CBBackToMain:
		text, kb := d.menu.Render(ctx, u.UserID, false)
		d.show(ctx, logger, u, text, kb)
	case messages.CBHelp:
		text, kb := d.texts.Help()
		d.show(ctx, logger, u, text, kb)
	case messages.CBExamples:
		text, kb := d.texts.Examples()
		d.show(ctx, logger, u, text, kb)
	case messages.CBStats:
		text, kb, err := d.userStats(ctx, u.UserID)
		if err != nil {
			logger.Error().Err(err).Msg("load stats")
			notice, alert = d.texts.Failure(), true
			return
		}
		d.show(ctx, logger, u, text, kb)
	case messages.CBAdminPanel, messages.CBAdminStats:
		if !d.stats.IsPrivilegedUser(u.UserID) {
			logger.Warn().Str("data", u.Data).Msg("admin action refused")
			notice, alert = d.texts.AccessDenied(), true
			return
		}
		if u.Data == messages.CBAdminPanel {
			text, kb := d.texts.AdminPanel()
			d.show(ctx, logger, u, text, kb)
			return
		}
		agg, err := d.stats.Aggregate(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("aggregate stats")
			notice, alert = d.texts.Failure(), true
			return
		}
		text, kb := d.texts.AdminStats(agg, d.now())
		d.show(ctx, logger, u, text, kb)
	default:
		logger.Debug().Str("data", u.Data).Msg("unknown callback")
	}
}

func (d *Dispatcher) checkout(ctx context.Context, logger zerolog.Logger, u chat.Update) {
	q := u.Checkout
	ok := d.creations.ApproveCheckout(ctx, u.UserID, q.Amount)
	reason := ""
	if !ok {
		reason = d.texts.CheckoutRejected()
		logger.Warn().Int("amount", q.Amount).Str("payload", q.Payload).Msg("checkout rejected")
	}
	if err := d.payments.AnswerCheckout(ctx, q.QueryID, ok, reason); err != nil {
		logger.Error().Err(err).Msg("answer checkout")
	}
}

func (d *Dispatcher) userStats(ctx context.Context, userID int64) (string, *chat.Keyboard, error) {
	rec, err := d.stats.GetUserRecord(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	agg, err := d.stats.Aggregate(ctx)
	if err != nil {
		return "", nil, err
	}
	text, kb := d.texts.UserStats(rec, agg)
	return text, kb, nil
}

// report logs wizard outcomes: rejections were already explained to the
// user, anything else is an infrastructure problem.
func (d *Dispatcher) report(logger zerolog.Logger, op string, err error) {
	switch {
	case err == nil:
	case wizard.Rejected(err):
		logger.Debug().Err(err).Str("op", op).Msg("input rejected")
	default:
		logger.Error().Err(err).Str("op", op).Msg("wizard step failed")
	}
}

func (d *Dispatcher) show(ctx context.Context, logger zerolog.Logger, u chat.Update, text string, kb *chat.Keyboard) {
	if u.Origin.MessageID != 0 {
		err := d.chat.EditMessage(ctx, u.Origin, text, kb)
		if err == nil {
			return
		}
		logger.Debug().Err(err).Msg("edit failed, sending instead")
	}
	d.send(ctx, logger, u.UserID, text, kb)
}

func (d *Dispatcher) send(ctx context.Context, logger zerolog.Logger, userID int64, text string, kb *chat.Keyboard) {
	if _, err := d.chat.SendMessage(ctx, userID, text, kb); err != nil {
		logger.Warn().Err(err).Msg("send message")
	}
}
