// Package chat describes what the bot needs from a messaging platform,
// independent of any particular one.
package chat

import (
	"context"
	"io"

	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/models"
)

type Button struct {
	Text         string
	CallbackData string
	WebAppURL    string
}

type Keyboard struct {
	Rows [][]Button
}

func NewKeyboard(rows ...[]Button) *Keyboard {
	return &Keyboard{Rows: rows}
}

func Row(buttons ...Button) []Button {
	return buttons
}

func Callback(text, data string) Button {
	return Button{Text: text, CallbackData: data}
}

func WebApp(text, url string) Button {
	return Button{Text: text, WebAppURL: url}
}

// Messenger sends and edits user-visible messages and moves files.
type Messenger interface {
	SendMessage(ctx context.Context, userID int64, text string, kb *Keyboard) (models.MessageRef, error)
	EditMessage(ctx context.Context, ref models.MessageRef, text string, kb *Keyboard) error
	DeleteMessage(ctx context.Context, ref models.MessageRef) error
	DownloadFile(ctx context.Context, fileRef string, dst io.Writer) (int64, error)
	SendFile(ctx context.Context, userID int64, name string, r io.Reader, caption string) error
}

type Invoice struct {
	UserID      int64
	Amount      int
	Title       string
	Description string
	Payload     string
}

// Payments issues invoices and answers the platform's pre-checkout check.
type Payments interface {
	RequestPayment(ctx context.Context, inv Invoice) error
	AnswerCheckout(ctx context.Context, queryID string, ok bool, reason string) error
}

// Notifier acknowledges a button press, optionally with a popup.
type Notifier interface {
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
}

type Kind int

const (
	KindUnknown Kind = iota
	KindCommand
	KindCallback
	KindUpload
	KindText
	KindCheckout
	KindPayment
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindCallback:
		return "callback"
	case KindUpload:
		return "upload"
	case KindText:
		return "text"
	case KindCheckout:
		return "checkout"
	case KindPayment:
		return "payment"
	}
	return "unknown"
}

// Upload is an inbound file the user attached to a message.
type Upload struct {
	FileRef  string
	FileName string
	MIME     string
	IsPhoto  bool
	FileSize int64
}

type Checkout struct {
	QueryID  string
	Amount   int
	Currency string
	Payload  string
}

type Payment struct {
	Amount   int
	Currency string
	Payload  string
	ChargeID string
}

// Update is one inbound event, already reduced to the fields the bot uses.
type Update struct {
	Kind       Kind
	UserID     int64
	Command    string
	Text       string
	Data       string
	CallbackID string
	Origin     models.MessageRef
	Upload     *Upload
	Checkout   *Checkout
	Payment    *Payment
}

type Handler interface {
	HandleUpdate(ctx context.Context, u Update)
}

type HandlerFunc func(ctx context.Context, u Update)

func (f HandlerFunc) HandleUpdate(ctx context.Context, u Update) {
	f(ctx, u)
}
