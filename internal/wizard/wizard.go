// Package wizard drives a user through creating a wall: upload, part count,
// fit mode, confirmation and, when the quote is not free, payment.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/chat"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/media/sniffer"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/messages"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/models"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/pending"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/pricing"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/scratch"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/tiling"
)

// Input rejections. The user has already been told; state is unchanged
// except for ErrNoPending, which resets the user to Idle.
var (
	ErrUnexpectedInput = errors.New("wizard: unexpected input for the current step")
	ErrNotAnImage      = errors.New("wizard: upload is not an image")
	ErrDecode          = errors.New("wizard: image could not be decoded")
	ErrPendingExists   = errors.New("wizard: a creation is already in progress")
	ErrNoPending       = errors.New("wizard: no pending creation")
	ErrTooLarge        = errors.New("wizard: image too large to tile")
)

// Rejected reports whether err is an input rejection rather than an
// infrastructure failure.
func Rejected(err error) bool {
	for _, target := range []error{ErrUnexpectedInput, ErrNotAnImage, ErrDecode, ErrTooLarge, ErrPendingExists, ErrNoPending} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type Stats interface {
	GetUserRecord(ctx context.Context, userID int64) (models.UserRecord, error)
	IncrementPaidAmount(ctx context.Context, userID int64, amount int) error
	IsPrivilegedUser(userID int64) bool
}

type Queue interface {
	Enqueue(job models.Job) (int, error)
	Len() int
}

type Deps struct {
	Store     *pending.Store
	Scratch   *scratch.Workspace
	Queue     Queue
	Stats     Stats
	Messenger chat.Messenger
	Payments  chat.Payments
	Texts     *messages.Catalog
	Logger    zerolog.Logger
}

type Options struct {
	Prices         pricing.Prices
	LargeFileBytes int64
	// Geometry supplies the pixel budgets uploads are checked against. The
	// zero value means tiling.DefaultGeometry.
	Geometry tiling.Geometry
}

type Wizard struct {
	store   *pending.Store
	scratch *scratch.Workspace
	queue   Queue
	stats   Stats
	chat    chat.Messenger
	pay     chat.Payments
	texts   *messages.Catalog
	opts    Options
	logger  zerolog.Logger

	locks  userLocks
	mu     sync.Mutex
	states map[int64]State

	now   func() time.Time
	newID func() string
}

func New(d Deps, opts Options) *Wizard {
	if opts.Geometry == (tiling.Geometry{}) {
		opts.Geometry = tiling.DefaultGeometry
	}
	return &Wizard{
		store:   d.Store,
		scratch: d.Scratch,
		queue:   d.Queue,
		stats:   d.Stats,
		chat:    d.Messenger,
		pay:     d.Payments,
		texts:   d.Texts,
		opts:    opts,
		logger:  d.Logger.With().Str("component", "wizard").Logger(),
		states:  make(map[int64]State),
		now:     time.Now,
		newID:   func() string { return ksuid.New().String() },
	}
}

func (w *Wizard) State(userID int64) State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.states[userID]
}

func (w *Wizard) setState(userID int64, s State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s == Idle {
		delete(w.states, userID)
		return
	}
	w.states[userID] = s
}

// Start moves the user to AwaitingImage unless a creation is already pending,
// in which case the user is asked whether to discard it.
func (w *Wizard) Start(ctx context.Context, userID int64, origin models.MessageRef) error {
	unlock := w.locks.lock(userID)
	defer unlock()
	return w.start(ctx, userID, origin)
}

func (w *Wizard) start(ctx context.Context, userID int64, origin models.MessageRef) error {
	if w.store.Has(userID) {
		text, kb := w.texts.PendingExists()
		w.show(ctx, userID, origin, text, kb)
		return ErrPendingExists
	}
	w.setState(userID, AwaitingImage)
	text, kb := w.texts.UploadPrompt()
	w.show(ctx, userID, origin, text, kb)
	return nil
}

// DiscardAndStart drops the pending creation together with its files and
// starts over.
func (w *Wizard) DiscardAndStart(ctx context.Context, userID int64, origin models.MessageRef) error {
	unlock := w.locks.lock(userID)
	defer unlock()

	w.store.Remove(userID, true)
	w.setState(userID, Idle)
	return w.start(ctx, userID, origin)
}

// Cancel returns the user to Idle from any state, deleting the pending
// creation's files. It reports whether there was anything to discard.
func (w *Wizard) Cancel(ctx context.Context, userID int64) bool {
	unlock := w.locks.lock(userID)
	defer unlock()

	removed := w.store.Remove(userID, true)
	w.setState(userID, Idle)
	w.logger.Info().Int64("user_id", userID).Bool("had_pending", removed).Msg("creation cancelled")
	return removed
}

// ReceiveImage accepts the source picture. The file is saved into a fresh
// scratch directory, which is discarded again if the picture is unusable.
func (w *Wizard) ReceiveImage(ctx context.Context, userID int64, up chat.Upload) error {
	unlock := w.locks.lock(userID)
	defer unlock()

	if w.State(userID) != AwaitingImage {
		w.say(ctx, userID, w.texts.UnexpectedInput())
		return ErrUnexpectedInput
	}
	if !up.IsPhoto && !sniffer.IsImageMIME(up.MIME) {
		w.say(ctx, userID, w.texts.NotAnImage())
		return ErrNotAnImage
	}

	dir, err := w.scratch.Create(userID)
	if err != nil {
		w.say(ctx, userID, w.texts.Failure())
		return err
	}
	record, err := w.accept(ctx, userID, dir, up)
	if err != nil {
		w.scratch.Discard(dir)
		switch {
		case errors.Is(err, ErrDecode):
			w.say(ctx, userID, w.texts.DecodeFailed())
		case errors.Is(err, ErrTooLarge):
			w.say(ctx, userID, w.texts.ImageTooLarge())
		default:
			w.say(ctx, userID, w.texts.Failure())
		}
		return err
	}

	if w.store.Has(userID) {
		w.store.Remove(userID, true)
	}
	w.store.Put(record)
	w.setState(userID, AwaitingPartCount)

	info := messages.ImageInfo{
		Size:      record.Image,
		Bytes:     record.SourceFileSize,
		LargeFile: record.IsLargeFile,
		Admin:     w.stats.IsPrivilegedUser(userID),
	}
	if user, err := w.stats.GetUserRecord(ctx, userID); err != nil {
		w.logger.Error().Err(err).Int64("user_id", userID).Msg("load user record")
	} else {
		info.FreeLeft = pricing.FreeLeft(user.CreatedCount, w.opts.Prices)
	}
	text, kb := w.texts.ImageReceived(info)
	if _, err := w.chat.SendMessage(ctx, userID, text, kb); err != nil {
		w.logger.Warn().Err(err).Int64("user_id", userID).Msg("send part count prompt")
	}
	return nil
}

func (w *Wizard) accept(ctx context.Context, userID int64, dir string, up chat.Upload) (models.PendingCreation, error) {
	fs := w.scratch.Fs()
	path := scratch.SourcePath(dir)

	f, err := fs.Create(path)
	if err != nil {
		return models.PendingCreation{}, fmt.Errorf("create source file: %w", err)
	}
	n, err := w.chat.DownloadFile(ctx, up.FileRef, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return models.PendingCreation{}, fmt.Errorf("download upload: %w", err)
	}

	if _, err := sniffer.DetectFile(fs, path); err != nil {
		return models.PendingCreation{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	dims, format, err := tiling.DecodeConfig(fs, path)
	if err != nil {
		return models.PendingCreation{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := w.opts.Geometry.CheckSource(dims); err != nil {
		return models.PendingCreation{}, fmt.Errorf("%w: %v", ErrTooLarge, err)
	}

	size := up.FileSize
	if size <= 0 {
		size = n
	}
	privileged := w.stats.IsPrivilegedUser(userID)

	w.logger.Info().
		Int64("user_id", userID).
		Str("dir", dir).
		Str("format", format).
		Int("width", dims.Width).
		Int("height", dims.Height).
		Int64("bytes", size).
		Msg("source image accepted")

	return models.PendingCreation{
		UserID:          userID,
		TempDirPath:     dir,
		SourceImagePath: path,
		Image:           dims,
		SourceFileSize:  size,
		IsLargeFile:     size > w.opts.LargeFileBytes && !privileged,
	}, nil
}

func (w *Wizard) SelectParts(ctx context.Context, userID int64, value string, origin models.MessageRef) error {
	unlock := w.locks.lock(userID)
	defer unlock()

	if err := w.expect(ctx, userID, AwaitingPartCount); err != nil {
		return err
	}
	parts, err := strconv.Atoi(value)
	if err != nil || !models.ValidParts(parts) {
		w.say(ctx, userID, w.texts.UnexpectedInput())
		return fmt.Errorf("%w: part count %q", ErrUnexpectedInput, value)
	}
	if _, err := w.store.Update(userID, func(p *models.PendingCreation) error {
		p.Parts = parts
		return nil
	}); err != nil {
		return w.lost(ctx, userID)
	}

	w.setState(userID, AwaitingFitMode)
	text, kb := w.texts.FitPrompt()
	w.show(ctx, userID, origin, text, kb)
	return nil
}

func (w *Wizard) SelectFit(ctx context.Context, userID int64, value string, origin models.MessageRef) error {
	unlock := w.locks.lock(userID)
	defer unlock()

	if err := w.expect(ctx, userID, AwaitingFitMode); err != nil {
		return err
	}
	mode, err := models.ParseFitMode(value)
	if err != nil {
		w.say(ctx, userID, w.texts.UnexpectedInput())
		return fmt.Errorf("%w: %v", ErrUnexpectedInput, err)
	}
	var (
		parts    int
		tooLarge error
	)
	record, err := w.store.Update(userID, func(p *models.PendingCreation) error {
		parts = p.Parts
		if tooLarge = w.opts.Geometry.CheckFit(p.Image, p.Parts, mode); tooLarge != nil {
			return tooLarge
		}
		p.FitMode = mode
		return nil
	})
	if tooLarge != nil {
		text, kb := w.texts.CoverTooLarge(parts)
		w.show(ctx, userID, origin, text, kb)
		return fmt.Errorf("%w: %v", ErrTooLarge, tooLarge)
	}
	if err != nil {
		return w.lost(ctx, userID)
	}

	w.setState(userID, AwaitingConfirmation)
	text, kb := w.texts.Summary(record.Parts, mode)
	w.show(ctx, userID, origin, text, kb)
	return nil
}

// Confirm prices the creation. The quote is stored with the pending record
// and never recomputed. A free creation is queued straight away.
func (w *Wizard) Confirm(ctx context.Context, userID int64, origin models.MessageRef) error {
	unlock := w.locks.lock(userID)
	defer unlock()

	if err := w.expect(ctx, userID, AwaitingConfirmation); err != nil {
		return err
	}
	record, _ := w.store.Get(userID)
	if err := record.Validate(); err != nil {
		w.say(ctx, userID, w.texts.UnexpectedInput())
		return fmt.Errorf("%w: %v", ErrUnexpectedInput, err)
	}

	user, err := w.stats.GetUserRecord(ctx, userID)
	if err != nil {
		w.say(ctx, userID, w.texts.Failure())
		return err
	}
	quote := pricing.Calculate(pricing.Input{
		PriorCreations: user.CreatedCount,
		Privileged:     w.stats.IsPrivilegedUser(userID),
		Parts:          record.Parts,
		LargeFile:      record.IsLargeFile,
	}, w.opts.Prices)

	if _, err := w.store.Update(userID, func(p *models.PendingCreation) error {
		p.QuotedPrice = quote.Total
		p.Quoted = true
		return nil
	}); err != nil {
		return w.lost(ctx, userID)
	}
	w.logger.Info().Int64("user_id", userID).Int("parts", record.Parts).Int("price", quote.Total).Msg("creation quoted")

	if quote.Free() {
		if origin.MessageID != 0 {
			if err := w.chat.DeleteMessage(ctx, origin); err != nil {
				w.logger.Debug().Err(err).Int64("user_id", userID).Msg("delete summary message")
			}
		}
		return w.promote(ctx, userID, false)
	}

	w.setState(userID, AwaitingPayment)
	text, kb := w.texts.PriceBreakdown(record.Parts, quote)
	w.show(ctx, userID, origin, text, kb)
	return nil
}

// RequestInvoice asks the payment provider to bill the stored quote.
func (w *Wizard) RequestInvoice(ctx context.Context, userID int64, origin models.MessageRef) error {
	unlock := w.locks.lock(userID)
	defer unlock()

	if err := w.expect(ctx, userID, AwaitingPayment); err != nil {
		return err
	}
	record, _ := w.store.Get(userID)
	if !record.Quoted {
		w.say(ctx, userID, w.texts.UnexpectedInput())
		return fmt.Errorf("%w: creation has no quote", ErrUnexpectedInput)
	}

	err := w.pay.RequestPayment(ctx, chat.Invoice{
		UserID:      userID,
		Amount:      record.QuotedPrice,
		Title:       w.texts.InvoiceTitle(record.Parts),
		Description: w.texts.InvoiceDescription(),
		Payload:     messages.InvoicePayload(userID, record.QuotedPrice, record.Parts),
	})
	if err != nil {
		w.say(ctx, userID, w.texts.InvoiceFailed())
		return fmt.Errorf("request invoice: %w", err)
	}
	w.show(ctx, userID, origin, w.texts.InvoiceSent(), nil)
	return nil
}

// ApproveCheckout answers the provider's last check before charging: the
// amount must match the quote of a creation that is waiting for payment.
func (w *Wizard) ApproveCheckout(ctx context.Context, userID int64, amount int) bool {
	unlock := w.locks.lock(userID)
	defer unlock()

	record, ok := w.store.Get(userID)
	approved := ok && record.Quoted && record.QuotedPrice == amount && w.State(userID) == AwaitingPayment
	w.logger.Info().Int64("user_id", userID).Int("amount", amount).Bool("approved", approved).Msg("checkout")
	return approved
}

// PaymentSucceeded records the payment and queues the paid creation.
func (w *Wizard) PaymentSucceeded(ctx context.Context, userID int64, amount int) error {
	unlock := w.locks.lock(userID)
	defer unlock()

	if err := w.stats.IncrementPaidAmount(ctx, userID, amount); err != nil {
		w.logger.Error().Err(err).Int64("user_id", userID).Int("amount", amount).Msg("record payment")
	}

	record, ok := w.store.Get(userID)
	if !ok {
		w.setState(userID, Idle)
		w.say(ctx, userID, w.texts.PaymentWithoutCreation())
		w.logger.Error().Int64("user_id", userID).Int("amount", amount).Msg("payment without pending creation")
		return ErrNoPending
	}
	if record.QuotedPrice != amount {
		w.logger.Warn().Int64("user_id", userID).Int("amount", amount).Int("quoted", record.QuotedPrice).Msg("payment differs from quote")
	}
	return w.promote(ctx, userID, true)
}

// promote hands the pending creation to the job queue. From Take onwards the
// wizard owns the temp directory until Enqueue succeeds, so every failure in
// between discards it.
func (w *Wizard) promote(ctx context.Context, userID int64, paid bool) error {
	record, err := w.store.Take(userID)
	w.setState(userID, Idle)
	if err != nil {
		w.say(ctx, userID, w.texts.NoPending())
		return ErrNoPending
	}
	if err := record.Validate(); err != nil {
		w.scratch.Discard(record.TempDirPath)
		w.say(ctx, userID, w.texts.Failure())
		return err
	}

	progress, err := w.chat.SendMessage(ctx, userID, w.texts.Queued(w.queue.Len()+1), nil)
	if err != nil {
		w.logger.Warn().Err(err).Int64("user_id", userID).Msg("send queued notice")
		progress = models.MessageRef{}
	}

	job := models.Job{
		ID:         w.newID(),
		UserID:     userID,
		Creation:   record.Snapshot(),
		Progress:   progress,
		IsPaid:     paid,
		EnqueuedAt: w.now(),
	}
	position, err := w.queue.Enqueue(job)
	if err != nil {
		w.scratch.Discard(record.TempDirPath)
		w.say(ctx, userID, w.texts.Failure())
		return fmt.Errorf("enqueue job: %w", err)
	}

	w.logger.Info().
		Str("job_id", job.ID).
		Int64("user_id", userID).
		Int("parts", job.Creation.Parts).
		Bool("paid", paid).
		Int("position", position).
		Msg("job queued")
	return nil
}

// Expire discards pending creations untouched since before and returns how
// many were dropped.
func (w *Wizard) Expire(ctx context.Context, before time.Time) int {
	expired := 0
	for _, userID := range w.store.Expired(before) {
		unlock := w.locks.lock(userID)
		if record, ok := w.store.Get(userID); ok && record.UpdatedAt.Before(before) {
			w.store.Remove(userID, true)
			w.setState(userID, Idle)
			w.say(ctx, userID, w.texts.Expired())
			expired++
		}
		unlock()
	}
	return expired
}

// expect checks that a pending creation exists and the user is at step want.
func (w *Wizard) expect(ctx context.Context, userID int64, want State) error {
	if !w.store.Has(userID) {
		return w.lost(ctx, userID)
	}
	if got := w.State(userID); got != want {
		w.say(ctx, userID, w.texts.UnexpectedInput())
		return fmt.Errorf("%w: at %s, need %s", ErrUnexpectedInput, got, want)
	}
	return nil
}

func (w *Wizard) lost(ctx context.Context, userID int64) error {
	w.setState(userID, Idle)
	w.say(ctx, userID, w.texts.NoPending())
	return ErrNoPending
}

// show replaces origin when there is one and sends a new message otherwise.
func (w *Wizard) show(ctx context.Context, userID int64, origin models.MessageRef, text string, kb *chat.Keyboard) {
	if origin.MessageID != 0 {
		err := w.chat.EditMessage(ctx, origin, text, kb)
		if err == nil {
			return
		}
		w.logger.Debug().Err(err).Int64("user_id", userID).Msg("edit failed, sending instead")
	}
	if _, err := w.chat.SendMessage(ctx, userID, text, kb); err != nil {
		w.logger.Warn().Err(err).Int64("user_id", userID).Msg("send message")
	}
}

func (w *Wizard) say(ctx context.Context, userID int64, text string) {
	w.show(ctx, userID, models.MessageRef{}, text, nil)
}
