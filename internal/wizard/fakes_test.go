package wizard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/chat"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/messages"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/models"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/pending"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/pricing"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/queue"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/scratch"
)

type sentMessage struct {
	UserID int64
	Text   string
	KB     *chat.Keyboard
}

type fakeMessenger struct {
	mu      sync.Mutex
	nextID  int
	sent    []sentMessage
	edited  []sentMessage
	deleted []models.MessageRef
	files   map[string][]byte
}

func (m *fakeMessenger) SendMessage(_ context.Context, userID int64, text string, kb *chat.Keyboard) (models.MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.sent = append(m.sent, sentMessage{UserID: userID, Text: text, KB: kb})
	return models.MessageRef{ChatID: userID, MessageID: m.nextID}, nil
}

func (m *fakeMessenger) EditMessage(_ context.Context, ref models.MessageRef, text string, kb *chat.Keyboard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edited = append(m.edited, sentMessage{UserID: ref.ChatID, Text: text, KB: kb})
	return nil
}

func (m *fakeMessenger) DeleteMessage(_ context.Context, ref models.MessageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, ref)
	return nil
}

func (m *fakeMessenger) DownloadFile(_ context.Context, fileRef string, dst io.Writer) (int64, error) {
	m.mu.Lock()
	data, ok := m.files[fileRef]
	m.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("file %q not found", fileRef)
	}
	n, err := dst.Write(data)
	return int64(n), err
}

func (m *fakeMessenger) SendFile(context.Context, int64, string, io.Reader, string) error {
	return errors.New("not used by the wizard")
}

func (m *fakeMessenger) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1].Text
}

type fakePayments struct {
	mu       sync.Mutex
	invoices []chat.Invoice
	err      error
}

func (p *fakePayments) RequestPayment(_ context.Context, inv chat.Invoice) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.invoices = append(p.invoices, inv)
	return nil
}

func (p *fakePayments) AnswerCheckout(context.Context, string, bool, string) error {
	return nil
}

type fakeStats struct {
	mu      sync.Mutex
	created map[int64]int
	paid    map[int64]int
	admins  map[int64]bool
}

func newFakeStats() *fakeStats {
	return &fakeStats{created: map[int64]int{}, paid: map[int64]int{}, admins: map[int64]bool{}}
}

func (s *fakeStats) GetUserRecord(_ context.Context, userID int64) (models.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.UserRecord{UserID: userID, CreatedCount: s.created[userID], TotalPaid: s.paid[userID]}, nil
}

func (s *fakeStats) IncrementPaidAmount(_ context.Context, userID int64, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paid[userID] += amount
	return nil
}

func (s *fakeStats) IsPrivilegedUser(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.admins[userID]
}

func (s *fakeStats) setCreated(userID int64, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created[userID] = n
}

type harness struct {
	wiz   *Wizard
	fs    afero.Fs
	ws    *scratch.Workspace
	store *pending.Store
	queue *queue.Queue
	msgr  *fakeMessenger
	pay   *fakePayments
	stats *fakeStats
}

const scratchRoot = "/scratch"

func newHarness(t *testing.T) *harness {
	t.Helper()
	fs := afero.NewMemMapFs()
	logger := zerolog.Nop()

	ws, err := scratch.New(fs, scratchRoot, logger)
	require.NoError(t, err)

	h := &harness{
		fs:    fs,
		ws:    ws,
		store: pending.NewStore(ws, logger),
		queue: queue.New(),
		msgr:  &fakeMessenger{files: map[string][]byte{}},
		pay:   &fakePayments{},
		stats: newFakeStats(),
	}
	h.msgr.files["photo"] = pngBytes(t, 30, 20)
	h.msgr.files["garbage"] = []byte("\x89PNG\r\n\x1a\nthis is not really a png")
	h.msgr.files["pdf"] = []byte("%PDF-1.7\n")
	h.msgr.files["sliver"] = pngBytes(t, 2, 20000)

	h.wiz = New(Deps{
		Store:     h.store,
		Scratch:   ws,
		Queue:     h.queue,
		Stats:     h.stats,
		Messenger: h.msgr,
		Payments:  h.pay,
		Texts: &messages.Catalog{
			Prices:         pricing.DefaultPrices,
			LargeFileBytes: 4 << 20,
			Support:        "@support",
		},
		Logger: logger,
	}, Options{Prices: pricing.DefaultPrices, LargeFileBytes: 4 << 20})
	return h
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func (h *harness) scratchDirs(t *testing.T) []string {
	t.Helper()
	entries, err := afero.ReadDir(h.fs, scratchRoot)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func (h *harness) exists(t *testing.T, path string) bool {
	t.Helper()
	ok, err := afero.Exists(h.fs, path)
	require.NoError(t, err)
	return ok
}

var photo = chat.Upload{FileRef: "photo", IsPhoto: true, FileSize: 2048}

// upTo walks a user through the wizard until the given state.
func (h *harness) upTo(t *testing.T, userID int64, target State) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.wiz.Start(ctx, userID, models.MessageRef{}))
	if target == AwaitingImage {
		return
	}
	require.NoError(t, h.wiz.ReceiveImage(ctx, userID, photo))
	if target == AwaitingPartCount {
		return
	}
	require.NoError(t, h.wiz.SelectParts(ctx, userID, "9", models.MessageRef{}))
	if target == AwaitingFitMode {
		return
	}
	require.NoError(t, h.wiz.SelectFit(ctx, userID, "cover", models.MessageRef{}))
}
