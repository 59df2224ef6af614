package tasks

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/chat"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/messages"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/models"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/pricing"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/queue"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/scratch"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/tiling"
)

// countingFs records how often each path is removed.
type countingFs struct {
	afero.Fs
	mu      sync.Mutex
	removed map[string]int
}

func (c *countingFs) RemoveAll(path string) error {
	c.mu.Lock()
	c.removed[path]++
	c.mu.Unlock()
	return c.Fs.RemoveAll(path)
}

func (c *countingFs) removals(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removed[path]
}

type delivery struct {
	UserID  int64
	Name    string
	Data    []byte
	Caption string
}

type fakeMessenger struct {
	mu        sync.Mutex
	sent      []string
	edits     []string
	deleted   []models.MessageRef
	delivered []delivery
	sendErr   error
	editErr   error
	sendPanic bool
}

func (m *fakeMessenger) SendMessage(_ context.Context, userID int64, text string, _ *chat.Keyboard) (models.MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, text)
	return models.MessageRef{ChatID: userID, MessageID: len(m.sent)}, nil
}

func (m *fakeMessenger) EditMessage(_ context.Context, _ models.MessageRef, text string, _ *chat.Keyboard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.editErr != nil {
		return m.editErr
	}
	m.edits = append(m.edits, text)
	return nil
}

func (m *fakeMessenger) DeleteMessage(_ context.Context, ref models.MessageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, ref)
	return nil
}

func (m *fakeMessenger) DownloadFile(context.Context, string, io.Writer) (int64, error) {
	return 0, errors.New("not used by the processor")
}

func (m *fakeMessenger) SendFile(_ context.Context, userID int64, name string, r io.Reader, caption string) error {
	if m.sendPanic {
		panic("upload client blew up")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.delivered = append(m.delivered, delivery{UserID: userID, Name: name, Data: data, Caption: caption})
	return nil
}

type fakeStats struct {
	mu      sync.Mutex
	created map[int64][]int
}

func (s *fakeStats) IncrementCreationCount(_ context.Context, userID int64, parts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created[userID] = append(s.created[userID], parts)
	return nil
}

type fakeMenu struct{}

func (fakeMenu) Render(context.Context, int64, bool) (string, *chat.Keyboard) {
	return "menu", chat.NewKeyboard(chat.Row(chat.Callback("create", messages.CBStartCreation)))
}

type fakeMirror struct {
	mu   sync.Mutex
	keys []string
	size int64
}

func (m *fakeMirror) PutArchive(_ context.Context, key string, r io.Reader, size int64) error {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	m.size = size
	return nil
}

type harness struct {
	proc   *Processor
	fs     *countingFs
	ws     *scratch.Workspace
	msgr   *fakeMessenger
	stats  *fakeStats
	mirror *fakeMirror
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fs := &countingFs{Fs: afero.NewMemMapFs(), removed: map[string]int{}}
	ws, err := scratch.New(fs, "/scratch", zerolog.Nop())
	require.NoError(t, err)
	engine, err := tiling.NewEngine(fs, tiling.Geometry{CellWidth: 12, CellHeight: 15, FrameWidth: 16, FrameHeight: 24})
	require.NoError(t, err)

	h := &harness{
		fs:     fs,
		ws:     ws,
		msgr:   &fakeMessenger{},
		stats:  &fakeStats{created: map[int64][]int{}},
		mirror: &fakeMirror{},
	}
	h.proc = NewProcessor(Deps{
		Engine:    engine,
		Scratch:   ws,
		Messenger: h.msgr,
		Stats:     h.stats,
		Texts:     &messages.Catalog{Prices: pricing.DefaultPrices, LargeFileBytes: 4 << 20, Support: "@support"},
		Menu:      fakeMenu{},
		Mirror:    h.mirror,
		Logger:    zerolog.Nop(),
	})
	return h
}

// job prepares a scratch dir holding source as the job's picture.
func (h *harness) job(t *testing.T, userID int64, parts int, source []byte) models.Job {
	t.Helper()
	dir, err := h.ws.Create(userID)
	require.NoError(t, err)
	src := scratch.SourcePath(dir)
	require.NoError(t, afero.WriteFile(h.fs, src, source, 0o644))
	return models.Job{
		ID:     "job-" + dir[len(dir)-8:],
		UserID: userID,
		Creation: models.CreationData{
			TempDirPath:     dir,
			SourceImagePath: src,
			Parts:           parts,
			FitMode:         models.FitCover,
		},
		Progress:   models.MessageRef{ChatID: userID, MessageID: 100},
		EnqueuedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (h *harness) gone(t *testing.T, dir string) bool {
	t.Helper()
	ok, err := afero.Exists(h.fs, dir)
	require.NoError(t, err)
	return !ok
}

func picture(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(6 * x), G: uint8(8 * y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// corrupt keeps a valid PNG header but truncates the pixel data, so it
// passes the upload check and fails while rendering.
func corrupt(t *testing.T) []byte {
	data := picture(t)
	return data[:60]
}

func TestHandleDeliversArchiveAndCleansUp(t *testing.T) {
	h := newHarness(t)
	job := h.job(t, 7, 6, picture(t))

	require.NoError(t, h.proc.Handle(context.Background(), job))

	require.Len(t, h.msgr.delivered, 1)
	got := h.msgr.delivered[0]
	assert.Equal(t, int64(7), got.UserID)
	assert.Equal(t, "storieswall_6parts.zip", got.Name)
	assert.Contains(t, got.Caption, "reverse order")

	zr, err := zip.NewReader(bytes.NewReader(got.Data), int64(len(got.Data)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"story_01.png", "story_02.png", "story_03.png", "story_04.png", "story_05.png", "story_06.png"}, names)

	assert.Equal(t, []int{6}, h.stats.created[7])
	assert.Equal(t, []string{"2024/05/01/" + job.ID + "/storieswall_6parts.zip"}, h.mirror.keys)
	assert.Equal(t, int64(len(got.Data)), h.mirror.size)

	assert.Equal(t, []models.MessageRef{job.Progress}, h.msgr.deleted)
	require.NotEmpty(t, h.msgr.edits)
	assert.Contains(t, h.msgr.edits[0], "0%")
	assert.Contains(t, h.msgr.edits[1], "100%")
	assert.Contains(t, h.msgr.sent[len(h.msgr.sent)-1], "menu")

	assert.True(t, h.gone(t, job.Creation.TempDirPath))
	assert.Equal(t, 1, h.fs.removals(job.Creation.TempDirPath))
}

func TestHandleFailureNotifiesAndCleansUpOnce(t *testing.T) {
	h := newHarness(t)
	job := h.job(t, 7, 3, corrupt(t))

	err := h.proc.Handle(context.Background(), job)
	require.Error(t, err)

	assert.Empty(t, h.msgr.delivered)
	assert.Empty(t, h.stats.created)
	assert.Empty(t, h.mirror.keys)
	require.NotEmpty(t, h.msgr.sent)
	assert.Contains(t, h.msgr.sent[len(h.msgr.sent)-1], "@support")
	assert.True(t, h.gone(t, job.Creation.TempDirPath))
	assert.Equal(t, 1, h.fs.removals(job.Creation.TempDirPath))
}

func TestDeliveryFailureDoesNotCountTheCreation(t *testing.T) {
	h := newHarness(t)
	h.msgr.sendErr = errors.New("file too big")
	job := h.job(t, 7, 3, picture(t))

	require.Error(t, h.proc.Handle(context.Background(), job))
	assert.Empty(t, h.stats.created)
	assert.Empty(t, h.mirror.keys)
	assert.True(t, h.gone(t, job.Creation.TempDirPath))
	assert.Equal(t, 1, h.fs.removals(job.Creation.TempDirPath))
}

func TestHandlePanicNotifiesAndCleansUpOnce(t *testing.T) {
	h := newHarness(t)
	h.msgr.sendPanic = true
	job := h.job(t, 7, 3, picture(t))

	var err error
	require.NotPanics(t, func() { err = h.proc.Handle(context.Background(), job) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	assert.Empty(t, h.stats.created)
	assert.Equal(t, []models.MessageRef{job.Progress}, h.msgr.deleted)
	require.NotEmpty(t, h.msgr.sent)
	assert.Contains(t, h.msgr.sent[len(h.msgr.sent)-1], "@support")
	assert.True(t, h.gone(t, job.Creation.TempDirPath))
	assert.Equal(t, 1, h.fs.removals(job.Creation.TempDirPath))
}

func TestAbandonDrainedJobs(t *testing.T) {
	h := newHarness(t)
	q := queue.New()
	first := h.job(t, 7, 3, picture(t))
	second := h.job(t, 8, 6, picture(t))
	_, err := q.Enqueue(first)
	require.NoError(t, err)
	_, err = q.Enqueue(second)
	require.NoError(t, err)
	q.Close()

	for _, job := range q.Drain() {
		h.proc.Abandon(context.Background(), job)
	}

	assert.Equal(t, 0, q.Len())
	assert.Empty(t, h.msgr.delivered)
	assert.Empty(t, h.stats.created)
	assert.Len(t, h.msgr.deleted, 2)
	require.Len(t, h.msgr.sent, 2)
	for _, text := range h.msgr.sent {
		assert.Contains(t, text, "@support")
	}
	for _, job := range []models.Job{first, second} {
		assert.True(t, h.gone(t, job.Creation.TempDirPath))
		assert.Equal(t, 1, h.fs.removals(job.Creation.TempDirPath))
	}
}

func TestProgressFailuresAreIgnored(t *testing.T) {
	h := newHarness(t)
	h.msgr.editErr = errors.New("message to edit not found")
	job := h.job(t, 7, 3, picture(t))

	require.NoError(t, h.proc.Handle(context.Background(), job))
	assert.Len(t, h.msgr.delivered, 1)
}

func TestHandleWithoutProgressMessage(t *testing.T) {
	h := newHarness(t)
	job := h.job(t, 7, 3, picture(t))
	job.Progress = models.MessageRef{}

	require.NoError(t, h.proc.Handle(context.Background(), job))
	assert.Empty(t, h.msgr.edits)
	assert.Empty(t, h.msgr.deleted)
}

func TestPoolKeepsGoingAfterAFailedJob(t *testing.T) {
	for _, workers := range []int{1, 3} {
		h := newHarness(t)
		q := queue.New()
		jobs := []models.Job{
			h.job(t, 1, 3, picture(t)),
			h.job(t, 2, 3, corrupt(t)),
			h.job(t, 3, 9, picture(t)),
		}
		for _, j := range jobs {
			_, err := q.Enqueue(j)
			require.NoError(t, err)
		}
		q.Close()

		pool := queue.NewPool(q, workers, h.proc, zerolog.Nop())
		pool.Start(context.Background())
		done := make(chan struct{})
		go func() { pool.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Fatalf("workers=%d: pool did not finish", workers)
		}

		assert.Len(t, h.msgr.delivered, 2, "workers=%d", workers)
		assert.Equal(t, []int{3}, h.stats.created[1])
		assert.Empty(t, h.stats.created[2])
		assert.Equal(t, []int{9}, h.stats.created[3])
		for _, j := range jobs {
			assert.True(t, h.gone(t, j.Creation.TempDirPath))
			assert.Equal(t, 1, h.fs.removals(j.Creation.TempDirPath), "workers=%d dir=%s", workers, j.Creation.TempDirPath)
		}
		if workers == 1 {
			assert.Equal(t, int64(1), h.msgr.delivered[0].UserID)
			assert.Equal(t, int64(3), h.msgr.delivered[1].UserID)
		}
	}
}
