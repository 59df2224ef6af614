package tasks

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/archive"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/chat"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/messages"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/models"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/scratch"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/storage"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/tiling"
)

type Stats interface {
	IncrementCreationCount(ctx context.Context, userID int64, parts int) error
}

type Menu interface {
	Render(ctx context.Context, userID int64, welcome bool) (string, *chat.Keyboard)
}

// Mirror keeps a copy of delivered archives. Optional.
type Mirror interface {
	PutArchive(ctx context.Context, key string, r io.Reader, size int64) error
}

type Deps struct {
	Engine    *tiling.Engine
	Scratch   *scratch.Workspace
	Messenger chat.Messenger
	Stats     Stats
	Texts     *messages.Catalog
	Menu      Menu
	Mirror    Mirror
	Logger    zerolog.Logger
}

// Processor turns one queued job into a delivered archive. Whatever happens,
// the job's temp directory is gone when Handle returns.
type Processor struct {
	engine  *tiling.Engine
	scratch *scratch.Workspace
	chat    chat.Messenger
	stats   Stats
	texts   *messages.Catalog
	menu    Menu
	mirror  Mirror
	logger  zerolog.Logger
}

func NewProcessor(d Deps) *Processor {
	return &Processor{
		engine:  d.Engine,
		scratch: d.Scratch,
		chat:    d.Messenger,
		stats:   d.Stats,
		texts:   d.Texts,
		menu:    d.Menu,
		mirror:  d.Mirror,
		logger:  d.Logger.With().Str("component", "processor").Logger(),
	}
}

func (p *Processor) Handle(ctx context.Context, job models.Job) (err error) {
	cleanup := p.scratch.Guard(job.Creation.TempDirPath)
	defer cleanup()

	logger := p.logger.With().
		Str("job_id", job.ID).
		Int64("user_id", job.UserID).
		Int("parts", job.Creation.Parts).
		Str("fit", string(job.Creation.FitMode)).
		Logger()
	started := time.Now()

	// Runs before cleanup, so the user hears about the failure first.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tasks: job %s panicked: %v", job.ID, r)
			logger.Error().Interface("panic", r).Str("dir", job.Creation.TempDirPath).Msg("creation failed")
			p.fail(ctx, job)
		}
	}()

	archivePath, err := p.build(ctx, job)
	if err == nil {
		err = p.deliver(ctx, job, archivePath)
	}
	if err != nil {
		logger.Error().Err(err).Str("dir", job.Creation.TempDirPath).Msg("creation failed")
		p.fail(ctx, job)
		return err
	}

	if p.mirror != nil {
		p.keepCopy(ctx, job, archivePath, logger)
	}
	if err := p.stats.IncrementCreationCount(ctx, job.UserID, job.Creation.Parts); err != nil {
		logger.Error().Err(err).Msg("record creation")
	}

	p.dropProgress(ctx, job)
	text, kb := p.menu.Render(ctx, job.UserID, false)
	if _, err := p.chat.SendMessage(ctx, job.UserID, p.texts.CreateAnother()+"\n\n"+text, kb); err != nil {
		logger.Debug().Err(err).Msg("send menu")
	}
	logger.Info().Dur("took", time.Since(started)).Bool("paid", job.IsPaid).Msg("creation delivered")
	return nil
}

// build renders the parts and packs them, reporting progress along the way.
func (p *Processor) build(ctx context.Context, job models.Job) (string, error) {
	c := job.Creation
	fs := p.scratch.Fs()

	p.progress(ctx, job, p.texts.Progress(c.Parts, 0))

	outDir := scratch.OutputPath(c.TempDirPath)
	if err := fs.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	files, err := p.engine.Render(c.SourceImagePath, c.Parts, c.FitMode, outDir)
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	p.progress(ctx, job, p.texts.Progress(c.Parts, len(files)))

	p.progress(ctx, job, p.texts.Packing())
	archivePath := filepath.Join(c.TempDirPath, archive.Name(c.Parts))
	if err := archive.Create(fs, archivePath, files); err != nil {
		return "", fmt.Errorf("archive: %w", err)
	}
	return archivePath, nil
}

func (p *Processor) deliver(ctx context.Context, job models.Job, archivePath string) error {
	p.progress(ctx, job, p.texts.Sending())

	f, err := p.scratch.Fs().Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	if err := p.chat.SendFile(ctx, job.UserID, filepath.Base(archivePath), f, p.texts.DeliveryCaption(job.Creation.Parts)); err != nil {
		return fmt.Errorf("send archive: %w", err)
	}
	return nil
}

func (p *Processor) keepCopy(ctx context.Context, job models.Job, archivePath string, logger zerolog.Logger) {
	fs := p.scratch.Fs()
	info, err := fs.Stat(archivePath)
	if err != nil {
		logger.Warn().Err(err).Msg("mirror: stat archive")
		return
	}
	f, err := fs.Open(archivePath)
	if err != nil {
		logger.Warn().Err(err).Msg("mirror: open archive")
		return
	}
	defer f.Close()

	key := storage.ArchiveKey(job.EnqueuedAt, job.ID, filepath.Base(archivePath))
	if err := p.mirror.PutArchive(ctx, key, f, info.Size()); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("mirror: upload archive")
		return
	}
	logger.Debug().Str("key", key).Msg("archive mirrored")
}

// Abandon gives up on a job that never reached a worker: the user is told
// the creation failed and its scratch dir is removed.
func (p *Processor) Abandon(ctx context.Context, job models.Job) {
	p.logger.Warn().Str("job_id", job.ID).Int64("user_id", job.UserID).Str("dir", job.Creation.TempDirPath).Msg("job abandoned")
	p.fail(ctx, job)
	p.scratch.Discard(job.Creation.TempDirPath)
}

func (p *Processor) fail(ctx context.Context, job models.Job) {
	p.dropProgress(ctx, job)
	if _, err := p.chat.SendMessage(ctx, job.UserID, p.texts.Failure(), nil); err != nil {
		p.logger.Error().Err(err).Str("job_id", job.ID).Int64("user_id", job.UserID).Msg("notify failure")
	}
}

// progress updates are best-effort; the message may be gone already.
func (p *Processor) progress(ctx context.Context, job models.Job, text string) {
	if job.Progress.MessageID == 0 {
		return
	}
	if err := p.chat.EditMessage(ctx, job.Progress, text, nil); err != nil {
		p.logger.Debug().Err(err).Str("job_id", job.ID).Msg("progress update skipped")
	}
}

func (p *Processor) dropProgress(ctx context.Context, job models.Job) {
	if job.Progress.MessageID == 0 {
		return
	}
	if err := p.chat.DeleteMessage(ctx, job.Progress); err != nil {
		p.logger.Debug().Err(err).Str("job_id", job.ID).Msg("delete progress message")
	}
}
