package main

import (
	"context"
	"errors"
	"io/fs"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/bot"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/cache"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/chat"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/chat/telegram"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/config"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/database"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/handlers"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/jobs"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/log"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/messages"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/pending"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/pricing"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/queue"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/repository"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/scratch"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/server"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/service"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/storage"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/tasks"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/tiling"
	"github.com/XaviersDev/Stories-Wall-App-TGBot/internal/wizard"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workspace, err := scratch.New(afero.NewOsFs(), cfg.Scratch.Root, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scratch workspace")
	}
	if n, err := workspace.Purge(); err != nil {
		logger.Warn().Err(err).Msg("purge leftover scratch dirs")
	} else if n > 0 {
		logger.Info().Int("dirs", n).Msg("leftover scratch dirs purged")
	}

	store, closeStore, err := openStats(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Stats.Driver).Msg("stats backend")
	}
	defer closeStore()
	stats := service.NewStatsService(store, cfg.Admins, logger)

	prices := pricing.Prices{
		Base:          cfg.Pricing.Base,
		Extended:      cfg.Pricing.Extended,
		LargeFile:     cfg.Pricing.LargeFile,
		FreeCreations: cfg.Pricing.FreeCreations,
	}
	texts := &messages.Catalog{
		Prices:         prices,
		LargeFileBytes: cfg.Pricing.LargeFileBytes,
		WebAppURL:      cfg.Telegram.WebAppURL,
		Support:        cfg.Support.Contact,
	}
	menu := messages.NewMenu(texts, stats, logger)

	engine, err := tiling.NewEngine(workspace.Fs(), tiling.DefaultGeometry)
	if err != nil {
		logger.Fatal().Err(err).Msg("tiling engine")
	}

	var mirror tasks.Mirror
	if storage.Enabled(cfg.Storage) {
		m, err := storage.NewArchiveMirror(cfg.Storage)
		if err != nil {
			logger.Fatal().Err(err).Msg("archive mirror")
		}
		if err := m.EnsureBucket(ctx); err != nil {
			logger.Warn().Err(err).Msg("ensure archive bucket failed")
		}
		mirror = m
	}

	var dispatcher *bot.Dispatcher
	client, err := telegram.New(cfg.Telegram, chat.HandlerFunc(func(ctx context.Context, u chat.Update) {
		dispatcher.HandleUpdate(ctx, u)
	}), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("telegram client")
	}

	jobQueue := queue.New()
	processor := tasks.NewProcessor(tasks.Deps{
		Engine:    engine,
		Scratch:   workspace,
		Messenger: client,
		Stats:     stats,
		Texts:     texts,
		Menu:      menu,
		Mirror:    mirror,
		Logger:    logger,
	})
	pool := queue.NewPool(jobQueue, cfg.Queue.Workers, processor, logger)

	pendingStore := pending.NewStore(workspace, logger)
	creations := wizard.New(wizard.Deps{
		Store:     pendingStore,
		Scratch:   workspace,
		Queue:     jobQueue,
		Stats:     stats,
		Messenger: client,
		Payments:  client,
		Texts:     texts,
		Logger:    logger,
	}, wizard.Options{
		Prices:         prices,
		LargeFileBytes: cfg.Pricing.LargeFileBytes,
		Geometry:       tiling.DefaultGeometry,
	})

	dispatcher = bot.NewDispatcher(bot.Deps{
		Creations: creations,
		Stats:     stats,
		Menu:      menu,
		Texts:     texts,
		Messenger: client,
		Payments:  client,
		Notifier:  client,
		Logger:    logger,
	})

	scheduler := jobs.NewScheduler(creations, cfg.Pending.SweepSchedule, cfg.Pending.TTL, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	httpServer := server.NewHTTPServer(cfg, logger, handlers.NewHandlerSet(logger, cfg.Environment, handlers.Probes{
		QueueDepth:  jobQueue.Len,
		BusyWorkers: pool.Busy,
		Workers:     pool.Workers(),
		Pending:     pendingStore.Len,
		StatsDriver: cfg.Stats.Driver,
		PingStats:   stats.Ping,
	}))
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	pool.Start(context.WithoutCancel(ctx))
	client.Start(ctx)

	logger.Info().Msg("shutdown signal received")
	shutdown(logger, httpServer, scheduler, jobQueue, pool, processor)
}

// openStats picks the statistics backend named by stats.driver.
func openStats(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (repository.StatsStore, func(), error) {
	switch cfg.Stats.Driver {
	case config.StatsDriverRedis:
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewRedisStats(client, cfg.Redis.Prefix), func() {
			if err := client.Close(); err != nil {
				logger.Error().Err(err).Msg("redis close error")
			}
		}, nil

	case config.StatsDriverPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		store := repository.NewPostgresStats(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	}

	logger.Warn().Msg("stats are kept in memory and reset on restart")
	return repository.NewMemoryStats(), func() {}, nil
}

// shutdown lets queued jobs finish before the HTTP surface goes away.
func shutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, q *queue.Queue, pool *queue.Pool, processor *tasks.Processor) {
	<-scheduler.Stop().Done()

	q.Close()
	drained := make(chan struct{})
	go func() {
		pool.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		logger.Info().Msg("job queue drained")
	case <-time.After(2 * time.Minute):
		left := q.Drain()
		logger.Warn().Int("left", len(left)).Msg("gave up waiting for queued jobs")
		notifyCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		for _, job := range left {
			processor.Abandon(notifyCtx, job)
		}
		cancel()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("bot exited cleanly")
}
