package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"news_digest/internal/api"
	"news_digest/internal/bot"
	"news_digest/internal/config"
	"news_digest/internal/digest"
	"news_digest/internal/extract"
	"news_digest/internal/fetcher"
	"news_digest/internal/pipeline"
	"news_digest/internal/scheduler"
	"news_digest/internal/sources"
	"news_digest/internal/storage"
	"news_digest/internal/summarizer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath, log)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backend, closeBackend, err := newBackend(ctx, cfg)
	if err != nil {
		log.Error("create summarizer", "backend", cfg.SummaryBackend, "error", err)
		os.Exit(1)
	}
	defer closeBackend()

	client := fetcher.New(http.DefaultClient, cfg.FetcherOptions())
	opts := pipeline.Options{
		CandidateWindow: cfg.CandidateWindow(),
		Location:        cfg.Location(),
		Tiers:           cfg.DailyLimitTiers,
	}
	if cfg.ExtractFullText {
		opts.Extractor = extract.New(client)
	}
	pipe := pipeline.New(
		store,
		sources.DefaultRegistry(client, cfg.Location(), log),
		digest.NewBuilder(store, cfg.RankerParams(), log),
		summarizer.NewService(backend, store, log),
		opts,
		log,
	)

	seeds, err := sources.LoadSeed(cfg.SourcesFile)
	if err != nil {
		log.Error("load sources", "path", cfg.SourcesFile, "error", err)
		os.Exit(1)
	}
	if err := pipe.SyncSources(ctx, seeds); err != nil {
		log.Error("sync sources", "error", err)
		os.Exit(1)
	}

	var wg sync.WaitGroup
	var sender scheduler.Sender
	if cfg.TelegramBotToken != "" {
		b, err := bot.New(cfg.TelegramBotToken, pipe, cfg, log)
		if err != nil {
			log.Error("create bot", "error", err)
			os.Exit(1)
		}
		sender = b
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("starting bot")
			b.Run(ctx)
		}()
	} else {
		log.Warn("TELEGRAM_BOT_TOKEN not set, bot and push delivery disabled")
	}

	sched := scheduler.New(pipe, store, sender, cfg.FetchInterval(), log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	if err := api.New(pipe, log).Run(ctx, cfg.HTTPAddr); err != nil {
		log.Error("http api", "error", err)
		cancel()
	}

	wg.Wait()
	log.Info("stopped")
}

// newBackend returns the configured summarizer backend and its cleanup.
// A nil backend selects the extractive fallback.
func newBackend(ctx context.Context, cfg *config.Config) (summarizer.Summarizer, func(), error) {
	if cfg.SummaryBackend != summarizer.BackendGemini {
		return nil, func() {}, nil
	}
	g, err := summarizer.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, nil, err
	}
	return g, func() { _ = g.Close() }, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
