package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"thirdcoast.systems/vodstash/cmd/web/internal/web"
	"thirdcoast.systems/vodstash/internal/config"
	"thirdcoast.systems/vodstash/internal/job"
	"thirdcoast.systems/vodstash/internal/store"
	"thirdcoast.systems/vodstash/pkg/untrunc"
	"thirdcoast.systems/vodstash/pkg/ytdlp"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting web service")

	conf, err := config.LoadConfig(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	for _, dir := range []string{conf.DataDir, conf.MediaDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("failed to create directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	ledger, err := store.OpenLedger(filepath.Join(conf.DataDir, "current-downloads.json"))
	if err != nil {
		slog.Error("failed to open job ledger", "error", err)
		os.Exit(1)
	}
	catalog, err := store.OpenCatalog(filepath.Join(conf.DataDir, "videos.json"))
	if err != nil {
		slog.Error("failed to open video catalog", "error", err)
		os.Exit(1)
	}
	prefs, err := store.OpenPreferences(filepath.Join(conf.DataDir, "preferences.json"))
	if err != nil {
		slog.Error("failed to open preferences", "error", err)
		os.Exit(1)
	}

	transcoder := job.NewFFmpegTranscoder(conf.FFmpegPath, conf.FFprobePath)
	if missing := transcoder.Missing(); len(missing) > 0 {
		slog.Warn("media tools missing; submissions will be rejected", "missing", missing)
	}

	resolver := ytdlp.New()
	resolver.Path = conf.YtdlpPath
	if v, err := resolver.Version(ctx); err == nil {
		slog.Info("yt-dlp available", "version", v)
	} else {
		slog.Warn("yt-dlp unavailable; page URLs cannot be resolved", "error", err)
	}

	orch := job.New(ctx, job.Params{
		Ledger:         ledger,
		Catalog:        catalog,
		Preferences:    prefs,
		Transcoder:     transcoder,
		Repair:         untrunc.New(conf.UntruncPath, conf.ReferenceVideoPath),
		MediaDir:       conf.MediaDir,
		ThumbnailCount: conf.ThumbnailCount,
	})

	// Settle everything a previous run left behind before accepting new
	// submissions.
	orch.Reconcile()

	uploadDir := filepath.Join(conf.DataDir, "uploads")
	e, err := web.NewWebserver(orch, catalog, prefs, resolver, uploadDir)
	if err != nil {
		slog.Error("failed to create webserver", "error", err)
		os.Exit(1)
	}

	addr := ":" + strconv.Itoa(conf.WebServerPort)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	slog.Info("Listening", "addr", addr)
	if err := e.Start(addr); err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	// Let in-flight stage goroutines record their final state.
	orch.Wait()
}
