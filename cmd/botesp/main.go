package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Delamole/botesp/internal/brain"
	"github.com/Delamole/botesp/internal/config"
	"github.com/Delamole/botesp/internal/events"
	"github.com/Delamole/botesp/internal/history"
	"github.com/Delamole/botesp/internal/httpapi"
	"github.com/Delamole/botesp/internal/observability"
	"github.com/Delamole/botesp/internal/speech"
	"github.com/Delamole/botesp/internal/telegram"
	"github.com/Delamole/botesp/internal/tutor"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config error", zap.Error(err))
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	stages := observability.NewStageWindow(256)

	ctx := context.Background()

	var store history.Store
	if cfg.DatabaseURL != "" {
		pg, err := history.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("history store init failed", zap.Error(err))
		}
		store = pg
	} else {
		logger.Warn("DATABASE_URL not set; conversation history is in-memory and lost on restart")
		store = history.NewMemoryStore()
	}
	defer store.Close()

	bot := telegram.NewClient(cfg.TelegramAPIBaseURL, cfg.BotToken, cfg.VendorTimeout)

	recognizer := speech.NewSpeechKitRecognizer(speech.SpeechKitRecognizerConfig{
		URL:      cfg.YandexSTTURL,
		APIKey:   cfg.YandexAPIKey,
		FolderID: cfg.YandexFolderID,
		Language: cfg.SpeechLanguage,
		Timeout:  cfg.VendorTimeout,
	})
	synthesizer := speech.NewSpeechKitSynthesizer(speech.SpeechKitSynthesizerConfig{
		URL:      cfg.YandexTTSURL,
		APIKey:   cfg.YandexAPIKey,
		FolderID: cfg.YandexFolderID,
		Voice:    cfg.TTSVoice,
		Format:   cfg.TTSFormat,
		TmpDir:   cfg.TmpDir,
		Timeout:  cfg.VendorTimeout,
	})
	model := brain.NewYandexGPT(brain.YandexGPTConfig{
		URL:      cfg.YandexGPTURL,
		APIKey:   cfg.YandexAPIKey,
		ModelURI: cfg.YandexGPTModelURI,
		Timeout:  cfg.VendorTimeout,
	})

	hub := events.NewHub()
	pending := tutor.NewPendingReplies(cfg.PendingReplyTTL, cfg.PendingReplyCapacity)

	pipeline := tutor.NewPipeline(tutor.Config{
		Store:        store,
		Brain:        model,
		Recognizer:   recognizer,
		Synthesizer:  synthesizer,
		Sender:       bot,
		Hub:          hub,
		Metrics:      metrics,
		Stages:       stages,
		Pending:      pending,
		Window:       cfg.HistoryWindow,
		Language:     cfg.SpeechLanguage,
		VoiceReplies: cfg.VoiceReplies,
		Logger:       logger,
	})

	api := httpapi.New(cfg, pipeline, bot, hub, metrics, stages, logger)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	pending.StartJanitor(runCtx, time.Minute)

	if cfg.WebhookURL != "" {
		hookCtx, cancel := context.WithTimeout(ctx, cfg.VendorTimeout)
		if err := bot.SetWebhook(hookCtx, cfg.WebhookURL); err != nil {
			logger.Fatal("webhook registration failed", zap.String("url", cfg.WebhookURL), zap.Error(err))
		}
		cancel()
		logger.Info("webhook registered", zap.String("url", cfg.WebhookURL))
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
}
