package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/scriba-ai/scriba/internal/config"
	"github.com/scriba-ai/scriba/internal/delivery"
	"github.com/scriba-ai/scriba/internal/events"
	"github.com/scriba-ai/scriba/internal/extractor"
	"github.com/scriba-ai/scriba/internal/ingress"
	"github.com/scriba-ai/scriba/internal/notifier"
	"github.com/scriba-ai/scriba/internal/openai"
	"github.com/scriba-ai/scriba/internal/orchestrator"
	"github.com/scriba-ai/scriba/internal/store"
	"github.com/scriba-ai/scriba/internal/tools"
	"github.com/scriba-ai/scriba/internal/whatsapp"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("scriba starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("database ready")

	// OpenAI client
	if cfg.OpenAIAPIKey == "" {
		slog.Error("OPENAI_API_KEY is required")
		os.Exit(1)
	}
	llm := openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	slog.Info("openai client ready", "model", cfg.OpenAIModel)

	// Extractor
	ext := extractor.New(llm, slog.Default())

	// Tool registry
	registry := orchestrator.NewRegistry()
	registry.Register(&tools.UserOrders{Source: db})
	registry.Register(tools.NewLatestOrder(db))
	registry.Register(&tools.OrdersByStatus{Source: db})

	// Orchestrator
	orch := orchestrator.New(llm, registry, cfg.PromptID, cfg.MaxToolRounds, slog.Default())

	// Outbound delivery: Graph API sender with client-side pacing
	senderClient := delivery.New(slog.Default(),
		delivery.WithRateLimit(rate.NewLimiter(rate.Limit(20), 20)))
	sender := whatsapp.NewSender(senderClient, cfg.WhatsAppToken, cfg.WhatsAppPhoneID, cfg.WhatsAppVersion, slog.Default())

	// Completion notifier
	notifierClient := delivery.New(slog.Default())
	notify := notifier.New(notifierClient, llm, db, cfg.AutomationWebhookURL, cfg.SummaryPromptID, slog.Default())
	if cfg.AutomationWebhookURL == "" {
		slog.Warn("automation webhook not configured, completion events stay local")
	}

	// NATS events (optional)
	var bus *events.Client
	if cfg.NatsURL != "" {
		bus, err = events.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer bus.Close()
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured, lifecycle events disabled")
	}

	// Dedup marker retention
	go purgeLoop(ctx, db, cfg.RetentionDays)

	// Webhook server
	srv := ingress.NewServer(cfg.Port, cfg.VerifyToken, cfg.Workers, cfg.QueueSize, ingress.Deps{
		Store:     db,
		Responder: orch,
		Sender:    sender,
		Extractor: ext,
		Notifier:  notify,
		AI:        llm,
		Events:    bus,
		Logger:    slog.Default(),
	})
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("scriba ready", "port", cfg.Port, "workers", cfg.Workers)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	srv.Close()
	slog.Info("scriba stopped")
}

// purgeLoop drops processed-message markers past the retention window.
// Timing is best effort.
func purgeLoop(ctx context.Context, db *store.Store, retentionDays int) {
	retention := time.Duration(retentionDays) * 24 * time.Hour
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := db.PurgeProcessed(ctx, retention)
			if err != nil {
				slog.Warn("marker purge failed", "error", err)
				continue
			}
			if purged > 0 {
				slog.Info("purged processed markers", "count", purged)
			}
		}
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
