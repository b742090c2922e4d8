package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"shortscout/config"
	"shortscout/internal/cooldown"
	"shortscout/internal/logger"
	"shortscout/internal/metrics"
	"shortscout/internal/notification"
	"shortscout/internal/scanner"
	"shortscout/internal/source"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[scout] starting...")

	// ---- Load config ----
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[scout] config load failed: %v", err)
	}
	logger.Init("scout", logger.ParseLevel(cfg.LogLevel))

	symbols, err := config.LoadSymbols(cfg.Scan.SymbolsFile)
	if err != nil {
		log.Fatalf("[scout] symbols load failed: %v", err)
	}
	log.Printf("[scout] scanning %d symbols from %s", len(symbols), cfg.Scan.SymbolsFile)

	// ---- Setup metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetSymbolCount(len(symbols))
	metricsSrv := metrics.NewServer(cfg.Metrics.Addr, health)
	metricsSrv.Start()

	// ---- Setup context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Open cooldown store ----
	store, err := openStore(cfg.Cooldown)
	if err != nil {
		log.Fatalf("[scout] cooldown store init failed: %v", err)
	}
	defer store.Close()
	health.SetStoreOK(true)

	switch s := store.(type) {
	case *cooldown.SQLiteStore:
		health.StartLivenessChecker(ctx, nil, s.DB(), 10*time.Second)
	case *cooldown.RedisStore:
		health.StartLivenessChecker(ctx, s.Client(), nil, 10*time.Second)
	}

	// ---- Candle source: REST, plus live feed when enabled ----
	src := source.NewBybit(source.BybitConfig{
		BaseURL:  cfg.Exchange.BaseURL,
		Category: cfg.Exchange.Category,
		Timeout:  cfg.Exchange.Timeout,
	})

	var feed *source.Feed
	if cfg.Exchange.LiveFeed {
		feed, err = source.NewFeed(source.FeedConfig{
			URL:       cfg.Exchange.WSURL,
			Timeframe: cfg.Scan.BaseTimeframe,
			Symbols:   symbols,
			MaxBars:   cfg.Exchange.FeedMaxBar,
		})
		if err != nil {
			log.Fatalf("[scout] live feed init failed: %v", err)
		}
		feed.OnStateChange = health.SetFeedConnected
		feed.OnReconnect = func() {
			prom.WSReconnects.Inc()
		}
		go feed.Run(ctx)
		log.Printf("[scout] live kline feed enabled: %s", cfg.Exchange.WSURL)
	}

	// ---- Notifiers ----
	var notifiers []notification.Notifier
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID))
		log.Println("[scout] telegram notifier enabled")
	}
	if cfg.Webhook.URL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.Webhook.URL))
		log.Println("[scout] webhook notifier enabled")
	}
	if len(notifiers) == 0 {
		notifiers = append(notifiers, notification.NewLogNotifier())
		log.Println("[scout] no alert channels configured, logging alerts only")
	}

	// ---- Assemble the scan service ----
	pipeline, err := scanner.NewPipeline(src, feed, cfg.Scan.BaseTimeframe, cfg.Strategy, prom)
	if err != nil {
		log.Fatalf("[scout] pipeline init failed: %v", err)
	}

	svc := scanner.New(scanner.Config{
		Symbols:          symbols,
		Interval:         cfg.Scan.Interval,
		MaxWorkers:       cfg.Scan.MaxWorkers,
		DebugSymbol:      cfg.Scan.DebugSymbol,
		CooldownDuration: cfg.Cooldown.Duration,
		Params:           scanner.ParamsFromConfig(cfg.Strategy),
		ReportMeta:       scanner.ReportMetaFromConfig(cfg.Strategy, cfg.Report),
	}, pipeline, store, notifiers, prom, health)

	go func() {
		if err := svc.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[scout] scan loop ended: %v", err)
		}
	}()

	log.Println("[scout] ╔════════════════════════════════════════════════════════╗")
	log.Println("[scout] ║  Short Scout Active                                    ║")
	log.Println("[scout] ║                                                        ║")
	log.Println("[scout] ║  [Bybit Klines] → [Indicators] → [Evaluate] → [Alert]  ║")
	log.Printf("[scout] ║  Base TF: %-4s  every %-8s  cooldown %-9s  ║",
		cfg.Scan.BaseTimeframe, cfg.Scan.Interval, cfg.Cooldown.Duration)
	log.Println("[scout] ╚════════════════════════════════════════════════════════╝")
	log.Println("[scout] ✅ all systems running. Press Ctrl+C to stop.")

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[scout] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	log.Println("[scout] shutdown complete.")
}

// openStore builds the configured cooldown backend.
func openStore(cfg config.CooldownConfig) (cooldown.Store, error) {
	switch cfg.Backend {
	case "redis":
		return cooldown.NewRedis(cooldown.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
		return cooldown.NewSQLite(cfg.SQLitePath)
	}
}
