package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/polycopy/config"
	"github.com/alejandrodnm/polycopy/internal/adapters/notify"
	"github.com/alejandrodnm/polycopy/internal/adapters/polymarket"
	"github.com/alejandrodnm/polycopy/internal/adapters/storage"
	"github.com/alejandrodnm/polycopy/internal/application/engine"
	"github.com/alejandrodnm/polycopy/internal/application/ledger"
	"github.com/alejandrodnm/polycopy/internal/application/paper"
	"github.com/alejandrodnm/polycopy/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	dryRun := flag.Bool("dry-run", false, "force simulated execution (overrides config)")
	report := flag.Bool("report", false, "print ledger report and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *dryRun {
		cfg.Copy.DryRun = true
	}
	setupLogger(cfg.Log)

	store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *report {
		runReport(ctx, store)
		return
	}

	if cfg.Copy.TargetWallet == "" {
		slog.Error("no target wallet configured — set copy.target_wallet or COPY_TARGET_WALLET")
		os.Exit(1)
	}

	led, err := ledger.New(ctx, store, ledger.Config{
		SnapshotPath:    cfg.Storage.SnapshotPath,
		SnapshotRecords: cfg.Copy.SnapshotRecords,
		PersistInterval: cfg.PersistInterval(),
	})
	if err != nil {
		slog.Error("failed to hydrate ledger", "err", err)
		os.Exit(1)
	}

	client := polymarket.NewClient(cfg.API.OrderBase, cfg.API.GammaBase)

	// Dry-run never constructs the live trading client, so a simulated run
	// cannot place a real order no matter what happens at runtime.
	var executor ports.OrderExecutor
	if cfg.Copy.DryRun {
		executor = paper.New()
		slog.Info("copybot in DRY-RUN mode — orders are simulated")
	} else {
		tc, err := polymarket.NewTradingClient(client, os.Getenv("COPY_API_KEY"))
		if err != nil {
			slog.Error("live mode requires credentials", "err", err)
			os.Exit(1)
		}
		executor = tc
		slog.Info("copybot in LIVE mode — real money will be spent")
	}

	eng := engine.New(engine.Config{
		TargetWallet:       cfg.Copy.TargetWallet,
		Budget:             cfg.Copy.BudgetUSDC,
		Window:             cfg.Window(),
		CopySells:          cfg.Copy.CopySells,
		DryRun:             cfg.Copy.DryRun,
		ShutdownGrace:      cfg.ShutdownGrace(),
		ResolutionInterval: cfg.ResolutionInterval(),
	}, led, executor, notify.NewConsole(), client, client)

	feed := polymarket.NewFeed(cfg.API.FeedURL, cfg.ReconnectDelay(), func(data []byte) {
		events, err := polymarket.ParseFrame(data)
		if err != nil {
			slog.Debug("malformed frame dropped", "err", err)
			return
		}
		for _, ev := range events {
			eng.Submit(ev)
		}
	})

	slog.Info("copybot starting",
		"target", cfg.Copy.TargetWallet,
		"budget", cfg.Copy.BudgetUSDC,
		"window", cfg.Window(),
		"dry_run", cfg.Copy.DryRun,
		"feed", cfg.API.FeedURL,
	)

	// The ledger outlives the signal context: its final snapshot must happen
	// AFTER the engine has drained the pending window and its in-flight legs
	// have recorded, not concurrently with them.
	ledgerCtx, ledgerCancel := context.WithCancel(context.Background())
	ledgerDone := make(chan struct{})
	go func() {
		led.Run(ledgerCtx)
		close(ledgerDone)
	}()

	feed.Start(ctx)

	if err := eng.Run(ctx); err != nil {
		slog.Error("engine exited with error", "err", err)
	}

	feed.Wait()
	ledgerCancel()
	<-ledgerDone
	slog.Info("copybot stopped cleanly")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
