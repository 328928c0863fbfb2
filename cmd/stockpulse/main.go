package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"StockPulse/internal/collector"
	"StockPulse/internal/config"
	"StockPulse/internal/logging"
	"StockPulse/internal/notifier"
	"StockPulse/internal/pipeline"
	"StockPulse/internal/recorder"
	"StockPulse/internal/scheduler"
)

func main() {
	tickersFlag := flag.String("tickers", "", "ticker symbols separated by commas, spaces or semicolons")
	watch := flag.Bool("watch", false, "keep running and re-check tickers on the configured cron schedule")
	flag.Parse()

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	logger := logging.New("info")
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	logger = logging.New(cfg.Log.Level)

	// Init recorder. The process cannot do anything useful without it.
	if dir := filepath.Dir(cfg.Database.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatal().Err(err).Msg("create database directory")
		}
	}
	rec, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("init sqlite recorder")
	}
	defer rec.Close()

	// Init fetcher
	fetcher := collector.NewYahooFetcher(
		collector.WithBaseURL(cfg.DataSource.BaseURL),
		collector.WithProxy(cfg.Proxy),
		collector.WithTimeout(time.Duration(cfg.DataSource.TimeoutSeconds)*time.Second),
		collector.WithRateLimit(cfg.DataSource.RequestsPerSecond),
		collector.WithLogger(logger),
	)
	logger.Debug().Str("source", fetcher.Name()).Msg("data source ready")

	p := pipeline.New(pipeline.Config{
		Concurrency: cfg.Pipeline.Concurrency,
		WindowDays:  cfg.DataSource.WindowDays,
	}, fetcher, rec, logger)

	// Init Telegram notifier
	var tn *notifier.TelegramNotifier
	if cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, logger)
	}

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *watch {
		symbols := pipeline.Normalize(*tickersFlag)
		if len(symbols) == 0 {
			symbols = pipeline.Normalize(cfg.Pipeline.Tickers...)
		}
		if len(symbols) == 0 {
			fmt.Println("Error: no tickers to watch. Use -tickers or pipeline.tickers in the config.")
			return
		}
		runWatch(ctx, cfg, p, tn, symbols, logger)
		return
	}

	interactive := *tickersFlag == ""
	in := bufio.NewReader(os.Stdin)
	if err := runOnce(ctx, p, tn, *tickersFlag, interactive, in, os.Stdout); err != nil {
		fmt.Printf("Critical error: %v\n", err)
	}

	if interactive {
		fmt.Println("\nPress Enter to exit...")
		in.ReadString('\n')
	}
}

// loadConfig reads and validates the config at path.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// runOnce reads the ticker line (unless given), processes it and prints one
// status line per ticker. Input errors are printed and end the run cleanly.
func runOnce(ctx context.Context, p *pipeline.Pipeline, tn *notifier.TelegramNotifier, input string, interactive bool, in *bufio.Reader, out io.Writer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected failure: %v", r)
		}
	}()

	if interactive {
		fmt.Fprintln(out, "StockPulse")
		fmt.Fprintln(out, "Enter tickers separated by commas or spaces (e.g. AAPL, MSFT, GOOGL):")
		line, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read input: %w", err)
		}
		input = line
	}

	if strings.TrimSpace(input) == "" {
		fmt.Fprintln(out, "Error: no tickers entered.")
		return nil
	}
	symbols := pipeline.Normalize(input)
	if len(symbols) == 0 {
		fmt.Fprintln(out, "Error: no tickers recognized.")
		return nil
	}

	fmt.Fprintf(out, "\nProcessing tickers: %s\n", strings.Join(symbols, ", "))
	outcomes, err := p.Run(ctx, symbols)
	if err != nil {
		return err
	}
	for _, o := range outcomes {
		fmt.Fprintln(out, notifier.FormatOutcome(o))
	}

	if tn != nil {
		if err := tn.SendWithRetry(ctx, notifier.FormatRunSummary(outcomes, time.Now()), 3); err != nil {
			fmt.Fprintf(out, "Warning: telegram summary not sent: %v\n", err)
		}
	}

	fmt.Fprintln(out, "\nAll tickers processed.")
	return nil
}

// runWatch re-processes symbols on the cron schedule until ctx is cancelled.
func runWatch(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, tn *notifier.TelegramNotifier, symbols []string, logger zerolog.Logger) {
	var sender scheduler.Sender
	if tn != nil {
		sender = tn
	}

	sched := scheduler.NewScheduler(ctx, p, symbols, sender, os.Stdout, logger)
	if err := sched.Register(cfg.Schedule.Cron); err != nil {
		logger.Fatal().Err(err).Msg("register cron task")
	}
	sched.Start()
	defer sched.Stop()

	// Start Telegram polling
	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		logger.Info().Msg("telegram polling started")
	}

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		logger.Info().Msg("RUN_ON_START enabled, processing watch list now")
		go sched.RunNow()
	}

	logger.Info().Str("cron", cfg.Schedule.Cron).Msg("StockPulse is watching. Press Ctrl+C to stop.")
	<-ctx.Done()
	logger.Info().Msg("shutdown signal received, stopping...")
}
