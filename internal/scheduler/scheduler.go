package scheduler

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"StockPulse/internal/notifier"
	"StockPulse/internal/pipeline"
)

// Runner processes a set of symbols. Implemented by *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, symbols []string) ([]pipeline.Outcome, error)
}

// Sender delivers a run summary. Implemented by *notifier.TelegramNotifier.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Scheduler re-runs the pipeline for a fixed watch list on a cron schedule.
type Scheduler struct {
	Cron    *cron.Cron
	Runner  Runner
	Symbols []string
	Sender  Sender    // optional
	Out     io.Writer // status lines, optional
	Ctx     context.Context

	logger zerolog.Logger
	outMu  sync.Mutex
}

// NewScheduler creates a new Scheduler. Overlapping runs are skipped.
func NewScheduler(ctx context.Context, runner Runner, symbols []string, sender Sender, out io.Writer, logger zerolog.Logger) *Scheduler {
	cl := cronLogger{logger: logger}
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		Runner:  runner,
		Symbols: symbols,
		Sender:  sender,
		Out:     out,
		Ctx:     ctx,
		logger:  logger,
	}
}

// Register adds the watch-list run under a six-field cron spec (with seconds).
func (s *Scheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.runTask); err != nil {
		return fmt.Errorf("register run task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info().Strs("symbols", s.Symbols).Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
}

// RunNow processes the watch list immediately.
func (s *Scheduler) RunNow() []pipeline.Outcome {
	return s.run(s.Ctx, s.Symbols)
}

func (s *Scheduler) runTask() {
	s.run(s.Ctx, s.Symbols)
}

func (s *Scheduler) run(ctx context.Context, symbols []string) []pipeline.Outcome {
	outcomes, err := s.Runner.Run(ctx, symbols)
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduled run")
		return nil
	}

	s.print(outcomes)
	if s.Sender != nil {
		if err := s.Sender.SendWithRetry(ctx, notifier.FormatRunSummary(outcomes, time.Now()), 3); err != nil {
			s.logger.Error().Err(err).Msg("send notification")
		}
	}
	return outcomes
}

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return usage
	}
	switch fields[0] {
	case "/check":
		symbols := pipeline.Normalize(fields[1:]...)
		if len(symbols) == 0 {
			return "Usage: /check AAPL, MSFT"
		}
		outcomes, err := s.Runner.Run(ctx, symbols)
		if err != nil {
			return fmt.Sprintf("❌ %v", err)
		}
		return notifier.FormatRunSummary(outcomes, time.Now())
	case "/run":
		outcomes, err := s.Runner.Run(ctx, s.Symbols)
		if err != nil {
			return fmt.Sprintf("❌ %v", err)
		}
		return notifier.FormatRunSummary(outcomes, time.Now())
	case "/tickers":
		if len(s.Symbols) == 0 {
			return "Watch list is empty"
		}
		return "Watching: " + strings.Join(s.Symbols, ", ")
	default:
		return usage
	}
}

const usage = "Commands:\n• /check AAPL, MSFT\n• /run\n• /tickers"

func (s *Scheduler) print(outcomes []pipeline.Outcome) {
	if s.Out == nil {
		return
	}
	s.outMu.Lock()
	defer s.outMu.Unlock()
	for _, o := range outcomes {
		fmt.Fprintln(s.Out, notifier.FormatOutcome(o))
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron " + msg)
}
