package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"StockPulse/internal/collector"
	"StockPulse/internal/model"
	"StockPulse/internal/recorder"
)

// Config holds pipeline configuration.
type Config struct {
	Concurrency int // Max tickers in flight (default: 5)
	WindowDays  int // Trailing days to fetch (default: 30)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency: 5,
		WindowDays:  30,
	}
}

// Pipeline fetches, stores and evaluates tickers.
type Pipeline struct {
	cfg     Config
	fetcher collector.Fetcher
	rec     recorder.Recorder
	sem     *semaphore.Weighted
	logger  zerolog.Logger
}

// New creates a Pipeline. Zero config fields fall back to DefaultConfig.
func New(cfg Config, fetcher collector.Fetcher, rec recorder.Recorder, logger zerolog.Logger) *Pipeline {
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = def.WindowDays
	}
	return &Pipeline{
		cfg:     cfg,
		fetcher: fetcher,
		rec:     rec,
		sem:     semaphore.NewWeighted(int64(cfg.Concurrency)),
		logger:  logger,
	}
}

// Run processes every symbol concurrently and waits for all of them. Outcomes
// are returned in input order. One ticker failing never stops the others.
func (p *Pipeline) Run(ctx context.Context, symbols []string) ([]Outcome, error) {
	if len(symbols) == 0 {
		return nil, ErrNoTickers
	}

	start := time.Now()
	logger := p.logger.With().Str("run_id", uuid.NewString()).Logger()
	logger.Info().
		Strs("symbols", symbols).
		Int("concurrency", p.cfg.Concurrency).
		Str("source", p.fetcher.Name()).
		Msg("run started")

	outcomes := make([]Outcome, len(symbols))
	var wg sync.WaitGroup
	for i, sym := range symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			outcomes[i] = p.process(ctx, symbol, logger)
		}(i, sym)
	}
	wg.Wait()

	done := 0
	for _, o := range outcomes {
		if o.OK() {
			done++
		}
	}
	logger.Info().
		Int("tickers", len(symbols)).
		Int("done", done).
		Dur("duration", time.Since(start)).
		Msg("run finished")
	return outcomes, nil
}

// ProcessTicker runs the fetch, store and compare steps for one symbol.
func (p *Pipeline) ProcessTicker(ctx context.Context, symbol string) Outcome {
	return p.process(ctx, symbol, p.logger)
}

func (p *Pipeline) process(ctx context.Context, symbol string, logger zerolog.Logger) (out Outcome) {
	logger = logger.With().Str("symbol", symbol).Logger()
	defer func() { logOutcome(logger, out) }()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return Outcome{Symbol: symbol, Status: StatusProcessingError, Err: fmt.Errorf("acquire slot: %w", err)}
	}
	defer p.sem.Release(1)
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Symbol: symbol, Status: StatusProcessingError, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	return p.processLocked(ctx, symbol)
}

// processLocked does the work once a concurrency slot is held.
func (p *Pipeline) processLocked(ctx context.Context, symbol string) Outcome {
	out := Outcome{Symbol: symbol}
	fail := func(status Status, err error) Outcome {
		out.Status = status
		out.Err = err
		return out
	}

	closes, err := p.fetcher.FetchDailyCloses(ctx, symbol, p.cfg.WindowDays)
	if err != nil {
		return fail(classifyFetchError(err), err)
	}

	tickerID, err := p.rec.GetOrCreateTicker(ctx, symbol)
	if err != nil {
		return fail(StatusProcessingError, fmt.Errorf("resolve ticker: %w", err))
	}

	for _, c := range closes {
		exists, err := p.rec.PriceExists(ctx, tickerID, c.Date)
		if err != nil {
			return fail(StatusProcessingError, fmt.Errorf("check price: %w", err))
		}
		if exists {
			continue
		}
		if err := p.rec.InsertPrice(ctx, tickerID, c.Date, c.Close); err != nil {
			// Another run stored this day between the check and the insert.
			if errors.Is(err, recorder.ErrDuplicatePrice) {
				continue
			}
			return fail(StatusProcessingError, fmt.Errorf("insert price: %w", err))
		}
		out.Inserted++
	}

	if out.Stored, err = p.rec.CountPrices(ctx, tickerID); err != nil {
		return fail(StatusProcessingError, fmt.Errorf("count prices: %w", err))
	}

	last, err := p.rec.GetLastTwoPrices(ctx, tickerID)
	if err != nil {
		return fail(StatusProcessingError, fmt.Errorf("last prices: %w", err))
	}
	if len(last) < 2 {
		out.Status = StatusInsufficientData
		return out
	}

	state := model.CompareCloses(last[0].Value, last[1].Value)
	if err := p.rec.UpsertCondition(ctx, tickerID, state); err != nil {
		return fail(StatusProcessingError, fmt.Errorf("update condition: %w", err))
	}

	out.Status = StatusDone
	out.State = state
	return out
}

func classifyFetchError(err error) Status {
	var ne *collector.NetworkError
	switch {
	case errors.Is(err, collector.ErrNoData):
		return StatusNoData
	case errors.As(err, &ne):
		return StatusNetworkError
	default:
		return StatusProcessingError
	}
}

func logOutcome(logger zerolog.Logger, o Outcome) {
	switch o.Status {
	case StatusDone:
		logger.Info().Str("state", string(o.State)).Int("inserted", o.Inserted).Int("stored", o.Stored).Msg("ticker done")
	case StatusInsufficientData:
		logger.Warn().Int("inserted", o.Inserted).Int("stored", o.Stored).Msg("insufficient data")
	case StatusNoData, StatusNetworkError:
		logger.Warn().Err(o.Err).Str("status", o.Status.String()).Msg("ticker skipped")
	default:
		logger.Error().Err(o.Err).Str("status", o.Status.String()).Msg("ticker failed")
	}
}
