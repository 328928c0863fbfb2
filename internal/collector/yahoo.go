package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"StockPulse/internal/model"
)

const (
	DefaultBaseURL   = "https://query1.finance.yahoo.com"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10 // requests per second

	userAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"
	priceScale = 4
)

// YahooFetcher implements Fetcher using the Yahoo Finance v8 chart API.
type YahooFetcher struct {
	baseURL string
	client  *resty.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
	now     func() time.Time
}

// YahooOption configures a YahooFetcher.
type YahooOption func(*YahooFetcher)

// WithBaseURL points the fetcher at another host, e.g. a test server.
func WithBaseURL(baseURL string) YahooOption {
	return func(f *YahooFetcher) {
		f.baseURL = baseURL
	}
}

// WithProxy routes requests through an HTTP proxy.
func WithProxy(proxyURL string) YahooOption {
	return func(f *YahooFetcher) {
		if proxyURL != "" {
			f.client.SetProxy(proxyURL)
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) YahooOption {
	return func(f *YahooFetcher) {
		f.client.SetTimeout(timeout)
	}
}

// WithRateLimit caps outgoing requests per second. Zero or less disables pacing.
func WithRateLimit(requestsPerSecond int) YahooOption {
	return func(f *YahooFetcher) {
		if requestsPerSecond <= 0 {
			f.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		f.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) YahooOption {
	return func(f *YahooFetcher) {
		f.logger = logger
	}
}

// WithClock replaces time.Now when computing the request window.
func WithClock(now func() time.Time) YahooOption {
	return func(f *YahooFetcher) {
		f.now = now
	}
}

// NewYahooFetcher creates a new Yahoo Finance fetcher.
func NewYahooFetcher(opts ...YahooOption) *YahooFetcher {
	client := resty.New().
		SetTimeout(DefaultTimeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json")

	f := &YahooFetcher{
		baseURL: DefaultBaseURL,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *YahooFetcher) Name() string { return "yahoo" }

// FetchDailyCloses requests the window [now-windowDays, now] at daily interval.
func (f *YahooFetcher) FetchDailyCloses(ctx context.Context, symbol string, windowDays int) ([]model.DailyClose, error) {
	end := f.now().UTC()
	start := end.AddDate(0, 0, -windowDays)

	body, err := f.FetchChart(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	return ParseChart(symbol, body)
}

// FetchChart returns the raw chart JSON for symbol between start and end.
func (f *YahooFetcher) FetchChart(ctx context.Context, symbol string, start, end time.Time) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	f.logger.Debug().
		Str("symbol", symbol).
		Int64("period1", start.Unix()).
		Int64("period2", end.Unix()).
		Msg("yahoo chart request")

	resp, err := f.client.R().
		SetContext(ctx).
		SetPathParam("symbol", symbol).
		SetQueryParams(map[string]string{
			"period1":  strconv.FormatInt(start.Unix(), 10),
			"period2":  strconv.FormatInt(end.Unix(), 10),
			"interval": "1d",
		}).
		Get(f.baseURL + "/v8/finance/chart/{symbol}")
	if err != nil {
		return nil, &NetworkError{Symbol: symbol, Err: err}
	}
	if !resp.IsSuccess() {
		return nil, &NetworkError{
			Symbol:     symbol,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("yahoo: %s", resp.Status()),
		}
	}
	return resp.Body(), nil
}

// yahooChart is the subset of the chart API response we read. Pointers
// distinguish an absent section from an empty one.
type yahooChart struct {
	Chart *struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators *struct {
				Quote []struct {
					Close []json.RawMessage `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// ParseChart extracts (date, close) pairs from a chart response. Days whose
// close is not a number are skipped.
func ParseChart(symbol string, body []byte) ([]model.DailyClose, error) {
	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode %s: %w", symbol, err)
	}

	noData := func(section string) error {
		return &NoDataError{Symbol: symbol, Section: section}
	}
	if chart.Chart == nil {
		return nil, noData("missing chart")
	}
	if chart.Chart.Error != nil {
		return nil, noData("api error: " + chart.Chart.Error.Description)
	}
	if chart.Chart.Result == nil {
		return nil, noData("missing chart.result")
	}
	if len(chart.Chart.Result) == 0 {
		return nil, noData("empty chart.result")
	}

	result := chart.Chart.Result[0]
	if len(result.Timestamp) == 0 {
		return nil, noData("missing timestamp")
	}
	if result.Indicators == nil || len(result.Indicators.Quote) == 0 {
		return nil, noData("missing quote")
	}
	closes := result.Indicators.Quote[0].Close
	if len(closes) == 0 {
		return nil, noData("missing close")
	}
	if len(closes) != len(result.Timestamp) {
		return nil, noData(fmt.Sprintf("close has %d values for %d timestamps", len(closes), len(result.Timestamp)))
	}

	out := make([]model.DailyClose, 0, len(closes))
	for i, ts := range result.Timestamp {
		// null, strings and other non-numbers fail here and are skipped
		v, err := decimal.NewFromString(string(closes[i]))
		if err != nil {
			continue
		}
		out = append(out, model.DailyClose{
			Date:  model.DateOf(time.Unix(ts, 0)),
			Close: v.Round(priceScale),
		})
	}
	return out, nil
}
