package main

import (
	"bufio"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockPulse/internal/collector"
	"StockPulse/internal/pipeline"
	"StockPulse/internal/recorder"
)

const aaplChart = `{"chart":{"result":[{"timestamp":[1714570200,1714656600,1714743000],
	"indicators":{"quote":[{"close":[169.30,null,183.38]}]}}],"error":null}}`

func newTestPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/AAPL"):
			w.Write([]byte(aaplChart))
		case strings.HasSuffix(r.URL.Path, "/EMPTY"):
			w.Write([]byte(`{"chart":{"result":[]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	rec, err := recorder.NewSQLiteRecorder(filepath.Join(t.TempDir(), "stocks.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })

	f := collector.NewYahooFetcher(collector.WithBaseURL(srv.URL), collector.WithRateLimit(0))
	return pipeline.New(pipeline.DefaultConfig(), f, rec, zerolog.Nop())
}

func TestRunOnce_Interactive(t *testing.T) {
	p := newTestPipeline(t)
	var out bytes.Buffer
	in := bufio.NewReader(strings.NewReader("aapl; badsym, empty\n"))

	err := runOnce(context.Background(), p, nil, "", true, in, &out)
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, "Enter tickers")
	assert.Contains(t, got, "Processing tickers: AAPL, BADSYM, EMPTY")
	assert.Contains(t, got, "AAPL: done: Up")
	assert.Contains(t, got, "BADSYM: network error (status 404)")
	assert.Contains(t, got, "EMPTY: no data (empty chart.result)")
	assert.Contains(t, got, "All tickers processed.")
}

func TestRunOnce_FromFlag(t *testing.T) {
	p := newTestPipeline(t)
	var out bytes.Buffer

	err := runOnce(context.Background(), p, nil, "AAPL", false, bufio.NewReader(strings.NewReader("")), &out)
	require.NoError(t, err)

	assert.NotContains(t, out.String(), "Enter tickers")
	assert.Contains(t, out.String(), "AAPL: done: Up")
}

func TestRunOnce_InputErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty line", "\n", "Error: no tickers entered."},
		{"eof", "", "Error: no tickers entered."},
		{"separators only", " , ; \n", "Error: no tickers recognized."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPipeline(t)
			var out bytes.Buffer

			err := runOnce(context.Background(), p, nil, "", true, bufio.NewReader(strings.NewReader(tt.input)), &out)
			require.NoError(t, err)
			assert.Contains(t, out.String(), tt.want)
			assert.NotContains(t, out.String(), "Processing tickers")
		})
	}
}

func TestLoadConfig(t *testing.T) {
	for _, k := range []string{"STOCKPULSE_WINDOW_DAYS", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "STOCKPULSE_CRON"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("pipeline:\n  tickers: [AAPL]\n"), 0644))
	cfg, err := loadConfig(good)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.DataSource.WindowDays)
	assert.Equal(t, []string{"AAPL"}, cfg.Pipeline.Tickers)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("data_source:\n  window_days: 1\n"), 0644))
	_, err = loadConfig(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation")

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("pipeline: [\n"), 0644))
	_, err = loadConfig(broken)
	assert.Error(t, err)
}
