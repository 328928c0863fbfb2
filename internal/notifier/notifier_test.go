package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockPulse/internal/collector"
	"StockPulse/internal/model"
	"StockPulse/internal/pipeline"
)

func TestFormatOutcome(t *testing.T) {
	tests := []struct {
		name string
		o    pipeline.Outcome
		want string
	}{
		{"done up", pipeline.Outcome{Symbol: "AAPL", Status: pipeline.StatusDone, State: model.StateUp}, "AAPL: done: Up"},
		{"done down", pipeline.Outcome{Symbol: "MSFT", Status: pipeline.StatusDone, State: model.StateDown}, "MSFT: done: Down"},
		{"insufficient", pipeline.Outcome{Symbol: "NEW", Status: pipeline.StatusInsufficientData}, "NEW: insufficient data"},
		{"no data", pipeline.Outcome{Symbol: "X", Status: pipeline.StatusNoData,
			Err: &collector.NoDataError{Symbol: "X", Section: "missing quote"}}, "X: no data (missing quote)"},
		{"no data bare", pipeline.Outcome{Symbol: "X", Status: pipeline.StatusNoData, Err: collector.ErrNoData}, "X: no data"},
		{"network status", pipeline.Outcome{Symbol: "BADSYM", Status: pipeline.StatusNetworkError,
			Err: &collector.NetworkError{Symbol: "BADSYM", StatusCode: 404}}, "BADSYM: network error (status 404)"},
		{"network transport", pipeline.Outcome{Symbol: "Y", Status: pipeline.StatusNetworkError,
			Err: &collector.NetworkError{Symbol: "Y", Err: errors.New("connection refused")}},
			"Y: network error (quote request for Y: connection refused)"},
		{"processing", pipeline.Outcome{Symbol: "Z", Status: pipeline.StatusProcessingError, Err: errors.New("disk full")},
			"Z: processing error: disk full"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatOutcome(tt.o))
		})
	}
}

func TestFormatRunSummary(t *testing.T) {
	outcomes := []pipeline.Outcome{
		{Symbol: "AAPL", Status: pipeline.StatusDone, State: model.StateUp},
		{Symbol: "MSFT", Status: pipeline.StatusDone, State: model.StateDown},
		{Symbol: "NEW", Status: pipeline.StatusInsufficientData},
		{Symbol: "BAD", Status: pipeline.StatusProcessingError, Err: errors.New("value <nil>")},
	}
	at := time.Date(2024, 5, 6, 22, 0, 0, 0, time.UTC)

	msg := FormatRunSummary(outcomes, at)

	assert.Contains(t, msg, "2024-05-06 22:00")
	assert.Contains(t, msg, "📈 AAPL: done: Up")
	assert.Contains(t, msg, "📉 MSFT: done: Down")
	assert.Contains(t, msg, "⏳ NEW: insufficient data")
	assert.Contains(t, msg, "value &lt;nil&gt;")
	assert.Contains(t, msg, "Done: 2 / 4 | Failed: 1")
}

func newTestNotifier(url string) *TelegramNotifier {
	n := NewTelegramNotifier("TOKEN", "42", "", zerolog.Nop())
	n.APIBase = url
	return n
}

func TestTelegramNotifier_Send(t *testing.T) {
	var gotPath string
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&payload)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	err := newTestNotifier(srv.URL).Send(context.Background(), "<b>hi</b>")
	require.NoError(t, err)
	assert.Equal(t, "/botTOKEN/sendMessage", gotPath)
	assert.Equal(t, "42", payload["chat_id"])
	assert.Equal(t, "<b>hi</b>", payload["text"])
	assert.Equal(t, "HTML", payload["parse_mode"])
}

func TestTelegramNotifier_SendWithRetry_Exhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := newTestNotifier(srv.URL).SendWithRetry(context.Background(), "x", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Equal(t, int32(1), calls.Load())
}

func TestTelegramNotifier_SendWithRetry_Recovers(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	err := newTestNotifier(srv.URL).SendWithRetry(context.Background(), "x", 1)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTelegramNotifier_StartPolling(t *testing.T) {
	var served atomic.Bool
	replies := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			if served.CompareAndSwap(false, true) {
				w.Write([]byte(`{"ok":true,"result":[{"update_id":7,"message":{"text":" /check aapl "}}]}`))
				return
			}
			assert.Equal(t, "8", r.URL.Query().Get("offset"))
			time.Sleep(10 * time.Millisecond)
			w.Write([]byte(`{"ok":true,"result":[]}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var payload map[string]string
			json.NewDecoder(r.Body).Decode(&payload)
			replies <- payload["text"]
			w.Write([]byte(`{"ok":true}`))
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		newTestNotifier(srv.URL).StartPolling(ctx, func(_ context.Context, cmd string) string {
			return "got " + cmd
		})
	}()

	select {
	case reply := <-replies:
		assert.Equal(t, "got /check aapl", reply)
	case <-time.After(5 * time.Second):
		t.Fatal("no reply sent")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("polling did not stop")
	}
}

func TestNewTelegramNotifier_Proxy(t *testing.T) {
	direct := NewTelegramNotifier("TOKEN", "42", "", zerolog.Nop())
	assert.False(t, direct.Client.IsProxySet())
	assert.False(t, direct.pollClient.IsProxySet())

	proxied := NewTelegramNotifier("TOKEN", "42", "http://127.0.0.1:3128", zerolog.Nop())
	assert.True(t, proxied.Client.IsProxySet())
	assert.True(t, proxied.pollClient.IsProxySet())
}

func TestTelegramNotifier_SendContentType(t *testing.T) {
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	require.NoError(t, newTestNotifier(srv.URL).Send(context.Background(), "x"))
	assert.Contains(t, contentType, "application/json")
}

func TestTelegramNotifier_GetUpdates(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		if r.URL.Query().Get("offset") == "3" {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"ok":false,"description":"conflict"}`))
			return
		}
		w.Write([]byte(`{"ok":true,"result":[{"update_id":2,"message":{"text":"/tickers"}}]}`))
	}))
	defer srv.Close()
	n := newTestNotifier(srv.URL)

	updates, err := n.getUpdates(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, 2, updates[0].UpdateID)
	assert.Equal(t, "/tickers", updates[0].Message.Text)
	assert.Contains(t, query, "timeout=30")

	_, err = n.getUpdates(context.Background(), 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 409")
}
