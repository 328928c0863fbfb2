package notifier

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"StockPulse/internal/collector"
	"StockPulse/internal/model"
	"StockPulse/internal/pipeline"
)

// FormatOutcome renders one ticker result as a console status line.
func FormatOutcome(o pipeline.Outcome) string {
	switch o.Status {
	case pipeline.StatusDone:
		return fmt.Sprintf("%s: done: %s", o.Symbol, o.State)
	case pipeline.StatusInsufficientData:
		return fmt.Sprintf("%s: insufficient data", o.Symbol)
	case pipeline.StatusNoData:
		var nd *collector.NoDataError
		if errors.As(o.Err, &nd) {
			return fmt.Sprintf("%s: no data (%s)", o.Symbol, nd.Section)
		}
		return fmt.Sprintf("%s: no data", o.Symbol)
	case pipeline.StatusNetworkError:
		var ne *collector.NetworkError
		if errors.As(o.Err, &ne) && ne.StatusCode != 0 {
			return fmt.Sprintf("%s: network error (status %d)", o.Symbol, ne.StatusCode)
		}
		return fmt.Sprintf("%s: network error (%v)", o.Symbol, o.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", o.Symbol, o.Status, o.Err)
	}
}

// FormatRunSummary formats a whole run into a Telegram message.
func FormatRunSummary(outcomes []pipeline.Outcome, at time.Time) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📊 <b>StockPulse</b> | %s\n\n", at.Format("2006-01-02 15:04")))

	counts := make(map[pipeline.Status]int)
	for _, o := range outcomes {
		counts[o.Status]++
		b.WriteString(outcomeIcon(o))
		b.WriteString(" ")
		b.WriteString(html.EscapeString(FormatOutcome(o)))
		b.WriteString("\n")
	}

	b.WriteString("  ─────────────────\n")
	b.WriteString(fmt.Sprintf("Done: %d / %d", counts[pipeline.StatusDone], len(outcomes)))
	if failed := len(outcomes) - counts[pipeline.StatusDone] - counts[pipeline.StatusInsufficientData]; failed > 0 {
		b.WriteString(fmt.Sprintf(" | Failed: %d", failed))
	}
	b.WriteString("\n")
	return b.String()
}

func outcomeIcon(o pipeline.Outcome) string {
	switch {
	case o.Status == pipeline.StatusDone && o.State == model.StateUp:
		return "📈"
	case o.Status == pipeline.StatusDone:
		return "📉"
	case o.Status == pipeline.StatusInsufficientData:
		return "⏳"
	default:
		return "❌"
	}
}
