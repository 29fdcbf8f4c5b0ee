package httpserver

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// Event is the demo domain object written through POST /events: an
// arbitrary JSON payload keyed by a caller-supplied timestamp. Rank/
// aggregate config (package rankconfig) decides which fields of Data feed
// which aggregate.
type Event struct {
	ID   string         `json:"id"`
	Key  time.Time      `json:"key" binding:"required"`
	Data map[string]any `json:"data"`
}

func (e Event) Validate() error {
	if e.Key.IsZero() {
		return fmt.Errorf("key is required")
	}
	return nil
}

// decimalField extracts field from data as a decimal.Decimal. A missing
// field or one that cannot be parsed as a number folds in as zero rather
// than failing the write — Select functions have no error return (see
// package aggregator), matching the engine's "no rollback guarantees"
// posture for a single misbehaving field on an otherwise valid event.
func decimalField(data map[string]any, field string) decimal.Decimal {
	raw, ok := data[field]
	if !ok {
		return decimal.Zero
	}
	switch v := raw.(type) {
	case float64:
		return decimal.NewFromFloat(v)
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			slog.Warn("[httpserver] event field is not numeric, treating as zero", "field", field, "value", v)
			return decimal.Zero
		}
		return d
	case int:
		return decimal.NewFromInt(int64(v))
	case int64:
		return decimal.NewFromInt(v)
	default:
		slog.Warn("[httpserver] event field has unsupported type, treating as zero", "field", field, "value", raw)
		return decimal.Zero
	}
}
