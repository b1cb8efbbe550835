package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// EpochMillis is an epoch-milliseconds timestamp that tolerates the mixed
// encodings the exchange emits: JSON numbers, numeric strings, empty strings
// and null. Anything unparsable decodes to zero so a single malformed order
// never breaks a whole artifact.
type EpochMillis int64

// UnmarshalJSON decodes a JSON number or numeric string into epoch millis.
func (e *EpochMillis) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = 0
		return nil
	}
	s := string(data)
	if strings.HasPrefix(s, `"`) {
		var unquoted string
		if err := json.Unmarshal(data, &unquoted); err != nil {
			*e = 0
			return nil
		}
		s = strings.TrimSpace(unquoted)
	}
	if s == "" {
		*e = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Tolerate fractional millis ("1700000000000.0").
		if f, ferr := strconv.ParseFloat(s, 64); ferr == nil {
			*e = EpochMillis(int64(f))
			return nil
		}
		*e = 0
		return nil
	}
	*e = EpochMillis(v)
	return nil
}

// MarshalJSON encodes the timestamp as a JSON number.
func (e EpochMillis) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(e), 10)), nil
}

// Time converts the timestamp to a time.Time in UTC.
func (e EpochMillis) Time() time.Time {
	return time.UnixMilli(int64(e)).UTC()
}

// Order is the fundamental record extracted from the exchange. Numeric
// fields are kept as the raw strings the exchange sends; downstream
// consumers coerce them and must tolerate coercion failure. Only OrderID
// (deduplication key) and CreateTime (sort key) carry semantics in the
// pipeline; everything else is passed through.
type Order struct {
	OrderID          string      `json:"orderId"`
	Symbol           string      `json:"symbol"`
	Side             string      `json:"side,omitempty"`
	Size             string      `json:"size,omitempty"`
	Price            string      `json:"price,omitempty"`
	AvgPrice         string      `json:"priceAvg,omitempty"`
	FilledAmount     string      `json:"filledAmount,omitempty"`
	Fee              string      `json:"fee,omitempty"`
	State            string      `json:"state,omitempty"`
	OrderType        string      `json:"orderType,omitempty"`
	Leverage         string      `json:"leverage,omitempty"`
	MarginMode       string      `json:"marginMode,omitempty"`
	CreateTime       EpochMillis `json:"cTime"`
	UpdateTime       EpochMillis `json:"uTime,omitempty"`
	ProcessingSymbol string      `json:"processing_symbol,omitempty"`
}

// OrderSet is the persisted artifact shape shared by per-symbol partial
// results and the final merged result.
type OrderSet struct {
	Orders []Order `json:"orders"`
}

// TimeWindow is one partition of the discovery lookback horizon. Windows are
// contiguous, non-overlapping and immutable once produced.
type TimeWindow struct {
	WindowID  int         `json:"window_id"`
	StartTime EpochMillis `json:"start_time"`
	EndTime   EpochMillis `json:"end_time"`
	StartDate string      `json:"start_date"`
	EndDate   string      `json:"end_date"`
}

// Stage result statuses. Every stage output carries an explicit status so
// the workflow engine and the unifier can branch without parsing errors out
// of free-form messages.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusEmpty   = "empty"
	StatusFailed  = "failed"
)

// WindowResult is the symbol searcher's output for one time window.
// A failed window still carries whatever symbols were accumulated before
// the failure; discovery is best-effort by design.
type WindowResult struct {
	WindowID    int         `json:"window_id"`
	StartTime   EpochMillis `json:"start_time"`
	EndTime     EpochMillis `json:"end_time"`
	Symbols     []string    `json:"symbols"`
	SymbolCount int         `json:"symbols_count"`
	PagesRead   int         `json:"pages_read"`
	Status      string      `json:"status"`
	Error       string      `json:"error,omitempty"`
	ProcessedAt EpochMillis `json:"processed_at"`
}

// UnifyResult is the symbol unifier's reduction over all window results.
type UnifyResult struct {
	Status            string   `json:"status"`
	Symbols           []string `json:"symbols"`
	TotalUnique       int      `json:"total_unique"`
	ProcessingCount   int      `json:"processing_count"`
	SuccessfulWindows int      `json:"successful_windows"`
	FailedWindows     int      `json:"failed_windows"`
	Truncated         bool     `json:"truncated"`
}

// CollectResult is the per-symbol collector's output envelope. The orders
// themselves travel through the object store, never through the workflow
// engine payload.
type CollectResult struct {
	Symbol      string      `json:"symbol"`
	OrdersCount int         `json:"orders_count"`
	StorageKey  string      `json:"storage_key,omitempty"`
	Status      string      `json:"status"`
	// NextCursor is set when the page ceiling was reached before the
	// exchange signalled completion; a follow-up invocation resumes there.
	NextCursor  string      `json:"next_cursor,omitempty"`
	ProcessedAt EpochMillis `json:"processed_at"`
}

// AggregateResult is the result aggregator's output. When the merged
// artifact could not be persisted, InlineOrders carries a truncated view of
// the computation instead of losing it.
type AggregateResult struct {
	Status       string  `json:"status"`
	TotalOrders  int     `json:"total_orders"`
	FilesMerged  int     `json:"files_merged"`
	FilesSkipped int     `json:"files_skipped"`
	Duplicates   int     `json:"duplicates_removed"`
	StorageKey   string  `json:"s3_key,omitempty"`
	DownloadURL  string  `json:"download_url,omitempty"`
	InlineOrders []Order `json:"inline_orders,omitempty"`
	Truncated    bool    `json:"truncated,omitempty"`
}
