package services

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/openpnl/bitget-orders-go/internal/config"
	"github.com/openpnl/bitget-orders-go/internal/models"
)

// WindowEnvelope is the canonical fan-out envelope for a window result.
// The workflow engine's map state wraps each branch output under "Payload";
// an in-process run passes the result bare. Both shapes are accepted,
// anything else is rejected as a malformed window.
type WindowEnvelope struct {
	Payload json.RawMessage `json:"Payload,omitempty"`

	models.WindowResult
}

// Unwrap resolves the envelope to the inner window result.
func (e *WindowEnvelope) Unwrap() (*models.WindowResult, error) {
	if len(e.Payload) > 0 {
		var inner models.WindowResult
		if err := json.Unmarshal(e.Payload, &inner); err != nil {
			return nil, fmt.Errorf("malformed window payload: %w", err)
		}
		if inner.Status == "" {
			return nil, fmt.Errorf("window payload missing status")
		}
		return &inner, nil
	}
	if e.Status == "" {
		return nil, fmt.Errorf("window result missing status")
	}
	result := e.WindowResult
	return &result, nil
}

// SymbolUnifier merges per-window discovery results into one deduplicated,
// frequency-ranked symbol list. Failed windows are counted but never abort
// the reduction; their symbols are excluded from ranking.
type SymbolUnifier struct {
	cfg    config.DiscoveryConfig
	logger *logrus.Logger
}

// NewSymbolUnifier creates a unifier with the given discovery limits.
func NewSymbolUnifier(cfg config.DiscoveryConfig, logger *logrus.Logger) *SymbolUnifier {
	return &SymbolUnifier{cfg: cfg, logger: logger}
}

// Unify combines all window results. Symbols seen in more windows rank
// first (they are the pairs most likely to carry a long order history);
// ties break alphabetically. The list is truncated to the configured cap
// to bound downstream fan-out cost.
func (u *SymbolUnifier) Unify(envelopes []WindowEnvelope) models.UnifyResult {
	frequency := make(map[string]int)
	result := models.UnifyResult{Status: models.StatusOK, Symbols: []string{}}

	for i := range envelopes {
		window, err := envelopes[i].Unwrap()
		if err != nil {
			u.logger.WithError(err).Warn("Rejecting malformed window result")
			result.FailedWindows++
			continue
		}
		if window.Status == models.StatusFailed {
			u.logger.WithFields(logrus.Fields{
				"window_id": window.WindowID,
				"error":     window.Error,
			}).Warn("Window search failed, continuing without it")
			result.FailedWindows++
			// A failed window may carry a partial symbol set, but an
			// aborted scan ranks symbols it never finished counting.
			// Only successful windows contribute to frequency.
			continue
		}
		result.SuccessfulWindows++
		for _, symbol := range window.Symbols {
			if symbol == "" {
				continue
			}
			frequency[symbol]++
		}
	}

	symbols := make([]string, 0, len(frequency))
	for symbol := range frequency {
		symbols = append(symbols, symbol)
	}
	sort.Slice(symbols, func(i, j int) bool {
		if frequency[symbols[i]] != frequency[symbols[j]] {
			return frequency[symbols[i]] > frequency[symbols[j]]
		}
		return symbols[i] < symbols[j]
	})

	result.TotalUnique = len(symbols)
	if u.cfg.MaxSymbols > 0 && len(symbols) > u.cfg.MaxSymbols {
		symbols = symbols[:u.cfg.MaxSymbols]
		result.Truncated = true
	}
	result.Symbols = symbols
	result.ProcessingCount = len(symbols)

	u.logger.WithFields(logrus.Fields{
		"unique_symbols":     result.TotalUnique,
		"processing_count":   result.ProcessingCount,
		"successful_windows": result.SuccessfulWindows,
		"failed_windows":     result.FailedWindows,
		"truncated":          result.Truncated,
	}).Info("Unified discovered symbols")
	return result
}
