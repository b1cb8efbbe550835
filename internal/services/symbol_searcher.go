package services

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/openpnl/bitget-orders-go/internal/config"
	"github.com/openpnl/bitget-orders-go/internal/models"
	"github.com/openpnl/bitget-orders-go/pkg/bitget"
)

// SymbolSearcher discovers the set of symbols traded within one time
// window by paging through the account's order history. Discovery is
// best-effort: a window that fails mid-scan still reports the symbols it
// accumulated, and the unifier tolerates missing windows.
type SymbolSearcher struct {
	exchange    bitget.ExchangeClient
	cfg         config.DiscoveryConfig
	productType string
	logger      *logrus.Logger
}

// NewSymbolSearcher creates a searcher for the given exchange client.
func NewSymbolSearcher(exchange bitget.ExchangeClient, cfg config.DiscoveryConfig, productType string, logger *logrus.Logger) *SymbolSearcher {
	return &SymbolSearcher{
		exchange:    exchange,
		cfg:         cfg,
		productType: productType,
		logger:      logger,
	}
}

// Search pages through order history inside the window and collects the
// distinct symbols seen. It stops on an empty page, when the exchange
// signals no further pages, at the page ceiling, or once the early-stop
// symbol threshold is crossed.
func (s *SymbolSearcher) Search(ctx context.Context, window models.TimeWindow) models.WindowResult {
	log := s.logger.WithField("window_id", window.WindowID)

	result := models.WindowResult{
		WindowID:  window.WindowID,
		StartTime: window.StartTime,
		EndTime:   window.EndTime,
		Symbols:   []string{},
		Status:    models.StatusOK,
	}
	seen := make(map[string]struct{})
	cursor := ""

	for page := 1; page <= s.cfg.MaxPages; page++ {
		resp, err := s.fetchPage(ctx, window, cursor)
		if err != nil {
			// Rate-limit retries are exhausted inside fetchPage; any
			// error surfacing here aborts the window with whatever was
			// accumulated so far.
			log.WithError(err).WithField("page", page).Warn("Window search aborted")
			result.Status = models.StatusFailed
			result.Error = err.Error()
			break
		}

		result.PagesRead = page
		if len(resp.Orders) == 0 {
			log.WithField("page", page).Debug("No more orders in window")
			break
		}

		for _, order := range resp.Orders {
			if order.Symbol == "" {
				continue
			}
			if _, ok := seen[order.Symbol]; !ok {
				seen[order.Symbol] = struct{}{}
				result.Symbols = append(result.Symbols, order.Symbol)
			}
		}

		if s.cfg.EarlyStopSymbols > 0 && len(seen) >= s.cfg.EarlyStopSymbols {
			log.WithField("symbols", len(seen)).Debug("Early stop, window has enough symbols")
			break
		}
		if !resp.NextFlag {
			break
		}

		// Prefer the server-provided cursor over the client-computed one.
		cursor = resp.EndID
		if cursor == "" {
			cursor = resp.Orders[len(resp.Orders)-1].OrderID
		}
	}

	result.SymbolCount = len(result.Symbols)
	result.ProcessedAt = models.EpochMillis(time.Now().UnixMilli())
	log.WithFields(logrus.Fields{
		"symbols": result.SymbolCount,
		"pages":   result.PagesRead,
		"status":  result.Status,
	}).Info("Window search completed")
	return result
}

// fetchPage retrieves one page, retrying rate-limit errors with bounded
// exponential backoff. Any other error is permanent for this window.
func (s *SymbolSearcher) fetchPage(ctx context.Context, window models.TimeWindow, cursor string) (*bitget.HistoryOrdersPage, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.cfg.MaxRetries)),
		ctx,
	)

	var page *bitget.HistoryOrdersPage
	operation := func() error {
		resp, err := s.exchange.GetHistoryOrders(ctx, bitget.HistoryOrdersRequest{
			ProductType: s.productType,
			StartTime:   int64(window.StartTime),
			EndTime:     int64(window.EndTime),
			PageSize:    s.cfg.PageSize,
			LastEndID:   cursor,
		})
		if err != nil {
			if bitget.IsRateLimited(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		page = resp
		return nil
	}
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return page, nil
}
