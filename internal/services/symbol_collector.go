package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/openpnl/bitget-orders-go/internal/config"
	"github.com/openpnl/bitget-orders-go/internal/models"
	"github.com/openpnl/bitget-orders-go/internal/storage"
	"github.com/openpnl/bitget-orders-go/pkg/bitget"
)

// SymbolCollector extracts the complete order history for one symbol and
// persists it to the object store. Unlike discovery, collection must not
// silently drop data: once a symbol is committed to being processed, a
// retry-exhausted page is a hard failure so the scheduler re-runs the whole
// symbol instead of marking a partial scan done.
type SymbolCollector struct {
	exchange bitget.ExchangeClient
	store    storage.ObjectStore
	cfg      config.CollectorConfig
	prefix   string
	logger   *logrus.Logger
	now      func() time.Time
}

// NewSymbolCollector creates a collector writing partial results under
// partialPrefix.
func NewSymbolCollector(exchange bitget.ExchangeClient, store storage.ObjectStore, cfg config.CollectorConfig, partialPrefix string, logger *logrus.Logger) *SymbolCollector {
	return &SymbolCollector{
		exchange: exchange,
		store:    store,
		cfg:      cfg,
		prefix:   partialPrefix,
		logger:   logger,
		now:      time.Now,
	}
}

// Collect scans the symbol's full order history from the configured epoch
// to now and writes the result to the bus. The cursor argument resumes a
// previous partial scan; pass "" for a fresh one.
//
// Error semantics: exhausted rate-limit retries and unexpected API errors
// return a non-nil error (the invocation must fail loudly). A delisted
// symbol returns an explicitly empty result. Hitting the page ceiling
// before the exchange signals completion persists what was fetched and
// returns a partial status with a continuation cursor.
func (c *SymbolCollector) Collect(ctx context.Context, symbol, cursor string) (models.CollectResult, error) {
	log := c.logger.WithField("symbol", symbol)
	result := models.CollectResult{Symbol: symbol, Status: models.StatusOK}

	startTime := c.cfg.HistoryStartMs
	endTime := c.now().UnixMilli()

	var orders []models.Order
	exhausted := false

	for page := 1; page <= c.cfg.MaxPages; page++ {
		resp, err := c.fetchPage(ctx, symbol, startTime, endTime, cursor)
		if err != nil {
			if bitget.IsSymbolDelisted(err) {
				log.Info("Symbol delisted, returning empty result")
				result.Status = models.StatusEmpty
				result.ProcessedAt = models.EpochMillis(c.now().UnixMilli())
				return result, nil
			}
			// Returning a partial result here would mark the symbol done
			// with a hole in its history. Fail instead and let the
			// scheduler retry the whole symbol.
			return result, fmt.Errorf("collect %s: page %d: %w", symbol, page, err)
		}

		if len(resp.Orders) == 0 {
			exhausted = true
			break
		}
		for _, order := range resp.Orders {
			order.ProcessingSymbol = symbol
			orders = append(orders, order)
		}

		if !resp.NextFlag {
			exhausted = true
			break
		}
		cursor = resp.EndID
		if cursor == "" {
			cursor = resp.Orders[len(resp.Orders)-1].OrderID
		}
	}

	if !exhausted {
		// Page ceiling reached with more pages pending. Persist what we
		// have and hand back a continuation cursor so a follow-up
		// invocation resumes instead of truncating silently.
		log.WithFields(logrus.Fields{
			"orders":      len(orders),
			"max_pages":   c.cfg.MaxPages,
			"next_cursor": cursor,
		}).Warn("Page ceiling reached before exchange signalled completion")
		result.Status = models.StatusPartial
		result.NextCursor = cursor
	}

	result.OrdersCount = len(orders)
	result.ProcessedAt = models.EpochMillis(c.now().UnixMilli())

	if len(orders) == 0 {
		// Zero orders means no artifact: downstream treats "no orders"
		// and "never processed" identically, both contribute nothing.
		result.Status = models.StatusEmpty
		log.Info("No orders found for symbol")
		return result, nil
	}

	key, err := c.persist(ctx, symbol, orders)
	if err != nil {
		return result, fmt.Errorf("persist %s: %w", symbol, err)
	}
	result.StorageKey = key

	log.WithFields(logrus.Fields{
		"orders": len(orders),
		"key":    key,
		"status": result.Status,
	}).Info("Symbol collection completed")
	return result, nil
}

// fetchPage retrieves one page with bounded exponential backoff on rate
// limiting. Exhausting the retry budget surfaces the rate-limit error.
func (c *SymbolCollector) fetchPage(ctx context.Context, symbol string, startTime, endTime int64, cursor string) (*bitget.HistoryOrdersPage, error) {
	policy := backoff.NewExponentialBackOff()
	if d, err := time.ParseDuration(c.cfg.InitialBackoff); err == nil && d > 0 {
		policy.InitialInterval = d
	}
	if d, err := time.ParseDuration(c.cfg.MaxBackoff); err == nil && d > 0 {
		policy.MaxInterval = d
	}
	policy.MaxElapsedTime = 0

	var page *bitget.HistoryOrdersPage
	operation := func() error {
		resp, err := c.exchange.GetHistoryOrders(ctx, bitget.HistoryOrdersRequest{
			Symbol:    symbol,
			StartTime: startTime,
			EndTime:   endTime,
			PageSize:  c.cfg.PageSize,
			LastEndID: cursor,
		})
		if err != nil {
			if bitget.IsRateLimited(err) {
				c.logger.WithField("symbol", symbol).Debug("Rate limited, backing off")
				return err
			}
			return backoff.Permanent(err)
		}
		page = resp
		return nil
	}

	retryPolicy := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.cfg.MaxRetries)), ctx)
	if err := backoff.Retry(operation, retryPolicy); err != nil {
		return nil, err
	}
	return page, nil
}

// persist writes the partial result under a fresh timestamped key. Retried
// invocations produce new keys rather than overwriting, which is why the
// aggregator deduplicates globally.
func (c *SymbolCollector) persist(ctx context.Context, symbol string, orders []models.Order) (string, error) {
	body, err := json.Marshal(models.OrderSet{Orders: orders})
	if err != nil {
		return "", fmt.Errorf("marshal orders: %w", err)
	}
	// Nanosecond resolution keeps a resumed scan from overwriting the
	// artifact its first pass wrote within the same second.
	key := fmt.Sprintf("%s%s_%d.json", c.prefix, symbol, c.now().UnixNano())
	if err := c.store.Put(ctx, key, body, "application/json"); err != nil {
		return "", err
	}
	return key, nil
}
