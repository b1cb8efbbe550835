package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpnl/bitget-orders-go/internal/config"
	"github.com/openpnl/bitget-orders-go/internal/models"
	"github.com/openpnl/bitget-orders-go/pkg/bitget"
)

func testWindow() models.TimeWindow {
	return models.TimeWindow{
		WindowID:  1,
		StartTime: 1700000000000,
		EndTime:   1707776000000,
	}
}

func searcherConfig() config.DiscoveryConfig {
	return config.DiscoveryConfig{
		PageSize:         100,
		MaxPages:         30,
		EarlyStopSymbols: 60,
		MaxRetries:       1,
	}
}

func ordersFor(symbols ...string) []models.Order {
	orders := make([]models.Order, len(symbols))
	for i, symbol := range symbols {
		orders[i] = models.Order{OrderID: fmt.Sprintf("o-%s-%d", symbol, i), Symbol: symbol}
	}
	return orders
}

func TestSymbolSearcher_CollectsDistinctSymbolsAcrossPages(t *testing.T) {
	pages := []*bitget.HistoryOrdersPage{
		{Orders: ordersFor("BTCUSDT", "ETHUSDT", "BTCUSDT"), EndID: "100", NextFlag: true},
		{Orders: ordersFor("ETHUSDT", "SOLUSDT"), EndID: "200", NextFlag: false},
	}
	call := 0
	exchange := &mockExchange{
		getHistoryOrdersFn: func(_ context.Context, req bitget.HistoryOrdersRequest) (*bitget.HistoryOrdersPage, error) {
			page := pages[call]
			call++
			return page, nil
		},
	}

	searcher := NewSymbolSearcher(exchange, searcherConfig(), "umcbl", newTestLogger())
	result := searcher.Search(context.Background(), testWindow())

	assert.Equal(t, models.StatusOK, result.Status)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, result.Symbols)
	assert.Equal(t, 3, result.SymbolCount)
	assert.Equal(t, 2, result.PagesRead)

	// The second request must carry the first page's cursor.
	require.Len(t, exchange.historyCalls, 2)
	assert.Equal(t, "", exchange.historyCalls[0].LastEndID)
	assert.Equal(t, "100", exchange.historyCalls[1].LastEndID)
}

func TestSymbolSearcher_EarlyStopOnSymbolThreshold(t *testing.T) {
	cfg := searcherConfig()
	cfg.EarlyStopSymbols = 2

	exchange := &mockExchange{
		getHistoryOrdersFn: func(_ context.Context, _ bitget.HistoryOrdersRequest) (*bitget.HistoryOrdersPage, error) {
			return &bitget.HistoryOrdersPage{Orders: ordersFor("BTCUSDT", "ETHUSDT"), EndID: "1", NextFlag: true}, nil
		},
	}

	searcher := NewSymbolSearcher(exchange, cfg, "umcbl", newTestLogger())
	result := searcher.Search(context.Background(), testWindow())

	assert.Equal(t, models.StatusOK, result.Status)
	assert.Equal(t, 2, result.SymbolCount)
	assert.Equal(t, 1, exchange.historyCallCount())
}

func TestSymbolSearcher_ZeroThresholdDisablesEarlyStop(t *testing.T) {
	cfg := searcherConfig()
	cfg.EarlyStopSymbols = 0

	call := 0
	exchange := &mockExchange{
		getHistoryOrdersFn: func(_ context.Context, _ bitget.HistoryOrdersRequest) (*bitget.HistoryOrdersPage, error) {
			call++
			return &bitget.HistoryOrdersPage{
				Orders:   ordersFor(fmt.Sprintf("SYM%dUSDT", call)),
				EndID:    fmt.Sprintf("%d", call),
				NextFlag: call < 3,
			}, nil
		},
	}

	searcher := NewSymbolSearcher(exchange, cfg, "umcbl", newTestLogger())
	result := searcher.Search(context.Background(), testWindow())

	// An unset threshold means no early stop, not stop-after-first-page.
	assert.Equal(t, models.StatusOK, result.Status)
	assert.Equal(t, 3, result.PagesRead)
	assert.Equal(t, 3, result.SymbolCount)
}

func TestSymbolSearcher_StopsAtPageCeiling(t *testing.T) {
	cfg := searcherConfig()
	cfg.MaxPages = 3

	page := 0
	exchange := &mockExchange{
		getHistoryOrdersFn: func(_ context.Context, _ bitget.HistoryOrdersRequest) (*bitget.HistoryOrdersPage, error) {
			page++
			return &bitget.HistoryOrdersPage{Orders: ordersFor(fmt.Sprintf("SYM%dUSDT", page)), EndID: fmt.Sprintf("%d", page), NextFlag: true}, nil
		},
	}

	searcher := NewSymbolSearcher(exchange, cfg, "umcbl", newTestLogger())
	result := searcher.Search(context.Background(), testWindow())

	assert.Equal(t, models.StatusOK, result.Status)
	assert.Equal(t, 3, result.PagesRead)
	assert.Equal(t, 3, exchange.historyCallCount())
}

func TestSymbolSearcher_FailureKeepsPartialSymbols(t *testing.T) {
	call := 0
	exchange := &mockExchange{
		getHistoryOrdersFn: func(_ context.Context, _ bitget.HistoryOrdersRequest) (*bitget.HistoryOrdersPage, error) {
			call++
			if call == 1 {
				return &bitget.HistoryOrdersPage{Orders: ordersFor("BTCUSDT"), EndID: "1", NextFlag: true}, nil
			}
			return nil, &bitget.APIError{Kind: bitget.KindServer, Message: "internal error", HTTPStatus: 500}
		},
	}

	searcher := NewSymbolSearcher(exchange, searcherConfig(), "umcbl", newTestLogger())
	result := searcher.Search(context.Background(), testWindow())

	assert.Equal(t, models.StatusFailed, result.Status)
	assert.NotEmpty(t, result.Error)
	// Symbols accumulated before the failure survive.
	assert.Equal(t, []string{"BTCUSDT"}, result.Symbols)
}

func TestSymbolSearcher_RetriesRateLimitThenSucceeds(t *testing.T) {
	call := 0
	exchange := &mockExchange{
		getHistoryOrdersFn: func(_ context.Context, _ bitget.HistoryOrdersRequest) (*bitget.HistoryOrdersPage, error) {
			call++
			if call == 1 {
				return nil, &bitget.APIError{Kind: bitget.KindRateLimited, Code: "429", Message: "too many requests"}
			}
			return &bitget.HistoryOrdersPage{Orders: ordersFor("BTCUSDT"), NextFlag: false}, nil
		},
	}

	searcher := NewSymbolSearcher(exchange, searcherConfig(), "umcbl", newTestLogger())
	result := searcher.Search(context.Background(), testWindow())

	assert.Equal(t, models.StatusOK, result.Status)
	assert.Equal(t, []string{"BTCUSDT"}, result.Symbols)
	assert.Equal(t, 2, exchange.historyCallCount())
}

func TestSymbolSearcher_BadRequestIsNotRetried(t *testing.T) {
	exchange := &mockExchange{
		getHistoryOrdersFn: func(_ context.Context, _ bitget.HistoryOrdersRequest) (*bitget.HistoryOrdersPage, error) {
			return nil, &bitget.APIError{Kind: bitget.KindBadRequest, Code: "40001", Message: "bad param"}
		},
	}

	searcher := NewSymbolSearcher(exchange, searcherConfig(), "umcbl", newTestLogger())
	result := searcher.Search(context.Background(), testWindow())

	assert.Equal(t, models.StatusFailed, result.Status)
	assert.Equal(t, 1, exchange.historyCallCount())
	assert.Empty(t, result.Symbols)
}

func TestSymbolSearcher_EmptyWindow(t *testing.T) {
	exchange := &mockExchange{
		getHistoryOrdersFn: func(_ context.Context, _ bitget.HistoryOrdersRequest) (*bitget.HistoryOrdersPage, error) {
			return &bitget.HistoryOrdersPage{}, nil
		},
	}

	searcher := NewSymbolSearcher(exchange, searcherConfig(), "umcbl", newTestLogger())
	result := searcher.Search(context.Background(), testWindow())

	assert.Equal(t, models.StatusOK, result.Status)
	assert.Empty(t, result.Symbols)
	assert.Equal(t, 0, result.SymbolCount)
}
