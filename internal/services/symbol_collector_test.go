package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpnl/bitget-orders-go/internal/config"
	"github.com/openpnl/bitget-orders-go/internal/models"
	"github.com/openpnl/bitget-orders-go/pkg/bitget"
)

func collectorConfig() config.CollectorConfig {
	return config.CollectorConfig{
		PageSize:       100,
		MaxPages:       500,
		MaxRetries:     2,
		InitialBackoff: "1ms",
		MaxBackoff:     "5ms",
		HistoryStartMs: 1514764800000,
	}
}

func newTestCollector(exchange bitget.ExchangeClient, store *memStore, cfg config.CollectorConfig) *SymbolCollector {
	return NewSymbolCollector(exchange, store, cfg, "symbol_results/", newTestLogger())
}

func TestSymbolCollector_CollectsAndPersists(t *testing.T) {
	pages := []*bitget.HistoryOrdersPage{
		{Orders: []models.Order{{OrderID: "1", Symbol: "BTCUSDT", CreateTime: 1700000000001}}, EndID: "1", NextFlag: true},
		{Orders: []models.Order{{OrderID: "2", Symbol: "BTCUSDT", CreateTime: 1700000000002}}, EndID: "2", NextFlag: false},
	}
	call := 0
	exchange := &mockExchange{
		getHistoryOrdersFn: func(_ context.Context, _ bitget.HistoryOrdersRequest) (*bitget.HistoryOrdersPage, error) {
			page := pages[call]
			call++
			return page, nil
		},
	}
	store := newMemStore()

	collector := newTestCollector(exchange, store, collectorConfig())
	result, err := collector.Collect(context.Background(), "BTCUSDT", "")

	require.NoError(t, err)
	assert.Equal(t, models.StatusOK, result.Status)
	assert.Equal(t, 2, result.OrdersCount)
	assert.True(t, strings.HasPrefix(result.StorageKey, "symbol_results/BTCUSDT_"))
	assert.True(t, strings.HasSuffix(result.StorageKey, ".json"))

	body, getErr := store.Get(context.Background(), result.StorageKey)
	require.NoError(t, getErr)
	var set models.OrderSet
	require.NoError(t, json.Unmarshal(body, &set))
	require.Len(t, set.Orders, 2)
	// Every persisted order is tagged with the symbol it was collected for.
	assert.Equal(t, "BTCUSDT", set.Orders[0].ProcessingSymbol)
}

func TestSymbolCollector_CursorThreadedThroughPages(t *testing.T) {
	call := 0
	exchange := &mockExchange{
		getHistoryOrdersFn: func(_ context.Context, _ bitget.HistoryOrdersRequest) (*bitget.HistoryOrdersPage, error) {
			call++
			if call < 3 {
				return &bitget.HistoryOrdersPage{
					Orders:   []models.Order{{OrderID: fmt.Sprintf("%d", call), Symbol: "BTCUSDT"}},
					EndID:    fmt.Sprintf("end-%d", call),
					NextFlag: true,
				}, nil
			}
			return &bitget.HistoryOrdersPage{}, nil
		},
	}
	store := newMemStore()

	collector := newTestCollector(exchange, store, collectorConfig())
	_, err := collector.Collect(context.Background(), "BTCUSDT", "")
	require.NoError(t, err)

	require.Len(t, exchange.historyCalls, 3)
	assert.Equal(t, "", exchange.historyCalls[0].LastEndID)
	assert.Equal(t, "end-1", exchange.historyCalls[1].LastEndID)
	assert.Equal(t, "end-2", exchange.historyCalls[2].LastEndID)
}

func TestSymbolCollector_DelistedSymbolReturnsEmpty(t *testing.T) {
	exchange := &mockExchange{
		getHistoryOrdersFn: func(_ context.Context, _ bitget.HistoryOrdersRequest) (*bitget.HistoryOrdersPage, error) {
			return nil, &bitget.APIError{Kind: bitget.KindSymbolDelisted, Code: "40309", Message: "symbol has been removed"}
		},
	}
	store := newMemStore()

	collector := newTestCollector(exchange, store, collectorConfig())
	result, err := collector.Collect(context.Background(), "OLDUSDT", "")

	require.NoError(t, err)
	assert.Equal(t, models.StatusEmpty, result.Status)
	assert.Equal(t, 0, result.OrdersCount)
	assert.Empty(t, store.keys())
}

func TestSymbolCollector_RetryExhaustionFailsLoudly(t *testing.T) {
	cfg := collectorConfig()
	cfg.MaxRetries = 2

	exchange := &mockExchange{
		getHistoryOrdersFn: func(_ context.Context, _ bitget.HistoryOrdersRequest) (*bitget.HistoryOrdersPage, error) {
			return nil, &bitget.APIError{Kind: bitget.KindRateLimited, Code: "429", Message: "too many requests"}
		},
	}
	store := newMemStore()

	collector := newTestCollector(exchange, store, cfg)
	_, err := collector.Collect(context.Background(), "BTCUSDT", "")

	require.Error(t, err)
	assert.True(t, bitget.IsRateLimited(err))
	// Initial attempt plus MaxRetries retries, then give up.
	assert.Equal(t, 3, exchange.historyCallCount())
	assert.Empty(t, store.keys())
}

func TestSymbolCollector_ServerErrorIsPermanent(t *testing.T) {
	exchange := &mockExchange{
		getHistoryOrdersFn: func(_ context.Context, _ bitget.HistoryOrdersRequest) (*bitget.HistoryOrdersPage, error) {
			return nil, &bitget.APIError{Kind: bitget.KindServer, Message: "upstream down", HTTPStatus: 502}
		},
	}
	store := newMemStore()

	collector := newTestCollector(exchange, store, collectorConfig())
	_, err := collector.Collect(context.Background(), "BTCUSDT", "")

	require.Error(t, err)
	assert.Equal(t, 1, exchange.historyCallCount())
}

func TestSymbolCollector_NoOrdersWritesNothing(t *testing.T) {
	exchange := &mockExchange{
		getHistoryOrdersFn: func(_ context.Context, _ bitget.HistoryOrdersRequest) (*bitget.HistoryOrdersPage, error) {
			return &bitget.HistoryOrdersPage{}, nil
		},
	}
	store := newMemStore()

	collector := newTestCollector(exchange, store, collectorConfig())
	result, err := collector.Collect(context.Background(), "BTCUSDT", "")

	require.NoError(t, err)
	assert.Equal(t, models.StatusEmpty, result.Status)
	assert.Empty(t, store.keys())
}

func TestSymbolCollector_PageCeilingReturnsContinuationCursor(t *testing.T) {
	cfg := collectorConfig()
	cfg.MaxPages = 2

	call := 0
	exchange := &mockExchange{
		getHistoryOrdersFn: func(_ context.Context, _ bitget.HistoryOrdersRequest) (*bitget.HistoryOrdersPage, error) {
			call++
			return &bitget.HistoryOrdersPage{
				Orders:   []models.Order{{OrderID: fmt.Sprintf("%d", call), Symbol: "BTCUSDT"}},
				EndID:    fmt.Sprintf("end-%d", call),
				NextFlag: true,
			}, nil
		},
	}
	store := newMemStore()

	collector := newTestCollector(exchange, store, cfg)
	result, err := collector.Collect(context.Background(), "BTCUSDT", "")

	require.NoError(t, err)
	assert.Equal(t, models.StatusPartial, result.Status)
	assert.Equal(t, "end-2", result.NextCursor)
	assert.Equal(t, 2, result.OrdersCount)
	// The fetched pages are persisted even though the scan is incomplete.
	assert.Len(t, store.keys(), 1)
}

func TestSymbolCollector_ResumesFromCursor(t *testing.T) {
	exchange := &mockExchange{
		getHistoryOrdersFn: func(_ context.Context, req bitget.HistoryOrdersRequest) (*bitget.HistoryOrdersPage, error) {
			if req.LastEndID == "resume-here" {
				return &bitget.HistoryOrdersPage{
					Orders:   []models.Order{{OrderID: "7", Symbol: "BTCUSDT"}},
					NextFlag: false,
				}, nil
			}
			return &bitget.HistoryOrdersPage{}, nil
		},
	}
	store := newMemStore()

	collector := newTestCollector(exchange, store, collectorConfig())
	result, err := collector.Collect(context.Background(), "BTCUSDT", "resume-here")

	require.NoError(t, err)
	assert.Equal(t, models.StatusOK, result.Status)
	assert.Equal(t, 1, result.OrdersCount)
	assert.Equal(t, "resume-here", exchange.historyCalls[0].LastEndID)
}

func TestSymbolCollector_PersistFailurePropagates(t *testing.T) {
	exchange := &mockExchange{
		getHistoryOrdersFn: func(_ context.Context, _ bitget.HistoryOrdersRequest) (*bitget.HistoryOrdersPage, error) {
			return &bitget.HistoryOrdersPage{
				Orders:   []models.Order{{OrderID: "1", Symbol: "BTCUSDT"}},
				NextFlag: false,
			}, nil
		},
	}
	store := newMemStore()
	store.failPut = true

	collector := newTestCollector(exchange, store, collectorConfig())
	_, err := collector.Collect(context.Background(), "BTCUSDT", "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist")
}
