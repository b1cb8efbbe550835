package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpnl/bitget-orders-go/internal/config"
	"github.com/openpnl/bitget-orders-go/internal/services"
	"github.com/openpnl/bitget-orders-go/internal/storage"
	"github.com/openpnl/bitget-orders-go/internal/workflow"
	"github.com/openpnl/bitget-orders-go/pkg/bitget"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func silentLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeExchange serves a fixed symbol list and order page.
type fakeExchange struct {
	symbols []bitget.SymbolInfo
	page    *bitget.HistoryOrdersPage
	err     error
}

func (f *fakeExchange) ListSymbols(_ context.Context, _ string) ([]bitget.SymbolInfo, error) {
	return f.symbols, f.err
}

func (f *fakeExchange) GetHistoryOrders(_ context.Context, _ bitget.HistoryOrdersRequest) (*bitget.HistoryOrdersPage, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.page != nil {
		return f.page, nil
	}
	return &bitget.HistoryOrdersPage{}, nil
}

// fakeEngine records started executions.
type fakeEngine struct {
	executions map[string]*workflow.ExecutionStatus
	started    int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{executions: make(map[string]*workflow.ExecutionStatus)}
}

func (f *fakeEngine) StartExecution(_ context.Context, name string, _ workflow.ExtractionInput) (*workflow.Execution, error) {
	f.started++
	started := time.Now()
	f.executions[name] = &workflow.ExecutionStatus{ID: name, Name: name, Status: workflow.StatusRunning, StartedAt: started}
	return &workflow.Execution{ID: name, Name: name, StartedAt: started}, nil
}

func (f *fakeEngine) DescribeExecution(_ context.Context, id string) (*workflow.ExecutionStatus, error) {
	status, ok := f.executions[id]
	if !ok {
		return nil, fmt.Errorf("execution %q not found", id)
	}
	return status, nil
}

func (f *fakeEngine) ListExecutions(_ context.Context, limit int) ([]workflow.ExecutionStatus, error) {
	var statuses []workflow.ExecutionStatus
	for _, status := range f.executions {
		statuses = append(statuses, *status)
	}
	if len(statuses) > limit {
		statuses = statuses[:limit]
	}
	return statuses, nil
}

// nullStore is an empty object store.
type nullStore struct{}

func (nullStore) Put(context.Context, string, []byte, string) error { return nil }
func (nullStore) Get(context.Context, string) ([]byte, error)      { return nil, storage.ErrNotFound }
func (nullStore) List(context.Context, string) ([]storage.ObjectInfo, error) {
	return nil, nil
}
func (nullStore) Delete(context.Context, []string) (int, error) { return 0, nil }
func (nullStore) Presign(context.Context, string, time.Duration) (string, error) {
	return "", storage.ErrNotFound
}

func newTestHandler(exchange bitget.ExchangeClient, engine workflow.Engine) *ExtractionHandler {
	logger := silentLogger()
	coordinator := services.NewCoordinatorService(exchange, engine, nil, config.DiscoveryConfig{
		LookbackDays: 90,
		WindowDays:   90,
		PageSize:     100,
		MaxPages:     2,
		Concurrency:  2,
		MaxSymbols:   10,
	}, "umcbl", logger)
	collector := services.NewSymbolCollector(exchange, nullStore{}, config.CollectorConfig{
		PageSize:       100,
		MaxPages:       2,
		MaxRetries:     0,
		InitialBackoff: "1ms",
		MaxBackoff:     "1ms",
		HistoryStartMs: 1514764800000,
	}, "symbol_results/", logger)
	return NewExtractionHandler(coordinator, collector, engine)
}

func performJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func setupRouter(handler *ExtractionHandler) *gin.Engine {
	router := gin.New()
	router.POST("/api/v1/extract-orders", handler.ExtractOrders)
	router.POST("/api/v1/extract-single-symbol", handler.ExtractSingleSymbol)
	router.GET("/api/v1/symbols", handler.GetSymbols)
	router.GET("/api/v1/executions", handler.ListExecutions)
	router.GET("/api/v1/executions/:id", handler.GetExecution)
	return router
}

func TestExtractOrders_StartsExecution(t *testing.T) {
	engine := newFakeEngine()
	router := setupRouter(newTestHandler(&fakeExchange{}, engine))

	recorder := performJSON(t, router, http.MethodPost, "/api/v1/extract-orders", ExtractOrdersRequest{
		Symbols:       []string{"BTCUSDT"},
		ExecutionName: "run-1",
	})

	assert.Equal(t, http.StatusAccepted, recorder.Code)
	assert.Equal(t, 1, engine.started)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp["name"])
}

func TestExtractOrders_DiscoversSymbolsWhenOmitted(t *testing.T) {
	engine := newFakeEngine()
	exchange := &fakeExchange{symbols: []bitget.SymbolInfo{{Symbol: "BTCUSDT"}}}
	router := setupRouter(newTestHandler(exchange, engine))

	recorder := performJSON(t, router, http.MethodPost, "/api/v1/extract-orders", ExtractOrdersRequest{})

	assert.Equal(t, http.StatusAccepted, recorder.Code)
	assert.Equal(t, 1, engine.started)
}

func TestExtractOrders_InvalidBody(t *testing.T) {
	router := setupRouter(newTestHandler(&fakeExchange{}, newFakeEngine()))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/extract-orders", bytes.NewReader([]byte("{broken")))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestExtractOrders_NoSymbolsAvailable(t *testing.T) {
	router := setupRouter(newTestHandler(&fakeExchange{}, newFakeEngine()))

	recorder := performJSON(t, router, http.MethodPost, "/api/v1/extract-orders", ExtractOrdersRequest{})

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
}

func TestExtractSingleSymbol_RequiresSymbol(t *testing.T) {
	router := setupRouter(newTestHandler(&fakeExchange{}, newFakeEngine()))

	recorder := performJSON(t, router, http.MethodPost, "/api/v1/extract-single-symbol", map[string]string{})

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestExtractSingleSymbol_EmptyHistory(t *testing.T) {
	router := setupRouter(newTestHandler(&fakeExchange{}, newFakeEngine()))

	recorder := performJSON(t, router, http.MethodPost, "/api/v1/extract-single-symbol", map[string]string{"symbol": "BTCUSDT"})

	assert.Equal(t, http.StatusOK, recorder.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, "empty", resp["status"])
}

func TestGetSymbols(t *testing.T) {
	exchange := &fakeExchange{symbols: []bitget.SymbolInfo{{Symbol: "BTCUSDT"}, {Symbol: "ETHUSDT"}}}
	router := setupRouter(newTestHandler(exchange, newFakeEngine()))

	recorder := performJSON(t, router, http.MethodGet, "/api/v1/symbols", nil)

	assert.Equal(t, http.StatusOK, recorder.Code)
	var resp struct {
		Symbols []string `json:"symbols"`
		Count   int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, resp.Symbols)
	assert.Equal(t, 2, resp.Count)
}

func TestGetExecution_NotFound(t *testing.T) {
	router := setupRouter(newTestHandler(&fakeExchange{}, newFakeEngine()))

	recorder := performJSON(t, router, http.MethodGet, "/api/v1/executions/ghost", nil)

	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestGetExecution_Found(t *testing.T) {
	engine := newFakeEngine()
	_, err := engine.StartExecution(context.Background(), "run-1", workflow.ExtractionInput{Symbols: []string{"BTCUSDT"}})
	require.NoError(t, err)
	router := setupRouter(newTestHandler(&fakeExchange{}, engine))

	recorder := performJSON(t, router, http.MethodGet, "/api/v1/executions/run-1", nil)

	assert.Equal(t, http.StatusOK, recorder.Code)
	var status workflow.ExecutionStatus
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &status))
	assert.Equal(t, workflow.StatusRunning, status.Status)
}

func TestListExecutions_AppliesLimit(t *testing.T) {
	engine := newFakeEngine()
	for i := 0; i < 5; i++ {
		_, err := engine.StartExecution(context.Background(), fmt.Sprintf("run-%d", i), workflow.ExtractionInput{Symbols: []string{"BTCUSDT"}})
		require.NoError(t, err)
	}
	router := setupRouter(newTestHandler(&fakeExchange{}, engine))

	recorder := performJSON(t, router, http.MethodGet, "/api/v1/executions?limit=2", nil)

	assert.Equal(t, http.StatusOK, recorder.Code)
	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}
