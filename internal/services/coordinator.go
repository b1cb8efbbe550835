package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/openpnl/bitget-orders-go/internal/cache"
	"github.com/openpnl/bitget-orders-go/internal/config"
	"github.com/openpnl/bitget-orders-go/internal/models"
	"github.com/openpnl/bitget-orders-go/internal/workflow"
	"github.com/openpnl/bitget-orders-go/pkg/bitget"
)

// CoordinatorService is the pipeline entry point. It resolves the symbol
// set to extract (explicit list, cached discovery, or a fresh windowed
// discovery scan) and starts an extraction execution on the workflow
// engine.
type CoordinatorService struct {
	exchange    bitget.ExchangeClient
	engine      workflow.Engine
	symbolCache *cache.RedisSymbolCache
	searcher    *SymbolSearcher
	unifier     *SymbolUnifier
	cfg         config.DiscoveryConfig
	productType string
	logger      *logrus.Logger
}

// NewCoordinatorService wires the coordinator. symbolCache may be nil when
// no Redis is configured.
func NewCoordinatorService(exchange bitget.ExchangeClient, engine workflow.Engine, symbolCache *cache.RedisSymbolCache, cfg config.DiscoveryConfig, productType string, logger *logrus.Logger) *CoordinatorService {
	return &CoordinatorService{
		exchange:    exchange,
		engine:      engine,
		symbolCache: symbolCache,
		searcher:    NewSymbolSearcher(exchange, cfg, productType, logger),
		unifier:     NewSymbolUnifier(cfg, logger),
		cfg:         cfg,
		productType: productType,
		logger:      logger,
	}
}

// ListSymbols returns all tradable symbols for the configured product
// type, served from cache when possible.
func (c *CoordinatorService) ListSymbols(ctx context.Context) ([]string, error) {
	if c.symbolCache != nil {
		if symbols, ok := c.symbolCache.Get(ctx, c.productType); ok {
			return symbols, nil
		}
	}

	contracts, err := c.exchange.ListSymbols(ctx, c.productType)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	symbols := make([]string, 0, len(contracts))
	for _, contract := range contracts {
		if contract.Symbol != "" {
			symbols = append(symbols, contract.Symbol)
		}
	}

	if c.symbolCache != nil {
		c.symbolCache.Set(ctx, c.productType, symbols)
	}
	return symbols, nil
}

// DiscoverTradedSymbols runs the full discovery path in one invocation:
// partition the lookback horizon, search every window concurrently, then
// unify. Window searches are independent; the unifier is the barrier.
func (c *CoordinatorService) DiscoverTradedSymbols(ctx context.Context) (models.UnifyResult, error) {
	lookback := time.Duration(c.cfg.LookbackDays) * 24 * time.Hour
	window := time.Duration(c.cfg.WindowDays) * 24 * time.Hour
	windows := PartitionTimeRange(time.Now(), lookback, window)
	c.logger.WithField("windows", len(windows)).Info("Partitioned discovery horizon")

	if len(windows) == 0 {
		return models.UnifyResult{Status: models.StatusEmpty, Symbols: []string{}}, nil
	}

	results := make([]WindowEnvelope, len(windows))
	concurrency := c.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)
	for i, w := range windows {
		group.Go(func() error {
			results[i] = WindowEnvelope{WindowResult: c.searcher.Search(groupCtx, w)}
			return nil
		})
	}
	_ = group.Wait()

	return c.unifier.Unify(results), nil
}

// StartExtraction resolves the symbol set and starts an extraction
// execution. An empty symbols argument triggers discovery via the contract
// listing (the fast path the original coordinator takes); callers wanting
// the exhaustive windowed scan call DiscoverTradedSymbols first.
func (c *CoordinatorService) StartExtraction(ctx context.Context, symbols []string, executionName string) (*workflow.Execution, error) {
	if len(symbols) == 0 {
		discovered, err := c.ListSymbols(ctx)
		if err != nil {
			return nil, err
		}
		symbols = discovered
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols to extract")
	}

	if executionName == "" {
		executionName = fmt.Sprintf("bitget-extraction-%s", uuid.NewString())
	}

	execution, err := c.engine.StartExecution(ctx, executionName, workflow.ExtractionInput{
		Symbols:   symbols,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("start extraction: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"execution": executionName,
		"symbols":   len(symbols),
	}).Info("Extraction execution started")
	return execution, nil
}
