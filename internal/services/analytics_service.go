package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/openpnl/bitget-orders-go/internal/config"
	"github.com/openpnl/bitget-orders-go/internal/models"
	"github.com/openpnl/bitget-orders-go/internal/storage"
)

// AnalyticsService runs the statistical summarization pass over a merged
// result artifact: PnL, win rate, per-symbol summaries, daily/cumulative
// series and correlations. It is a downstream consumer of the pipeline's
// output, never a producer.
type AnalyticsService struct {
	store          storage.ObjectStore
	cfg            config.AnalyticsConfig
	resultsPrefix  string
	analysisPrefix string
	logger         *logrus.Logger
	now            func() time.Time
}

// NewAnalyticsService creates the analytics service.
func NewAnalyticsService(store storage.ObjectStore, cfg config.AnalyticsConfig, storageCfg *config.StorageConfig, logger *logrus.Logger) *AnalyticsService {
	return &AnalyticsService{
		store:          store,
		cfg:            cfg,
		resultsPrefix:  storageCfg.ResultsPrefix,
		analysisPrefix: storageCfg.AnalysisPrefix,
		logger:         logger,
		now:            time.Now,
	}
}

// SymbolSummary aggregates one symbol's trading activity.
type SymbolSummary struct {
	Trades  int     `json:"trades"`
	Volume  float64 `json:"volume"`
	PnLNet  float64 `json:"pnl_net"`
	Fees    float64 `json:"fees"`
	Wins    int     `json:"wins"`
	WinRate float64 `json:"win_rate"`
}

// DailySeries is a date-indexed value series.
type DailySeries struct {
	Dates  []string  `json:"dates"`
	Values []float64 `json:"values"`
}

// AnalysisReport is the persisted output of one analytics run.
type AnalysisReport struct {
	Execution      string                   `json:"execution,omitempty"`
	SourceKey      string                   `json:"source_key"`
	OrdersAnalyzed int                      `json:"orders_analyzed"`
	DateFrom       string                   `json:"date_from,omitempty"`
	DateTo         string                   `json:"date_to,omitempty"`
	TotalTrades    int                      `json:"total_trades"`
	UniqueSymbols  int                      `json:"unique_symbols"`
	TotalVolume    float64                  `json:"total_volume"`
	TotalPnL       float64                  `json:"total_pnl"`
	WinRate        float64                  `json:"win_rate"`
	SymbolSummary  map[string]SymbolSummary `json:"symbol_summary"`
	TopPnLSymbols  []string                 `json:"top_pnl_symbols"`
	TopPnLValues   []float64                `json:"top_pnl_values"`
	DailyPnL       DailySeries              `json:"daily_pnl"`
	AvgDailyPnL    float64                  `json:"avg_daily_pnl"`
	BestDay        float64                  `json:"best_day"`
	WorstDay       float64                  `json:"worst_day"`
	PositiveDays   int                      `json:"positive_days"`
	NegativeDays   int                      `json:"negative_days"`
	CumulativePnL  DailySeries              `json:"cumulative_pnl"`
	FinalPnL       float64                  `json:"final_pnl"`
	MaxDrawdown    float64                  `json:"max_drawdown"`
	DailyPnLStdDev float64                  `json:"daily_pnl_stddev"`
	Correlations   map[string]float64       `json:"correlations"`
	StorageKey     string                   `json:"storage_key,omitempty"`
}

// trade is one coerced order row used for aggregation.
type trade struct {
	symbol string
	day    string
	volume float64
	pnlNet float64
	fee    float64
	isWin  bool
}

// Analyze loads the merged artifact for executionName (or the most recent
// one when empty), computes the report and persists it.
func (a *AnalyticsService) Analyze(ctx context.Context, executionName string, daysBack int) (*AnalysisReport, error) {
	sourceKey, orders, err := a.loadOrders(ctx, executionName)
	if err != nil {
		return nil, err
	}
	a.logger.WithFields(logrus.Fields{
		"source": sourceKey,
		"orders": len(orders),
	}).Info("Loaded merged orders for analysis")

	if daysBack <= 0 {
		daysBack = a.cfg.DefaultDaysBack
	}
	var cutoff time.Time
	if daysBack > 0 {
		cutoff = a.now().AddDate(0, 0, -daysBack)
	}

	trades := coerceTrades(orders, cutoff)
	report := a.buildReport(trades)
	report.Execution = executionName
	report.SourceKey = sourceKey
	report.OrdersAnalyzed = len(trades)

	if err := a.persistReport(ctx, executionName, report); err != nil {
		// Analysis output is still useful without the stored copy.
		a.logger.WithError(err).Warn("Failed to persist analysis report")
	}
	return report, nil
}

// loadOrders resolves the merged artifact: the newest key matching the
// execution name, or the newest result overall.
func (a *AnalyticsService) loadOrders(ctx context.Context, executionName string) (string, []models.Order, error) {
	objects, err := a.store.List(ctx, a.resultsPrefix)
	if err != nil {
		return "", nil, fmt.Errorf("list results: %w", err)
	}

	var best *storage.ObjectInfo
	for i := range objects {
		obj := objects[i]
		if !strings.HasSuffix(obj.Key, ".json") {
			continue
		}
		if executionName != "" && !strings.Contains(obj.Key, executionName) {
			continue
		}
		if best == nil || obj.LastModified.After(best.LastModified) {
			best = &objects[i]
		}
	}
	if best == nil {
		return "", nil, fmt.Errorf("no merged result found for execution %q", executionName)
	}

	body, err := a.store.Get(ctx, best.Key)
	if err != nil {
		return "", nil, fmt.Errorf("load %s: %w", best.Key, err)
	}
	var set models.OrderSet
	if err := json.Unmarshal(body, &set); err != nil {
		return "", nil, fmt.Errorf("parse %s: %w", best.Key, err)
	}
	return best.Key, set.Orders, nil
}

// coerceTrades converts raw orders into aggregation rows, dropping orders
// without a usable timestamp or symbol and tolerating numeric coercion
// failures field by field.
func coerceTrades(orders []models.Order, cutoff time.Time) []trade {
	trades := make([]trade, 0, len(orders))
	for _, order := range orders {
		if order.CreateTime == 0 || order.Symbol == "" {
			continue
		}
		ts := order.CreateTime.Time()
		if !cutoff.IsZero() && ts.Before(cutoff) {
			continue
		}

		filled := parseDecimal(order.FilledAmount)
		avgPrice := parseDecimal(order.AvgPrice)
		fee := parseDecimal(order.Fee)

		tradeValue := filled.Mul(avgPrice)
		pnlNet := tradeValue.Sub(fee)

		volume, _ := filled.Float64()
		pnl, _ := pnlNet.Float64()
		feeF, _ := fee.Float64()

		trades = append(trades, trade{
			symbol: order.Symbol,
			day:    ts.Format("2006-01-02"),
			volume: volume,
			pnlNet: pnl,
			fee:    feeF,
			isWin:  pnlNet.IsPositive(),
		})
	}
	return trades
}

func (a *AnalyticsService) buildReport(trades []trade) *AnalysisReport {
	report := &AnalysisReport{
		SymbolSummary: make(map[string]SymbolSummary),
		Correlations:  make(map[string]float64),
	}
	if len(trades) == 0 {
		return report
	}

	symbols := make(map[string]*SymbolSummary)
	dailyPnL := make(map[string]float64)
	dailyVolume := make(map[string]float64)
	dailyTrades := make(map[string]float64)
	wins := 0

	for _, t := range trades {
		summary, ok := symbols[t.symbol]
		if !ok {
			summary = &SymbolSummary{}
			symbols[t.symbol] = summary
		}
		summary.Trades++
		summary.Volume += t.volume
		summary.PnLNet += t.pnlNet
		summary.Fees += t.fee
		if t.isWin {
			summary.Wins++
			wins++
		}

		dailyPnL[t.day] += t.pnlNet
		dailyVolume[t.day] += t.volume
		dailyTrades[t.day]++

		report.TotalVolume += t.volume
		report.TotalPnL += t.pnlNet
	}

	report.TotalTrades = len(trades)
	report.UniqueSymbols = len(symbols)
	report.WinRate = float64(wins) / float64(len(trades)) * 100

	for symbol, summary := range symbols {
		summary.WinRate = float64(summary.Wins) / float64(summary.Trades) * 100
		report.SymbolSummary[symbol] = *summary
	}

	// Top symbols by net PnL.
	type symbolPnL struct {
		symbol string
		pnl    float64
	}
	ranked := make([]symbolPnL, 0, len(symbols))
	for symbol, summary := range symbols {
		ranked = append(ranked, symbolPnL{symbol, summary.PnLNet})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].pnl != ranked[j].pnl {
			return ranked[i].pnl > ranked[j].pnl
		}
		return ranked[i].symbol < ranked[j].symbol
	})
	top := a.cfg.TopSymbols
	if top <= 0 {
		top = 15
	}
	if len(ranked) > top {
		ranked = ranked[:top]
	}
	for _, entry := range ranked {
		report.TopPnLSymbols = append(report.TopPnLSymbols, entry.symbol)
		report.TopPnLValues = append(report.TopPnLValues, entry.pnl)
	}

	// Daily and cumulative series, date-ascending.
	days := make([]string, 0, len(dailyPnL))
	for day := range dailyPnL {
		days = append(days, day)
	}
	sort.Strings(days)

	pnlSeries := make([]float64, 0, len(days))
	volumeSeries := make([]float64, 0, len(days))
	tradeSeries := make([]float64, 0, len(days))
	cumulative := make([]float64, 0, len(days))
	running := 0.0
	peak := 0.0
	maxDrawdown := 0.0
	positive, negative := 0, 0

	for _, day := range days {
		pnl := dailyPnL[day]
		pnlSeries = append(pnlSeries, pnl)
		volumeSeries = append(volumeSeries, dailyVolume[day])
		tradeSeries = append(tradeSeries, dailyTrades[day])

		running += pnl
		cumulative = append(cumulative, running)
		if running > peak {
			peak = running
		}
		if drawdown := running - peak; drawdown < maxDrawdown {
			maxDrawdown = drawdown
		}
		if pnl > 0 {
			positive++
		} else if pnl < 0 {
			negative++
		}
	}

	report.DateFrom = days[0]
	report.DateTo = days[len(days)-1]
	report.DailyPnL = DailySeries{Dates: days, Values: pnlSeries}
	report.CumulativePnL = DailySeries{Dates: days, Values: cumulative}
	report.AvgDailyPnL = calculateMeanFloat64(pnlSeries)
	report.DailyPnLStdDev = calculateStdDev(pnlSeries)
	report.FinalPnL = running
	report.MaxDrawdown = maxDrawdown
	report.PositiveDays = positive
	report.NegativeDays = negative
	if len(pnlSeries) > 0 {
		best, worst := pnlSeries[0], pnlSeries[0]
		for _, v := range pnlSeries[1:] {
			if v > best {
				best = v
			}
			if v < worst {
				worst = v
			}
		}
		report.BestDay = best
		report.WorstDay = worst
	}

	report.Correlations["pnl_vs_volume"] = calculateCorrelation(pnlSeries, volumeSeries)
	report.Correlations["pnl_vs_trades"] = calculateCorrelation(pnlSeries, tradeSeries)
	report.Correlations["volume_vs_trades"] = calculateCorrelation(volumeSeries, tradeSeries)

	return report
}

func (a *AnalyticsService) persistReport(ctx context.Context, executionName string, report *AnalysisReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	name := executionName
	if name == "" {
		name = "latest"
	}
	key := fmt.Sprintf("%s%d_%s.json", a.analysisPrefix, a.now().Unix(), name)
	if err := a.store.Put(ctx, key, body, "application/json"); err != nil {
		return err
	}
	report.StorageKey = key
	return nil
}

// parseDecimal coerces an exchange numeric string, returning zero when the
// field is absent or malformed.
func parseDecimal(raw string) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero
	}
	return value
}
