package services

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/openpnl/bitget-orders-go/internal/config"
	"github.com/openpnl/bitget-orders-go/internal/models"
	"github.com/openpnl/bitget-orders-go/internal/workflow"
)

// PipelineRunner is the in-process workflow engine: it executes the
// per-symbol collection fan-out and the aggregation barrier inside the
// server process, for deployments without a managed orchestrator. It
// implements workflow.Engine so the façade treats both engines alike.
type PipelineRunner struct {
	collector  *SymbolCollector
	aggregator *ResultAggregator
	notifier   *ExtractionNotifier
	cfg        config.CollectorConfig
	logger     *logrus.Logger

	mu         sync.RWMutex
	executions map[string]*workflow.ExecutionStatus
}

// NewPipelineRunner wires the in-process engine. notifier may be nil.
func NewPipelineRunner(collector *SymbolCollector, aggregator *ResultAggregator, notifier *ExtractionNotifier, cfg config.CollectorConfig, logger *logrus.Logger) *PipelineRunner {
	return &PipelineRunner{
		collector:  collector,
		aggregator: aggregator,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger,
		executions: make(map[string]*workflow.ExecutionStatus),
	}
}

// StartExecution launches the collection/aggregation pipeline in the
// background and returns immediately, mirroring the managed engine's
// asynchronous start semantics.
func (r *PipelineRunner) StartExecution(_ context.Context, name string, input workflow.ExtractionInput) (*workflow.Execution, error) {
	if len(input.Symbols) == 0 {
		return nil, fmt.Errorf("extraction input has no symbols")
	}
	if name == "" {
		name = fmt.Sprintf("local-extraction-%s", uuid.NewString())
	}

	started := time.Now()
	r.mu.Lock()
	if _, exists := r.executions[name]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("execution %q already exists", name)
	}
	r.executions[name] = &workflow.ExecutionStatus{
		ID:        name,
		Name:      name,
		Status:    workflow.StatusRunning,
		StartedAt: started,
	}
	r.mu.Unlock()

	// The execution outlives the triggering request.
	go r.run(context.Background(), name, input.Symbols)

	return &workflow.Execution{ID: name, Name: name, StartedAt: started}, nil
}

// DescribeExecution reports a tracked execution.
func (r *PipelineRunner) DescribeExecution(_ context.Context, id string) (*workflow.ExecutionStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	status, ok := r.executions[id]
	if !ok {
		return nil, fmt.Errorf("execution %q not found", id)
	}
	copied := *status
	return &copied, nil
}

// ListExecutions returns tracked executions, newest first.
func (r *PipelineRunner) ListExecutions(_ context.Context, limit int) ([]workflow.ExecutionStatus, error) {
	if limit <= 0 {
		limit = 10
	}
	r.mu.RLock()
	statuses := make([]workflow.ExecutionStatus, 0, len(r.executions))
	for _, status := range r.executions {
		statuses = append(statuses, *status)
	}
	r.mu.RUnlock()

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].StartedAt.After(statuses[j].StartedAt)
	})
	if len(statuses) > limit {
		statuses = statuses[:limit]
	}
	return statuses, nil
}

// run executes the fan-out and reduce stages for one execution.
func (r *PipelineRunner) run(ctx context.Context, name string, symbols []string) {
	log := r.logger.WithField("execution", name)
	log.WithField("symbols", len(symbols)).Info("Running extraction pipeline")

	concurrency := r.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}

	var mu sync.Mutex
	var failures []string

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)
	for _, symbol := range symbols {
		group.Go(func() error {
			result, err := r.collector.Collect(groupCtx, symbol, "")
			if err != nil {
				log.WithError(err).WithField("symbol", symbol).Error("Symbol collection failed")
				mu.Lock()
				failures = append(failures, symbol)
				mu.Unlock()
				// Per-symbol failures never cancel sibling collections.
				return nil
			}
			// Drain a resumable cursor before aggregating so partial
			// scans do not leave holes.
			for result.Status == models.StatusPartial && result.NextCursor != "" {
				result, err = r.collector.Collect(groupCtx, symbol, result.NextCursor)
				if err != nil {
					log.WithError(err).WithField("symbol", symbol).Error("Symbol resume failed")
					mu.Lock()
					failures = append(failures, symbol)
					mu.Unlock()
					return nil
				}
			}
			return nil
		})
	}
	_ = group.Wait()

	r.logResourceUsage(ctx, log)

	result, err := r.aggregator.Aggregate(ctx, name)
	if err != nil {
		log.WithError(err).Error("Aggregation failed")
		r.finish(name, workflow.StatusFailed, "", err.Error())
		r.notify(ctx, name, 0, len(failures), err)
		return
	}

	output, marshalErr := json.Marshal(struct {
		models.AggregateResult
		SymbolsProcessed int `json:"symbols_processed"`
		SymbolsFailed    int `json:"symbols_failed"`
	}{result, len(symbols) - len(failures), len(failures)})
	if marshalErr != nil {
		output = []byte("{}")
	}

	r.finish(name, workflow.StatusSucceeded, string(output), "")
	r.notify(ctx, name, result.TotalOrders, len(failures), nil)
	log.WithFields(logrus.Fields{
		"orders":         result.TotalOrders,
		"symbols_failed": len(failures),
	}).Info("Extraction pipeline completed")
}

func (r *PipelineRunner) finish(name, status, output, errMsg string) {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if execution, ok := r.executions[name]; ok {
		execution.Status = status
		execution.StoppedAt = &now
		execution.Output = output
		execution.Error = errMsg
	}
}

func (r *PipelineRunner) notify(ctx context.Context, name string, orders, failed int, runErr error) {
	if r.notifier == nil {
		return
	}
	r.notifier.NotifyCompletion(ctx, name, orders, failed, runErr)
}

// logResourceUsage snapshots process and host memory around the
// aggregation barrier, the memory-heaviest step of the pipeline.
func (r *PipelineRunner) logResourceUsage(ctx context.Context, log *logrus.Entry) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	fields := logrus.Fields{
		"heap_alloc_mb": memStats.HeapAlloc / 1024 / 1024,
		"goroutines":    runtime.NumGoroutine(),
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		fields["host_mem_used_percent"] = fmt.Sprintf("%.1f", vm.UsedPercent)
	}
	log.WithFields(fields).Debug("Resource usage before aggregation")
}

var _ workflow.Engine = (*PipelineRunner)(nil)
