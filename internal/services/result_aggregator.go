package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/openpnl/bitget-orders-go/internal/config"
	"github.com/openpnl/bitget-orders-go/internal/models"
	"github.com/openpnl/bitget-orders-go/internal/storage"
)

// ResultAggregator is the reduce barrier of the pipeline: it lists every
// per-symbol partial result on the bus, downloads them in parallel, merges
// them into one globally deduplicated, chronologically sorted dataset and
// persists the merged artifact. The merge is idempotent: re-running it
// re-lists and re-reduces.
type ResultAggregator struct {
	store         storage.ObjectStore
	cfg           config.AggregatorConfig
	partialPrefix string
	resultsPrefix string
	presignTTL    time.Duration
	logger        *logrus.Logger
	now           func() time.Time
}

// NewResultAggregator creates an aggregator reading partial results under
// storageCfg.PartialPrefix and writing merged artifacts under
// storageCfg.ResultsPrefix.
func NewResultAggregator(store storage.ObjectStore, cfg config.AggregatorConfig, storageCfg *config.StorageConfig, logger *logrus.Logger) *ResultAggregator {
	presignTTL := 7 * 24 * time.Hour
	if d, err := time.ParseDuration(storageCfg.PresignTTL); err == nil && d > 0 {
		presignTTL = d
	}
	return &ResultAggregator{
		store:         store,
		cfg:           cfg,
		partialPrefix: storageCfg.PartialPrefix,
		resultsPrefix: storageCfg.ResultsPrefix,
		presignTTL:    presignTTL,
		logger:        logger,
		now:           time.Now,
	}
}

type partialFile struct {
	key    string
	orders []models.Order
}

// Aggregate merges all partial results into the final artifact named after
// executionID. A bus write failure degrades to a truncated inline response
// instead of losing the computation.
func (a *ResultAggregator) Aggregate(ctx context.Context, executionID string) (models.AggregateResult, error) {
	result := models.AggregateResult{Status: models.StatusOK}

	objects, err := a.store.List(ctx, a.partialPrefix)
	if err != nil {
		result.Status = models.StatusFailed
		return result, fmt.Errorf("list partial results: %w", err)
	}

	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, ".json") {
			keys = append(keys, obj.Key)
		}
	}
	a.logger.WithField("files", len(keys)).Info("Collecting partial results")

	files, skipped := a.downloadAll(ctx, keys)
	result.FilesMerged = len(files)
	result.FilesSkipped = skipped

	var allOrders []models.Order
	for _, file := range files {
		symbol := symbolFromKey(file.key, a.partialPrefix)
		for _, order := range file.orders {
			if order.ProcessingSymbol == "" {
				order.ProcessingSymbol = symbol
			}
			allOrders = append(allOrders, order)
		}
	}

	deduped, duplicates := dedupOrders(allOrders)
	result.Duplicates = duplicates
	sortOrdersByCreateTime(deduped)
	result.TotalOrders = len(deduped)

	a.logger.WithFields(logrus.Fields{
		"orders":     len(deduped),
		"duplicates": duplicates,
		"skipped":    skipped,
	}).Info("Merged partial results")

	body, err := json.Marshal(models.OrderSet{Orders: deduped})
	if err != nil {
		result.Status = models.StatusFailed
		return result, fmt.Errorf("marshal merged result: %w", err)
	}

	key := fmt.Sprintf("%s%d_%s.json", a.resultsPrefix, a.now().Unix(), executionID)
	if err := a.store.Put(ctx, key, body, "application/json"); err != nil {
		// Degrade rather than fail: the caller still sees a truncated
		// view of the merge.
		a.logger.WithError(err).Error("Failed to persist merged result, returning inline orders")
		limit := a.cfg.InlineLimit
		if limit <= 0 {
			limit = 50
		}
		if len(deduped) > limit {
			deduped = deduped[:limit]
		}
		result.Status = models.StatusPartial
		result.InlineOrders = deduped
		result.Truncated = true
		return result, nil
	}
	result.StorageKey = key

	if url, err := a.store.Presign(ctx, key, a.presignTTL); err == nil {
		result.DownloadURL = url
	}

	if a.cfg.Cleanup {
		a.cleanup(ctx, keys)
	}

	return result, nil
}

// downloadAll fetches and parses the partial files with a bounded worker
// pool. A file that fails to download or parse is skipped, never fatal:
// the aggregator produces the best achievable merge from what exists.
func (a *ResultAggregator) downloadAll(ctx context.Context, keys []string) ([]partialFile, int) {
	workers := a.cfg.Workers
	if workers <= 0 {
		workers = 32
	}

	var mu sync.Mutex
	var files []partialFile
	skipped := 0

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for _, key := range keys {
		group.Go(func() error {
			body, err := a.store.Get(groupCtx, key)
			if err != nil {
				a.logger.WithError(err).WithField("key", key).Warn("Skipping unreadable partial result")
				mu.Lock()
				skipped++
				mu.Unlock()
				return nil
			}
			var set models.OrderSet
			if err := json.Unmarshal(body, &set); err != nil {
				a.logger.WithError(err).WithField("key", key).Warn("Skipping unparsable partial result")
				mu.Lock()
				skipped++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			files = append(files, partialFile{key: key, orders: set.Orders})
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors; the join point is all that matters.
	_ = group.Wait()

	// Deterministic merge order regardless of download completion order.
	sort.Slice(files, func(i, j int) bool { return files[i].key < files[j].key })
	return files, skipped
}

// cleanup deletes consumed partial results. The prefix guard is a safety
// net: only keys under the partial prefix may ever be deleted.
func (a *ResultAggregator) cleanup(ctx context.Context, keys []string) {
	safe := make([]string, 0, len(keys))
	for _, key := range keys {
		if strings.HasPrefix(key, a.partialPrefix) {
			safe = append(safe, key)
		}
	}
	if len(safe) == 0 {
		return
	}
	deleted, err := a.store.Delete(ctx, safe)
	if err != nil {
		a.logger.WithError(err).Warn("Failed to clean up partial results")
		return
	}
	a.logger.WithField("deleted", deleted).Info("Cleaned up partial results")
}

// dedupOrders removes duplicate orders across all symbols by order ID,
// first occurrence wins. Orders without an ID are never treated as
// duplicates of anything.
func dedupOrders(orders []models.Order) ([]models.Order, int) {
	if len(orders) == 0 {
		return []models.Order{}, 0
	}
	seen := make(map[string]struct{}, len(orders))
	unique := make([]models.Order, 0, len(orders))
	duplicates := 0
	for _, order := range orders {
		if order.OrderID == "" {
			unique = append(unique, order)
			continue
		}
		if _, ok := seen[order.OrderID]; ok {
			duplicates++
			continue
		}
		seen[order.OrderID] = struct{}{}
		unique = append(unique, order)
	}
	return unique, duplicates
}

// sortOrdersByCreateTime sorts newest-first. Unparsable timestamps decode
// to zero and therefore sort to the end.
func sortOrdersByCreateTime(orders []models.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreateTime > orders[j].CreateTime
	})
}

// symbolFromKey recovers the source symbol from a partial-result key of the
// form {prefix}{symbol}_{timestamp}.json.
func symbolFromKey(key, prefix string) string {
	name := strings.TrimPrefix(key, prefix)
	name = strings.TrimSuffix(name, ".json")
	if idx := strings.LastIndex(name, "_"); idx > 0 {
		return name[:idx]
	}
	return name
}
