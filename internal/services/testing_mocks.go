package services

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openpnl/bitget-orders-go/internal/storage"
	"github.com/openpnl/bitget-orders-go/pkg/bitget"
)

// newTestLogger returns a silent logger for tests.
func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// mockExchange is a programmable ExchangeClient for testing paging
// sequences within the services package.
type mockExchange struct {
	mu sync.Mutex

	listSymbolsFn      func(ctx context.Context, productType string) ([]bitget.SymbolInfo, error)
	getHistoryOrdersFn func(ctx context.Context, req bitget.HistoryOrdersRequest) (*bitget.HistoryOrdersPage, error)

	historyCalls []bitget.HistoryOrdersRequest
}

func (m *mockExchange) ListSymbols(ctx context.Context, productType string) ([]bitget.SymbolInfo, error) {
	if m.listSymbolsFn == nil {
		return nil, fmt.Errorf("ListSymbols not configured")
	}
	return m.listSymbolsFn(ctx, productType)
}

func (m *mockExchange) GetHistoryOrders(ctx context.Context, req bitget.HistoryOrdersRequest) (*bitget.HistoryOrdersPage, error) {
	m.mu.Lock()
	m.historyCalls = append(m.historyCalls, req)
	m.mu.Unlock()
	if m.getHistoryOrdersFn == nil {
		return nil, fmt.Errorf("GetHistoryOrders not configured")
	}
	return m.getHistoryOrdersFn(ctx, req)
}

func (m *mockExchange) historyCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.historyCalls)
}

var _ bitget.ExchangeClient = (*mockExchange)(nil)

// memStore is an in-memory ObjectStore for testing the blob-bus stages
// without external dependencies.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	mtimes  map[string]time.Time

	failPut  bool
	failList bool
	failGet  map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		objects: make(map[string][]byte),
		mtimes:  make(map[string]time.Time),
		failGet: make(map[string]bool),
	}
}

func (s *memStore) Put(_ context.Context, key string, body []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut {
		return fmt.Errorf("put %s: simulated storage failure", key)
	}
	copied := make([]byte, len(body))
	copy(copied, body)
	s.objects[key] = copied
	s.mtimes[key] = time.Now()
	return nil
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet[key] {
		return nil, fmt.Errorf("get %s: simulated storage failure", key)
	}
	body, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return body, nil
}

func (s *memStore) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList {
		return nil, fmt.Errorf("list %s: simulated storage failure", prefix)
	}
	var infos []storage.ObjectInfo
	for key, body := range s.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, storage.ObjectInfo{Key: key, Size: int64(len(body)), LastModified: s.mtimes[key]})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (s *memStore) Delete(_ context.Context, keys []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for _, key := range keys {
		if _, ok := s.objects[key]; ok {
			delete(s.objects, key)
			delete(s.mtimes, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *memStore) Presign(_ context.Context, key string, _ time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return "", storage.ErrNotFound
	}
	return "https://example.test/" + key, nil
}

func (s *memStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key := range s.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

var _ storage.ObjectStore = (*memStore)(nil)
