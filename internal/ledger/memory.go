package ledger

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/catalog-importer/internal/core/observability"
)

// Memory is a process-local ledger bounded to the most recent entries.
type Memory struct {
	mu  sync.Mutex
	lru *lru.Cache[string, string]
}

func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, string](size)
	return &Memory{lru: c}
}

func (m *Memory) Seen(_ context.Context, key string) (string, bool, error) {
	start := time.Now()
	m.mu.Lock()
	id, ok := m.lru.Get(key)
	m.mu.Unlock()
	observability.ObserveLedgerOp("seen", nil, time.Since(start).Seconds())
	return id, ok, nil
}

func (m *Memory) Mark(_ context.Context, key, id string) error {
	start := time.Now()
	m.mu.Lock()
	m.lru.Add(key, id)
	m.mu.Unlock()
	observability.ObserveLedgerOp("mark", nil, time.Since(start).Seconds())
	return nil
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}
