package store

import (
	"context"
	"sync"

	"github.com/inboxgraph/inboxgraph/internal/model"
)

// MemoryProgressStore is an in-memory checkpoint store used in tests and
// anywhere a durable checkpoint is unnecessary.
type MemoryProgressStore struct {
	mu       sync.RWMutex
	progress map[string]model.ScanProgress
}

// NewMemoryProgressStore creates an empty in-memory progress store.
func NewMemoryProgressStore() *MemoryProgressStore {
	return &MemoryProgressStore{progress: make(map[string]model.ScanProgress)}
}

func progressKey(accountEmail, scannerKind string) string {
	return accountEmail + ":" + scannerKind
}

// SaveProgress stores a copy of the checkpoint.
func (m *MemoryProgressStore) SaveProgress(_ context.Context, p model.ScanProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress[progressKey(p.AccountEmail, p.ScannerKind)] = p
	return nil
}

// LoadProgress returns a copy of the checkpoint, or nil when none exists.
func (m *MemoryProgressStore) LoadProgress(
	_ context.Context,
	accountEmail, scannerKind string,
) (*model.ScanProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.progress[progressKey(accountEmail, scannerKind)]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// NopProgressStore discards checkpoints; used when persistence is disabled.
type NopProgressStore struct{}

// SaveProgress discards the checkpoint.
func (NopProgressStore) SaveProgress(context.Context, model.ScanProgress) error {
	return nil
}

// LoadProgress always reports no checkpoint.
func (NopProgressStore) LoadProgress(context.Context, string, string) (*model.ScanProgress, error) {
	return nil, nil
}
