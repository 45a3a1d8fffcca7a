package sync

import (
	"context"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxgraph/inboxgraph/internal/auth"
	"github.com/inboxgraph/inboxgraph/internal/model"
	"github.com/inboxgraph/inboxgraph/internal/scanner"
	"github.com/inboxgraph/inboxgraph/internal/store"
)

type fakeBackend struct {
	mu    gosync.Mutex
	calls int
}

func (f *fakeBackend) Kind() scanner.Kind { return scanner.KindIMAP }

func (f *fakeBackend) ScanBatch(
	context.Context,
	*auth.MailClient,
	scanner.BatchRequest,
) (*scanner.BatchResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return &scanner.BatchResult{
		Senders:   []string{"alice@example.com"},
		Processed: 1,
		HasMore:   false,
	}, nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memorySnapshots struct {
	mu     gosync.Mutex
	merges []model.ContactSnapshot
}

func (m *memorySnapshots) MergeContactSnapshot(_ context.Context, snap model.ContactSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merges = append(m.merges, snap)
	return nil
}

func (m *memorySnapshots) mergeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.merges)
}

func TestPollerScansRegisteredAccounts(t *testing.T) {
	engine := scanner.NewEngine(scanner.NewJobs(), store.NopProgressStore{}, nil)
	snapshots := &memorySnapshots{}
	backend := &fakeBackend{}

	p := New(engine, snapshots, nil)
	p.RegisterAccount(
		auth.NewStaticMailClient("user@example.com", "tok"),
		backend,
		scanner.Config{BatchSize: 10},
		time.Hour,
	)

	p.Start()
	defer p.Stop()

	// The initial scan fires immediately, without waiting for the ticker.
	require.Eventually(t, func() bool {
		return snapshots.mergeCount() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	snapshots.mu.Lock()
	merged := snapshots.merges[0]
	snapshots.mu.Unlock()
	assert.Equal(t, "user@example.com", merged.AccountEmail)
	assert.Equal(t, []string{"alice@example.com"}, merged.Senders)

	statuses := p.Statuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, "user@example.com", statuses[0].AccountEmail)
}

func TestPollerManualRefresh(t *testing.T) {
	engine := scanner.NewEngine(scanner.NewJobs(), store.NopProgressStore{}, nil)
	snapshots := &memorySnapshots{}
	backend := &fakeBackend{}

	p := New(engine, snapshots, nil)
	p.RegisterAccount(
		auth.NewStaticMailClient("user@example.com", "tok"),
		backend,
		scanner.Config{BatchSize: 10},
		time.Hour,
	)

	p.Start()
	defer p.Stop()

	require.Eventually(t, func() bool {
		return backend.callCount() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	p.RefreshAccount("user@example.com")
	require.Eventually(t, func() bool {
		return backend.callCount() >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPollerStartTwice(t *testing.T) {
	engine := scanner.NewEngine(scanner.NewJobs(), store.NopProgressStore{}, nil)
	p := New(engine, &memorySnapshots{}, nil)

	p.Start()
	p.Start()
	p.Stop()
	p.Stop()
}
