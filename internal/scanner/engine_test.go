package scanner_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxgraph/inboxgraph/internal/auth"
	"github.com/inboxgraph/inboxgraph/internal/model"
	"github.com/inboxgraph/inboxgraph/internal/scanner"
	"github.com/inboxgraph/inboxgraph/internal/store"
)

// fakeBackend replays a scripted sequence of batch results and records
// every offset it was asked to scan from.
type fakeBackend struct {
	kind    scanner.Kind
	batches []scanner.BatchResult
	err     error

	mu      sync.Mutex
	calls   int
	offsets []scanner.Offset
	onBatch func(call int)
}

func (f *fakeBackend) Kind() scanner.Kind {
	if f.kind == "" {
		return scanner.KindIMAP
	}
	return f.kind
}

func (f *fakeBackend) ScanBatch(
	_ context.Context,
	_ *auth.MailClient,
	req scanner.BatchRequest,
) (*scanner.BatchResult, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.offsets = append(f.offsets, req.Offset)
	f.mu.Unlock()

	if f.onBatch != nil {
		f.onBatch(call)
	}
	if f.err != nil {
		return nil, f.err
	}
	if call >= len(f.batches) {
		return &scanner.BatchResult{}, nil
	}
	b := f.batches[call]
	return &b, nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// progressRecorder keeps every checkpoint save in order so tests can
// assert on the sequence, not just the final state.
type progressRecorder struct {
	mu    sync.Mutex
	saves []model.ScanProgress
}

func (r *progressRecorder) SaveProgress(_ context.Context, p model.ScanProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves = append(r.saves, p)
	return nil
}

func (r *progressRecorder) LoadProgress(context.Context, string, string) (*model.ScanProgress, error) {
	return nil, nil
}

func testClient() *auth.MailClient {
	return auth.NewStaticMailClient("user@example.com", "test-token")
}

func TestScanExhaustsBackend(t *testing.T) {
	backend := &fakeBackend{
		batches: []scanner.BatchResult{
			{
				Senders:    []string{"alice@example.com", "bob@example.com"},
				Recipients: []string{"carol@example.com"},
				Processed:  5,
				HasMore:    true,
				Next:       scanner.Offset{Seq: 6},
			},
			{
				Senders:    []string{"alice@example.com"},
				Recipients: []string{"dave@example.com"},
				Processed:  3,
				HasMore:    false,
			},
		},
	}

	eng := scanner.NewEngine(scanner.NewJobs(), store.NewMemoryProgressStore(), nil)
	result, err := eng.ScanAsync(context.Background(), testClient(), "job-1", backend, scanner.Config{
		BatchSize:      5,
		UsePersistence: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, backend.callCount())
	assert.Equal(t, 8, result.Scanned)
	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, result.Senders)
	assert.Equal(t, []string{"carol@example.com", "dave@example.com"}, result.Recipients)
	assert.Equal(t, 4, result.Contacts)

	// Second batch started at the first batch's Next offset.
	assert.Equal(t, scanner.Offset{}, backend.offsets[0])
	assert.Equal(t, scanner.Offset{Seq: 6}, backend.offsets[1])
}

func TestScanStopsAtMaxMessages(t *testing.T) {
	// Backend always has more; only the cap ends the scan.
	backend := &fakeBackend{
		batches: []scanner.BatchResult{
			{Processed: 5, HasMore: true, Next: scanner.Offset{Seq: 6}},
			{Processed: 5, HasMore: true, Next: scanner.Offset{Seq: 11}},
			{Processed: 5, HasMore: true, Next: scanner.Offset{Seq: 16}},
		},
	}

	eng := scanner.NewEngine(scanner.NewJobs(), store.NewMemoryProgressStore(), nil)
	result, err := eng.ScanAsync(context.Background(), testClient(), "job-cap", backend, scanner.Config{
		BatchSize:      5,
		MaxMessages:    10,
		UsePersistence: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, backend.callCount())
	assert.Equal(t, 10, result.Scanned)
}

func TestScanCapLeavesCheckpointResumable(t *testing.T) {
	// A scan ended by the cap must not mark the checkpoint complete: the
	// backend still had data, and a later uncapped scan has to see it.
	backend := &fakeBackend{
		batches: []scanner.BatchResult{
			{Processed: 5, HasMore: true, Next: scanner.Offset{Seq: 6}},
			{Processed: 5, HasMore: true, Next: scanner.Offset{Seq: 11}},
			{Processed: 5, HasMore: true, Next: scanner.Offset{Seq: 16}},
			{Processed: 5, HasMore: true, Next: scanner.Offset{Seq: 21}},
		},
	}

	progress := store.NewMemoryProgressStore()
	eng := scanner.NewEngine(scanner.NewJobs(), progress, nil)

	result, err := eng.ScanAsync(context.Background(), testClient(), "job-capped", backend, scanner.Config{
		BatchSize:      5,
		MaxMessages:    10,
		UsePersistence: true,
	})
	require.NoError(t, err)
	require.Equal(t, 2, backend.callCount())
	assert.Equal(t, 10, result.Scanned)

	saved, err := progress.LoadProgress(context.Background(), "user@example.com", "imap")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.False(t, saved.IsComplete)
	assert.Equal(t, int64(11), saved.LastSeq)

	// An uncapped follow-up picks up where the capped scan stopped.
	_, err = eng.ScanAsync(context.Background(), testClient(), "job-uncapped", backend, scanner.Config{
		BatchSize:      5,
		UsePersistence: true,
	})
	require.NoError(t, err)
	require.Greater(t, backend.callCount(), 2)
	assert.Equal(t, scanner.Offset{Seq: 11}, backend.offsets[2])

	saved, err = progress.LoadProgress(context.Background(), "user@example.com", "imap")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.True(t, saved.IsComplete)
	assert.Equal(t, 20, saved.TotalMessages)
}

func TestScanCompletedCheckpointShortCircuits(t *testing.T) {
	progress := store.NewMemoryProgressStore()
	require.NoError(t, progress.SaveProgress(context.Background(), model.ScanProgress{
		AccountEmail:    "user@example.com",
		ScannerKind:     "imap",
		LastSeq:         42,
		TotalMessages:   42,
		ContactsFound:   7,
		ChunksCompleted: 3,
		IsComplete:      true,
	}))

	backend := &fakeBackend{}
	jobs := scanner.NewJobs()
	eng := scanner.NewEngine(jobs, progress, nil)

	result, err := eng.ScanAsync(context.Background(), testClient(), "job-done", backend, scanner.Config{
		BatchSize:      5,
		UsePersistence: true,
	})
	require.NoError(t, err)

	// No backend call at all; the stored summary is returned as-is.
	assert.Equal(t, 0, backend.callCount())
	assert.Equal(t, 42, result.Scanned)
	assert.Equal(t, 7, result.Contacts)
	assert.Equal(t, int64(42), result.LastScanned.Seq)

	job, ok := jobs.Get("job-done")
	require.True(t, ok)
	assert.Equal(t, 100, job.PercentComplete)
	assert.Equal(t, 42, job.ProcessedMessages)
}

func TestScanResumesFromCheckpoint(t *testing.T) {
	progress := store.NewMemoryProgressStore()
	require.NoError(t, progress.SaveProgress(context.Background(), model.ScanProgress{
		AccountEmail:    "user@example.com",
		ScannerKind:     "imap",
		LastSeq:         501,
		TotalMessages:   500,
		ChunksCompleted: 1,
		IsComplete:      false,
	}))

	backend := &fakeBackend{
		batches: []scanner.BatchResult{
			{Senders: []string{"eve@example.com"}, Processed: 20, HasMore: false},
		},
	}

	eng := scanner.NewEngine(scanner.NewJobs(), progress, nil)
	result, err := eng.ScanAsync(context.Background(), testClient(), "job-resume", backend, scanner.Config{
		BatchSize:      500,
		UsePersistence: true,
	})
	require.NoError(t, err)

	require.Equal(t, 1, backend.callCount())
	assert.Equal(t, scanner.Offset{Seq: 501}, backend.offsets[0])
	assert.Equal(t, 520, result.Scanned)

	final, err := progress.LoadProgress(context.Background(), "user@example.com", "imap")
	require.NoError(t, err)
	require.NotNil(t, final)
	assert.True(t, final.IsComplete)
	assert.Equal(t, 520, final.TotalMessages)
	assert.Equal(t, 2, final.ChunksCompleted)
}

func TestScanCancellationKeepsPartialResult(t *testing.T) {
	jobs := scanner.NewJobs()
	backend := &fakeBackend{
		batches: []scanner.BatchResult{
			{
				Senders:   []string{"alice@example.com"},
				Processed: 5,
				HasMore:   true,
				Next:      scanner.Offset{Seq: 6},
			},
			{Processed: 5, HasMore: true, Next: scanner.Offset{Seq: 11}},
		},
	}
	backend.onBatch = func(call int) {
		if call == 0 {
			state := model.JobStateCancelled
			jobs.Update("job-cancel", model.JobUpdate{State: &state})
		}
	}

	eng := scanner.NewEngine(jobs, store.NewMemoryProgressStore(), nil)
	result, err := eng.ScanAsync(context.Background(), testClient(), "job-cancel", backend, scanner.Config{
		BatchSize:      5,
		UsePersistence: true,
	})
	require.NoError(t, err)

	// One batch ran before the cancellation took effect; its output is kept.
	assert.Equal(t, 1, backend.callCount())
	assert.Equal(t, 5, result.Scanned)
	assert.Equal(t, []string{"alice@example.com"}, result.Senders)
	assert.Contains(t, result.Message, "cancelled")
}

func TestScanBatchFailureMarksJobFailed(t *testing.T) {
	jobs := scanner.NewJobs()
	backend := &fakeBackend{err: errors.New("connection reset")}

	eng := scanner.NewEngine(jobs, store.NewMemoryProgressStore(), nil)
	_, err := eng.ScanAsync(context.Background(), testClient(), "job-fail", backend, scanner.Config{
		BatchSize: 5,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	job, ok := jobs.Get("job-fail")
	require.True(t, ok)
	assert.Equal(t, model.JobStateFailed, job.State)
	assert.Contains(t, job.Error, "connection reset")
}

func TestScanMergesSenderAndRecipientSets(t *testing.T) {
	// The same address on both sides of the graph counts once.
	backend := &fakeBackend{
		batches: []scanner.BatchResult{
			{
				Senders:    []string{"both@example.com", "sender@example.com"},
				Recipients: []string{"both@example.com", "rcpt@example.com"},
				Processed:  4,
				HasMore:    false,
			},
		},
	}

	eng := scanner.NewEngine(scanner.NewJobs(), store.NopProgressStore{}, nil)
	result, err := eng.ScanAsync(context.Background(), testClient(), "job-merge", backend, scanner.Config{
		BatchSize: 10,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"both@example.com", "rcpt@example.com", "sender@example.com"}, result.Merged)
	assert.Equal(t, 3, result.Contacts)
}

func TestScanCheckpointsAdvanceMonotonically(t *testing.T) {
	recorder := &progressRecorder{}
	backend := &fakeBackend{
		batches: []scanner.BatchResult{
			{Processed: 5, HasMore: true, Next: scanner.Offset{Seq: 6}},
			{Processed: 5, HasMore: true, Next: scanner.Offset{Seq: 11}},
			{Processed: 2, HasMore: false},
		},
	}

	eng := scanner.NewEngine(scanner.NewJobs(), recorder, nil)
	_, err := eng.ScanAsync(context.Background(), testClient(), "job-mono", backend, scanner.Config{
		BatchSize:      5,
		UsePersistence: true,
	})
	require.NoError(t, err)

	require.Len(t, recorder.saves, 3)
	var prevSeq int64
	for i, save := range recorder.saves {
		assert.GreaterOrEqual(t, save.LastSeq, prevSeq, "checkpoint %d moved backwards", i)
		prevSeq = save.LastSeq
		assert.Equal(t, save.IsComplete, i == len(recorder.saves)-1)
	}
	assert.Equal(t, int64(12), recorder.saves[2].LastSeq)
	assert.Equal(t, 12, recorder.saves[2].TotalMessages)
}

func TestScanFailedWindowNotCountedAsChunk(t *testing.T) {
	// An empty batch holding its offset is a retry of a failed window; it
	// must not inflate the completed-chunk count or move the checkpoint.
	recorder := &progressRecorder{}
	backend := &fakeBackend{
		batches: []scanner.BatchResult{
			{Processed: 5, HasMore: true, Next: scanner.Offset{Seq: 6}},
			{Processed: 0, HasMore: true, Next: scanner.Offset{Seq: 6}},
			{Processed: 5, HasMore: true, Next: scanner.Offset{Seq: 11}},
			{Processed: 2, HasMore: false},
		},
	}

	eng := scanner.NewEngine(scanner.NewJobs(), recorder, nil)
	_, err := eng.ScanAsync(context.Background(), testClient(), "job-retry", backend, scanner.Config{
		BatchSize:      5,
		UsePersistence: true,
	})
	require.NoError(t, err)

	require.Len(t, recorder.saves, 4)
	assert.Equal(t, 1, recorder.saves[0].ChunksCompleted)
	assert.Equal(t, 1, recorder.saves[1].ChunksCompleted)
	assert.Equal(t, int64(6), recorder.saves[1].LastSeq)
	assert.False(t, recorder.saves[1].IsComplete)
	assert.Equal(t, 3, recorder.saves[3].ChunksCompleted)
}

func TestScanContextCancellationAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	backend := &fakeBackend{
		batches: []scanner.BatchResult{
			{Processed: 5, HasMore: true, Next: scanner.Offset{Seq: 6}},
		},
	}
	backend.onBatch = func(call int) {
		if call == 0 {
			cancel()
		}
	}

	eng := scanner.NewEngine(scanner.NewJobs(), store.NewMemoryProgressStore(), nil)
	_, err := eng.ScanAsync(ctx, testClient(), "job-ctx", backend, scanner.Config{
		BatchSize:      5,
		UsePersistence: true,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
