package imapscan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxgraph/inboxgraph/internal/scanner"
)

func TestKind(t *testing.T) {
	s := New("imap.example.com", "993", nil, nil, nil)
	assert.Equal(t, scanner.KindIMAP, s.Kind())
}

func TestHoldWindowKeepsOffset(t *testing.T) {
	s := New("imap.example.com", "993", nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	offset := scanner.Offset{Seq: 501}
	res := s.holdWindow(ctx, offset)

	assert.True(t, res.HasMore)
	assert.Equal(t, offset, res.Next)
	assert.Zero(t, res.Processed)
}

func TestHoldWindowPausesBeforeRetry(t *testing.T) {
	s := New("imap.example.com", "993", nil, nil, nil)

	// A live context makes the hold wait out the retry delay; a cancelled
	// one returns promptly so shutdown is not blocked.
	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	res := s.holdWindow(ctx, scanner.Offset{Seq: 1})
	elapsed := time.Since(start)

	require.NotNil(t, res)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, windowRetryDelay)
}
