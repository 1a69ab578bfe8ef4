package storage_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/logging"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/storage"
)

type fakePruner struct {
	mu         sync.Mutex
	calls      int
	lastCutoff time.Time
	err        error
}

func (p *fakePruner) Prune(ctx context.Context, before time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.lastCutoff = before
	return 3, p.err
}

func (p *fakePruner) snapshot() (int, time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls, p.lastCutoff
}

func TestRetentionPrunesImmediatelyWithMaxAgeCutoff(t *testing.T) {
	p := &fakePruner{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	maxAge := 30 * 24 * time.Hour
	storage.NewRetention(p, maxAge, time.Hour, logging.NewNop()).Start(ctx)

	require.Eventually(t, func() bool {
		calls, _ := p.snapshot()
		return calls >= 1
	}, 2*time.Second, 5*time.Millisecond)

	_, cutoff := p.snapshot()
	assert.WithinDuration(t, time.Now().Add(-maxAge), cutoff, time.Minute)
}

func TestRetentionKeepsTicking(t *testing.T) {
	p := &fakePruner{err: errors.New("db down")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Prune failures must not stop the loop.
	storage.NewRetention(p, time.Hour, 15*time.Millisecond, logging.NewNop()).Start(ctx)

	require.Eventually(t, func() bool {
		calls, _ := p.snapshot()
		return calls >= 3
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRetentionDisabledWithoutMaxAge(t *testing.T) {
	p := &fakePruner{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storage.NewRetention(p, 0, 10*time.Millisecond, logging.NewNop()).Start(ctx)

	time.Sleep(60 * time.Millisecond)
	calls, _ := p.snapshot()
	assert.Equal(t, 0, calls)
}

func TestRetentionStopsOnCancel(t *testing.T) {
	p := &fakePruner{}
	ctx, cancel := context.WithCancel(context.Background())

	storage.NewRetention(p, time.Hour, 10*time.Millisecond, logging.NewNop()).Start(ctx)
	require.Eventually(t, func() bool {
		calls, _ := p.snapshot()
		return calls >= 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	time.Sleep(30 * time.Millisecond)
	calls, _ := p.snapshot()
	time.Sleep(50 * time.Millisecond)
	after, _ := p.snapshot()
	assert.Equal(t, calls, after)
}
