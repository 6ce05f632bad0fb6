package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(2 * time.Millisecond)
	}

	t.Fatal("condition not met within timeout")
}

func TestPollerFiresOnInterval(t *testing.T) {
	var calls atomic.Int32

	p := New(15*time.Millisecond, func(ctx context.Context) {
		calls.Add(1)
	}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.Start(ctx)
	defer p.Stop()

	waitFor(t, time.Second, func() bool { return calls.Load() >= 3 })
}

func TestPollerSkipsWhenDraining(t *testing.T) {
	var calls atomic.Int32

	draining := atomic.Bool{}
	draining.Store(true)

	p := New(10*time.Millisecond, func(ctx context.Context) {
		calls.Add(1)
	}, draining.Load, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.Start(ctx)
	time.Sleep(60 * time.Millisecond)
	p.Stop()

	assert.Equal(t, int32(0), calls.Load())
}

func TestPollerFiringsDoNotOverlap(t *testing.T) {
	var mu sync.Mutex

	inFlight := false
	overlapped := false

	p := New(5*time.Millisecond, func(ctx context.Context) {
		mu.Lock()
		if inFlight {
			overlapped = true
		}

		inFlight = true
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		inFlight = false
		mu.Unlock()
	}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.Start(ctx)
	time.Sleep(100 * time.Millisecond)
	p.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, overlapped)
}

func TestStopWaitsForInFlightFiring(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	p := New(5*time.Millisecond, func(ctx context.Context) {
		close(started)
		<-release
	}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.Start(ctx)

	<-started

	stopped := make(chan struct{})

	go func() {
		p.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned before in-flight firing completed")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop never returned after firing completed")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	var calls atomic.Int32

	p := New(10*time.Millisecond, func(ctx context.Context) {
		calls.Add(1)
	}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.Start(ctx)
	p.Start(ctx)
	defer p.Stop()

	waitFor(t, time.Second, func() bool { return calls.Load() >= 1 })

	require.True(t, true)
}
