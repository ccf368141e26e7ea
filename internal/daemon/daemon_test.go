package daemon

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// blockingServer blocks in ListenAndServe until Shutdown is called.
type blockingServer struct {
	shutdownCh chan struct{}
	shutdowns  atomic.Int32
}

func newBlockingServer() *blockingServer {
	return &blockingServer{shutdownCh: make(chan struct{})}
}

func (s *blockingServer) ListenAndServe() error {
	<-s.shutdownCh
	return http.ErrServerClosed
}

func (s *blockingServer) Shutdown(ctx context.Context) error {
	s.shutdowns.Add(1)
	select {
	case <-s.shutdownCh:
	default:
		close(s.shutdownCh)
	}
	return nil
}

func TestStartReturnsNilOnCleanShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	srv := newBlockingServer()
	m := NewManager(srv, nil, 0, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after ctx cancellation")
	}
	assert.Equal(t, int32(1), srv.shutdowns.Load())
}

func TestStartStopsWorkersOnShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	srv := newBlockingServer()
	var stopped atomic.Bool
	worker := Worker{
		Name: "status-loop",
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			stopped.Store(true)
			return ctx.Err()
		},
	}
	m := NewManager(srv, []Worker{worker}, 0, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return")
	}
	assert.True(t, stopped.Load())
}

func TestStartReturnsWorkerErrorAndShutsDownServer(t *testing.T) {
	srv := newBlockingServer()
	worker := Worker{
		Name: "broken",
		Run: func(ctx context.Context) error {
			return assert.AnError
		},
	}
	m := NewManager(srv, []Worker{worker}, 0, zerolog.Nop())

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), srv.shutdowns.Load())
}

func TestShutdownHooksRunInLIFOOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	srv := newBlockingServer()
	m := NewManager(srv, nil, 0, zerolog.Nop())

	var order []string
	var mu sync.Mutex
	m.RegisterShutdownHook("first", func(ctx context.Context) error {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
		return nil
	})
	m.RegisterShutdownHook("second", func(ctx context.Context) error {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestStartTwiceReturnsError(t *testing.T) {
	srv := newBlockingServer()
	m := NewManager(srv, nil, 0, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Start(ctx) }()
	time.Sleep(20 * time.Millisecond)

	err := m.Start(context.Background())
	assert.Error(t, err)
}
