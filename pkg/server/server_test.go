package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittohttp/pkg/audit"
	"github.com/marmos91/dittohttp/pkg/store/fs"
)

// fakeAdapter blocks in Serve until its context is cancelled or Stop is
// called, or fails immediately when serveErr is set.
type fakeAdapter struct {
	protocol string
	port     int
	serveErr error

	mu       sync.Mutex
	store    *fs.Store
	sink     audit.Sink
	stopped  chan struct{}
	stopOnce sync.Once
	stops    atomic.Int32
}

func newFakeAdapter(protocol string, port int) *fakeAdapter {
	return &fakeAdapter{protocol: protocol, port: port, stopped: make(chan struct{})}
}

func (f *fakeAdapter) Serve(ctx context.Context) error {
	if f.serveErr != nil {
		return f.serveErr
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.stopped:
		return nil
	}
}

func (f *fakeAdapter) SetStores(store *fs.Store, sink audit.Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store = store
	f.sink = sink
}

func (f *fakeAdapter) Stop(ctx context.Context) error {
	f.stops.Add(1)
	f.stopOnce.Do(func() { close(f.stopped) })
	return nil
}

func (f *fakeAdapter) Protocol() string { return f.protocol }
func (f *fakeAdapter) Port() int        { return f.port }

type closeCountingSink struct {
	audit.Discard
	closes atomic.Int32
}

func (c *closeCountingSink) Close() error {
	c.closes.Add(1)
	return nil
}

func newStore(t *testing.T) *fs.Store {
	t.Helper()
	store, err := fs.New(fs.Config{Root: t.TempDir()})
	require.NoError(t, err)
	return store
}

func TestNewPanicsWithoutStore(t *testing.T) {
	assert.Panics(t, func() { New(nil, nil) })
}

func TestAddAdapter(t *testing.T) {
	t.Run("InjectsStores", func(t *testing.T) {
		store := newStore(t)
		sink := &closeCountingSink{}
		srv := New(store, sink)

		a := newFakeAdapter("HTTP", 8080)
		require.NoError(t, srv.AddAdapter(a))

		assert.Same(t, store, a.store)
		assert.Same(t, sink, a.sink)
		assert.Len(t, srv.Adapters(), 1)
	})

	t.Run("RejectsDuplicateProtocol", func(t *testing.T) {
		srv := New(newStore(t), nil)
		require.NoError(t, srv.AddAdapter(newFakeAdapter("HTTP", 8080)))

		err := srv.AddAdapter(newFakeAdapter("HTTP", 8081))
		assert.ErrorContains(t, err, "already registered")
	})

	t.Run("RejectsPortConflict", func(t *testing.T) {
		srv := New(newStore(t), nil)
		require.NoError(t, srv.AddAdapter(newFakeAdapter("HTTP", 8080)))

		err := srv.AddAdapter(newFakeAdapter("OTHER", 8080))
		assert.ErrorContains(t, err, "already in use")
	})

	t.Run("EphemeralPortsNeverConflict", func(t *testing.T) {
		srv := New(newStore(t), nil)
		require.NoError(t, srv.AddAdapter(newFakeAdapter("HTTP", 0)))
		assert.NoError(t, srv.AddAdapter(newFakeAdapter("OTHER", 0)))
	})

	t.Run("NilPanics", func(t *testing.T) {
		srv := New(newStore(t), nil)
		assert.Panics(t, func() { _ = srv.AddAdapter(nil) })
	})
}

func TestServeWithoutAdapters(t *testing.T) {
	srv := New(newStore(t), nil)

	err := srv.Serve(context.Background())
	assert.ErrorContains(t, err, "no adapters registered")
}

func TestServeStopsOnCancel(t *testing.T) {
	sink := &closeCountingSink{}
	srv := New(newStore(t), sink)
	a := newFakeAdapter("HTTP", 0)
	require.NoError(t, srv.AddAdapter(a))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	assert.Equal(t, int32(1), a.stops.Load())
	assert.Equal(t, int32(1), sink.closes.Load())

	assert.ErrorIs(t, srv.Serve(context.Background()), ErrAlreadyServed)
	assert.Panics(t, func() { _ = srv.AddAdapter(newFakeAdapter("LATE", 0)) })
}

func TestServeStopsOthersWhenAdapterFails(t *testing.T) {
	sink := &closeCountingSink{}
	srv := New(newStore(t), sink)

	healthy := newFakeAdapter("HTTP", 0)
	failing := newFakeAdapter("BROKEN", 0)
	failing.serveErr = errors.New("bind failed")

	require.NoError(t, srv.AddAdapter(healthy))
	require.NoError(t, srv.AddAdapter(failing))

	err := srv.Serve(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "BROKEN adapter error")
	assert.ErrorContains(t, err, "bind failed")

	assert.Equal(t, int32(1), healthy.stops.Load())
	assert.Equal(t, int32(1), sink.closes.Load())
}

func TestSetStopTimeout(t *testing.T) {
	srv := New(newStore(t), nil)
	assert.Equal(t, DefaultStopTimeout, srv.stopTimeout)

	srv.SetStopTimeout(time.Second)
	assert.Equal(t, time.Second, srv.stopTimeout)

	srv.SetStopTimeout(0)
	assert.Equal(t, time.Second, srv.stopTimeout)
}
