package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/tp25ctl/internal/device"
	"github.com/chaz8081/tp25ctl/internal/peripheral"
)

// fakeLink is an in-memory peripheral.Link. Frames pushed to inbound are
// received by the manager, frames it sends appear on sent.
type fakeLink struct {
	inbound   chan []byte
	sent      chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	// sendErr fails every write after the first okSends.
	sendErr error
	okSends int

	mu    sync.Mutex
	sends int
}

func newFakeLink() *fakeLink {
	return &fakeLink{
		inbound: make(chan []byte, 16),
		sent:    make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

func (l *fakeLink) Receive(ctx context.Context) ([]byte, error) {
	select {
	case b := <-l.inbound:
		return b, nil
	case <-l.closed:
		return nil, peripheral.ErrLinkClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *fakeLink) Send(_ context.Context, frame []byte) error {
	select {
	case <-l.closed:
		return peripheral.ErrLinkClosed
	default:
	}
	l.mu.Lock()
	l.sends++
	n := l.sends
	l.mu.Unlock()
	if l.sendErr != nil && n > l.okSends {
		return l.sendErr
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	l.sent <- cp
	return nil
}

func (l *fakeLink) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

func (l *fakeLink) isClosed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}

type connectResult struct {
	link peripheral.Link
	err  error
}

// fakeFinder hands out queued results in order and blocks when none are left.
type fakeFinder struct {
	results chan connectResult
}

func newFakeFinder() *fakeFinder {
	return &fakeFinder{results: make(chan connectResult, 16)}
}

func (f *fakeFinder) push(link peripheral.Link, err error) {
	f.results <- connectResult{link, err}
}

// finderFunc adapts a function to peripheral.Finder.
type finderFunc func(ctx context.Context) (peripheral.Link, error)

func (f finderFunc) Connect(ctx context.Context) (peripheral.Link, error) {
	return f(ctx)
}

func (f *fakeFinder) Connect(ctx context.Context) (peripheral.Link, error) {
	select {
	case r := <-f.results:
		return r.link, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func testOptions() Options {
	return Options{QueueSize: 8}
}

// startManager runs m in the background and returns a channel with Run's
// result. The manager is stopped when the test ends.
func startManager(t *testing.T, ctx context.Context, m *Manager) <-chan error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- m.Run(ctx) }()
	t.Cleanup(m.Stop)
	return errc
}

func nextState(t *testing.T, ch <-chan device.State) device.State {
	t.Helper()
	select {
	case s, ok := <-ch:
		if !ok {
			t.Fatal("state stream closed")
		}
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for state")
	}
	return device.State{}
}

// waitState reads states until one satisfies cond.
func waitState(t *testing.T, ch <-chan device.State, cond func(device.State) bool) device.State {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				t.Fatal("state stream closed")
			}
			if cond(s) {
				return s
			}
		case <-deadline:
			t.Fatal("timed out waiting for state")
		}
	}
}

func nextSent(t *testing.T, l *fakeLink) []byte {
	t.Helper()
	select {
	case b := <-l.sent:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sent frame")
	}
	return nil
}

func waitRun(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	return nil
}
