// Package testutil holds in-memory fakes shared by hub tests.
package testutil

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/TournIQueT-gl/Gaminghub-sub001/internal/core"
	"github.com/TournIQueT-gl/Gaminghub-sub001/pkg/protocol"
)

// FakeSignal is a SignalConnection that records every frame it accepts.
// Capacity <= 0 means unbounded.
type FakeSignal struct {
	mu       sync.Mutex
	frames   []core.Frame
	capacity int
	closed   bool
	notify   chan struct{}
}

func NewFakeSignal(capacity int) *FakeSignal {
	return &FakeSignal{capacity: capacity, notify: make(chan struct{}, 1)}
}

func (f *FakeSignal) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return core.ErrConnClosed
	}
	if f.capacity > 0 && len(f.frames) >= f.capacity {
		return core.ErrBackpressure
	}
	f.frames = append(f.frames, fr)
	select {
	case f.notify <- struct{}{}:
	default:
	}
	return nil
}

func (f *FakeSignal) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *FakeSignal) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Envelopes decodes everything sent so far.
func (f *FakeSignal) Envelopes(t testing.TB) []protocol.Envelope {
	t.Helper()
	f.mu.Lock()
	frames := append([]core.Frame(nil), f.frames...)
	f.mu.Unlock()
	out := make([]protocol.Envelope, 0, len(frames))
	for _, fr := range frames {
		env, err := protocol.Decode(fr)
		if err != nil {
			t.Fatalf("decode sent frame %s: %v", fr, err)
		}
		out = append(out, env)
	}
	return out
}

// OfType returns the sent envelopes with type typ.
func (f *FakeSignal) OfType(t testing.TB, typ protocol.Type) []protocol.Envelope {
	t.Helper()
	var out []protocol.Envelope
	for _, env := range f.Envelopes(t) {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

// Last returns the most recent envelope, failing if nothing was sent.
func (f *FakeSignal) Last(t testing.TB) protocol.Envelope {
	t.Helper()
	envs := f.Envelopes(t)
	if len(envs) == 0 {
		t.Fatal("no frames sent")
	}
	return envs[len(envs)-1]
}

// Reset drops recorded frames.
func (f *FakeSignal) Reset() {
	f.mu.Lock()
	f.frames = nil
	f.mu.Unlock()
}

// WaitFor polls until an envelope of type typ was sent or the timeout hits.
func (f *FakeSignal) WaitFor(t testing.TB, typ protocol.Type, timeout time.Duration) protocol.Envelope {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if envs := f.OfType(t, typ); len(envs) > 0 {
			return envs[len(envs)-1]
		}
		select {
		case <-f.notify:
		case <-time.After(5 * time.Millisecond):
		case <-deadline:
			t.Fatalf("no %s envelope within %s", typ, timeout)
			return protocol.Envelope{}
		}
	}
}

// Data decodes env's payload into T.
func Data[T any](t testing.TB, env protocol.Envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decode %s payload: %v", env.Type, err)
	}
	return v
}
