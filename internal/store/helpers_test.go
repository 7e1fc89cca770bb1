package store

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// memBackend is an in-memory backend that records every write.
type memBackend struct {
	mu         sync.Mutex
	raw        any
	loadErr    error
	prepareErr error
	saveErr    error
	saves      [][]byte
}

func (m *memBackend) Load() (any, string, error) {
	if m.loadErr != nil {
		return nil, "mem", m.loadErr
	}
	if m.raw == nil {
		return nil, "", nil
	}
	return m.raw, "mem", nil
}

func (m *memBackend) Prepare() error { return m.prepareErr }

func (m *memBackend) Save(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves = append(m.saves, append([]byte(nil), data...))
	return nil
}

func (m *memBackend) Location() string { return "mem" }
func (m *memBackend) Close() error     { return nil }

func (m *memBackend) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saves)
}

func (m *memBackend) last() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saves) == 0 {
		return nil
	}
	return m.saves[len(m.saves)-1]
}

// fakeClock hands out timers that only fire when the test says so.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	delay   time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// fire runs every timer that has not been stopped.
func (c *fakeClock) fire() {
	c.mu.Lock()
	timers := append([]*fakeTimer(nil), c.timers...)
	c.mu.Unlock()
	for _, t := range timers {
		if !t.stopped {
			t.stopped = true
			t.f()
		}
	}
}

// newTestStore returns a loaded store over a memBackend with a fake clock.
func newTestStore(t *testing.T, raw any, deferSaves bool) (*Store, *memBackend, *fakeClock) {
	t.Helper()
	mb := &memBackend{raw: raw}
	s := New(mb, Options{Version: "1.1.14", DeferSaves: deferSaves}, testLogger())
	clock := &fakeClock{}
	s.scheduler.afterFunc = clock.AfterFunc
	return s, mb, clock
}
