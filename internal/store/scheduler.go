package store

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultSaveDelay is how long deferred saves are coalesced before writing.
const DefaultSaveDelay = 5 * time.Second

type timer interface {
	Stop() bool
}

func realAfterFunc(d time.Duration, f func()) timer {
	return time.AfterFunc(d, f)
}

// Scheduler coalesces save requests. At most one deferred write is pending at
// a time; an immediate write cancels it.
type Scheduler struct {
	backend    Backend
	encode     func() ([]byte, int, error)
	empty      func() bool
	events     *EventBus
	logger     *slog.Logger
	deferSaves bool
	delay      time.Duration
	afterFunc  func(time.Duration, func()) timer

	mu    sync.Mutex
	timer timer
	gen   uint64
}

// RequestSave asks for the document to be written. Unless immediate is set
// or deferral is disabled, the write happens after the save delay and further
// requests until then are absorbed.
func (s *Scheduler) RequestSave(immediate bool) {
	if s.empty() {
		return
	}
	if err := s.backend.Prepare(); err != nil {
		s.logger.Error("failed to prepare configuration location", "path", s.backend.Location(), "err", err)
		return
	}
	if immediate || !s.deferSaves {
		s.Flush()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		return
	}
	s.gen++
	gen := s.gen
	s.timer = s.afterFunc(s.delay, func() { s.fire(gen) })
}

// Pending reports whether a deferred write is scheduled.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Flush writes the document now, cancelling any pending deferred write.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	n, ok := s.writeLocked()
	s.mu.Unlock()
	s.emitSaved(n, ok)
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.timer == nil || s.gen != gen {
		// Superseded by an immediate write.
		s.mu.Unlock()
		return
	}
	n, ok := s.writeLocked()
	s.mu.Unlock()
	s.emitSaved(n, ok)
}

func (s *Scheduler) writeLocked() (int, bool) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	data, n, err := s.encode()
	if err != nil {
		s.logger.Error("failed to encode configuration", "err", err)
		return 0, false
	}
	if data == nil {
		return 0, false
	}
	if err := s.backend.Save(data); err != nil {
		s.logger.Error("failed to save configuration", "path", s.backend.Location(), "err", err)
		return 0, false
	}
	s.logger.Info("saved configuration", "path", s.backend.Location(), "records", n)
	return n, true
}

func (s *Scheduler) emitSaved(n int, ok bool) {
	if !ok {
		return
	}
	s.events.Emit(Event{
		Type: EventDocumentSaved,
		Data: map[string]any{
			"path":    s.backend.Location(),
			"records": n,
		},
	})
}
