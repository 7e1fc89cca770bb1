// Package store persists per-device settings across restarts. It resolves a
// live device to its stored record even when identifiers are partial,
// migrates documents written by other versions, and coalesces writes.
package store

import (
	"log/slog"
	"sync"
	"time"
)

// Options configures a Store.
type Options struct {
	// Version tags saved documents. Loading a document with another version
	// discards derived fields.
	Version string

	// DeferSaves coalesces mutation-triggered saves over SaveDelay. When false
	// every save request writes immediately.
	DeferSaves bool

	// SaveDelay defaults to DefaultSaveDelay.
	SaveDelay time.Duration

	// Events receives store events. A private bus is used when nil.
	Events *EventBus
}

// Store owns the document and serializes access to it. One Store is meant
// to live for the whole process.
type Store struct {
	mu      sync.Mutex
	doc     *Document // nil until loaded
	backend Backend
	version string

	scheduler *Scheduler
	events    *EventBus
	logger    *slog.Logger
}

// New creates a Store over backend. Nothing is read until the first use.
func New(backend Backend, opts Options, logger *slog.Logger) *Store {
	if opts.SaveDelay <= 0 {
		opts.SaveDelay = DefaultSaveDelay
	}
	if opts.Events == nil {
		opts.Events = NewEventBus(logger)
	}
	s := &Store{
		backend: backend,
		version: opts.Version,
		events:  opts.Events,
		logger:  logger.With("component", "store"),
	}
	s.scheduler = &Scheduler{
		backend:    backend,
		encode:     s.encode,
		empty:      s.empty,
		events:     opts.Events,
		logger:     logger.With("component", "scheduler"),
		deferSaves: opts.DeferSaves,
		delay:      opts.SaveDelay,
		afterFunc:  realAfterFunc,
	}
	return s
}

// Events returns the bus the store publishes on.
func (s *Store) Events() *EventBus { return s.events }

// Version returns the version saved documents are tagged with.
func (s *Store) Version() string { return s.version }

// Load reads the document from the backend if it has not been loaded yet.
func (s *Store) Load() {
	s.mu.Lock()
	loaded := s.ensureLoadedLocked()
	n := len(s.doc.Records)
	s.mu.Unlock()
	if loaded {
		s.emitLoaded(n)
	}
}

// ensureLoadedLocked loads the document on first use and reports whether it did.
func (s *Store) ensureLoadedLocked() bool {
	if s.doc != nil {
		return false
	}
	raw, source, err := s.backend.Load()
	if err != nil {
		s.logger.Error("failed to load configuration", "path", source, "err", err)
		raw = nil
	}
	s.logger.Debug("loaded configuration", "path", source)
	doc := parse(raw, source, s.version, s.logger)
	for _, r := range doc.Records {
		r.owner = s
	}
	s.doc = doc
	return true
}

func (s *Store) emitLoaded(n int) {
	s.events.Emit(Event{
		Type: EventDocumentLoaded,
		Data: map[string]any{"version": s.version, "records": n},
	})
}

// Records returns the records in document order.
func (s *Store) Records() []*Record {
	s.mu.Lock()
	loaded := s.ensureLoadedLocked()
	records := append([]*Record(nil), s.doc.Records...)
	s.mu.Unlock()
	if loaded {
		s.emitLoaded(len(records))
	}
	return records
}

// Persister returns the record for the device, creating one for devices that
// are online. It returns nil for an offline device that has never been
// recorded, since a later appearance of the same unit through another
// connection could not be told apart from a new device.
func (s *Store) Persister(id Identity) *Record {
	s.mu.Lock()
	loaded := s.ensureLoadedLocked()
	r, found := find(id, s.doc.Records)
	if !found && !id.Online {
		n := len(s.doc.Records)
		s.mu.Unlock()
		if loaded {
			s.emitLoaded(n)
		}
		s.logger.Info("not setting up persister for offline device", "name", id.Name)
		return nil
	}
	if !found {
		s.logger.Info("setting up persister for device", "name", id.Name)
		r = newRecord(s)
		r.sensitive = defaultSensitivity()
		s.doc.Records = append(s.doc.Records, r)
	}
	modelID, unitID := id.discriminators()
	changed := r.updateIdentityLocked(id.Name, id.WPID, id.Serial, modelID, unitID)
	n := len(s.doc.Records)
	s.mu.Unlock()

	if loaded {
		s.emitLoaded(n)
	}
	if !found {
		s.events.Emit(Event{
			Type: EventRecordAdded,
			Data: map[string]any{
				"name":     id.Name,
				"wpid":     id.WPID,
				"serial":   id.Serial,
				"model_id": modelID,
				"unit_id":  unitID,
			},
		})
	}
	if changed {
		s.scheduler.RequestSave(false)
	}
	return r
}

// Save writes the document immediately.
func (s *Store) Save() {
	s.scheduler.RequestSave(true)
}

// Close writes any pending deferred save and closes the backend.
func (s *Store) Close() error {
	if s.scheduler.Pending() {
		s.scheduler.Flush()
	}
	return s.backend.Close()
}

func (s *Store) empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc == nil
}

func (s *Store) encode() ([]byte, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil, 0, nil
	}
	data, err := encodeDocument(s.doc)
	if err != nil {
		return nil, 0, err
	}
	return data, len(s.doc.Records), nil
}
