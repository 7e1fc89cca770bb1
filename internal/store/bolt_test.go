package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestBolt(t *testing.T) *BoltBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "test.db")
	b, err := NewBoltBackend(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBoltLoadEmpty(t *testing.T) {
	b := newTestBolt(t)

	raw, source, err := b.Load()
	if err != nil {
		t.Fatal(err)
	}
	if raw != nil || source != "" {
		t.Errorf("load = %v, %q; want nothing", raw, source)
	}
}

func TestBoltSaveAndLoad(t *testing.T) {
	b := newTestBolt(t)

	if _, err := b.SavedAt(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SavedAt before save: err = %v, want ErrNotFound", err)
	}

	before := time.Now().Add(-time.Second)
	if err := b.Save([]byte("- 1.1.14\n- {_NAME: Mouse}\n")); err != nil {
		t.Fatal(err)
	}

	raw, source, err := b.Load()
	if err != nil {
		t.Fatal(err)
	}
	if source != b.Location() {
		t.Errorf("source = %q, want %q", source, b.Location())
	}
	items, ok := raw.([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("raw = %#v", raw)
	}
	if items[0] != "1.1.14" {
		t.Errorf("version = %v", items[0])
	}

	at, err := b.SavedAt()
	if err != nil {
		t.Fatal(err)
	}
	if at.Before(before) {
		t.Errorf("saved_at = %v, want after %v", at, before)
	}
}

func TestBoltLoadGarbage(t *testing.T) {
	b := newTestBolt(t)
	if err := b.Save([]byte("- [unterminated")); err != nil {
		t.Fatal(err)
	}
	if _, _, err := b.Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestStoreOverBolt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")
	b, err := NewBoltBackend(path)
	if err != nil {
		t.Fatal(err)
	}
	s := New(b, Options{Version: "1.1.14", DeferSaves: true}, testLogger())
	r := s.Persister(Identity{Name: "Mouse", WPID: "4082", Serial: "1", Online: true})
	if err := r.Set("dpi", 1600); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	b2, err := NewBoltBackend(path)
	if err != nil {
		t.Fatal(err)
	}
	s2 := New(b2, Options{Version: "1.1.14"}, testLogger())
	t.Cleanup(func() { s2.Close() })
	records := s2.Records()
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if v, _ := records[0].Get("dpi"); v != 1600 {
		t.Errorf("dpi = %v, want 1600", v)
	}
	if records[0].Serial() != "1" {
		t.Errorf("serial = %q", records[0].Serial())
	}
}
