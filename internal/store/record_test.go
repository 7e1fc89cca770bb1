package store

import (
	"errors"
	"reflect"
	"testing"
)

func TestUpdateIdentitySavesOnlyOnChange(t *testing.T) {
	s, mb, _ := newTestStore(t, []any{"1.1.14", map[string]any{KeyWPID: "4082", KeySerial: "1234"}}, false)
	r := s.Records()[0]

	r.UpdateIdentity("Mouse", "4082", "1234", "", "")
	r.UpdateIdentity("Mouse", "4082", "1234", "", "")
	if got := mb.saveCount(); got != 1 {
		t.Fatalf("saves = %d, want 1", got)
	}

	// Empty values never overwrite stored ones.
	r.UpdateIdentity("", "", "", "", "")
	if got := mb.saveCount(); got != 1 {
		t.Errorf("saves after empty update = %d, want 1", got)
	}
	if r.WPID() != "4082" {
		t.Errorf("wpid = %q, want 4082", r.WPID())
	}

	r.UpdateIdentity("Mouse 2", "", "", "", "")
	if got := mb.saveCount(); got != 2 {
		t.Errorf("saves after rename = %d, want 2", got)
	}
	if r.Name() != "Mouse 2" {
		t.Errorf("name = %q", r.Name())
	}
}

func TestSetRequestsSave(t *testing.T) {
	s, mb, _ := newTestStore(t, []any{"1.1.14", map[string]any{KeyName: "Mouse"}}, false)
	r := s.Records()[0]

	if err := r.Set("dpi", 1600); err != nil {
		t.Fatal(err)
	}
	if err := r.Set("dpi", 1600); err != nil {
		t.Fatal(err)
	}
	if got := mb.saveCount(); got != 2 {
		t.Errorf("saves = %d, want 2 (set always saves)", got)
	}
	if v, _ := r.Get("dpi"); v != 1600 {
		t.Errorf("dpi = %v", v)
	}
}

func TestSetReservedKeyType(t *testing.T) {
	s, mb, _ := newTestStore(t, []any{"1.1.14", map[string]any{KeyName: "Mouse"}}, false)
	r := s.Records()[0]

	err := r.Set(KeyWPID, 4082)
	if !errors.Is(err, ErrReservedType) {
		t.Fatalf("err = %v, want ErrReservedType", err)
	}
	if err := r.Set(KeySensitive, "yes"); !errors.Is(err, ErrReservedType) {
		t.Fatalf("err = %v, want ErrReservedType", err)
	}
	if got := mb.saveCount(); got != 0 {
		t.Errorf("saves = %d, want 0", got)
	}

	if err := r.Set(KeyWPID, "4082"); err != nil {
		t.Fatal(err)
	}
	if r.WPID() != "4082" {
		t.Errorf("wpid = %q", r.WPID())
	}
}

func TestSensitivity(t *testing.T) {
	s, mb, _ := newTestStore(t, []any{"1.1.14", map[string]any{KeyName: "Mouse"}}, false)
	r := s.Records()[0]

	if got := r.Sensitivity("unknown-setting"); got != NotSensitive {
		t.Errorf("unknown = %v, want false", got)
	}
	if got := r.Sensitivity("hires-scroll-mode"); got != IgnoreSensitivity {
		t.Errorf("hires-scroll-mode = %v, want ignore", got)
	}

	r.SetSensitivity("hires-scroll-mode", IgnoreSensitivity)
	if got := mb.saveCount(); got != 0 {
		t.Errorf("saves after unchanged policy = %d, want 0", got)
	}

	r.SetSensitivity("dpi", Sensitive)
	if got := mb.saveCount(); got != 1 {
		t.Errorf("saves = %d, want 1", got)
	}
	if got := r.Sensitivity("dpi"); got != Sensitive {
		t.Errorf("dpi = %v, want true", got)
	}
}

func TestSensitivityMissingMap(t *testing.T) {
	r := newRecord(nil)
	if got := r.Sensitivity("dpi"); got != NotSensitive {
		t.Errorf("got %v, want false", got)
	}
	r.SetSensitivity("dpi", NotSensitive)
	if v, ok := r.Get(KeySensitive); !ok || v.(map[string]Sensitivity)["dpi"] != NotSensitive {
		t.Errorf("_sensitive = %v, %v", v, ok)
	}
}

func TestRecordKeys(t *testing.T) {
	r := mustRecord(t, map[string]any{
		KeyName:   "Mouse",
		KeyWPID:   "4082",
		"dpi":     1000,
		KeyAbsent: true,
	})
	want := []string{KeyName, KeyAbsent, KeyWPID, "dpi"}
	if got := r.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("keys = %v, want %v", got, want)
	}
}

func TestParseSensitivity(t *testing.T) {
	tests := []struct {
		in      any
		want    Sensitivity
		wantErr bool
	}{
		{true, Sensitive, false},
		{false, NotSensitive, false},
		{"ignore", IgnoreSensitivity, false},
		{nil, NotSensitive, false},
		{"sometimes", NotSensitive, true},
		{3, NotSensitive, true},
	}
	for _, tt := range tests {
		got, err := ParseSensitivity(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSensitivity(%v) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSensitivity(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
