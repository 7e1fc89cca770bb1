package store

import "testing"

func mustRecord(t *testing.T, data map[string]any) *Record {
	t.Helper()
	return recordFromMap(data, testLogger())
}

func TestFindByWPIDAndSerial(t *testing.T) {
	a := mustRecord(t, map[string]any{KeyName: "A", KeyWPID: "4082", KeySerial: "11111111"})
	b := mustRecord(t, map[string]any{KeyName: "B", KeyWPID: "4082", KeySerial: "22222222"})
	id := Identity{Name: "B", WPID: "4082", Serial: "22222222"}

	for _, records := range [][]*Record{{a, b}, {b, a}} {
		got, ok := find(id, records)
		if !ok {
			t.Fatal("no match")
		}
		if got != b {
			t.Errorf("matched %q, want B", got.Name())
		}
	}
}

func TestFindByModelAndUnit(t *testing.T) {
	r := mustRecord(t, map[string]any{KeyModelID: "B36540450000", KeyUnitID: "AB12CD34"})
	got, ok := find(Identity{ModelID: "B36540450000", UnitID: "AB12CD34"}, []*Record{r})
	if !ok || got != r {
		t.Fatal("expected model/unit match")
	}
	if _, ok := find(Identity{ModelID: "B36540450000", UnitID: "FFFFFFFF"}, []*Record{r}); ok {
		t.Error("matched with a different unit ID")
	}
}

func TestFindRequiresBothFields(t *testing.T) {
	r := mustRecord(t, map[string]any{KeyWPID: "4082", KeyModelID: "B36540450000"})
	tests := []struct {
		name string
		id   Identity
	}{
		{"wpid without serial", Identity{WPID: "4082"}},
		{"model without unit", Identity{ModelID: "B36540450000"}},
		{"nothing", Identity{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := find(tt.id, []*Record{r}); ok {
				t.Error("unexpected match")
			}
		})
	}
}

func TestFindZeroModelFallsBackToName(t *testing.T) {
	literal := mustRecord(t, map[string]any{KeyModelID: "000000000000", KeyUnitID: "00000000"})
	byName := mustRecord(t, map[string]any{KeyModelID: "Keyboard K1", KeyUnitID: "5A0F11C3"})
	id := Identity{
		Name:    "Keyboard K1",
		Serial:  "5A0F11C3",
		ModelID: "000000000000",
		UnitID:  "00000000",
	}

	got, ok := find(id, []*Record{literal, byName})
	if !ok {
		t.Fatal("no match")
	}
	if got != byName {
		t.Error("matched the literal zero record instead of the name fallback")
	}
}

func TestFindFirstMatchWins(t *testing.T) {
	first := mustRecord(t, map[string]any{KeyName: "first", KeyWPID: "4082", KeySerial: "1"})
	second := mustRecord(t, map[string]any{KeyName: "second", KeyWPID: "4082", KeySerial: "1"})
	got, _ := find(Identity{WPID: "4082", Serial: "1"}, []*Record{first, second})
	if got != first {
		t.Errorf("matched %q, want first", got.Name())
	}
}

func TestDiscriminators(t *testing.T) {
	tests := []struct {
		name      string
		id        Identity
		wantModel string
		wantUnit  string
	}{
		{"real ids", Identity{Name: "M", Serial: "S", ModelID: "B365", UnitID: "AB12"}, "B365", "AB12"},
		{"zero model", Identity{Name: "M", Serial: "S", ModelID: "000000000000", UnitID: "AB12"}, "M", "S"},
		{"zero unit", Identity{Name: "M", Serial: "S", ModelID: "B365", UnitID: "00000000"}, "B365", "S"},
		{"zero model no unit", Identity{Name: "M", Serial: "S", ModelID: "000000000000"}, "M", ""},
		{"empty", Identity{Name: "M", Serial: "S"}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, unit := tt.id.discriminators()
			if model != tt.wantModel || unit != tt.wantUnit {
				t.Errorf("got (%q, %q), want (%q, %q)", model, unit, tt.wantModel, tt.wantUnit)
			}
		})
	}
}
