package calibration

import (
	"encoding/json"
	"testing"
)

func TestCatalogueOrder(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"RADIOCALSTATE_IDLE", 0},
		{"RADIOCALSTATE_BEGIN", 1},
		{"RADIOCALSTATE_F0_B5", 2},
		{"RADIOCALSTATE_F0_B0", 7},
		{"RADIOCALSTATE_F0_P0", 8},
		{"RADIOCALSTATE_F6_P2", 28},
		{"RADIOCALSTATE_F7_B5", 29},
		{"RADIOCALSTATE_F7_P0", 35},
		{"RADIOCALSTATE_F8_B5", 38},
		{"RADIOCALSTATE_F8_P0", 44},
		{"RADIOCALSTATE_F19_B5", 77},
		{"RADIOCALSTATE_F19_P0", 83},
		{"RADIOCALSTATE_F34_P2", 130},
		{"RADIOCALSTATE_FINISHED", 131},
		{"RADIOCALSTATE_MAX", 132},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseState(tt.name)
			if err != nil {
				t.Fatalf("ParseState() error = %v", err)
			}
			if int(s) != tt.want {
				t.Errorf("ParseState() = %d, want %d", int(s), tt.want)
			}
			if s.String() != tt.name {
				t.Errorf("String() = %s, want %s", s, tt.name)
			}
		})
	}

	if got := len(States()); got != 133 {
		t.Errorf("len(States()) = %d, want 133", got)
	}
}

func TestStateFields(t *testing.T) {
	s, _ := ParseState("RADIOCALSTATE_F12_P1")
	if s.Kind() != KindPoint || s.Channel() != 12 || s.Point() != 1 || s.Bit() != -1 {
		t.Errorf("F12_P1 fields = %s/%d/%d/%d", s.Kind(), s.Channel(), s.Point(), s.Bit())
	}

	s, _ = ParseState("RADIOCALSTATE_F19_B3")
	if s.Kind() != KindSearch || s.Channel() != 19 || s.Bit() != 3 || s.Point() != -1 {
		t.Errorf("F19_B3 fields = %s/%d/%d/%d", s.Kind(), s.Channel(), s.Bit(), s.Point())
	}

	if StateIdle.Channel() != NoChannel || StateFinished.Kind() != KindTerminal {
		t.Errorf("control states carry unexpected fields")
	}
	if StateMax.Valid() {
		t.Errorf("MAX must not be enterable")
	}
	if State(-3).Valid() || State(500).Valid() {
		t.Errorf("out of range states must be invalid")
	}
}

func TestActuationOnly(t *testing.T) {
	want := map[string]bool{
		"RADIOCALSTATE_BEGIN":  true,
		"RADIOCALSTATE_F0_B5":  true,
		"RADIOCALSTATE_F7_B5":  true,
		"RADIOCALSTATE_F8_B5":  true,
		"RADIOCALSTATE_F19_B5": true,
	}
	for _, s := range States() {
		if got := s.ActuationOnly(); got != want[s.String()] {
			t.Errorf("%s.ActuationOnly() = %v, want %v", s, got, want[s.String()])
		}
	}
}

func TestSearchAndPointLookup(t *testing.T) {
	if s, ok := SearchState(7, 5); !ok || s.String() != "RADIOCALSTATE_F7_B5" {
		t.Errorf("SearchState(7, 5) = %s, %v", s, ok)
	}
	if _, ok := SearchState(9, 5); ok {
		t.Errorf("channel 9 has no search group")
	}
	if s, ok := PointState(34, 2); !ok || s.Channel() != 34 {
		t.Errorf("PointState(34, 2) = %s, %v", s, ok)
	}
	if _, err := ParseState("RADIOCALSTATE_F35_P0"); err == nil {
		t.Errorf("expected error for unknown state")
	}
}

func TestStateJSON(t *testing.T) {
	in := Result{Status: StatusSlopeInterceptDivideByZero, State: StateFinished}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var out Result
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if out.Status != in.Status || out.State != in.State {
		t.Errorf("decoded %+v, want %+v", out, in)
	}
}
