package daemon

import (
	"testing"

	"github.com/charlie0129/radiocal/pkg/calibration"
)

func TestRecordRing(t *testing.T) {
	r := newRecordRing(3)
	if got := r.last(10); len(got) != 0 {
		t.Fatalf("empty ring returned %v", got)
	}

	for ch := 1; ch <= 5; ch++ {
		r.add(calibration.Record{Channel: ch})
	}

	tests := []struct {
		n    int
		want []int
	}{
		{n: 0, want: []int{3, 4, 5}},
		{n: 2, want: []int{4, 5}},
		{n: 10, want: []int{3, 4, 5}},
	}
	for _, tt := range tests {
		got := r.last(tt.n)
		if len(got) != len(tt.want) {
			t.Fatalf("last(%d) returned %d records, want %d", tt.n, len(got), len(tt.want))
		}
		for i, rec := range got {
			if rec.Channel != tt.want[i] {
				t.Errorf("last(%d)[%d].Channel = %d, want %d", tt.n, i, rec.Channel, tt.want[i])
			}
		}
	}

	if r.count() != 5 {
		t.Errorf("count() = %d, want 5", r.count())
	}
}
