package sample

import (
	"errors"
	"math"
	"strconv"
	"sync"
	"testing"
)

func TestTrim(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"single", []float64{-3.5}, -3.5},
		{"two returns the first", []float64{4, 8}, 4},
		{"three keeps the middle", []float64{100, 7, -100}, 7},
		{"five", []float64{10.0, 12.0, 11.0, 9.0, 13.0}, 32.0 / 3},
		{"ramp outliers dropped", []float64{-50, 1, 2, 3, 4, -60}, 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Trim(tt.values); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Trim() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAggregate(t *testing.T) {
	got, err := Aggregate([]string{"+1.000E+01", " 12.0\n", "11", "9.0", "13"})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if math.Abs(got-10.666666666666666) > 1e-9 {
		t.Errorf("Aggregate() = %v", got)
	}

	got, err = Aggregate(nil)
	if err != nil || got != 0 {
		t.Errorf("Aggregate(nil) = %v, %v", got, err)
	}
}

func TestAggregateNonNumeric(t *testing.T) {
	_, err := Aggregate([]string{"1.0", "ERR -230", "2.0"})
	if !errors.Is(err, ErrNonNumeric) {
		t.Fatalf("Aggregate() error = %v, want ErrNonNumeric", err)
	}
}

func TestBufferDrain(t *testing.T) {
	b := NewBuffer()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Push(strconv.Itoa(i*100 + j))
			}
		}(i)
	}
	wg.Wait()

	if b.Len() != 800 {
		t.Fatalf("Len() = %d, want 800", b.Len())
	}
	drained := b.Drain()
	if len(drained) != 800 || b.Len() != 0 {
		t.Fatalf("Drain() returned %d, left %d", len(drained), b.Len())
	}

	b.Push("1")
	b.Reset()
	if b.Len() != 0 || len(b.Drain()) != 0 {
		t.Errorf("Reset() left readings behind")
	}
}
