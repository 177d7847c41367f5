package measure

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

var errExhausted = errors.New("script exhausted")

// scriptedMeter replays a fixed list of replies and closes exhausted after the last
// one. Reads past the script fail, so they never reach the buffer.
type scriptedMeter struct {
	mu        sync.Mutex
	script    []string
	next      int
	exhausted chan struct{}
	queriedAt []time.Time
	resets    int
	sync      *Synchronizer
	readySeen []bool
}

func newScriptedMeter(script ...string) *scriptedMeter {
	return &scriptedMeter{script: script, exhausted: make(chan struct{})}
}

func (m *scriptedMeter) load(script ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = script
	m.next = 0
	m.exhausted = make(chan struct{})
}

func (m *scriptedMeter) done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exhausted
}

func (m *scriptedMeter) Query(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queriedAt = append(m.queriedAt, time.Now())
	if m.sync != nil {
		m.readySeen = append(m.readySeen, m.sync.MeterReady())
	}
	if m.next >= len(m.script) {
		time.Sleep(time.Millisecond)
		return "", errExhausted
	}
	reply := m.script[m.next]
	m.next++
	if m.next == len(m.script) {
		close(m.exhausted)
	}
	return reply, nil
}

func (m *scriptedMeter) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	return nil
}

// meterBoundTransmitter stays on air until the meter has served its whole script.
type meterBoundTransmitter struct {
	meter  *scriptedMeter
	bursts int
	err    error
}

func (t *meterBoundTransmitter) TransmitBurst(ctx context.Context, packets int) error {
	t.bursts++
	if t.err != nil {
		return t.err
	}
	select {
	case <-t.meter.done():
	case <-time.After(5 * time.Second):
		return errors.New("meter never finished its script")
	}
	return nil
}

func TestRunRoundAggregatesInteriorSamples(t *testing.T) {
	meter := newScriptedMeter("10.0", "12.0", "11.0", "9.0", "13.0")
	s := NewSynchronizer(&meterBoundTransmitter{meter: meter}, meter)
	meter.sync = s

	out := s.RunRound(context.Background())
	if out.Count() != 5 {
		t.Fatalf("Count() = %d, want 5 (%v)", out.Count(), out.Samples)
	}
	got, err := out.Aggregate()
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if math.Abs(got-(12.0+11.0+9.0)/3) > 1e-9 {
		t.Errorf("Aggregate() = %v, want 10.666...", got)
	}
	if meter.resets != 1 {
		t.Errorf("meter reset %d times, want 1", meter.resets)
	}
	for i, ready := range meter.readySeen {
		if ready {
			t.Errorf("read %d issued while meter-ready was still asserted", i)
		}
	}
	if s.MeterReady() || s.TransmissionActive() {
		t.Errorf("signals still asserted after the round")
	}
}

func TestRunRoundNoSampleBeforeTransmission(t *testing.T) {
	meter := newScriptedMeter("1", "2", "3")
	s := NewSynchronizer(&meterBoundTransmitter{meter: meter}, meter)

	out := s.RunRound(context.Background())
	if out.ActiveAt.IsZero() {
		t.Fatalf("transmission-active was never asserted")
	}
	for i, at := range meter.queriedAt {
		if at.Before(out.ActiveAt) {
			t.Errorf("read %d at %v happened before the burst started at %v", i, at, out.ActiveAt)
		}
	}
}

func TestRunRoundDoesNotLeakAcrossRounds(t *testing.T) {
	meter := newScriptedMeter("1", "2", "3", "4", "5")
	tx := &meterBoundTransmitter{meter: meter}
	s := NewSynchronizer(tx, meter)

	first := s.RunRound(context.Background())
	meter.load("100", "200", "300")
	second := s.RunRound(context.Background())

	if first.Count() != 5 || second.Count() != 3 {
		t.Fatalf("counts = %d, %d, want 5, 3", first.Count(), second.Count())
	}
	a1, _ := first.Aggregate()
	a2, _ := second.Aggregate()
	if a1 != 3 || a2 != 200 {
		t.Errorf("aggregates = %v, %v, want 3, 200", a1, a2)
	}
	if tx.bursts != 2 || meter.resets != 2 {
		t.Errorf("bursts = %d, resets = %d", tx.bursts, meter.resets)
	}
}

func TestRunRoundToleratesReadFailures(t *testing.T) {
	meter := newScriptedMeter("5", "6", "7")
	s := NewSynchronizer(&meterBoundTransmitter{meter: meter}, meter)

	out := s.RunRound(context.Background())
	// Reads after the script fail until the transmitter clears transmission-active;
	// they are counted but never collected.
	if out.Count() != 3 {
		t.Errorf("Count() = %d, want 3", out.Count())
	}
}

func TestRunRoundTransmitFailure(t *testing.T) {
	meter := newScriptedMeter()
	wantErr := errors.New("transmit_packets failed")
	s := NewSynchronizer(&meterBoundTransmitter{meter: meter, err: wantErr}, meter)

	out := s.RunRound(context.Background())
	if !errors.Is(out.TransmitErr, wantErr) {
		t.Errorf("TransmitErr = %v, want %v", out.TransmitErr, wantErr)
	}
	if meter.resets != 1 {
		t.Errorf("meter reset %d times, want 1", meter.resets)
	}
}

type slowMeter struct{}

func (slowMeter) Query(ctx context.Context) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (slowMeter) Reset(context.Context) error { return nil }

type fixedBurst time.Duration

func (b fixedBurst) TransmitBurst(ctx context.Context, _ int) error {
	time.Sleep(time.Duration(b))
	return nil
}

func TestRunRoundReadTimeout(t *testing.T) {
	s := NewSynchronizer(fixedBurst(30*time.Millisecond), slowMeter{})
	s.ReadTimeout = 10 * time.Millisecond

	out := s.RunRound(context.Background())
	if out.Count() != 0 {
		t.Errorf("Count() = %d, want 0", out.Count())
	}
	if out.ReadErrors == 0 {
		t.Errorf("expected timed out reads to be counted")
	}
}

func TestSignal(t *testing.T) {
	s := NewSignal()
	early := s.C()
	s.Set()
	s.Clear()

	select {
	case <-early:
	default:
		t.Fatalf("early subscriber missed a pulse")
	}
	if s.IsSet() {
		t.Errorf("IsSet() after Clear()")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() = %v, want deadline exceeded", err)
	}

	go s.Set()
	if err := s.Wait(context.Background()); err != nil {
		t.Errorf("Wait() = %v", err)
	}
}

// countingMeter fails every read with the caller's context error.
type countingMeter struct {
	mu         sync.Mutex
	queries    int
	resets     int
	resetCtxOK bool
}

func (m *countingMeter) Query(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.queries++
	m.mu.Unlock()
	<-ctx.Done()
	return "", ctx.Err()
}

func (m *countingMeter) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	m.resetCtxOK = ctx.Err() == nil
	return nil
}

func TestRunRoundCancelledStopsReading(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	meter := &countingMeter{}
	s := NewSynchronizer(fixedBurst(50*time.Millisecond), meter)

	start := time.Now()
	out := s.RunRound(ctx)

	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("round returned after %v, before the burst ended", elapsed)
	}
	if meter.queries != 1 || out.ReadErrors != 1 {
		t.Errorf("queries %d, read errors %d, want 1 and 1", meter.queries, out.ReadErrors)
	}
	if meter.resets != 1 || !meter.resetCtxOK {
		t.Errorf("resets %d (live ctx %v), want one reset with a live context", meter.resets, meter.resetCtxOK)
	}
}
