package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/charlie0129/radiocal/pkg/calibration"
)

var testRecord = calibration.Record{
	Timestamp:   time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
	MAC:         "00:0B:6B:01:02:03",
	Channel:     8,
	Temperature: 41,
	GainControl: 0x2D,
	Power:       12.3456,
	PDOut:       612,
	Delay:       9000,
	NSamples:    32,
}

func TestCSV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "records")
	name := FileName("txpo", testRecord.MAC, testRecord.Timestamp)
	if name != "txpo_000B6B010203_20240301-123000.csv" {
		t.Errorf("FileName() = %q", name)
	}

	c, err := NewCSV(dir, name)
	if err != nil {
		t.Fatalf("NewCSV() error = %v", err)
	}
	if err := c.Write(testRecord); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopening appends without a second header.
	c, err = NewCSV(dir, name)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Write(testRecord); err != nil {
		t.Fatal(err)
	}
	_ = c.Close()

	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	if !reflect.DeepEqual(rows[0], Header) {
		t.Errorf("header = %v", rows[0])
	}
	want := []string{"2024-03-01 12:30:00", "00:0B:6B:01:02:03", "8", "41", "0x2D", "12.35", "612", "9000", "32"}
	if !reflect.DeepEqual(rows[1], want) {
		t.Errorf("row = %v, want %v", rows[1], want)
	}
}

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type fakePublisher struct {
	topics   []string
	payloads [][]byte
	err      error
}

func (p *fakePublisher) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload.([]byte))
	return &fakeToken{err: p.err}
}

func TestMQTT(t *testing.T) {
	p := &fakePublisher{}
	m := NewMQTT(p, "bench/3/")

	if err := m.Write(testRecord); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if p.topics[0] != "bench/3/000B6B010203" {
		t.Errorf("topic = %q", p.topics[0])
	}
	var got calibration.Record
	if err := json.Unmarshal(p.payloads[0], &got); err != nil {
		t.Fatal(err)
	}
	if got.Power != testRecord.Power || got.Channel != testRecord.Channel {
		t.Errorf("payload = %+v", got)
	}

	p.err = errors.New("not connected")
	if err := m.Write(testRecord); err == nil {
		t.Error("Write() expected publish error")
	}
}

type failingSink struct{ n int }

func (s *failingSink) Write(calibration.Record) error { s.n++; return errors.New("disk full") }
func (s *failingSink) Close() error                   { return nil }

func TestMulti(t *testing.T) {
	bad := &failingSink{}
	p := &fakePublisher{}
	m := Multi{bad, NewMQTT(p, ""), Log{}}

	if err := m.Write(testRecord); err == nil {
		t.Error("Write() expected joined error")
	}
	if bad.n != 1 || len(p.topics) != 1 {
		t.Errorf("sinks not all written: %d, %d", bad.n, len(p.topics))
	}
	if p.topics[0] != DefaultTopic+"/000B6B010203" {
		t.Errorf("topic = %q", p.topics[0])
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
