package powermeter

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"
)

// instrument is a fake meter on the far end of a pipe.
type instrument struct {
	mu      sync.Mutex
	cmds    []string
	replies map[string]string
	// silent commands are never answered.
	silent map[string]bool
	// sequence replies take precedence over replies, one per command.
	sequence map[string][]string
	// delayFirst holds back the first reply to a command.
	delayFirst map[string]time.Duration
}

func (in *instrument) serve(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		cmd := scanner.Text()
		in.mu.Lock()
		in.cmds = append(in.cmds, cmd)
		reply, ok := in.replies[cmd]
		if seq := in.sequence[cmd]; len(seq) > 0 {
			reply, ok = seq[0], true
			in.sequence[cmd] = seq[1:]
		}
		silent := in.silent[cmd]
		delay := in.delayFirst[cmd]
		delete(in.delayFirst, cmd)
		in.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		if ok && !silent {
			if _, err := conn.Write([]byte(reply + "\r\n")); err != nil {
				return
			}
		}
	}
}

func (in *instrument) commands() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]string(nil), in.cmds...)
}

func newMeter(t *testing.T, in *instrument) *SCPI {
	t.Helper()
	client, server := net.Pipe()
	go in.serve(server)
	p := New(client)
	t.Cleanup(func() {
		_ = p.Close()
		_ = server.Close()
	})
	return p
}

func TestQuery(t *testing.T) {
	in := &instrument{replies: map[string]string{"MEAS?": "+1.23400E+01"}}
	p := newMeter(t, in)

	reply, err := p.Query(context.Background())
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if reply != "+1.23400E+01" {
		t.Errorf("Query() = %q", reply)
	}

	if err := p.Reset(context.Background()); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	// The pipe is synchronous, so the command is read once Write returns, but it may
	// not be recorded yet.
	deadline := time.Now().Add(time.Second)
	for len(in.commands()) < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := in.commands(); !reflect.DeepEqual(got, []string{"MEAS?", "INIT:CONT ON"}) {
		t.Errorf("commands = %v", got)
	}
}

func TestQueryTimeout(t *testing.T) {
	in := &instrument{
		replies: map[string]string{"MEAS?": "-5.00000E+00"},
		silent:  map[string]bool{"MEAS?": true},
	}
	p := newMeter(t, in)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Query(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Query() error = %v, want deadline exceeded", err)
	}
}

func TestStaleReplyDiscarded(t *testing.T) {
	in := &instrument{replies: map[string]string{"MEAS?": "+1.00000E+00", "*IDN?": "HP,437B"}}
	p := newMeter(t, in)

	// An answer nobody waits for.
	if err := p.Write(context.Background(), "MEAS?"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	reply, err := p.Cmd(context.Background(), "*IDN?")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "HP,437B" {
		t.Errorf("Cmd() = %q, stale reply leaked", reply)
	}
}

func TestLateReplyNotPairedWithNextQuery(t *testing.T) {
	in := &instrument{
		replies:    map[string]string{"*OPC?": "1"},
		sequence:   map[string][]string{"MEAS?": {"-7.00000E+00", "+3.00000E+00"}},
		delayFirst: map[string]time.Duration{"MEAS?": 60 * time.Millisecond},
	}
	p := newMeter(t, in)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Query(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Query() error = %v, want deadline exceeded", err)
	}

	reply, err := p.Query(context.Background())
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if reply != "+3.00000E+00" {
		t.Errorf("Query() = %q, got the reply to the abandoned query", reply)
	}
	if got := in.commands(); !reflect.DeepEqual(got, []string{"MEAS?", "*OPC?", "MEAS?"}) {
		t.Errorf("commands = %v", got)
	}

	// Back in sync: no further *OPC?.
	if _, err := p.Cmd(context.Background(), "*OPC?"); err != nil {
		t.Fatal(err)
	}
	if n := len(in.commands()); n != 4 {
		t.Errorf("sent %d commands, want 4", n)
	}
}

func TestSetup(t *testing.T) {
	tests := []struct {
		name   string
		sensor string
		want   []string
	}{
		{
			name:   "type A sensor",
			sensor: "A",
			want: []string{
				"SYST:PRES", "SYST:REM", "SERV:SENS1:TYPE?",
				"CORR:CSET1:SEL 'HP8481A'", "CORR:CSET1:STAT ON",
				"CORR:DCYC 45.00PCT", "CORR:GAIN2 1.50", "FREQ 5.500GHZ",
			},
		},
		{
			name:   "other sensor",
			sensor: "E",
			want: []string{
				"SYST:PRES", "SYST:REM", "SERV:SENS1:TYPE?",
				"CORR:DCYC 45.00PCT", "CORR:GAIN2 1.50", "FREQ 5.500GHZ",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := &instrument{replies: map[string]string{"SERV:SENS1:TYPE?": tt.sensor}}
			p := newMeter(t, in)

			err := p.Setup(context.Background(), SetupOptions{DutyFactor: 0.45, OffsetDB: 1.5})
			if err != nil {
				t.Fatalf("Setup() error = %v", err)
			}
			// Query the meter once more so every setup command has been recorded.
			in.mu.Lock()
			in.replies["SYST:ERR?"] = "0"
			in.mu.Unlock()
			if _, err := p.Cmd(context.Background(), "SYST:ERR?"); err != nil {
				t.Fatal(err)
			}
			got := in.commands()
			if !reflect.DeepEqual(got[:len(got)-1], tt.want) {
				t.Errorf("commands = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReadOffsetFile(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    float64
		wantErr bool
	}{
		{name: "plain", content: "12.34\n", want: 12.34},
		{name: "trailing data", content: "-3.500 dB bench 3", want: -3.5},
		{name: "garbage", content: "abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".dat")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			got, err := ReadOffsetFile(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReadOffsetFile() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ReadOffsetFile() = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := ReadOffsetFile(filepath.Join(dir, "missing.dat")); err == nil {
		t.Error("expected error for missing file")
	}
}
