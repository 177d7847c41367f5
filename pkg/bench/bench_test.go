package bench

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charlie0129/radiocal/pkg/calibration"
	"github.com/charlie0129/radiocal/pkg/config"
	"github.com/charlie0129/radiocal/pkg/device"
	"github.com/charlie0129/radiocal/pkg/device/sim"
	"github.com/charlie0129/radiocal/pkg/sweep"
)

func simConfig(t *testing.T) config.Config {
	t.Helper()
	n, timeout := 500, 1
	dir := filepath.Join(t.TempDir(), "records")
	return config.NewFileFromConfig(&config.RawFileConfig{
		PacketCount:        &n,
		ReadTimeoutSeconds: &timeout,
		RecordDir:          &dir,
	}, "")
}

type countingObserver struct {
	transitions, records int
}

func (o *countingObserver) OnTransition(calibration.State, calibration.State, calibration.Status) {
	o.transitions++
}
func (o *countingObserver) OnRecord(calibration.Record) { o.records++ }

func TestCalibrateSimulated(t *testing.T) {
	if testing.Short() {
		t.Skip("full calibration walk")
	}

	ctx := context.Background()
	c := simConfig(t)
	b, err := Open(ctx, c)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer b.Close()

	mac := b.MAC(ctx)
	sink, err := OpenSinks(c, "cal", mac)
	if err != nil {
		t.Fatalf("OpenSinks() error = %v", err)
	}

	obs := &countingObserver{}
	res, err := b.Calibrate(ctx, sink, obs)
	if err != nil {
		t.Fatalf("Calibrate() error = %v", err)
	}
	if !res.Succeeded() || obs.records == 0 || obs.transitions != res.Steps {
		t.Errorf("result %+v, observer %+v", res, obs)
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	files, _ := filepath.Glob(filepath.Join(c.RecordDir(), "cal_*.csv"))
	if len(files) != 1 {
		t.Fatalf("record files = %v", files)
	}
	b2, _ := os.ReadFile(files[0])
	if lines := strings.Count(string(b2), "\n"); lines != obs.records+1 {
		t.Errorf("csv has %d lines, want %d", lines, obs.records+1)
	}
}

func TestSweepSimulatedRestores(t *testing.T) {
	ctx := context.Background()
	b, err := Open(ctx, simConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	obs := &countingObserver{}
	sum, err := b.Sweep(ctx, sweep.Options{Channels: []int{8, 9}}, nil, obs)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if sum.Records != 2 || obs.records != 2 {
		t.Errorf("summary %+v, observer %+v", sum, obs)
	}

	type settings interface {
		Settings() (bool, int, int)
	}
	comp, dfs, _ := b.Device.(settings).Settings()
	if !comp || dfs != 0 {
		t.Errorf("module not restored: power comp %v, dfs %d", comp, dfs)
	}
}

// dfsRejectingModule refuses to disable DFS, which Prepare does after turning power
// compensation off.
type dfsRejectingModule struct {
	*sim.Module
}

func (m dfsRejectingModule) DFSOverride(ctx context.Context, mode int) error {
	if mode != device.DFSEnabled {
		return errors.New("dfs_override rejected")
	}
	return m.Module.DFSOverride(ctx, mode)
}

func TestSweepRestoresAfterFailedPrepare(t *testing.T) {
	mod := sim.New(sim.Options{})
	b := &Bench{Device: dfsRejectingModule{mod}, Meter: sim.NewMeter(mod, 1)}

	if _, err := b.Sweep(context.Background(), sweep.Options{Channels: []int{8}}, nil, nil); err == nil {
		t.Fatal("Sweep() error = nil, want prepare failure")
	}
	if comp, dfs, _ := mod.Settings(); !comp || dfs != device.DFSEnabled {
		t.Errorf("module left with power comp %v, dfs %d", comp, dfs)
	}
}
