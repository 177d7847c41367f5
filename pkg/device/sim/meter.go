package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// NoiseFloor is the reading reported while nothing is on air.
const NoiseFloor = -70.0

const defaultReadTime = 100 * time.Microsecond

// Meter is a simulated power meter reading a Module's output.
type Meter struct {
	module *Module
	// ReadTime is how long one reading takes.
	ReadTime time.Duration
	// BadReplyAt makes the n-th reply (1-based) non-numeric. Zero disables it.
	BadReplyAt int

	mu      sync.Mutex
	rng     *rand.Rand
	queries int
	resets  int
}

// NewMeter returns a meter coupled to m, with reproducible noise.
func NewMeter(m *Module, seed int64) *Meter {
	return &Meter{
		module:   m,
		ReadTime: defaultReadTime,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

func (mt *Meter) Query(ctx context.Context) (string, error) {
	t := time.NewTimer(mt.ReadTime)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-t.C:
	}

	onAir, power := mt.module.OnAir()

	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.queries++
	if mt.BadReplyAt > 0 && mt.queries == mt.BadReplyAt {
		return "-ERR,\"Data corrupt\"", nil
	}
	if !onAir {
		power = NoiseFloor
	}
	power += (mt.rng.Float64() - 0.5) * 0.02
	return fmt.Sprintf("%+.5E", power), nil
}

func (mt *Meter) Reset(context.Context) error {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.resets++
	return nil
}

// Stats returns the number of queries and resets served.
func (mt *Meter) Stats() (queries, resets int) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.queries, mt.resets
}
