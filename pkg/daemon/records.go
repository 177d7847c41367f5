package daemon

import (
	"sync"

	"github.com/charlie0129/radiocal/pkg/calibration"
)

const defaultRecordCapacity = 1024

// recordRing keeps the most recent records across jobs.
type recordRing struct {
	mu    sync.Mutex
	buf   []calibration.Record
	next  int
	full  bool
	total int
}

func newRecordRing(capacity int) *recordRing {
	if capacity <= 0 {
		capacity = defaultRecordCapacity
	}
	return &recordRing{buf: make([]calibration.Record, capacity)}
}

func (r *recordRing) add(rec calibration.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = rec
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
	r.total++
}

// last returns up to n records, oldest first. n <= 0 returns all retained.
func (r *recordRing) last(n int) []calibration.Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	if r.full {
		size = len(r.buf)
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]calibration.Record, 0, n)
	start := (r.next - n + len(r.buf)) % len(r.buf)
	for i := 0; i < n; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

func (r *recordRing) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}
