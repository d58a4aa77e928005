// Package snowflake allocates 64-bit time-ordered identifiers laid out as
// [42-bit milliseconds since 2024-01-01T00:00:00Z | 22-bit sequence],
// rendered as decimal text.
package snowflake

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

const (
	// Epoch is 2024-01-01T00:00:00Z in unix milliseconds.
	Epoch = 1704067200000

	seqBits = 22
	maxSeq  = 1<<seqBits - 1
)

// Generator emits strictly increasing IDs within one process. Ordering
// across processes holds only as far as their clocks are synchronized.
type Generator struct {
	mu     sync.Mutex
	lastMs int64
	seq    int64
	now    func() time.Time
}

func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// Next returns the next identifier. On per-millisecond sequence overflow it
// busy-waits until the clock ticks forward.
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli() - Epoch
	if ms < g.lastMs {
		// Clock went backwards; keep emitting from the last observed
		// millisecond so IDs stay monotonic.
		ms = g.lastMs
	}
	if ms == g.lastMs {
		g.seq++
		if g.seq > maxSeq {
			for ms <= g.lastMs {
				ms = g.now().UnixMilli() - Epoch
			}
			g.seq = 0
		}
	} else {
		g.seq = 0
	}
	g.lastMs = ms

	return strconv.FormatInt(ms<<seqBits|g.seq, 10)
}

// Timestamp recovers the creation time encoded in id.
func Timestamp(id string) (time.Time, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse snowflake %q: %w", id, err)
	}
	return time.UnixMilli(n>>seqBits + Epoch).UTC(), nil
}

// Valid reports whether id parses as a snowflake.
func Valid(id string) bool {
	n, err := strconv.ParseInt(id, 10, 64)
	return err == nil && n > 0
}
