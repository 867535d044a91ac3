// Package monitor keeps a rolling window of tick outputs for debugging
// and renders them as charts, plus the stop-wall publication that makes
// an active fail-safe stop visible to operators.
package monitor

import (
	"sync"

	"github.com/banshee-data/vehicle.gate/internal/gate"
)

// History is a fixed-capacity ring of recent tick outputs. It implements
// gate.Emitter; Emit never blocks.
type History struct {
	mu    sync.Mutex
	buf   []gate.TickOutput
	next  int
	count int
}

// NewHistory creates a ring holding the last capacity ticks.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 1024
	}
	return &History{buf: make([]gate.TickOutput, capacity)}
}

// Emit implements gate.Emitter.
func (h *History) Emit(out gate.TickOutput) {
	h.mu.Lock()
	h.buf[h.next] = out
	h.next = (h.next + 1) % len(h.buf)
	if h.count < len(h.buf) {
		h.count++
	}
	h.mu.Unlock()
}

// Snapshot returns the buffered ticks, oldest first.
func (h *History) Snapshot() []gate.TickOutput {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]gate.TickOutput, 0, h.count)
	start := h.next - h.count
	if start < 0 {
		start += len(h.buf)
	}
	for i := 0; i < h.count; i++ {
		out = append(out, h.buf[(start+i)%len(h.buf)])
	}
	return out
}

// Len returns the number of buffered ticks.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}
