package recording

import (
	"sync"

	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/media"
)

// FrameRing retains the most recent frames for pre-event recording.
// Fixed capacity, FIFO eviction before insert, so size never exceeds
// capacity. Appends come from the capture path; Snapshot copies the
// contents so a recording job never races ongoing appends.
type FrameRing struct {
	mu   sync.Mutex
	buf  []*media.Frame
	head int
	size int
}

func NewFrameRing(capacity int) *FrameRing {
	if capacity < 1 {
		capacity = 1
	}
	return &FrameRing{buf: make([]*media.Frame, capacity)}
}

// Append adds a frame, evicting the oldest when full.
func (r *FrameRing) Append(f *media.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == len(r.buf) {
		r.buf[r.head] = f
		r.head = (r.head + 1) % len(r.buf)
		return
	}
	r.buf[(r.head+r.size)%len(r.buf)] = f
	r.size++
}

// Snapshot returns the buffered frames oldest first. The returned slice is
// independent of the ring.
func (r *FrameRing) Snapshot() []*media.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*media.Frame, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Len returns the current number of buffered frames.
func (r *FrameRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Capacity returns the fixed capacity.
func (r *FrameRing) Capacity() int {
	return len(r.buf)
}
