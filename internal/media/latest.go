package media

import "sync"

// LatestFrame is a single-slot cell holding the most recent frame.
// Writers overwrite unread values; readers always observe the newest
// published frame or nil. There is no queue and no backlog: slow readers
// simply skip frames.
type LatestFrame struct {
	mu    sync.Mutex
	f     *Frame
	seq   uint64
	taken bool
}

// Set publishes a frame, replacing any unread one. It reports whether an
// unconsumed frame was overwritten, so producers can count real drops.
// Drop reporting assumes a single Take-ing consumer.
func (l *LatestFrame) Set(f *Frame) bool {
	l.mu.Lock()
	dropped := l.f != nil && !l.taken
	l.f = f
	l.seq++
	l.taken = false
	l.mu.Unlock()
	return dropped
}

// Get returns the newest frame and its sequence number. The same frame may
// be returned to multiple callers; frames are immutable by contract.
func (l *LatestFrame) Get() (*Frame, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f, l.seq
}

// Take returns the newest frame only if its sequence advanced past lastSeq,
// letting pull-based consumers skip frames they have already processed.
func (l *LatestFrame) Take(lastSeq uint64) (*Frame, uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seq == lastSeq || l.f == nil {
		return nil, lastSeq, false
	}
	l.taken = true
	return l.f, l.seq, true
}

// Clear drops the held frame.
func (l *LatestFrame) Clear() {
	l.mu.Lock()
	l.f = nil
	l.mu.Unlock()
}
