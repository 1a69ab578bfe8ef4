package media

import "time"

// Frame is one decoded BGR image captured from a video source.
//
// Frames handed to subscribers are immutable by contract: the capture loop
// allocates a fresh pixel buffer for every grab and never writes to it after
// publication, so a single Frame can be shared across consumers without
// copying. Consumers that need to mutate pixels must Clone first.
type Frame struct {
	// Data holds packed BGR24 pixels, row-major, Width*Height*3 bytes.
	Data       []byte
	Width      int
	Height     int
	CapturedAt time.Time
}

// Clone returns a deep copy with its own pixel buffer.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	return &Frame{
		Data:       data,
		Width:      f.Width,
		Height:     f.Height,
		CapturedAt: f.CapturedAt,
	}
}

// Empty reports whether the frame carries no pixels.
func (f *Frame) Empty() bool {
	return f == nil || len(f.Data) == 0 || f.Width <= 0 || f.Height <= 0
}
