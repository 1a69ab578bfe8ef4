package media

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// OpenCVSource captures frames through an OpenCV VideoCapture handle.
// SourceURI is either a local device index or a network stream URL; RTSP
// URLs are forced onto TCP for stability.
type OpenCVSource struct {
	cfg ConnectionConfig

	mu  sync.Mutex
	cap *gocv.VideoCapture
}

// NewOpenCVSource is a SourceFactory.
func NewOpenCVSource(cfg ConnectionConfig) Source {
	return &OpenCVSource{cfg: cfg}
}

func (s *OpenCVSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cap != nil {
		// Release any previous handle before reopening.
		s.cap.Close()
		s.cap = nil
	}

	var (
		cap *gocv.VideoCapture
		err error
	)
	if idx, convErr := strconv.Atoi(s.cfg.SourceURI); convErr == nil {
		cap, err = gocv.OpenVideoCapture(idx)
	} else {
		cap, err = gocv.OpenVideoCapture(normalizeStreamURL(s.cfg.SourceURI))
	}
	if err != nil {
		return &OpenError{URI: s.cfg.SourceURI, Err: err}
	}
	if !cap.IsOpened() {
		cap.Close()
		return &OpenError{URI: s.cfg.SourceURI, Err: errors.New("capture not opened")}
	}

	if s.cfg.TargetWidth > 0 {
		cap.Set(gocv.VideoCaptureFrameWidth, float64(s.cfg.TargetWidth))
	}
	if s.cfg.TargetHeight > 0 {
		cap.Set(gocv.VideoCaptureFrameHeight, float64(s.cfg.TargetHeight))
	}
	if s.cfg.TargetFPS > 0 {
		cap.Set(gocv.VideoCaptureFPS, float64(s.cfg.TargetFPS))
	}
	cap.Set(gocv.VideoCaptureBufferSize, 1)

	s.cap = cap
	return nil
}

// Grab reads one frame. The timeout is advisory: the FFMPEG backend bounds
// the underlying read, and a failed read within that bound is reported as
// ErrGrabTimeout so the caller can retry without reopening.
func (s *OpenCVSource) Grab(timeout time.Duration) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cap == nil {
		return nil, ErrSourceDisconnected
	}
	if !s.cap.IsOpened() {
		return nil, ErrSourceDisconnected
	}

	mat := gocv.NewMat()
	defer mat.Close()

	if ok := s.cap.Read(&mat); !ok || mat.Empty() {
		return nil, ErrGrabTimeout
	}
	return FrameFromMat(mat, time.Now())
}

// Close releases the capture handle. Safe to call repeatedly.
func (s *OpenCVSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cap == nil {
		return nil
	}
	err := s.cap.Close()
	s.cap = nil
	return err
}

func normalizeStreamURL(url string) string {
	if strings.HasPrefix(url, "rtsp://") && !strings.Contains(url, "rtsp_transport") {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		return url + sep + "rtsp_transport=tcp"
	}
	return url
}

// FrameFromMat copies a BGR Mat into an owned Frame buffer.
func FrameFromMat(m gocv.Mat, ts time.Time) (*Frame, error) {
	if m.Empty() {
		return nil, errors.New("empty mat")
	}
	bgr := m
	owned := false
	if m.Type() != gocv.MatTypeCV8UC3 {
		converted := gocv.NewMat()
		m.ConvertTo(&converted, gocv.MatTypeCV8UC3)
		bgr = converted
		owned = true
	}
	data := bgr.ToBytes()
	f := &Frame{
		Data:       append([]byte(nil), data...),
		Width:      bgr.Cols(),
		Height:     bgr.Rows(),
		CapturedAt: ts,
	}
	if owned {
		bgr.Close()
	}
	return f, nil
}

// MatFromFrame wraps frame pixels in a Mat. The caller owns the returned
// Mat and must Close it.
func MatFromFrame(f *Frame) (gocv.Mat, error) {
	if f.Empty() {
		return gocv.Mat{}, errors.New("empty frame")
	}
	if len(f.Data) != f.Width*f.Height*3 {
		return gocv.Mat{}, fmt.Errorf("frame buffer size %d does not match %dx%d BGR24",
			len(f.Data), f.Width, f.Height)
	}
	return gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Data)
}
