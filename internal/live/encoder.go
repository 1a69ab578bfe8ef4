package live

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/media"
)

const (
	// Adaptive encoding thresholds: re-encode at reduced quality when a
	// frame comes out larger than viewers can comfortably stream.
	baseJPEGQuality    = 70
	reducedJPEGQuality = 55
	maxEncodedBytes    = 500 * 1024
)

// FrameEncoder compresses a frame for transport to viewers.
type FrameEncoder interface {
	Encode(f *media.Frame, quality int) ([]byte, error)
}

// JPEGEncoder encodes frames as JPEG via OpenCV.
type JPEGEncoder struct{}

func (JPEGEncoder) Encode(f *media.Frame, quality int) ([]byte, error) {
	mat, err := media.MatFromFrame(f)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// encodeAdaptive compresses at base quality, then retries once at reduced
// quality when the result is above the size threshold.
func encodeAdaptive(enc FrameEncoder, f *media.Frame) ([]byte, error) {
	data, err := enc.Encode(f, baseJPEGQuality)
	if err != nil {
		return nil, err
	}
	if len(data) <= maxEncodedBytes {
		return data, nil
	}
	return enc.Encode(f, reducedJPEGQuality)
}
