package recording

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/media"
)

// ClipEncoder materializes clip files and thumbnails. Split out from the
// recorder so job logic can be tested against an in-memory encoder.
type ClipEncoder interface {
	Begin(path string, width, height int, fps float64) (ClipSink, error)
	WriteThumbnail(path string, f *media.Frame) error
}

// ClipSink receives frames for one clip in order. Close finalizes the file.
type ClipSink interface {
	Write(f *media.Frame) error
	Close() error
}

// OpenCVEncoder writes clips through gocv's VideoWriter.
type OpenCVEncoder struct {
	Codec string // fourcc, e.g. "mp4v", "avc1"
}

func NewOpenCVEncoder(codec string) *OpenCVEncoder {
	if codec == "" {
		codec = "mp4v"
	}
	return &OpenCVEncoder{Codec: codec}
}

func (e *OpenCVEncoder) Begin(path string, width, height int, fps float64) (ClipSink, error) {
	vw, err := gocv.VideoWriterFile(path, e.Codec, fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("open clip writer %s: %w", path, err)
	}
	if !vw.IsOpened() {
		vw.Close()
		return nil, fmt.Errorf("clip writer not opened for %s", path)
	}
	return &opencvSink{vw: vw}, nil
}

func (e *OpenCVEncoder) WriteThumbnail(path string, f *media.Frame) error {
	mat, err := media.MatFromFrame(f)
	if err != nil {
		return err
	}
	defer mat.Close()
	if ok := gocv.IMWrite(path, mat); !ok {
		return fmt.Errorf("write thumbnail %s", path)
	}
	return nil
}

type opencvSink struct {
	vw *gocv.VideoWriter
}

func (s *opencvSink) Write(f *media.Frame) error {
	mat, err := media.MatFromFrame(f)
	if err != nil {
		return err
	}
	defer mat.Close()
	return s.vw.Write(mat)
}

func (s *opencvSink) Close() error {
	return s.vw.Close()
}
