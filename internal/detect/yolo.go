package detect

import (
	"fmt"
	"image"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/media"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/metrics"
)

const yoloInputSize = 416

// YOLODetector runs darknet-family models through the OpenCV DNN module.
// A failed model load does not fail construction: the detector reports
// ErrInferenceUnavailable per call so the rest of the pipeline degrades
// instead of crashing.
type YOLODetector struct {
	logger *zap.Logger

	mu        sync.Mutex
	net       gocv.Net
	outNames  []string
	names     []string
	available bool
}

// NewYOLODetector loads the network and class names. Missing files leave
// the detector in degraded mode.
func NewYOLODetector(weightsPath, configPath, namesPath string, logger *zap.Logger) *YOLODetector {
	d := &YOLODetector{logger: logger}

	namesData, err := os.ReadFile(namesPath)
	if err != nil {
		logger.Warn("detector: class names unavailable", zap.String("path", namesPath), zap.Error(err))
		return d
	}
	for _, n := range strings.Split(string(namesData), "\n") {
		d.names = append(d.names, strings.TrimSpace(n))
	}

	if _, err := os.Stat(weightsPath); err != nil {
		logger.Warn("detector: model weights not found, running degraded",
			zap.String("path", weightsPath))
		return d
	}

	net := gocv.ReadNet(weightsPath, configPath)
	if net.Empty() {
		logger.Warn("detector: failed to load network, running degraded",
			zap.String("weights", weightsPath), zap.String("config", configPath))
		return d
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	d.net = net
	d.outNames = net.GetUnconnectedOutLayersNames()
	d.available = true
	logger.Info("detector loaded",
		zap.String("weights", weightsPath), zap.Int("classes", len(d.names)))
	return d
}

// Available reports whether inference can run.
func (d *YOLODetector) Available() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.available
}

// Detect runs one inference call on the frame. Output boxes are normalized
// to [0,1] and clamped; Params filtering is applied before returning.
func (d *YOLODetector) Detect(f *media.Frame, p Params) ([]Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.available {
		metrics.InferenceUnavailable.Inc()
		return nil, ErrInferenceUnavailable
	}
	if f.Empty() {
		return nil, nil
	}

	mat, err := media.MatFromFrame(f)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	defer mat.Close()

	start := time.Now()
	blob := gocv.BlobFromImage(mat, 1.0/255.0,
		image.Pt(yoloInputSize, yoloInputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	outputs := d.net.ForwardLayers(d.outNames)
	defer func() {
		for i := range outputs {
			outputs[i].Close()
		}
	}()
	metrics.InferenceLatency.Observe(float64(time.Since(start).Milliseconds()))

	var dets []Detection
	for _, out := range outputs {
		rows := out.Rows()
		cols := out.Cols()
		for i := 0; i < rows; i++ {
			// Row layout: cx, cy, w, h, objectness, per-class scores.
			best := -1
			bestScore := float32(0)
			for c := 5; c < cols; c++ {
				if s := out.GetFloatAt(i, c); s > bestScore {
					bestScore = s
					best = c - 5
				}
			}
			if best < 0 || best >= len(d.names) {
				continue
			}
			conf := float64(bestScore) * float64(out.GetFloatAt(i, 4))
			if conf <= 0 {
				continue
			}
			box := BBox{
				CX: float64(out.GetFloatAt(i, 0)),
				CY: float64(out.GetFloatAt(i, 1)),
				W:  float64(out.GetFloatAt(i, 2)),
				H:  float64(out.GetFloatAt(i, 3)),
			}.Clamped()
			dets = append(dets, Detection{
				ClassID:     best,
				ClassName:   d.names[best],
				Confidence:  conf,
				Box:         box,
				FrameWidth:  f.Width,
				FrameHeight: f.Height,
			})
		}
	}

	return Filter(dets, p), nil
}

// Close releases the network.
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.available {
		return nil
	}
	d.available = false
	return d.net.Close()
}
