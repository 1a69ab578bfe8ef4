package detect

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBBoxClamped(t *testing.T) {
	b := BBox{CX: -0.2, CY: 1.4, W: 0.5, H: 2}.Clamped()
	assert.Equal(t, BBox{CX: 0, CY: 1, W: 0.5, H: 1}, b)
}

func TestPixelRectClipsToFrame(t *testing.T) {
	d := Detection{
		Box:         BBox{CX: 0.95, CY: 0.5, W: 0.3, H: 0.4},
		FrameWidth:  640,
		FrameHeight: 480,
	}
	r := d.PixelRect()
	assert.True(t, r.In(image.Rect(0, 0, 640, 480)))
	assert.Equal(t, 640, r.Max.X)
}

func TestFilterByConfidence(t *testing.T) {
	dets := []Detection{
		{ClassName: "person", Confidence: 0.9},
		{ClassName: "person", Confidence: 0.2},
	}
	out := Filter(dets, Params{MinConfidence: 0.5})
	require.Len(t, out, 1)
	assert.Equal(t, 0.9, out[0].Confidence)
}

func TestFilterByClass(t *testing.T) {
	dets := []Detection{
		{ClassName: "person", Confidence: 0.9},
		{ClassName: "car", Confidence: 0.9},
		{ClassName: "kite", Confidence: 0.9},
	}
	out := Filter(dets, Params{Classes: []string{"person", "car"}})
	require.Len(t, out, 2)
	assert.Equal(t, "person", out[0].ClassName)
	assert.Equal(t, "car", out[1].ClassName)
}

func TestFilterEmptyClassListPassesAll(t *testing.T) {
	dets := []Detection{
		{ClassName: "person", Confidence: 0.9},
		{ClassName: "car", Confidence: 0.9},
	}
	assert.Len(t, Filter(dets, Params{}), 2)
}

func TestFilterClampsBoxes(t *testing.T) {
	dets := []Detection{
		{ClassName: "person", Confidence: 0.9, Box: BBox{CX: 1.2, CY: 0.5, W: 0.1, H: 0.1}},
	}
	out := Filter(dets, Params{})
	require.Len(t, out, 1)
	assert.Equal(t, 1.0, out[0].Box.CX)
}
