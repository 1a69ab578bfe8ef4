package detect

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/media"
)

var classPalette = []color.RGBA{
	{G: 255, A: 255},         // green
	{R: 255, A: 255},         // red
	{B: 255, A: 255},         // blue
	{R: 255, G: 165, A: 255}, // orange
	{R: 255, G: 255, A: 255}, // yellow
	{R: 255, B: 255, A: 255}, // magenta
}

// Annotate burns detection boxes and labels into a copy of the frame.
// When degraded is set (detector unavailable) a banner is drawn instead,
// so viewers can tell inference is down without losing the live picture.
func Annotate(f *media.Frame, dets []Detection, degraded bool) (*media.Frame, error) {
	mat, err := media.MatFromFrame(f)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	out := mat.Clone()
	defer out.Close()

	if degraded {
		gocv.PutText(&out, "detector unavailable", image.Pt(10, 30),
			gocv.FontHersheySimplex, 0.8, color.RGBA{R: 255, A: 255}, 2)
	}

	for _, d := range dets {
		c := classPalette[d.ClassID%len(classPalette)]
		rect := d.PixelRect()
		gocv.Rectangle(&out, rect, c, 2)

		label := fmt.Sprintf("%s: %.2f", d.ClassName, d.Confidence)
		origin := image.Pt(rect.Min.X, rect.Min.Y-5)
		if origin.Y < 15 {
			origin.Y = rect.Min.Y + 15
		}
		gocv.PutText(&out, label, origin, gocv.FontHersheySimplex, 0.5,
			color.RGBA{R: 255, G: 255, B: 255, A: 255}, 2)
	}

	return media.FrameFromMat(out, f.CapturedAt)
}
