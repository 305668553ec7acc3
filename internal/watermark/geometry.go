// Package watermark computes watermark placement relative to the video frame.
package watermark

import (
	"fmt"
	"math"

	"vidpipe/internal/models"
)

// ScaleFactorForAspect picks the base scale factor for a width/height ratio.
func ScaleFactorForAspect(aspect float64) float64 {
	switch {
	case aspect > 1.78:
		return 0.10
	case aspect < 1.0:
		return 0.20
	default:
		return 0.15
	}
}

// ScaleFactor is ScaleFactorForAspect(w/h).
func ScaleFactor(w, h int) float64 {
	return ScaleFactorForAspect(float64(w) / float64(h))
}

// FontSize is the drawtext size for a frame of width w.
func FontSize(w int, sf float64) int {
	return max(12, int(math.Round(float64(w)*sf/20)))
}

// Padding is the distance kept from the anchored corner.
func Padding(w int) int {
	return max(10, int(math.Round(float64(w)*0.01)))
}

// Geometry is everything derived from the frame size
type Geometry struct {
	ScaleFactor float64
	FontSize    int
	Padding     int
	TargetW     float64
	TargetH     float64
}

func ForFrame(w, h int) Geometry {
	sf := ScaleFactor(w, h)
	return Geometry{
		ScaleFactor: sf,
		FontSize:    FontSize(w, sf),
		Padding:     Padding(w),
		TargetW:     float64(w) * sf,
		TargetH:     float64(h) * sf,
	}
}

// FitImage scales a srcW x srcH image uniformly into the target box so its
// aspect ratio is preserved. Sides are rounded and never below 1.
func (g Geometry) FitImage(srcW, srcH int) (int, int) {
	k := math.Min(g.TargetW/float64(srcW), g.TargetH/float64(srcH))
	w := max(1, int(math.Round(float64(srcW)*k)))
	h := max(1, int(math.Round(float64(srcH)*k)))
	return w, h
}

// TextAnchor returns drawtext x/y expressions for the corner.
func TextAnchor(pos models.WatermarkPosition, pad int) (string, string) {
	return anchor(pos, pad, "w-tw", "h-th")
}

// OverlayAnchor returns overlay x/y expressions for the corner.
func OverlayAnchor(pos models.WatermarkPosition, pad int) (string, string) {
	return anchor(pos, pad, "W-w", "H-h")
}

func anchor(pos models.WatermarkPosition, pad int, right, bottom string) (string, string) {
	near := fmt.Sprintf("%d", pad)
	farX := fmt.Sprintf("%s-%d", right, pad)
	farY := fmt.Sprintf("%s-%d", bottom, pad)

	switch pos {
	case models.TopLeft:
		return near, near
	case models.TopRight:
		return farX, near
	case models.BottomLeft:
		return near, farY
	default:
		return farX, farY
	}
}
