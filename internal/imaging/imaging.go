// Package imaging decodes, scales and encodes still images.
package imaging

import (
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Decode reads a JPEG, PNG, GIF or WebP image.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Resize scales src to exactly w x h with Catmull-Rom resampling.
func Resize(src image.Image, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

// ScaledHeight keeps the aspect ratio of a srcW x srcH image at targetW.
func ScaledHeight(targetW, srcW, srcH int) int {
	return max(1, int(math.Round(float64(targetW)/float64(srcW)*float64(srcH))))
}

func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}

func EncodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}
