package watermark

import (
	"bytes"
	"fmt"
	"image"

	"vidpipe/internal/imaging"
	"vidpipe/internal/media"
	"vidpipe/internal/models"
	"vidpipe/internal/storage"
)

// Text style burned in for text watermarks
const (
	TextColor     = "white@0.75"
	TextBoxColor  = "black@0.5"
	TextBoxBorder = 5
)

// TextFilter builds the drawtext descriptor for a frame of w x h.
func TextFilter(wm models.TextWatermark, w, h int, fontFile string) media.DrawText {
	g := ForFrame(w, h)
	x, y := TextAnchor(position(wm.Position), g.Padding)
	return media.DrawText{
		Text:      wm.Text,
		FontFile:  fontFile,
		FontSize:  g.FontSize,
		FontColor: TextColor,
		BoxColor:  TextBoxColor,
		BoxBorder: TextBoxBorder,
		X:         x,
		Y:         y,
	}
}

// ResizedKey is where the fitted copy of an image watermark is stored for a video.
func ResizedKey(videoCode string) string {
	return fmt.Sprintf("%s/resized_%s.png", storage.PrefixWatermarks, videoCode)
}

// PrepareImage loads the watermark source, fits it to the frame and stores
// the result as PNG under dstKey. It returns the overlay descriptor.
func PrepareImage(store storage.Storage, wm models.ImageWatermark, w, h int, dstKey string) (media.OverlayImage, error) {
	src, err := loadImage(store, wm.BlobKey)
	if err != nil {
		return media.OverlayImage{}, err
	}

	g := ForFrame(w, h)
	b := src.Bounds()
	fw, fh := g.FitImage(b.Dx(), b.Dy())

	var buf bytes.Buffer
	if err := imaging.EncodePNG(&buf, imaging.Resize(src, fw, fh)); err != nil {
		return media.OverlayImage{}, fmt.Errorf("encode watermark: %w", err)
	}
	if _, err := storage.Put(store, dstKey, &buf); err != nil {
		return media.OverlayImage{}, err
	}

	x, y := OverlayAnchor(position(wm.Position), g.Padding)
	return media.OverlayImage{BlobKey: dstKey, X: x, Y: y}, nil
}

func loadImage(store storage.Storage, key string) (image.Image, error) {
	r, err := storage.Get(store, key)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	img, err := imaging.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode watermark %s: %w", key, err)
	}
	return img, nil
}

func position(p models.WatermarkPosition) models.WatermarkPosition {
	if p.Valid() {
		return p
	}
	return models.DefaultWatermarkPosition
}
