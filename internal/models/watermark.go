package models

// WatermarkType is the persisted discriminator of a Watermark
type WatermarkType string

const (
	WatermarkTypeNone  WatermarkType = "none"
	WatermarkTypeText  WatermarkType = "text"
	WatermarkTypeImage WatermarkType = "image"
)

// WatermarkPosition is the frame corner a watermark is anchored to
type WatermarkPosition string

const (
	TopLeft     WatermarkPosition = "top-left"
	TopRight    WatermarkPosition = "top-right"
	BottomLeft  WatermarkPosition = "bottom-left"
	BottomRight WatermarkPosition = "bottom-right"
)

// DefaultWatermarkPosition is used when an upload names a watermark but no corner.
const DefaultWatermarkPosition = BottomRight

// Valid reports whether p names one of the four corners.
func (p WatermarkPosition) Valid() bool {
	switch p {
	case TopLeft, TopRight, BottomLeft, BottomRight:
		return true
	}
	return false
}

// Watermark is one of NoWatermark, TextWatermark or ImageWatermark.
type Watermark interface {
	Type() WatermarkType
}

type NoWatermark struct{}

func (NoWatermark) Type() WatermarkType { return WatermarkTypeNone }

type TextWatermark struct {
	Text     string
	Position WatermarkPosition
}

func (TextWatermark) Type() WatermarkType { return WatermarkTypeText }

// ImageWatermark references the uploaded source image by blob key.
type ImageWatermark struct {
	BlobKey  string
	Position WatermarkPosition
}

func (ImageWatermark) Type() WatermarkType { return WatermarkTypeImage }
