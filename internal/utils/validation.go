package utils

import (
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

// AllowedVideoMIMETypes is the allow-list for uploaded originals
var AllowedVideoMIMETypes = []string{
	"video/mp4",
	"video/quicktime",
	"video/x-msvideo",
	"video/x-matroska",
	"video/webm",
	"video/mpeg",
	"video/x-flv",
	"video/3gpp",
}

// AllowedImageMIMETypes covers thumbnail sources and watermark images
var AllowedImageMIMETypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
}

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	validate.RegisterValidation("video_mime", func(fl validator.FieldLevel) bool {
		return mimetype.EqualsAny(fl.Field().String(), AllowedVideoMIMETypes...)
	})
	validate.RegisterValidation("image_mime", func(fl validator.FieldLevel) bool {
		return mimetype.EqualsAny(fl.Field().String(), AllowedImageMIMETypes...)
	})
}

// UploadRules is the flattened upload form checked before any side effect.
// File fields carry the sniffed MIME type, empty when no file was sent.
type UploadRules struct {
	Title              string `form:"title" validate:"required,max=255"`
	Description        string `form:"description" validate:"max=5000"`
	VideoMIME          string `form:"video_file" validate:"required,video_mime"`
	WatermarkType      string `form:"watermark_type" validate:"omitempty,oneof=none text image"`
	WatermarkText      string `form:"watermark_text" validate:"required_if=WatermarkType text,max=200"`
	WatermarkImageMIME string `form:"watermark_image" validate:"required_if=WatermarkType image,omitempty,image_mime"`
	WatermarkPosition  string `form:"watermark_position" validate:"omitempty,oneof=top-left top-right bottom-left bottom-right"`
	ThumbnailMIME      string `form:"thumbnail_image" validate:"omitempty,image_mime"`
}

// EditRules is the video edit form
type EditRules struct {
	Title         string `form:"title" validate:"required,max=255"`
	Description   string `form:"description" validate:"max=5000"`
	ThumbnailMIME string `form:"thumbnail_image" validate:"omitempty,image_mime"`
}

// ValidateStruct runs the rules on s and returns a *ValidationError keyed by
// form field name.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = validationMessage(fe)
	}
	return &ValidationError{Fields: fields}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return fmt.Sprintf("is required when %s", strings.Replace(fe.Param(), " ", " is ", 1))
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "video_mime":
		return fmt.Sprintf("unsupported video type %q", fe.Value())
	case "image_mime":
		return fmt.Sprintf("unsupported image type %q", fe.Value())
	default:
		return "is invalid"
	}
}

// DetectMIME sniffs the content type of r and rewinds it.
func DetectMIME(r io.ReadSeeker) (string, error) {
	m, err := mimetype.DetectReader(r)
	if err != nil {
		return "", fmt.Errorf("detect content type: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind upload: %w", err)
	}
	return strings.SplitN(m.String(), ";", 2)[0], nil
}
