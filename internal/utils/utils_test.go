package utils

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validUpload() UploadRules {
	return UploadRules{
		Title:     "Holiday",
		VideoMIME: "video/mp4",
	}
}

func TestValidateUpload(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(r *UploadRules)
		badFields []string
	}{
		{
			name:   "minimal valid upload",
			mutate: func(r *UploadRules) {},
		},
		{
			name:      "missing title",
			mutate:    func(r *UploadRules) { r.Title = "" },
			badFields: []string{"title"},
		},
		{
			name:      "video type not allowed",
			mutate:    func(r *UploadRules) { r.VideoMIME = "application/pdf" },
			badFields: []string{"video_file"},
		},
		{
			name:      "missing video",
			mutate:    func(r *UploadRules) { r.VideoMIME = "" },
			badFields: []string{"video_file"},
		},
		{
			name:      "text watermark without text",
			mutate:    func(r *UploadRules) { r.WatermarkType = "text" },
			badFields: []string{"watermark_text"},
		},
		{
			name: "text watermark with text",
			mutate: func(r *UploadRules) {
				r.WatermarkType = "text"
				r.WatermarkText = "@me"
				r.WatermarkPosition = "top-right"
			},
		},
		{
			name:      "image watermark without image",
			mutate:    func(r *UploadRules) { r.WatermarkType = "image" },
			badFields: []string{"watermark_image"},
		},
		{
			name: "image watermark with non-image file",
			mutate: func(r *UploadRules) {
				r.WatermarkType = "image"
				r.WatermarkImageMIME = "video/mp4"
			},
			badFields: []string{"watermark_image"},
		},
		{
			name: "image watermark with png",
			mutate: func(r *UploadRules) {
				r.WatermarkType = "image"
				r.WatermarkImageMIME = "image/png"
			},
		},
		{
			name:      "unknown watermark type",
			mutate:    func(r *UploadRules) { r.WatermarkType = "hologram" },
			badFields: []string{"watermark_type"},
		},
		{
			name:      "unknown position",
			mutate:    func(r *UploadRules) { r.WatermarkPosition = "center" },
			badFields: []string{"watermark_position"},
		},
		{
			name:      "thumbnail is not an image",
			mutate:    func(r *UploadRules) { r.ThumbnailMIME = "text/plain" },
			badFields: []string{"thumbnail_image"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := validUpload()
			tt.mutate(&rules)
			err := ValidateStruct(rules)

			if len(tt.badFields) == 0 {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			for _, f := range tt.badFields {
				if _, ok := verr.Fields[f]; !ok {
					t.Errorf("expected field %s in %v", f, verr.Fields)
				}
			}
		})
	}
}

func TestDetectMIMERewinds(t *testing.T) {
	png := "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"
	r := strings.NewReader(png)

	mime, err := DetectMIME(r)
	if err != nil {
		t.Fatal(err)
	}
	if mime != "image/png" {
		t.Errorf("expected image/png, got %s", mime)
	}
	if r.Len() != len(png) {
		t.Error("reader was not rewound")
	}
}

func TestJobTimeoutScalesWithSize(t *testing.T) {
	cfg := TimeoutConfig{
		JobBaseTimeout:   10 * time.Minute,
		JobTimeoutPerGiB: 30 * time.Minute,
		JobMaxTimeout:    time.Hour,
	}

	if got := cfg.JobTimeout(0); got != 10*time.Minute {
		t.Errorf("expected base timeout, got %v", got)
	}
	if got := cfg.JobTimeout(1 << 30); got != 40*time.Minute {
		t.Errorf("expected 40m for 1GiB, got %v", got)
	}
	if got := cfg.JobTimeout(10 << 30); got != time.Hour {
		t.Errorf("expected cap, got %v", got)
	}
}

func TestRandomCode(t *testing.T) {
	a := RandomCode(VideoCodeLength)
	b := RandomCode(VideoCodeLength)
	if len(a) != VideoCodeLength {
		t.Errorf("expected length %d, got %d", VideoCodeLength, len(a))
	}
	if a == b {
		t.Error("two random codes should differ")
	}
	for _, r := range a {
		if !strings.ContainsRune(codeAlphabet, r) {
			t.Errorf("unexpected rune %q", r)
		}
	}
}

func TestValidationErrorMessageIsStable(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"b": "is required", "a": "is invalid"}}
	if got := err.Error(); got != "validation failed: a: is invalid; b: is required" {
		t.Errorf("unexpected message %q", got)
	}
}
