package imaging

import (
	"bytes"
	"image"
	"image/color"
	"testing"
)

func TestScaledHeight(t *testing.T) {
	tests := []struct {
		targetW, srcW, srcH, want int
	}{
		{1280, 1920, 1080, 720},
		{640, 1920, 1080, 360},
		{320, 1920, 1080, 180},
		{320, 1000, 1001, 320},
		{320, 10000, 1, 1},
	}
	for _, tt := range tests {
		if got := ScaledHeight(tt.targetW, tt.srcW, tt.srcH); got != tt.want {
			t.Errorf("ScaledHeight(%d, %d, %d) = %d, want %d", tt.targetW, tt.srcW, tt.srcH, got, tt.want)
		}
	}
}

func TestResizeAndRoundTrip(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		for y := 0; y < 20; y++ {
			src.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}

	out := Resize(src, 10, 5)
	if b := out.Bounds(); b.Dx() != 10 || b.Dy() != 5 {
		t.Fatalf("unexpected bounds %v", b)
	}

	var buf bytes.Buffer
	if err := EncodeJPEG(&buf, out, 60); err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if b := decoded.Bounds(); b.Dx() != 10 || b.Dy() != 5 {
		t.Errorf("unexpected decoded bounds %v", b)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode(bytes.NewReader([]byte("not an image"))); err == nil {
		t.Error("expected error")
	}
}
