package screenshot

import (
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func fixedWriter(dir string) *Writer {
	w := NewWriter(dir, "shot")
	w.now = func() time.Time { return time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC) }
	return w
}

func TestFilename(t *testing.T) {
	w := fixedWriter("out")
	want := filepath.Join("out", "shot_2024-03-05_14-07-09.png")
	if got := w.Filename(); got != want {
		t.Errorf("Filename() = %q, want %q", got, want)
	}
	if got := fixedWriter("").Filename(); got != "shot_2024-03-05_14-07-09.png" {
		t.Errorf("Filename() without dir = %q", got)
	}
}

func TestFlipRGBA(t *testing.T) {
	// Two rows: bottom red, top blue.
	pixels := []byte{
		255, 0, 0, 255,
		0, 0, 255, 255,
	}
	img := FlipRGBA(pixels, 1, 2)
	if got := img.RGBAAt(0, 0); got != (color.RGBA{0, 0, 255, 255}) {
		t.Errorf("top row = %v, want blue", got)
	}
	if got := img.RGBAAt(0, 1); got != (color.RGBA{255, 0, 0, 255}) {
		t.Errorf("bottom row = %v, want red", got)
	}
}

func TestSavePixels(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	w := fixedWriter(dir)

	pixels := make([]byte, 2*2*4)
	for i := range pixels {
		pixels[i] = 200
	}
	name, err := w.SavePixels(pixels, 2, 2)
	if err != nil {
		t.Fatalf("SavePixels: %v", err)
	}

	f, err := os.Open(name)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 2 || b.Dy() != 2 {
		t.Errorf("bounds = %v, want 2x2", b)
	}
}

func TestSavePixelsSizeMismatch(t *testing.T) {
	w := fixedWriter(t.TempDir())
	if _, err := w.SavePixels(make([]byte, 10), 2, 2); err == nil {
		t.Error("expected size mismatch error")
	}
}
