// Package texture decodes material images into RGBA textures.
package texture

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // JPEG decoder registration
	_ "image/png"  // PNG decoder registration
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"  // BMP decoder registration
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // WebP decoder registration (EXT_texture_webp)

	"github.com/Faultbox/instructmesh/internal/engine/scene"
)

// MaxSize is the largest edge kept on upload; bigger images are scaled down.
const MaxSize = 4096

// Decode decodes an encoded image. The format is taken from mimeType or,
// when that is empty, from the name's extension, and sniffed otherwise.
func Decode(name string, data []byte, mimeType string) (*scene.Texture, error) {
	var (
		img image.Image
		err error
	)
	if mimeType == "image/x-tga" || strings.EqualFold(filepath.Ext(name), ".tga") {
		img, err = DecodeTGA(data)
	} else {
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("decoding texture %s: %w", name, err)
	}
	return FromImage(name, img, MaxSize), nil
}

// FromImage converts img to a tightly packed RGBA texture, scaling it down so
// neither edge exceeds maxSize.
func FromImage(name string, img image.Image, maxSize int) *scene.Texture {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSize > 0 && (w > maxSize || h > maxSize) {
		if w >= h {
			w, h = maxSize, max(1, h*maxSize/b.Dx())
		} else {
			w, h = max(1, w*maxSize/b.Dy()), maxSize
		}
	}

	rgba, ok := img.(*image.RGBA)
	if !ok || w != b.Dx() || h != b.Dy() || b.Min != (image.Point{}) || rgba.Stride != 4*w {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		if w == b.Dx() && h == b.Dy() {
			draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		} else {
			draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		}
		rgba = dst
	}

	return &scene.Texture{Name: name, Width: w, Height: h, Pix: rgba.Pix}
}
