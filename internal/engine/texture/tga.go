package texture

import (
	"errors"
	"fmt"
	"image"
)

// TGA image types.
const (
	tgaTrueColor    = 2
	tgaTrueColorRLE = 10
)

var errTGATruncated = errors.New("TGA data truncated")

// DecodeTGA decodes uncompressed or RLE true-color TGA images, 24 or 32 bit.
// OBJ material libraries still reference them.
func DecodeTGA(data []byte) (*image.RGBA, error) {
	if len(data) < 18 {
		return nil, fmt.Errorf("TGA data too short")
	}

	idLength := int(data[0])
	if data[1] != 0 {
		return nil, fmt.Errorf("color-mapped TGA not supported")
	}
	imageType := data[2]
	if imageType != tgaTrueColor && imageType != tgaTrueColorRLE {
		return nil, fmt.Errorf("unsupported TGA type %d", imageType)
	}
	width := int(data[12]) | int(data[13])<<8
	height := int(data[14]) | int(data[15])<<8
	bpp := int(data[16])
	if bpp != 24 && bpp != 32 {
		return nil, fmt.Errorf("unsupported TGA bit depth %d", bpp)
	}
	topToBottom := data[17]&0x20 != 0

	if 18+idLength > len(data) {
		return nil, errTGATruncated
	}
	r := &tgaReader{data: data[18+idLength:], stride: bpp / 8, rle: imageType == tgaTrueColorRLE}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		px, err := r.next()
		if err != nil {
			return nil, err
		}
		x, y := i%width, i/width
		if !topToBottom {
			y = height - 1 - y
		}
		copy(img.Pix[img.PixOffset(x, y):], px[:])
	}
	return img, nil
}

// tgaReader yields RGBA pixels from raw or run-length encoded BGR(A) data.
type tgaReader struct {
	data   []byte
	pos    int
	stride int
	rle    bool

	left   int  // pixels remaining in the current packet
	repeat bool // current packet repeats one pixel
	last   [4]byte
}

func (r *tgaReader) next() ([4]byte, error) {
	if !r.rle {
		return r.read()
	}
	if r.left == 0 {
		if r.pos >= len(r.data) {
			return [4]byte{}, errTGATruncated
		}
		header := r.data[r.pos]
		r.pos++
		r.left = int(header&0x7F) + 1
		r.repeat = header&0x80 != 0
		if r.repeat {
			px, err := r.read()
			if err != nil {
				return px, err
			}
			r.last = px
		}
	}
	r.left--
	if r.repeat {
		return r.last, nil
	}
	return r.read()
}

func (r *tgaReader) read() ([4]byte, error) {
	if r.pos+r.stride > len(r.data) {
		return [4]byte{}, errTGATruncated
	}
	p := r.data[r.pos:]
	px := [4]byte{p[2], p[1], p[0], 255}
	if r.stride == 4 {
		px[3] = p[3]
	}
	r.pos += r.stride
	return px, nil
}
