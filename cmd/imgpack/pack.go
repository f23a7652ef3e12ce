package main

import (
	"fmt"
	"image"
	"io"
	"math"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Packed is an image as image_lookup reads it: row-major RGB, 3 bytes per
// pixel.
type Packed struct {
	Width, Height int
	RGB           []byte
}

// Decode reads any registered image format.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// Fit scales img down so neither side exceeds maxW x maxH, keeping the
// aspect ratio. Zero bounds are ignored.
func Fit(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	f := 1.0
	if maxW > 0 && w > maxW {
		f = math.Min(f, float64(maxW)/float64(w))
	}
	if maxH > 0 && h > maxH {
		f = math.Min(f, float64(maxH)/float64(h))
	}
	if f == 1 {
		return img
	}
	dst := image.NewNRGBA(image.Rect(0, 0, max(1, int(math.Round(float64(w)*f))), max(1, int(math.Round(float64(h)*f)))))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Pack flattens img, scaling every channel by brightness.
func Pack(img image.Image, brightness float64) Packed {
	b := img.Bounds()
	p := Packed{Width: b.Dx(), Height: b.Dy(), RGB: make([]byte, 0, b.Dx()*b.Dy()*3)}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			p.RGB = append(p.RGB, scale8(r, brightness), scale8(g, brightness), scale8(bl, brightness))
		}
	}
	return p
}

func scale8(v uint32, k float64) byte {
	f := math.Round(float64(v>>8) * k)
	if f < 0 {
		return 0
	}
	if f > 255 {
		return 255
	}
	return byte(f)
}

// Sketch draws lit pixels as '1' and dark ones as '0', one row per line.
func (p Packed) Sketch() string {
	var sb strings.Builder
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			i := 3 * (x + y*p.Width)
			if p.RGB[i]|p.RGB[i+1]|p.RGB[i+2] != 0 {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
