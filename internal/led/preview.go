package led

import (
	"image"
	"image/color"

	"periph.io/x/conn/v3/display"
	"periph.io/x/extra/devices/screen"

	"github.com/coreman2200/ledmatrix/internal/layout"
)

// Preview renders one string of each frame onto a display.Drawer, by default
// an ANSI console strip.
type Preview struct {
	drawer display.Drawer
	layout layout.Layout
	img    *image.NRGBA
	// String is the y coordinate shown.
	String int
	// Every shows one frame in Every; zero or one shows all.
	Every int
	n     int
}

func NewConsolePreview(l layout.Layout) *Preview {
	return NewPreview(screen.New(l.LEDCount), l)
}

func NewPreview(d display.Drawer, l layout.Layout) *Preview {
	return &Preview{
		drawer: d,
		layout: l,
		img:    image.NewNRGBA(image.Rect(0, 0, l.LEDCount, 1)),
	}
}

// Show draws frame if it is due.
func (p *Preview) Show(frame []byte) error {
	p.n++
	if p.Every > 1 && p.n%p.Every != 0 {
		return nil
	}
	y := p.String
	if y < 0 || y >= p.layout.StringCount {
		y = 0
	}
	for x := 0; x < p.layout.LEDCount; x++ {
		c := p.layout.At(frame, x, y)
		p.img.SetNRGBA(x, 0, color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255})
	}
	return p.drawer.Draw(p.drawer.Bounds(), p.img, image.Point{})
}

// Image is the last drawn strip.
func (p *Preview) Image() *image.NRGBA { return p.img }
