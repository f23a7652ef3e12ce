package blocks

import (
	"math"

	"github.com/coreman2200/ledmatrix/internal/store"
)

// LED pitch is wider along y than x; lookups stretch y to keep images square.
const aspectY = 2.2

const maxImageSide = 1024

// Lookup modes read from the mode slot. Anything but Tile is Single.
const (
	ModeSingle = 0
	ModeTile   = 1
)

// ImageLookup samples a packed row-major RGB buffer.
type ImageLookup struct {
	width, height int
	x, y          int
	mode, data    int
	o             int
}

func newImageLookup(a *Args) (Block, error) {
	b := ImageLookup{
		width:  a.In("width", Scalar),
		height: a.In("height", Scalar),
		x:      a.In("x", Scalar),
		y:      a.In("y", Scalar),
		mode:   a.In("mode", Scalar),
		data:   a.In("data", Data),
		o:      a.Out("o", Color),
	}
	return b, a.Err()
}

func (k ImageLookup) Execute(s *store.Store) {
	s.SetColor(k.o, Sample(
		s.Data(k.data),
		s.Scalar(k.width), s.Scalar(k.height),
		s.Scalar(k.x), s.Scalar(k.y),
		int(math.Round(s.Scalar(k.mode))),
	))
}

// Sample returns the pixel of data under (x, y*aspect). Coordinates that
// miss the image, or a buffer too short for the index, give black.
func Sample(data []byte, width, height, x, y float64, mode int) store.Color {
	w := clamp(math.Round(width), 1, maxImageSide)
	h := clamp(math.Round(height), 1, maxImageSide)
	y *= aspectY

	var i, j int
	if mode == ModeTile {
		i = int(remEuclid(math.Round(remEuclid(x, w)), w))
		j = int(remEuclid(math.Round(remEuclid(y, h)), h))
	} else {
		if x < 0 || x >= w || y < 0 || y >= h {
			return store.Color{}
		}
		// [w-0.5, w) rounds up to w; keep it on the last column (row).
		i = int(math.Min(math.Round(x), w-1))
		j = int(math.Min(math.Round(y), h-1))
	}

	idx := 3 * (i + j*int(w))
	if idx < 0 || idx+2 >= len(data) {
		return store.Color{}
	}
	return store.Color{R: data[idx], G: data[idx+1], B: data[idx+2]}
}
