package blocks

import (
	"math"

	"github.com/coreman2200/ledmatrix/internal/store"
)

// correction holds the literal gamma and per channel gain shared by Gamma
// and Dither.
type correction struct {
	gamma      float64
	rc, gc, bc float64
}

func newCorrection(a *Args) correction {
	return correction{
		gamma: a.Param("gamma"),
		rc:    a.Param("rc"),
		gc:    a.Param("gc"),
		bc:    a.Param("bc"),
	}
}

func (c correction) apply(in store.RealColor, scale, offset float64) store.Color {
	return store.Color{
		R: quantize(scale*c.rc*math.Pow(in.R, c.gamma) + offset),
		G: quantize(scale*c.gc*math.Pow(in.G, c.gamma) + offset),
		B: quantize(scale*c.bc*math.Pow(in.B, c.gamma) + offset),
	}
}

// quantize floors v into a byte, saturating at both ends. NaN maps to 0.
func quantize(v float64) uint8 {
	v = math.Floor(v)
	if !(v > 0) {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// Gamma converts a real color to display bytes. x and y are read by spatial
// variants only.
type Gamma struct {
	correction
	i, x, y, o int
}

func newGamma(a *Args) (Block, error) {
	b := Gamma{
		correction: newCorrection(a),
		i:          a.In("i", RealColor),
		x:          a.In("x", Scalar),
		y:          a.In("y", Scalar),
		o:          a.Out("o", Color),
	}
	return b, a.Err()
}

func (k Gamma) Execute(s *store.Store) {
	s.SetColor(k.o, k.apply(s.RealColor(k.i), 255, 0))
}

// ditherTable is the 8 level ordered dither in bit-reversed order.
var ditherTable = [8]float64{0.0 / 8, 4.0 / 8, 2.0 / 8, 6.0 / 8, 1.0 / 8, 5.0 / 8, 3.0 / 8, 7.0 / 8}

// DitherOffset returns the sub-LSB offset added at pixel (x, y) of the given
// frame.
func DitherOffset(x, y, frame float64) float64 {
	phase := int64(math.Round(x + 5*y + 3*frame))
	phase %= int64(len(ditherTable))
	if phase < 0 {
		phase += int64(len(ditherTable))
	}
	return ditherTable[phase]
}

// Dither is Gamma with a caller-supplied full scale and an ordered dither
// offset applied before quantization.
type Dither struct {
	correction
	scale, i, x, y, o int
}

func newDither(a *Args) (Block, error) {
	b := Dither{
		correction: newCorrection(a),
		scale:      a.In("scale", Scalar),
		i:          a.In("i", RealColor),
		x:          a.In("x", Scalar),
		y:          a.In("y", Scalar),
		o:          a.Out("o", Color),
	}
	return b, a.Err()
}

func (k Dither) Execute(s *store.Store) {
	off := DitherOffset(s.Scalar(k.x), s.Scalar(k.y), s.Scalar(store.ScalarFrame))
	s.SetColor(k.o, k.apply(s.RealColor(k.i), s.Scalar(k.scale), off))
}
