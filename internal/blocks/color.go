package blocks

import (
	"fmt"
	"math"

	"github.com/coreman2200/ledmatrix/internal/store"
)

// ScalarHsv2Rgb converts h, s, v (each 0..1) to a real color.
type ScalarHsv2Rgb struct{ h, s, v, o int }

func newScalarHsv2Rgb(a *Args) (Block, error) {
	b := ScalarHsv2Rgb{
		h: a.In("h", Scalar),
		s: a.In("s", Scalar),
		v: a.In("v", Scalar),
		o: a.Out("o", RealColor),
	}
	return b, a.Err()
}

func (k ScalarHsv2Rgb) Execute(s *store.Store) {
	s.SetRealColor(k.o, HSV(s.Scalar(k.h), s.Scalar(k.s), s.Scalar(k.v)))
}

// HSV is the six sector conversion with the m = v - c offset added to every
// channel. s and v are clamped to [0, 1]; h wraps.
func HSV(h, s, v float64) store.RealColor {
	v = clamp(v, 0, 1)
	c := v * clamp(s, 0, 1)
	m := v - c

	hp := h * 6
	x := c * (1 - math.Abs(remEuclid(hp, 2)-1))

	switch int(remEuclid(math.Floor(hp), 6)) {
	case 0:
		return store.RealColor{R: c + m, G: x + m, B: m}
	case 1:
		return store.RealColor{R: x + m, G: c + m, B: m}
	case 2:
		return store.RealColor{R: m, G: c + m, B: x + m}
	case 3:
		return store.RealColor{R: m, G: x + m, B: c + m}
	case 4:
		return store.RealColor{R: x + m, G: m, B: c + m}
	default:
		return store.RealColor{R: c + m, G: m, B: x + m}
	}
}

// ColorInterp maps val through a piecewise linear color table.
type ColorInterp struct {
	color []int
	point []int
	val   int
	o     int
}

func newColorInterp(a *Args) (Block, error) {
	b := ColorInterp{
		color: a.InList("color", RealColor),
		point: a.InList("point", Scalar),
		val:   a.In("val", Scalar),
		o:     a.Out("o", RealColor),
	}
	if a.Err() == nil {
		switch {
		case len(b.point) == 0:
			a.Check("inputs", "point", fmt.Errorf("%w: empty table", ErrLength))
		case len(b.color) != len(b.point):
			a.Check("inputs", "color", fmt.Errorf("%w: %d colors, %d points", ErrLength, len(b.color), len(b.point)))
		}
	}
	return b, a.Err()
}

func (k ColorInterp) Execute(s *store.Store) {
	val := s.Scalar(k.val)
	n := len(k.point)

	i := 0
	for i < n && val > s.Scalar(k.point[i]) {
		i++
	}
	switch {
	case i == 0:
		// at or below the first point
		s.SetRealColor(k.o, s.RealColor(k.color[0]))
		return
	case i == n:
		// past the last point; clamp instead of extrapolating
		s.SetRealColor(k.o, s.RealColor(k.color[n-1]))
		return
	}

	p0, p1 := s.Scalar(k.point[i-1]), s.Scalar(k.point[i])
	c0, c1 := s.RealColor(k.color[i-1]), s.RealColor(k.color[i])
	if p1 <= p0 {
		s.SetRealColor(k.o, c1)
		return
	}
	s.SetRealColor(k.o, Lerp(c0, c1, (val-p0)/(p1-p0)))
}

// Lerp mixes a and b by alpha.
func Lerp(a, b store.RealColor, alpha float64) store.RealColor {
	return store.RealColor{
		R: a.R*(1-alpha) + b.R*alpha,
		G: a.G*(1-alpha) + b.G*alpha,
		B: a.B*(1-alpha) + b.B*alpha,
	}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
