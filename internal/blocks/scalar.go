package blocks

import (
	"fmt"
	"math"

	"github.com/coreman2200/ledmatrix/internal/store"
)

// ScalarAdd: o = a + b.
type ScalarAdd struct{ a, b, o int }

func newScalarAdd(a *Args) (Block, error) {
	b := ScalarAdd{
		a: a.In("a", Scalar),
		b: a.In("b", Scalar),
		o: a.Out("o", Scalar),
	}
	return b, a.Err()
}

func (k ScalarAdd) Execute(s *store.Store) {
	s.SetScalar(k.o, s.Scalar(k.a)+s.Scalar(k.b))
}

// ScalarMacc: o = sum(m[i] * x[i]).
type ScalarMacc struct {
	m, x []int
	o    int
}

func newScalarMacc(a *Args) (Block, error) {
	b := ScalarMacc{
		m: a.InList("m", Scalar),
		x: a.InList("x", Scalar),
		o: a.Out("o", Scalar),
	}
	if a.Err() == nil && len(b.m) != len(b.x) {
		a.Check("inputs", "x", fmt.Errorf("%w: m has %d, x has %d", ErrLength, len(b.m), len(b.x)))
	}
	return b, a.Err()
}

func (k ScalarMacc) Execute(s *store.Store) {
	var out float64
	for i := range k.m {
		out += s.Scalar(k.m[i]) * s.Scalar(k.x[i])
	}
	s.SetScalar(k.o, out)
}

// periodic is the shared slot layout of ScalarRamp and ScalarTriangle.
type periodic struct{ f, min, max, i, o int }

func newPeriodic(a *Args) periodic {
	return periodic{
		f:   a.In("f", Scalar),
		min: a.In("min", Scalar),
		max: a.In("max", Scalar),
		i:   a.In("i", Scalar),
		o:   a.Out("o", Scalar),
	}
}

// ScalarRamp is a sawtooth of frequency f over [min, max).
type ScalarRamp struct{ periodic }

func newScalarRamp(a *Args) (Block, error) {
	return ScalarRamp{newPeriodic(a)}, a.Err()
}

func (k ScalarRamp) Execute(s *store.Store) {
	s.SetScalar(k.o, Ramp(s.Scalar(k.f), s.Scalar(k.min), s.Scalar(k.max), s.Scalar(k.i)))
}

// ScalarTriangle is a symmetric triangle wave of period 1/f, peaking at
// phase 0 and 1, min at phase 0.5.
type ScalarTriangle struct{ periodic }

func newScalarTriangle(a *Args) (Block, error) {
	return ScalarTriangle{newPeriodic(a)}, a.Err()
}

func (k ScalarTriangle) Execute(s *store.Store) {
	s.SetScalar(k.o, Triangle(s.Scalar(k.f), s.Scalar(k.min), s.Scalar(k.max), s.Scalar(k.i)))
}

// Phase returns the fractional part of i*f in [0, 1), also for negative
// products.
func Phase(f, i float64) float64 {
	return remEuclid(i*f, 1)
}

func Ramp(f, min, max, i float64) float64 {
	return Phase(f, i)*(max-min) + min
}

func Triangle(f, min, max, i float64) float64 {
	return math.Abs(Phase(f, i)-0.5)*2*(max-min) + min
}

// remEuclid is the Euclidean remainder of a by b (b > 0), always in [0, b).
func remEuclid(a, b float64) float64 {
	r := math.Mod(a, b)
	if r < 0 {
		r += b
	}
	if r >= b {
		return 0
	}
	return r
}
