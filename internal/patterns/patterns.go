// Package patterns draws wiring test patterns straight into the
// framebuffer, bypassing the block pipeline.
package patterns

import (
	"fmt"

	"github.com/coreman2200/ledmatrix/internal/layout"
	"github.com/coreman2200/ledmatrix/internal/store"
)

type Kind string

const (
	None Kind = ""
	// IndexSweep lights one LED per step in framebuffer order.
	IndexSweep Kind = "index_sweep"
	// RGBChannels shows full red, then green, then blue.
	RGBChannels Kind = "rgb_channels"
	// StringSweep lights one whole string per step.
	StringSweep Kind = "string_sweep"
)

func Kinds() []Kind { return []Kind{IndexSweep, RGBChannels, StringSweep} }

func Parse(name string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == name {
			return k, nil
		}
	}
	return None, fmt.Errorf("unknown pattern %q", name)
}

var (
	white = store.Color{R: 255, G: 255, B: 255}
	rgb   = [3]store.Color{{R: 255}, {G: 255}, {B: 255}}
)

type Plan struct {
	Kind Kind
	// Hold is how many frames each step stays up. Zero means one.
	Hold int
}

type Runner struct {
	plan Plan
	step int
	held int
}

func NewRunner(plan Plan) *Runner {
	if plan.Hold <= 0 {
		plan.Hold = 1
	}
	return &Runner{plan: plan}
}

func (r *Runner) Kind() Kind { return r.plan.Kind }

// Steps is the number of distinct steps the pattern has on l.
func (r *Runner) Steps(l layout.Layout) int {
	switch r.plan.Kind {
	case IndexSweep:
		return l.Count()
	case RGBChannels:
		return len(rgb)
	case StringSweep:
		return l.StringCount
	}
	return 0
}

// Step draws the next frame into fb; returns false when complete, leaving fb
// untouched.
func (r *Runner) Step(l layout.Layout, fb []byte) bool {
	if r.step >= r.Steps(l) {
		return false
	}
	clear(fb[:l.FrameBytes()])

	switch r.plan.Kind {
	case IndexSweep:
		if x, y, ok := l.Coords(r.step * layout.BytesPerLED); ok {
			l.Set(fb, x, y, white)
		}
	case RGBChannels:
		for y := 0; y < l.StringCount; y++ {
			for x := 0; x < l.LEDCount; x++ {
				l.Set(fb, x, y, rgb[r.step])
			}
		}
	case StringSweep:
		for x := 0; x < l.LEDCount; x++ {
			l.Set(fb, x, r.step, white)
		}
	}

	r.held++
	if r.held >= r.plan.Hold {
		r.held = 0
		r.step++
	}
	return true
}
