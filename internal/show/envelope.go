package show

import (
	"sort"

	"gopkg.in/yaml.v3"
)

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func easeApply(kind string, x float64) float64 {
	switch kind {
	case "smooth":
		return x * x * (3 - 2*x)
	case "cubic":
		// 6x^5 - 15x^4 + 10x^3
		return x * x * x * (x*(x*6-15) + 10)
	}
	return x
}

// UnmarshalYAML accepts a plain keyframe list, or a single number for a
// constant envelope.
func (e *Envelope) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		var v float64
		if err := n.Decode(&v); err != nil {
			return err
		}
		e.Keys = []Keyframe{{V: v}}
		return nil
	}
	if err := n.Decode(&e.Keys); err != nil {
		return err
	}
	sort.SliceStable(e.Keys, func(i, j int) bool { return e.Keys[i].T < e.Keys[j].T })
	return nil
}

func (e Envelope) MarshalYAML() (any, error) { return e.Keys, nil }

// Eval returns the value at t. It holds the first and last values outside
// the keyed range; an empty envelope is 0.
func (e Envelope) Eval(t float64) float64 {
	n := len(e.Keys)
	if n == 0 {
		return 0
	}
	if t <= e.Keys[0].T {
		return e.Keys[0].V
	}
	if t >= e.Keys[n-1].T {
		return e.Keys[n-1].V
	}
	// first key after t
	i := sort.Search(n, func(i int) bool { return e.Keys[i].T > t })
	a, b := e.Keys[i-1], e.Keys[i]
	den := b.T - a.T
	if den <= 0 {
		return b.V
	}
	u := easeApply(a.Ease, clamp01((t-a.T)/den))
	return a.V + (b.V-a.V)*u
}
