// Package blocks implements the render block instruction set: small,
// immutable computation units that read and write store slots once per
// pixel.
package blocks

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/coreman2200/ledmatrix/internal/store"
)

// Block executes against the store for one pixel.
type Block interface {
	Execute(s *store.Store)
}

// Descriptor is one entry of a document's "primitives" list.
type Descriptor struct {
	Type    string                     `json:"type"`
	Inputs  map[string]json.RawMessage `json:"inputs,omitempty"`
	Outputs map[string]json.RawMessage `json:"outputs,omitempty"`
	Params  map[string]json.RawMessage `json:"params,omitempty"`
}

// Kind identifies the store container a slot index refers to.
type Kind int

const (
	Scalar Kind = iota
	Position
	Color
	RealColor
	Data
)

func (k Kind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case Position:
		return "position"
	case Color:
		return "color"
	case RealColor:
		return "rcolor"
	case Data:
		return "data"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

var (
	ErrUnknownType = errors.New("unknown block type")
	ErrMissing     = errors.New("missing key")
	ErrWrongType   = errors.New("wrong value type")
	ErrOutOfRange  = errors.New("slot index out of range")
	ErrLength      = errors.New("mismatched vector lengths")
)

// BuildError locates a construction failure within a document.
type BuildError struct {
	Index   int
	Type    string
	Section string
	Key     string
	Err     error
}

func (e *BuildError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("primitive %d (%s): %v", e.Index, e.Type, e.Err)
	}
	return fmt.Sprintf("primitive %d (%s): %s.%s: %v", e.Index, e.Type, e.Section, e.Key, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Constructor builds a block from parsed arguments. It should read every key
// it needs through a and return a.Err() if any of them failed.
type Constructor func(a *Args) (Block, error)

type Registry struct{ m map[string]Constructor }

func NewRegistry() *Registry { return &Registry{m: map[string]Constructor{}} }

func (r *Registry) Register(name string, c Constructor) {
	if c == nil {
		return
	}
	r.m[name] = c
}

func (r *Registry) Get(name string) (Constructor, bool) { c, ok := r.m[name]; return c, ok }

func (r *Registry) List() []string {
	out := make([]string, 0, len(r.m))
	for k := range r.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build constructs the block at position index of a document whose vars
// have the given container sizes.
func (r *Registry) Build(index int, d Descriptor, counts store.Counts) (Block, error) {
	c, ok := r.Get(d.Type)
	if !ok {
		return nil, &BuildError{Index: index, Type: d.Type, Err: ErrUnknownType}
	}
	a := &Args{index: index, desc: d, counts: counts}
	b, err := c(a)
	if err != nil {
		var be *BuildError
		if errors.As(err, &be) {
			return nil, err
		}
		return nil, &BuildError{Index: index, Type: d.Type, Err: err}
	}
	return b, nil
}

// Default returns a registry holding every built-in block.
func Default() *Registry {
	r := NewRegistry()
	r.Register("scalar_add", newScalarAdd)
	r.Register("scalar_macc", newScalarMacc)
	r.Register("scalar_ramp", newScalarRamp)
	r.Register("scalar_triangle", newScalarTriangle)
	r.Register("scalar_hsv2rgb", newScalarHsv2Rgb)
	r.Register("color_interp", newColorInterp)
	r.Register("gamma", newGamma)
	r.Register("dither", newDither)
	r.Register("image_lookup", newImageLookup)
	return r
}
