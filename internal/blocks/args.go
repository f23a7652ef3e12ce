package blocks

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/coreman2200/ledmatrix/internal/store"
)

// Args reads typed keys out of a Descriptor. The first failure is kept and
// later reads become no-ops, so constructors can read every key and check
// Err once.
type Args struct {
	index  int
	desc   Descriptor
	counts store.Counts
	err    error
}

func (a *Args) Err() error { return a.err }

func (a *Args) fail(section, key string, err error) {
	if a.err != nil {
		return
	}
	a.err = &BuildError{Index: a.index, Type: a.desc.Type, Section: section, Key: key, Err: err}
}

func (a *Args) limit(k Kind) int {
	switch k {
	case Scalar:
		return a.counts.Scalars
	case Position:
		return a.counts.Positions
	case Color:
		return a.counts.Colors
	case RealColor:
		return a.counts.RealColors
	case Data:
		return a.counts.Data
	}
	return 0
}

func (a *Args) raw(section string, m map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	if a.err != nil {
		return nil, false
	}
	v, ok := m[key]
	if !ok {
		a.fail(section, key, ErrMissing)
		return nil, false
	}
	if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		a.fail(section, key, fmt.Errorf("%w: null", ErrWrongType))
		return nil, false
	}
	return v, true
}

func (a *Args) slot(section string, m map[string]json.RawMessage, key string, k Kind) int {
	v, ok := a.raw(section, m, key)
	if !ok {
		return 0
	}
	var idx uint
	if err := json.Unmarshal(v, &idx); err != nil {
		a.fail(section, key, fmt.Errorf("%w: want %s index", ErrWrongType, k))
		return 0
	}
	if idx >= uint(a.limit(k)) {
		a.fail(section, key, fmt.Errorf("%w: %s[%d] of %d", ErrOutOfRange, k, idx, a.limit(k)))
		return 0
	}
	return int(idx)
}

func (a *Args) slots(section string, m map[string]json.RawMessage, key string, k Kind) []int {
	v, ok := a.raw(section, m, key)
	if !ok {
		return nil
	}
	var idx []uint
	if err := json.Unmarshal(v, &idx); err != nil {
		a.fail(section, key, fmt.Errorf("%w: want list of %s indices", ErrWrongType, k))
		return nil
	}
	out := make([]int, len(idx))
	for i, n := range idx {
		if n >= uint(a.limit(k)) {
			a.fail(section, key, fmt.Errorf("%w: %s[%d] of %d", ErrOutOfRange, k, n, a.limit(k)))
			return nil
		}
		out[i] = int(n)
	}
	return out
}

// In reads a single input slot index.
func (a *Args) In(key string, k Kind) int { return a.slot("inputs", a.desc.Inputs, key, k) }

// InList reads a list of input slot indices.
func (a *Args) InList(key string, k Kind) []int { return a.slots("inputs", a.desc.Inputs, key, k) }

// Out reads a single output slot index.
func (a *Args) Out(key string, k Kind) int { return a.slot("outputs", a.desc.Outputs, key, k) }

// Param reads a literal numeric parameter.
func (a *Args) Param(key string) float64 {
	v, ok := a.raw("params", a.desc.Params, key)
	if !ok {
		return 0
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		a.fail("params", key, fmt.Errorf("%w: want number", ErrWrongType))
		return 0
	}
	return f
}

// Check records err against key unless an earlier read already failed.
func (a *Args) Check(section, key string, err error) {
	if err != nil {
		a.fail(section, key, err)
	}
}
