// Package store holds the typed, indexed variable containers that render
// blocks read and write.
//
// A Store is owned by a single goroutine (the frame loop) and is not safe
// for concurrent use. Per-pixel accessors are fail-safe: an index outside a
// container reads as the zero value and writes are dropped. Each such miss
// is counted so it can be surfaced in diagnostics.
package store

import (
	"errors"
	"fmt"
)

// ErrReservedSlots is returned by ResetFrom when a snapshot lacks the
// scalar or color slots the frame scanner binds.
var ErrReservedSlots = errors.New("snapshot is missing reserved slots")

type Store struct {
	scalars    []float64
	positions  []Position
	colors     []Color
	rcolors    []RealColor
	data       []Data
	misses     uint64
	generation uint64
}

// New returns a store populated from snap.
func New(snap Snapshot) (*Store, error) {
	s := &Store{}
	if err := s.ResetFrom(snap); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks that snap can back a frame scan.
func Validate(snap Snapshot) error {
	if len(snap.Scalars) <= ScalarY {
		return fmt.Errorf("%w: need at least %d scalars, have %d", ErrReservedSlots, ScalarY+1, len(snap.Scalars))
	}
	if len(snap.Colors) <= ColorOutput {
		return fmt.Errorf("%w: need at least %d colors, have %d", ErrReservedSlots, ColorOutput+1, len(snap.Colors))
	}
	return nil
}

// ResetFrom discards every container and repopulates it from snap. On error
// the store is left untouched.
func (s *Store) ResetFrom(snap Snapshot) error {
	if err := Validate(snap); err != nil {
		return err
	}
	c := snap.Clone()
	s.scalars = c.Scalars
	s.positions = c.Positions
	s.colors = c.Colors
	s.rcolors = c.RealColors
	s.data = c.Data
	s.misses = 0
	s.generation++
	return nil
}

// Snapshot returns a deep copy of the current contents.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		Scalars:    s.scalars,
		Positions:  s.positions,
		Colors:     s.colors,
		RealColors: s.rcolors,
		Data:       s.data,
	}.Clone()
}

func (s *Store) Counts() Counts {
	return Counts{
		Scalars:    len(s.scalars),
		Positions:  len(s.positions),
		Colors:     len(s.colors),
		RealColors: len(s.rcolors),
		Data:       len(s.data),
	}
}

// Misses is the number of out-of-range accesses since the last reset.
func (s *Store) Misses() uint64 { return s.misses }

// Generation increments on every successful ResetFrom.
func (s *Store) Generation() uint64 { return s.generation }

func (s *Store) Scalar(i int) float64 {
	if i < 0 || i >= len(s.scalars) {
		s.misses++
		return 0
	}
	return s.scalars[i]
}

func (s *Store) SetScalar(i int, v float64) bool {
	if i < 0 || i >= len(s.scalars) {
		s.misses++
		return false
	}
	s.scalars[i] = v
	return true
}

func (s *Store) Position(i int) Position {
	if i < 0 || i >= len(s.positions) {
		s.misses++
		return Position{}
	}
	return s.positions[i]
}

func (s *Store) SetPosition(i int, v Position) bool {
	if i < 0 || i >= len(s.positions) {
		s.misses++
		return false
	}
	s.positions[i] = v
	return true
}

func (s *Store) Color(i int) Color {
	if i < 0 || i >= len(s.colors) {
		s.misses++
		return Color{}
	}
	return s.colors[i]
}

func (s *Store) SetColor(i int, v Color) bool {
	if i < 0 || i >= len(s.colors) {
		s.misses++
		return false
	}
	s.colors[i] = v
	return true
}

func (s *Store) RealColor(i int) RealColor {
	if i < 0 || i >= len(s.rcolors) {
		s.misses++
		return RealColor{}
	}
	return s.rcolors[i]
}

func (s *Store) SetRealColor(i int, v RealColor) bool {
	if i < 0 || i >= len(s.rcolors) {
		s.misses++
		return false
	}
	s.rcolors[i] = v
	return true
}

// Data returns the buffer at i without copying. Callers must not retain it
// across a SetData or ResetFrom.
func (s *Store) Data(i int) Data {
	if i < 0 || i >= len(s.data) {
		s.misses++
		return nil
	}
	return s.data[i]
}

// SetData replaces the buffer at i. The store takes ownership of v.
func (s *Store) SetData(i int, v Data) bool {
	if i < 0 || i >= len(s.data) {
		s.misses++
		return false
	}
	s.data[i] = v
	return true
}
