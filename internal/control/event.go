// Package control carries reconfiguration and parameter events from the
// control plane into the frame loop.
package control

import (
	"github.com/coreman2200/ledmatrix/internal/store"
)

// Kind names an event. The values double as transport op names.
type Kind string

const (
	KindConfig    Kind = "set_config"
	KindScalar    Kind = "set_scalar"
	KindPosition  Kind = "set_position"
	KindColor     Kind = "set_color"
	KindRealColor Kind = "set_rcolor"
	KindData      Kind = "set_data"
	KindWhite     Kind = "set_white_led"
	KindPattern   Kind = "run_pattern"
)

// Kinds lists every event kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindConfig, KindScalar, KindPosition, KindColor, KindRealColor, KindData, KindWhite, KindPattern}
}

// Event is one control message. Only the fields for Kind are set.
type Event struct {
	Kind  Kind
	Index int

	Document  []byte
	Scalar    float64
	Position  store.Position
	Color     store.Color
	RealColor store.RealColor
	Data      store.Data
	Pattern   string

	// Source is informational ("http", "mqtt", "show", ...).
	Source string
}

func SetConfig(doc []byte) Event { return Event{Kind: KindConfig, Document: doc} }

func SetScalar(i int, v float64) Event { return Event{Kind: KindScalar, Index: i, Scalar: v} }

func SetPosition(i int, v store.Position) Event {
	return Event{Kind: KindPosition, Index: i, Position: v}
}

func SetColor(i int, v store.Color) Event { return Event{Kind: KindColor, Index: i, Color: v} }

func SetRealColor(i int, v store.RealColor) Event {
	return Event{Kind: KindRealColor, Index: i, RealColor: v}
}

func SetData(i int, v store.Data) Event { return Event{Kind: KindData, Index: i, Data: v} }

func SetWhite(v store.RealColor) Event { return Event{Kind: KindWhite, RealColor: v} }

func RunPattern(name string) Event { return Event{Kind: KindPattern, Pattern: name} }

// Apply writes a slot event into s. It reports false for kinds that do not
// address a store slot and for indices outside the store.
func (e Event) Apply(s *store.Store) bool {
	switch e.Kind {
	case KindScalar:
		return s.SetScalar(e.Index, e.Scalar)
	case KindPosition:
		return s.SetPosition(e.Index, e.Position)
	case KindColor:
		return s.SetColor(e.Index, e.Color)
	case KindRealColor:
		return s.SetRealColor(e.Index, e.RealColor)
	case KindData:
		return s.SetData(e.Index, e.Data)
	}
	return false
}
