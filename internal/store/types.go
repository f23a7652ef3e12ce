package store

// Position is a 2D point in store space.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Color is a display-ready 8-bit color.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// RealColor is a normalized color, nominally 0..1 per channel.
type RealColor struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// Data is a raw byte buffer. In documents it is base64 encoded.
type Data []byte

// Reserved slots rebound by the frame scanner.
const (
	ScalarFrame = 0
	ScalarX     = 1
	ScalarY     = 2
	ColorOutput = 0
)

// Snapshot is the literal content of every container, as found in the
// "vars" stanza of a document.
type Snapshot struct {
	Scalars    []float64   `json:"float"`
	Positions  []Position  `json:"position"`
	Colors     []Color     `json:"color"`
	RealColors []RealColor `json:"rcolor"`
	Data       []Data      `json:"data"`
}

// Counts reports the length of each container.
type Counts struct {
	Scalars, Positions, Colors, RealColors, Data int
}

func (s Snapshot) Counts() Counts {
	return Counts{
		Scalars:    len(s.Scalars),
		Positions:  len(s.Positions),
		Colors:     len(s.Colors),
		RealColors: len(s.RealColors),
		Data:       len(s.Data),
	}
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Scalars:    append([]float64(nil), s.Scalars...),
		Positions:  append([]Position(nil), s.Positions...),
		Colors:     append([]Color(nil), s.Colors...),
		RealColors: append([]RealColor(nil), s.RealColors...),
		Data:       make([]Data, len(s.Data)),
	}
	for i, d := range s.Data {
		out.Data[i] = append(Data(nil), d...)
	}
	return out
}
