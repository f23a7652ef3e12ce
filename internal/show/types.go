// Package show plays a timed program of pipeline documents, automating
// scalar slots with keyframe envelopes. It drives the frame loop only
// through control events.
package show

// Keyframe is a value at time T (seconds into the clip). Ease shapes the
// segment that starts here.
type Keyframe struct {
	T    float64 `yaml:"t" json:"t"`
	V    float64 `yaml:"v" json:"v"`
	Ease string  `yaml:"ease,omitempty" json:"ease,omitempty"` // "linear", "smooth", "cubic"
}

// Envelope is a list of keyframes sorted by T.
type Envelope struct {
	Keys []Keyframe
}

// Clip shows one document for DurationS seconds.
type Clip struct {
	Name      string  `yaml:"name"`
	Document  string  `yaml:"document"` // path, relative to the show file
	DurationS float64 `yaml:"duration_s"`
	// Scalars maps store scalar slots to envelopes evaluated every tick.
	Scalars map[int]Envelope `yaml:"scalars,omitempty"`
	// Pattern, when set, is started after the document is applied.
	Pattern string `yaml:"pattern,omitempty"`

	doc []byte
}

type Program struct {
	Version string `yaml:"version"` // "show.v1"
	Loop    bool   `yaml:"loop,omitempty"`
	Clips   []Clip `yaml:"clips"`
}

type PlayerState string

const (
	Idle    PlayerState = "idle"
	Running PlayerState = "running"
	Paused  PlayerState = "paused"
)

// Hooks receive what the player wants changed.
type Hooks struct {
	SetConfig  func(clip string, doc []byte)
	SetScalar  func(index int, v float64)
	RunPattern func(name string)
}
