package diagnostics

import (
	"time"

	"github.com/rs/zerolog"
)

type Severity string

const (
	Info Severity = "info"
	Warn Severity = "warning"
	Err  Severity = "error"
)

// Codes published by the frame loop and the control plane.
const (
	ConfigApplied  = "CONFIG.APPLIED"
	ConfigRejected = "CONFIG.REJECTED"
	SlotRejected   = "CONTROL.SLOT_REJECTED"
	EventsDropped  = "CONTROL.DROPPED"
	PatternStarted = "PATTERN.STARTED"
	PatternUnknown = "PATTERN.UNKNOWN"
)

type Diagnostic struct {
	Time           time.Time      `json:"time"`
	Severity       Severity       `json:"severity"`
	Code           string         `json:"code"`
	Summary        string         `json:"summary"`
	Detail         string         `json:"detail,omitempty"`
	LikelyCauses   []string       `json:"likely_causes,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty"`
	Evidence       map[string]any `json:"evidence,omitempty"`
}

func (s Severity) Level() zerolog.Level {
	switch s {
	case Warn:
		return zerolog.WarnLevel
	case Err:
		return zerolog.ErrorLevel
	}
	return zerolog.InfoLevel
}
