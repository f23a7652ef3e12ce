// Package render runs the frame loop: it drains control events at frame
// boundaries, scans the matrix through the active block pipeline and hands
// each finished frame to the output.
package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/ledmatrix/internal/control"
	"github.com/coreman2200/ledmatrix/internal/diagnostics"
	"github.com/coreman2200/ledmatrix/internal/layout"
	"github.com/coreman2200/ledmatrix/internal/patterns"
	"github.com/coreman2200/ledmatrix/internal/pipeline"
	"github.com/coreman2200/ledmatrix/internal/store"
)

// Output is the frame sink. *led.Sync satisfies it.
type Output interface {
	Framebuffer() []byte
	Flush() error
	SetWhiteBias(store.RealColor)
}

type Options struct {
	Layout layout.Layout
	// Events is drained once per frame. Nil means no control plane.
	Events *control.Receiver
	// Diag receives reconfiguration and rejection reports. May be nil.
	Diag *diagnostics.Hub
	// Builder compiles SetConfig documents. Nil uses the default block set.
	Builder *pipeline.Builder
	// OnFrame, when set, sees every flushed frame. It runs on the frame
	// loop and must not keep fb.
	OnFrame func(frame uint64, fb []byte)
	// PatternHold is the number of frames each test pattern step is shown.
	PatternHold int
}

// Stats are cumulative frame loop counters.
type Stats struct {
	Frames    uint64 `json:"frames"`
	Events    uint64 `json:"events"`
	Reconfigs uint64 `json:"reconfigs"`
	Rejected  uint64 `json:"rejected"`
	Dropped   uint64 `json:"dropped"`
	Patterns  uint64 `json:"patterns"`
	Misses    uint64 `json:"misses"`
}

type Engine struct {
	opts    Options
	out     Output
	fb      []byte
	store   *store.Store
	pipe    *pipeline.Pipeline
	pattern *patterns.Runner
	frame   uint64
	stats   Stats
	dropped uint64

	// metrics of the last frame, in ms
	Last struct {
		ApplyMS  float64 `json:"apply_ms"`
		RenderMS float64 `json:"render_ms"`
		FlushMS  float64 `json:"flush_ms"`
		TotalMS  float64 `json:"total_ms"`
	}
}

// NewEngine starts with pipeline p and a store populated from its vars.
func NewEngine(p *pipeline.Pipeline, out Output, o Options) (*Engine, error) {
	if p == nil {
		return nil, errors.New("nil pipeline")
	}
	if out == nil {
		return nil, errors.New("nil output")
	}
	if err := o.Layout.Validate(); err != nil {
		return nil, err
	}
	fb := out.Framebuffer()
	if len(fb) < o.Layout.FrameBytes() {
		return nil, fmt.Errorf("framebuffer too short: %d < %d", len(fb), o.Layout.FrameBytes())
	}
	s, err := store.New(p.Snapshot)
	if err != nil {
		return nil, err
	}
	if o.Builder == nil {
		o.Builder = pipeline.NewBuilder()
	}
	return &Engine{opts: o, out: out, fb: fb, store: s, pipe: p}, nil
}

func (e *Engine) Pipeline() *pipeline.Pipeline { return e.pipe }

// Store is the live variable store. Only the frame loop goroutine may use it.
func (e *Engine) Store() *store.Store { return e.store }

func (e *Engine) Frame() uint64 { return e.frame }

func (e *Engine) Stats() Stats {
	st := e.stats
	st.Misses = e.store.Misses()
	return st
}

// Reconfigure builds raw and, only if that fully succeeds, replaces the
// pipeline and resets the store. On error nothing changes.
func (e *Engine) Reconfigure(raw []byte) error {
	p, err := e.opts.Builder.Build(raw)
	if err != nil {
		return err
	}
	if err := e.store.ResetFrom(p.Snapshot); err != nil {
		return err
	}
	e.pipe = p
	e.pattern = nil
	e.stats.Reconfigs++
	return nil
}

// ApplyPending drains every queued event in arrival order and returns how
// many were applied or rejected.
func (e *Engine) ApplyPending() int {
	if e.opts.Events == nil {
		return 0
	}
	n := e.opts.Events.Drain(e.apply)
	e.stats.Events += uint64(n)

	if d := e.opts.Events.Stats().Dropped; d > e.dropped {
		lost := d - e.dropped
		e.dropped = d
		e.stats.Dropped += lost
		e.opts.Diag.Publish(diagnostics.Diagnostic{
			Severity: diagnostics.Warn,
			Code:     diagnostics.EventsDropped,
			Summary:  "control events dropped, queue full",
			Evidence: map[string]any{"dropped": lost, "frame": e.frame},
		})
	}
	return n
}

func (e *Engine) apply(ev control.Event) {
	switch ev.Kind {
	case control.KindConfig:
		if err := e.Reconfigure(ev.Document); err != nil {
			e.stats.Rejected++
			e.opts.Diag.Publish(diagnostics.Diagnostic{
				Severity:       diagnostics.Err,
				Code:           diagnostics.ConfigRejected,
				Summary:        "configuration rejected, keeping current pipeline",
				Detail:         err.Error(),
				SuggestedFixes: []string{"validate the document against the schema", "check block slot indices"},
				Evidence:       map[string]any{"source": ev.Source, "bytes": len(ev.Document)},
			})
			return
		}
		e.opts.Diag.Publish(diagnostics.Diagnostic{
			Severity: diagnostics.Info,
			Code:     diagnostics.ConfigApplied,
			Summary:  "configuration applied",
			Evidence: map[string]any{
				"fingerprint": e.pipe.Fingerprint,
				"blocks":      len(e.pipe.Blocks),
				"source":      ev.Source,
			},
		})
	case control.KindWhite:
		e.out.SetWhiteBias(ev.RealColor)
	case control.KindPattern:
		k, err := patterns.Parse(ev.Pattern)
		if err != nil {
			e.opts.Diag.Publish(diagnostics.Diagnostic{
				Severity: diagnostics.Warn,
				Code:     diagnostics.PatternUnknown,
				Summary:  err.Error(),
			})
			return
		}
		e.pattern = patterns.NewRunner(patterns.Plan{Kind: k, Hold: e.opts.PatternHold})
		e.stats.Patterns++
		e.opts.Diag.Publish(diagnostics.Diagnostic{
			Severity: diagnostics.Info,
			Code:     diagnostics.PatternStarted,
			Summary:  "test pattern " + string(k),
		})
	default:
		if !ev.Apply(e.store) {
			e.stats.Rejected++
			e.opts.Diag.Publish(diagnostics.Diagnostic{
				Severity: diagnostics.Warn,
				Code:     diagnostics.SlotRejected,
				Summary:  fmt.Sprintf("%s index %d out of range", ev.Kind, ev.Index),
				Evidence: map[string]any{"counts": e.store.Counts()},
			})
		}
	}
}

// scan evaluates the pipeline once per LED and writes Color[0] into the
// framebuffer.
func (e *Engine) scan() {
	l := e.opts.Layout
	s := e.store
	blocks := e.pipe.Blocks

	s.SetScalar(store.ScalarFrame, float64(e.frame))
	for x := 0; x < l.LEDCount; x++ {
		s.SetScalar(store.ScalarX, float64(x))
		for y := 0; y < l.StringCount; y++ {
			s.SetScalar(store.ScalarY, float64(y))
			for _, b := range blocks {
				b.Execute(s)
			}
			l.Set(e.fb, x, y, s.Color(store.ColorOutput))
		}
	}
}

// RenderFrame runs one whole frame: apply events, fill the framebuffer,
// flush. A flush error is returned as is and should end the loop.
func (e *Engine) RenderFrame() error {
	start := time.Now()
	e.ApplyPending()
	applied := time.Now()

	if e.pattern != nil && !e.pattern.Step(e.opts.Layout, e.fb) {
		e.pattern = nil
	}
	if e.pattern == nil {
		e.scan()
	}
	rendered := time.Now()

	if err := e.out.Flush(); err != nil {
		return err
	}
	flushed := time.Now()

	if e.opts.OnFrame != nil {
		e.opts.OnFrame(e.frame, e.fb[:e.opts.Layout.FrameBytes()])
	}
	e.frame++
	e.stats.Frames++

	e.Last.ApplyMS = ms(applied.Sub(start))
	e.Last.RenderMS = ms(rendered.Sub(applied))
	e.Last.FlushMS = ms(flushed.Sub(rendered))
	e.Last.TotalMS = ms(flushed.Sub(start))
	return nil
}

// Run renders frames until frames have been produced (0 runs forever), ctx
// is done, or a flush fails. ctx is only checked between frames.
func (e *Engine) Run(ctx context.Context, frames uint64) (Stats, error) {
	log.Info().
		Str("fingerprint", e.pipe.Fingerprint).
		Int("blocks", len(e.pipe.Blocks)).
		Uint64("frames", frames).
		Msg("frame loop start")
	for n := uint64(0); frames == 0 || n < frames; n++ {
		if ctx.Err() != nil {
			break
		}
		if err := e.RenderFrame(); err != nil {
			return e.Stats(), fmt.Errorf("frame %d: %w", e.frame, err)
		}
	}
	return e.Stats(), nil
}

func ms(d time.Duration) float64 { return float64(d.Microseconds()) / 1000.0 }
