package render

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/ledmatrix/internal/blocks"
	"github.com/coreman2200/ledmatrix/internal/control"
	"github.com/coreman2200/ledmatrix/internal/diagnostics"
	"github.com/coreman2200/ledmatrix/internal/layout"
	"github.com/coreman2200/ledmatrix/internal/led"
	"github.com/coreman2200/ledmatrix/internal/pipeline"
	"github.com/coreman2200/ledmatrix/internal/store"
)

type fakeOutput struct {
	fb      []byte
	flushes int
	white   store.RealColor
	err     error
}

func (o *fakeOutput) Framebuffer() []byte            { return o.fb }
func (o *fakeOutput) SetWhiteBias(c store.RealColor) { o.white = c }
func (o *fakeOutput) Flush() error {
	if o.err != nil {
		return o.err
	}
	o.flushes++
	return nil
}

// probe writes (x, y, frame + Scalar[3]) to Color[0].
type probe struct{ o int }

func (p probe) Execute(s *store.Store) {
	s.SetColor(p.o, store.Color{
		R: uint8(s.Scalar(store.ScalarX)),
		G: uint8(s.Scalar(store.ScalarY)),
		B: uint8(s.Scalar(store.ScalarFrame) + s.Scalar(3)),
	})
}

func testBuilder() *pipeline.Builder {
	r := blocks.Default()
	r.Register("probe", func(a *blocks.Args) (blocks.Block, error) {
		return probe{o: a.Out("o", blocks.Color)}, a.Err()
	})
	return &pipeline.Builder{Registry: r}
}

func probeDoc(scalar3 float64) []byte {
	return []byte(fmt.Sprintf(`{
  "vars": {"float": [0, 0, 0, %g], "color": [{"r": 0, "g": 0, "b": 0}]},
  "primitives": [{"type": "probe", "outputs": {"o": 0}}]
}`, scalar3))
}

const solidDoc = `{
  "vars": {"float": [0, 0, 0], "color": [{"r": 9, "g": 8, "b": 7}]},
  "primitives": []
}`

type rig struct {
	eng  *Engine
	out  *fakeOutput
	bus  *control.Bus
	hub  *diagnostics.Hub
	lay  layout.Layout
	pipe *pipeline.Pipeline
}

func newRig(t *testing.T, doc []byte, capacity int) *rig {
	t.Helper()
	lay := layout.Layout{Geometry: layout.Geometry{LEDCount: 4, StringCount: 2}, Order: layout.RGB}
	b := testBuilder()
	p, err := b.Build(doc)
	require.NoError(t, err)

	bus := control.NewBus(capacity)
	rx, err := bus.Subscribe("engine")
	require.NoError(t, err)
	hub := diagnostics.NewHub(16)
	out := &fakeOutput{fb: make([]byte, lay.FrameBytes())}

	eng, err := NewEngine(p, out, Options{Layout: lay, Events: rx, Diag: hub, Builder: b, PatternHold: 1})
	require.NoError(t, err)
	return &rig{eng: eng, out: out, bus: bus, hub: hub, lay: lay, pipe: p}
}

func codes(h *diagnostics.Hub) []string {
	var out []string
	for _, d := range h.Recent() {
		out = append(out, d.Code)
	}
	return out
}

func TestScanBindsCoordinatesAndFrame(t *testing.T) {
	r := newRig(t, probeDoc(10), 0)
	for frame := 0; frame < 2; frame++ {
		require.NoError(t, r.eng.RenderFrame())
		for x := 0; x < r.lay.LEDCount; x++ {
			for y := 0; y < r.lay.StringCount; y++ {
				want := store.Color{R: uint8(x), G: uint8(y), B: uint8(10 + frame)}
				assert.Equal(t, want, r.lay.At(r.out.fb, x, y), "frame %d (%d,%d)", frame, x, y)
			}
		}
	}
	assert.Equal(t, 2, r.out.flushes)
	assert.Equal(t, uint64(2), r.eng.Frame())
	assert.GreaterOrEqual(t, r.eng.Last.TotalMS, r.eng.Last.RenderMS)
}

func TestEmptyPipelineShowsColorZero(t *testing.T) {
	r := newRig(t, []byte(solidDoc), 0)
	require.NoError(t, r.eng.RenderFrame())
	for i := 0; i < r.lay.Count(); i++ {
		assert.Equal(t, []byte{9, 8, 7}, r.out.fb[i*3:i*3+3])
	}
}

func TestSlotEventsApplyAtFrameBoundary(t *testing.T) {
	r := newRig(t, probeDoc(0), 0)
	require.NoError(t, r.bus.Publish(control.SetScalar(3, 40)))
	require.NoError(t, r.bus.Publish(control.SetScalar(3, 50)))
	require.NoError(t, r.eng.RenderFrame())

	assert.Equal(t, store.Color{R: 1, G: 1, B: 50}, r.lay.At(r.out.fb, 1, 1))
	assert.Equal(t, uint64(2), r.eng.Stats().Events)
}

func TestRejectedConfigKeepsPipelineAndStore(t *testing.T) {
	r := newRig(t, probeDoc(5), 0)
	require.NoError(t, r.bus.Publish(control.SetScalar(3, 20)))
	require.NoError(t, r.eng.RenderFrame())
	gen := r.eng.Store().Generation()

	bad := [][]byte{
		[]byte(`{"vars":{"float":[0,0,0],"color":[{"r":0,"g":0,"b":0}]},"primitives":[{"type":"nope"}]}`),
		[]byte(`{"vars":{"float":[0,0,0],"color":[{"r":0,"g":0,"b":0}]},"primitives":[{"type":"scalar_add","inputs":{"a":0,"b":99},"outputs":{"o":0}}]}`),
		[]byte(`{"vars":{"float":[0],"color":[]},"primitives":[]}`),
		[]byte(`not json`),
	}
	for _, doc := range bad {
		require.NoError(t, r.bus.Publish(control.SetConfig(doc)))
	}
	require.NoError(t, r.eng.RenderFrame())

	assert.Same(t, r.pipe, r.eng.Pipeline())
	assert.Equal(t, gen, r.eng.Store().Generation())
	assert.Equal(t, 20.0, r.eng.Store().Scalar(3))
	assert.Equal(t, store.Color{R: 2, G: 0, B: 21}, r.lay.At(r.out.fb, 2, 0))
	assert.Equal(t, uint64(len(bad)), r.eng.Stats().Rejected)
	assert.Contains(t, codes(r.hub), diagnostics.ConfigRejected)
}

func TestConfigSwapResetsStore(t *testing.T) {
	r := newRig(t, probeDoc(5), 0)
	require.NoError(t, r.bus.Publish(control.SetScalar(3, 20)))
	require.NoError(t, r.eng.RenderFrame())

	next := probeDoc(7)
	require.NoError(t, r.bus.Publish(control.SetConfig(next)))
	// lands on the new store, after the swap
	require.NoError(t, r.bus.Publish(control.SetScalar(3, 30)))
	require.NoError(t, r.eng.RenderFrame())

	assert.NotSame(t, r.pipe, r.eng.Pipeline())
	assert.Equal(t, pipeline.Fingerprint(next), r.eng.Pipeline().Fingerprint)
	assert.Equal(t, 30.0, r.eng.Store().Scalar(3))
	assert.Equal(t, uint64(1), r.eng.Stats().Reconfigs)
	assert.Contains(t, codes(r.hub), diagnostics.ConfigApplied)

	require.NoError(t, r.bus.Publish(control.SetConfig([]byte(solidDoc))))
	require.NoError(t, r.eng.RenderFrame())
	assert.Equal(t, store.Color{R: 9, G: 8, B: 7}, r.lay.At(r.out.fb, 3, 1))
	assert.Equal(t, 3, r.eng.Store().Counts().Scalars)
}

func TestConfigAfterPokesShowsOnlyNewSnapshot(t *testing.T) {
	r := newRig(t, probeDoc(5), 0)
	for v := 100.0; v < 105; v++ {
		require.NoError(t, r.bus.Publish(control.SetScalar(3, v)))
	}
	require.NoError(t, r.bus.Publish(control.SetConfig(probeDoc(7))))
	require.NoError(t, r.eng.RenderFrame())

	assert.Equal(t, 7.0, r.eng.Store().Scalar(3))
	for x := 0; x < r.lay.LEDCount; x++ {
		for y := 0; y < r.lay.StringCount; y++ {
			assert.Equal(t, uint8(7), r.lay.At(r.out.fb, x, y).B, "(%d,%d)", x, y)
		}
	}
	assert.Equal(t, uint64(6), r.eng.Stats().Events)
	assert.Equal(t, uint64(1), r.eng.Stats().Reconfigs)
}

func TestOutOfRangeSlotRejected(t *testing.T) {
	r := newRig(t, probeDoc(0), 0)
	require.NoError(t, r.bus.Publish(control.SetScalar(4, 1)))
	require.NoError(t, r.bus.Publish(control.SetColor(3, store.Color{})))
	require.NoError(t, r.eng.RenderFrame())
	assert.Equal(t, uint64(2), r.eng.Stats().Rejected)
	assert.Contains(t, codes(r.hub), diagnostics.SlotRejected)
}

func TestDroppedEventsReported(t *testing.T) {
	r := newRig(t, probeDoc(0), 2)
	for i := 0; i < 5; i++ {
		require.NoError(t, r.bus.Publish(control.SetScalar(3, float64(i))))
	}
	require.NoError(t, r.eng.RenderFrame())
	st := r.eng.Stats()
	assert.Equal(t, uint64(3), st.Dropped)
	assert.Equal(t, uint64(2), st.Events)
	// latest value survives drop-oldest
	assert.Equal(t, 4.0, r.eng.Store().Scalar(3))
	assert.Contains(t, codes(r.hub), diagnostics.EventsDropped)

	require.NoError(t, r.eng.RenderFrame())
	assert.Equal(t, uint64(3), r.eng.Stats().Dropped)
}

func TestWhiteBiasEvent(t *testing.T) {
	r := newRig(t, probeDoc(0), 0)
	c := store.RealColor{R: 0.5, G: 0.25, B: 1}
	require.NoError(t, r.bus.Publish(control.SetWhite(c)))
	require.NoError(t, r.eng.RenderFrame())
	assert.Equal(t, c, r.out.white)
}

func TestPatternOverridesPipeline(t *testing.T) {
	r := newRig(t, []byte(solidDoc), 0)
	require.NoError(t, r.bus.Publish(control.RunPattern("string_sweep")))

	white := store.Color{R: 255, G: 255, B: 255}
	for y := 0; y < r.lay.StringCount; y++ {
		require.NoError(t, r.eng.RenderFrame())
		assert.Equal(t, white, r.lay.At(r.out.fb, 0, y))
		assert.Equal(t, store.Color{}, r.lay.At(r.out.fb, 0, 1-y))
	}
	require.NoError(t, r.eng.RenderFrame())
	assert.Equal(t, store.Color{R: 9, G: 8, B: 7}, r.lay.At(r.out.fb, 0, 0))
	assert.Equal(t, uint64(1), r.eng.Stats().Patterns)

	require.NoError(t, r.bus.Publish(control.RunPattern("plane_z")))
	require.NoError(t, r.eng.RenderFrame())
	assert.Contains(t, codes(r.hub), diagnostics.PatternUnknown)
}

func TestRunFrameCount(t *testing.T) {
	r := newRig(t, probeDoc(0), 0)
	st, err := r.eng.Run(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), st.Frames)
	assert.Equal(t, 3, r.out.flushes)
}

func TestRunStopsOnCancel(t *testing.T) {
	r := newRig(t, probeDoc(0), 0)
	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	r.eng.opts.OnFrame = func(uint64, []byte) {
		n++
		if n == 2 {
			cancel()
		}
	}
	st, err := r.eng.Run(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), st.Frames)
}

func TestRunReturnsFlushError(t *testing.T) {
	r := newRig(t, probeDoc(0), 0)
	boom := errors.New("dma fault")
	r.out.err = boom
	_, err := r.eng.Run(context.Background(), 5)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(0), r.eng.Stats().Frames)
}

func TestNewEngineChecks(t *testing.T) {
	p, err := pipeline.Build([]byte(solidDoc))
	require.NoError(t, err)
	lay := layout.Layout{Geometry: layout.Geometry{LEDCount: 4, StringCount: 2}, Order: layout.BRG}

	_, err = NewEngine(nil, &fakeOutput{}, Options{Layout: lay})
	assert.Error(t, err)
	_, err = NewEngine(p, &fakeOutput{fb: make([]byte, 3)}, Options{Layout: lay})
	assert.Error(t, err)
	_, err = NewEngine(p, &fakeOutput{fb: make([]byte, 24)}, Options{Layout: layout.Layout{Geometry: layout.Geometry{LEDCount: 4, StringCount: 3}}})
	assert.Error(t, err)
}

func TestRainbowOverSim(t *testing.T) {
	raw, err := pipeline.LoadFile("../pipeline/testdata/rainbow.json")
	require.NoError(t, err)
	p, err := pipeline.Build(raw)
	require.NoError(t, err)

	g := layout.Geometry{LEDCount: 118, StringCount: 24}
	var frames [][]byte
	sim := led.NewSim(led.SimOptions{
		FBSize:  0x4000,
		OnFlush: func(f []byte) { frames = append(frames, append([]byte(nil), f...)) },
	})
	sync, err := led.NewSync(sim, g, led.Options{})
	require.NoError(t, err)

	eng, err := NewEngine(p, sync, Options{Layout: layout.Layout{Geometry: g, Order: layout.BRG}})
	require.NoError(t, err)
	_, err = eng.Run(context.Background(), 2)
	require.NoError(t, err)

	require.Len(t, frames, 2)
	assert.Len(t, frames[0], g.FrameBytes())
	assert.NotEqual(t, frames[0], frames[1], "the hue ramp advances with the frame counter")
	assert.Zero(t, eng.Stats().Misses)
}
