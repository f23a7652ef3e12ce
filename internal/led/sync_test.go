package led

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/ledmatrix/internal/layout"
	"github.com/coreman2200/ledmatrix/internal/store"
)

// fakeDevice reports whatever free count the test sets.
type fakeDevice struct {
	free    atomic.Int64
	flushes atomic.Int64
	lastN   atomic.Int64
	fb      []byte
	white   [3]uint16
	err     error
}

func (d *fakeDevice) ID() uint16                  { return 0x5a5a }
func (d *fakeDevice) EmptyCount() int             { return int(d.free.Load()) }
func (d *fakeDevice) SetWhiteBias(r, g, b uint16) { d.white = [3]uint16{r, g, b} }
func (d *fakeDevice) Framebuffer() []byte         { return d.fb }
func (d *fakeDevice) Close() error                { return nil }
func (d *fakeDevice) Flush(n int) error {
	if d.err != nil {
		return d.err
	}
	d.lastN.Store(int64(n))
	d.flushes.Add(1)
	return nil
}

var testGeom = layout.Geometry{LEDCount: 4, StringCount: 2}

func TestFlushWaitsForFIFOSpace(t *testing.T) {
	dev := &fakeDevice{fb: make([]byte, 0x4000)}
	polls := 0
	s, err := NewSync(dev, testGeom, Options{
		PollInterval: time.Microsecond,
		Sleep: func(time.Duration) {
			polls++
			if polls == 3 {
				dev.free.Store(int64(testGeom.FrameWords()))
			}
		},
	})
	require.NoError(t, err)
	assert.Len(t, s.Framebuffer(), testGeom.FrameBytes())

	require.NoError(t, s.Flush())
	assert.Equal(t, int64(1), dev.flushes.Load())
	assert.Equal(t, int64(testGeom.FrameBytes()), dev.lastN.Load())
	assert.Equal(t, uint64(3), s.Stats().Polls)
	assert.Equal(t, uint16(0x5a5a), s.Stats().ID)

	// space already there: no polling
	require.NoError(t, s.Flush())
	assert.Equal(t, uint64(3), s.Stats().Polls)
	assert.Equal(t, uint64(2), s.Stats().Flushes)
}

func TestFlushNeverIssuedWhileFIFOIsFull(t *testing.T) {
	dev := &fakeDevice{fb: make([]byte, testGeom.FrameBytes())}
	dev.free.Store(int64(testGeom.FrameWords() - 1))
	s, err := NewSync(dev, testGeom, Options{PollInterval: 100 * time.Microsecond})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Flush() }()

	assert.Never(t, func() bool { return dev.flushes.Load() > 0 }, 100*time.Millisecond, 5*time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("flush returned while the fifo was full: %v", err)
	default:
	}

	dev.free.Store(int64(testGeom.FrameWords()))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("flush did not proceed once the fifo drained")
	}
	assert.Equal(t, int64(1), dev.flushes.Load())
	assert.Greater(t, s.Stats().Wait, time.Duration(0))
}

func TestFlushErrorIsReturned(t *testing.T) {
	boom := errors.New("ioctl failed")
	dev := &fakeDevice{fb: make([]byte, testGeom.FrameBytes()), err: boom}
	dev.free.Store(1 << 16)
	s, err := NewSync(dev, testGeom, Options{})
	require.NoError(t, err)
	assert.True(t, errors.Is(s.Flush(), boom))
	assert.Equal(t, uint64(0), s.Stats().Flushes)
}

func TestNewSyncRejectsShortFramebuffer(t *testing.T) {
	dev := &fakeDevice{fb: make([]byte, testGeom.FrameBytes()-1)}
	_, err := NewSync(dev, testGeom, Options{})
	assert.True(t, errors.Is(err, ErrShortBuffer))

	_, err = NewSync(dev, layout.Geometry{LEDCount: 4, StringCount: 3}, Options{})
	assert.Error(t, err)
}

func TestBlankAndSettle(t *testing.T) {
	dev := &fakeDevice{fb: make([]byte, testGeom.FrameBytes())}
	dev.free.Store(1 << 16)
	s, err := NewSync(dev, testGeom, Options{})
	require.NoError(t, err)

	for i := range s.Framebuffer() {
		s.Framebuffer()[i] = 0xff
	}
	require.NoError(t, s.Blank())
	assert.Equal(t, make([]byte, testGeom.FrameBytes()), s.Framebuffer())
	assert.NoError(t, s.Settle(8000, time.Second))

	dev.free.Store(10)
	err = s.Settle(8000, 5*time.Millisecond)
	assert.True(t, errors.Is(err, ErrSettleTimeout))
}

func TestSetWhiteBiasScales(t *testing.T) {
	dev := &fakeDevice{fb: make([]byte, testGeom.FrameBytes())}
	s, err := NewSync(dev, testGeom, Options{})
	require.NoError(t, err)
	s.SetWhiteBias(store.RealColor{R: 1, G: 0.5, B: -2})
	assert.Equal(t, [3]uint16{0xffff, 0x8000, 0}, dev.white)
}

func TestRegisterOffsets(t *testing.T) {
	var r fpgaRegisters
	assert.Equal(t, uintptr(0x00), unsafe.Offsetof(r.ID))
	assert.Equal(t, uintptr(0x04), unsafe.Offsetof(r.ResetStatus))
	assert.Equal(t, uintptr(0x10), unsafe.Offsetof(r.FIFOStatus))
	assert.Equal(t, uintptr(0x12), unsafe.Offsetof(r.EmptyCount))
	assert.Equal(t, uintptr(0x20), unsafe.Offsetof(r.Blank))
	assert.Equal(t, uintptr(0x30), unsafe.Offsetof(r.White))
	assert.LessOrEqual(t, int(unsafe.Sizeof(r)), DefaultFPGAConfig().RegsSize)
}
