package led

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/ledmatrix/internal/layout"
	"github.com/coreman2200/ledmatrix/internal/store"
)

const DefaultPollInterval = 50 * time.Microsecond

var ErrSettleTimeout = errors.New("fifo did not drain")

type Options struct {
	// PollInterval between EmptyCount reads while waiting for space.
	PollInterval time.Duration
	// Sleep replaces time.Sleep, for tests.
	Sleep func(time.Duration)
}

// Stats are the cumulative flush counters.
type Stats struct {
	ID      uint16        `json:"id"`
	Flushes uint64        `json:"flushes"`
	Polls   uint64        `json:"polls"`
	Wait    time.Duration `json:"wait_ns"`
}

// Sync gates framebuffer flushes on FIFO space. It is used from the frame
// loop only.
type Sync struct {
	dev   Device
	geom  layout.Geometry
	fb    []byte
	poll  time.Duration
	sleep func(time.Duration)
	stats Stats
}

func NewSync(dev Device, g layout.Geometry, o Options) (*Sync, error) {
	if dev == nil {
		return nil, errors.New("nil device")
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	fb := dev.Framebuffer()
	if len(fb) < g.FrameBytes() {
		return nil, fmt.Errorf("%w: %d < %d", ErrShortBuffer, len(fb), g.FrameBytes())
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}
	s := &Sync{
		dev:   dev,
		geom:  g,
		fb:    fb[:g.FrameBytes()],
		poll:  o.PollInterval,
		sleep: o.Sleep,
	}
	s.stats.ID = dev.ID()
	log.Info().
		Str("id", fmt.Sprintf("0x%04x", s.stats.ID)).
		Int("frame_bytes", g.FrameBytes()).
		Int("frame_words", g.FrameWords()).
		Msg("led sync ready")
	return s, nil
}

// Framebuffer is the slice of device memory holding one frame.
func (s *Sync) Framebuffer() []byte { return s.fb }

func (s *Sync) Geometry() layout.Geometry { return s.geom }

// Flush waits until the FIFO can take a whole frame and then hands the frame
// to the device. There is no timeout: a FIFO that never drains stalls here.
func (s *Sync) Flush() error {
	need := s.geom.FrameWords()
	start := time.Now()
	for s.dev.EmptyCount() < need {
		s.stats.Polls++
		s.sleep(s.poll)
	}
	s.stats.Wait += time.Since(start)

	if err := s.dev.Flush(len(s.fb)); err != nil {
		return fmt.Errorf("flush %d bytes: %w", len(s.fb), err)
	}
	s.stats.Flushes++
	return nil
}

// Blank clears the frame and flushes it.
func (s *Sync) Blank() error {
	clear(s.fb)
	return s.Flush()
}

// Settle waits for at least words free FIFO words, giving up after timeout.
func (s *Sync) Settle(words int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for s.dev.EmptyCount() < words {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %d free, want %d", ErrSettleTimeout, s.dev.EmptyCount(), words)
		}
		s.sleep(s.poll)
	}
	return nil
}

// SetWhiteBias scales c from [0, 1] to the full register range.
func (s *Sync) SetWhiteBias(c store.RealColor) {
	s.dev.SetWhiteBias(unit16(c.R), unit16(c.G), unit16(c.B))
}

func (s *Sync) Stats() Stats { return s.stats }

func (s *Sync) Close() error { return s.dev.Close() }

func unit16(v float64) uint16 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return math.MaxUint16
	}
	return uint16(math.Round(v * math.MaxUint16))
}
