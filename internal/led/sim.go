package led

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"
)

// SimOptions configures the in-memory device.
type SimOptions struct {
	// FBSize is the framebuffer length in bytes.
	FBSize int
	// FIFOWords is the FIFO depth in transfer words.
	FIFOWords int
	// WordBytes is the transfer word size; zero means 2.
	WordBytes int
	// Drain is the rate at which words leave the FIFO. Zero drains
	// instantly.
	Drain physic.Frequency
	// ID is reported by the id register.
	ID uint16
	// OnFlush, if set, sees every flushed frame.
	OnFlush func(frame []byte)
}

// Sim is a software device: a framebuffer and a FIFO that drains at a fixed
// word rate. It is used when no hardware is present and in tests.
type Sim struct {
	opts  SimOptions
	fb    []byte
	level int
	last  time.Time
	now   func() time.Time
	white [3]uint16

	Flushes int
}

func NewSim(o SimOptions) *Sim {
	if o.WordBytes <= 0 {
		o.WordBytes = 2
	}
	if o.FIFOWords <= 0 {
		o.FIFOWords = 0xFFFF
	}
	return &Sim{
		opts: o,
		fb:   make([]byte, o.FBSize),
		now:  time.Now,
	}
}

func (s *Sim) drain() {
	t := s.now()
	if s.opts.Drain <= 0 {
		s.level = 0
		s.last = t
		return
	}
	words := int(t.Sub(s.last).Seconds() * float64(s.opts.Drain) / float64(physic.Hertz))
	if words <= 0 {
		return
	}
	s.level -= words
	if s.level < 0 {
		s.level = 0
	}
	s.last = t
}

func (s *Sim) ID() uint16 { return s.opts.ID }

func (s *Sim) EmptyCount() int {
	s.drain()
	return s.opts.FIFOWords - s.level
}

func (s *Sim) SetWhiteBias(r, g, b uint16) { s.white = [3]uint16{r, g, b} }

// WhiteBias returns the last bias written.
func (s *Sim) WhiteBias() [3]uint16 { return s.white }

func (s *Sim) Framebuffer() []byte { return s.fb }

func (s *Sim) Flush(n int) error {
	if n < 0 || n > len(s.fb) {
		return fmt.Errorf("flush length %d outside framebuffer of %d", n, len(s.fb))
	}
	s.drain()
	words := n / s.opts.WordBytes
	if words > s.opts.FIFOWords-s.level {
		return fmt.Errorf("%w: %d words queued, %d free", ErrOverrun, words, s.opts.FIFOWords-s.level)
	}
	if s.level == 0 {
		s.last = s.now()
	}
	s.level += words
	s.Flushes++
	if s.opts.OnFlush != nil {
		s.opts.OnFlush(s.fb[:n])
	}
	return nil
}

func (s *Sim) Close() error { return nil }
