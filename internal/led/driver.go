// Package led owns the output device: the FIFO register block, the mapped
// framebuffer and the backpressure-gated flush.
package led

import "errors"

// Device abstracts an LED output sink with a hardware FIFO in front of it.
type Device interface {
	// ID returns the device identification register.
	ID() uint16
	// EmptyCount is the number of free FIFO transfer words.
	EmptyCount() int
	// SetWhiteBias writes the white LED bias registers.
	SetWhiteBias(r, g, b uint16)
	// Framebuffer is the mapped frame memory, valid until Close.
	Framebuffer() []byte
	// Flush queues the first n framebuffer bytes for transfer.
	Flush(n int) error
	// Close releases resources.
	Close() error
}

var (
	ErrUnsupported = errors.New("driver not supported on this platform")
	ErrShortBuffer = errors.New("framebuffer smaller than frame")
	ErrOverrun     = errors.New("fifo overrun")
)
