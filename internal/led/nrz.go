package led

import (
	"fmt"
	"io"
	"math"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
)

// NRZ pushes frames to a WS2812 style strip over SPI. It is a bench stand-in
// for the FPGA: frames go out synchronously, so the FIFO always reads empty.
type NRZ struct {
	dev    *nrzled.Dev
	closer io.Closer
	fb     []byte
	white  [3]uint16
}

// OpenNRZ opens an SPI port by name ("" picks the first one).
func OpenNRZ(port string, leds int, freq physic.Frequency) (*NRZ, error) {
	p, err := spireg.Open(port)
	if err != nil {
		return nil, fmt.Errorf("open spi port %q: %w", port, err)
	}
	n, err := NewNRZ(p, leds, freq)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	n.closer = p
	return n, nil
}

func NewNRZ(p spi.Port, leds int, freq physic.Frequency) (*NRZ, error) {
	if leds <= 0 {
		return nil, fmt.Errorf("invalid LED count: %d", leds)
	}
	if freq == 0 {
		freq = 2500 * physic.KiloHertz
	}
	d, err := nrzled.NewSPI(p, &nrzled.Opts{NumPixels: leds, Channels: 3, Freq: freq})
	if err != nil {
		return nil, fmt.Errorf("nrzled: %w", err)
	}
	return &NRZ{dev: d, fb: make([]byte, leds*3)}, nil
}

func (n *NRZ) ID() uint16 { return 0 }

func (n *NRZ) EmptyCount() int { return math.MaxUint16 }

func (n *NRZ) SetWhiteBias(r, g, b uint16) { n.white = [3]uint16{r, g, b} }

func (n *NRZ) Framebuffer() []byte { return n.fb }

func (n *NRZ) Flush(size int) error {
	if size > len(n.fb) {
		return fmt.Errorf("flush length %d outside framebuffer of %d", size, len(n.fb))
	}
	if _, err := n.dev.Write(n.fb[:size]); err != nil {
		return fmt.Errorf("nrzled write: %w", err)
	}
	return nil
}

func (n *NRZ) Close() error {
	err := n.dev.Halt()
	if n.closer != nil {
		if cerr := n.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
