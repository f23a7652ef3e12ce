//go:build !linux

package led

import "fmt"

type FPGA struct{}

func OpenFPGA(c FPGAConfig) (*FPGA, error) {
	return nil, fmt.Errorf("fpga: %w", ErrUnsupported)
}

func (d *FPGA) ID() uint16                  { return 0 }
func (d *FPGA) EmptyCount() int             { return 0 }
func (d *FPGA) SetWhiteBias(r, g, b uint16) {}
func (d *FPGA) Framebuffer() []byte         { return nil }
func (d *FPGA) Flush(n int) error           { return fmt.Errorf("fpga: %w", ErrUnsupported) }
func (d *FPGA) Close() error                { return nil }
