//go:build linux

package led

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
	"periph.io/x/host/v3/pmem"
)

// fbFlushRequest is the ledfb ioctl that starts DMA of the mapped buffer. Its
// argument is the byte count, passed by value.
const fbFlushRequest = 0

// FPGA drives the matrix through /dev/mem mapped registers and the ledfb
// kernel framebuffer.
type FPGA struct {
	view *pmem.View
	regs *fpgaRegisters
	f    *os.File
	fb   []byte
}

// OpenFPGA maps both regions. host.Init should have been called.
func OpenFPGA(c FPGAConfig) (*FPGA, error) {
	v, err := pmem.Map(c.RegsBase, c.RegsSize)
	if err != nil {
		return nil, fmt.Errorf("map registers at %#x: %w", c.RegsBase, err)
	}
	var regs *fpgaRegisters
	if err := v.AsPOD(&regs); err != nil {
		_ = v.Close()
		return nil, fmt.Errorf("register layout: %w", err)
	}

	f, err := os.OpenFile(c.FBDevice, os.O_RDWR, 0)
	if err != nil {
		_ = v.Close()
		return nil, fmt.Errorf("open %s: %w", c.FBDevice, err)
	}
	fb, err := unix.Mmap(int(f.Fd()), 0, c.FBSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		_ = v.Close()
		return nil, fmt.Errorf("mmap %s: %w", c.FBDevice, err)
	}
	return &FPGA{view: v, regs: regs, f: f, fb: fb}, nil
}

func (d *FPGA) ID() uint16 { return load16(&d.regs.ID) }

func (d *FPGA) EmptyCount() int { return int(load16(&d.regs.EmptyCount)) }

func (d *FPGA) SetWhiteBias(r, g, b uint16) {
	store16(&d.regs.White[0], r)
	store16(&d.regs.White[1], g)
	store16(&d.regs.White[2], b)
}

func (d *FPGA) Framebuffer() []byte { return d.fb }

func (d *FPGA) Flush(n int) error {
	if err := unix.IoctlSetInt(int(d.f.Fd()), fbFlushRequest, n); err != nil {
		return fmt.Errorf("ledfb ioctl: %w", err)
	}
	return nil
}

func (d *FPGA) Close() error {
	var first error
	if d.fb != nil {
		if err := unix.Munmap(d.fb); err != nil {
			first = err
		}
		d.fb = nil
	}
	if d.f != nil {
		if err := d.f.Close(); err != nil && first == nil {
			first = err
		}
		d.f = nil
	}
	if d.view != nil {
		if err := d.view.Close(); err != nil && first == nil {
			first = err
		}
		d.view = nil
	}
	return first
}
