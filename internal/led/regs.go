package led

// fpgaRegisters mirrors the FPGA control block. Fields are only touched
// through load16/store16.
type fpgaRegisters struct {
	ID          uint16 // 0x00
	Scratch     uint16 // 0x02
	ResetStatus uint16 // 0x04
	_           [5]uint16
	FIFOStatus  uint16 // 0x10
	EmptyCount  uint16 // 0x12
	_           [6]uint16
	Blank       uint16 // 0x20
	_           [7]uint16
	White       [3]uint16 // 0x30, r g b
}

// load16 and store16 are kept out of line so every register access is a
// real memory operation.
//
//go:noinline
func load16(p *uint16) uint16 { return *p }

//go:noinline
func store16(p *uint16, v uint16) { *p = v }
