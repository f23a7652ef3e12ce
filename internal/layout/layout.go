// Package layout maps logical (x, y) LED coordinates onto the device
// framebuffer.
package layout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/coreman2200/ledmatrix/internal/store"
)

const BytesPerLED = 3

// Geometry is the wiring of the matrix: StringCount physical strings, each
// LEDCount long, folded at the midpoint so that strings pair up.
type Geometry struct {
	LEDCount    int
	StringCount int
	// WordBytes is the FIFO transfer word size. Zero means 2.
	WordBytes int
}

func (g Geometry) Validate() error {
	if g.LEDCount <= 0 || g.StringCount <= 0 {
		return fmt.Errorf("invalid geometry %dx%d", g.LEDCount, g.StringCount)
	}
	if g.StringCount%2 != 0 {
		return fmt.Errorf("string count must be even, got %d", g.StringCount)
	}
	if g.WordBytes < 0 {
		return fmt.Errorf("invalid word size %d", g.WordBytes)
	}
	return nil
}

func (g Geometry) Count() int { return g.LEDCount * g.StringCount }

func (g Geometry) FrameBytes() int { return g.Count() * BytesPerLED }

// FrameWords is the frame size in FIFO transfer words.
func (g Geometry) FrameWords() int {
	wb := g.WordBytes
	if wb == 0 {
		wb = 2
	}
	return g.FrameBytes() / wb
}

// Offset maps x in [0, LEDCount), y in [0, StringCount) to the byte offset
// of that LED in the framebuffer. Odd strings run back along the folded
// half.
func (g Geometry) Offset(x, y int) int {
	col := x
	if y%2 != 0 {
		col = 2*g.LEDCount - 1 - x
	}
	return (y/2 + col*g.StringCount/2) * BytesPerLED
}

// ColorOrder lists, for each framebuffer byte of an LED, which channel
// (0=R, 1=G, 2=B) goes there.
type ColorOrder [3]byte

var (
	RGB = ColorOrder{0, 1, 2}
	GRB = ColorOrder{1, 0, 2}
	BRG = ColorOrder{2, 0, 1}
)

var errColorOrder = errors.New("color order must be a permutation of RGB")

// ParseColorOrder accepts strings like "BRG" or "grb".
func ParseColorOrder(s string) (ColorOrder, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 3 {
		return ColorOrder{}, fmt.Errorf("%w: %q", errColorOrder, s)
	}
	var o ColorOrder
	seen := [3]bool{}
	for i := 0; i < 3; i++ {
		ch := strings.IndexByte("RGB", s[i])
		if ch < 0 || seen[ch] {
			return ColorOrder{}, fmt.Errorf("%w: %q", errColorOrder, s)
		}
		seen[ch] = true
		o[i] = byte(ch)
	}
	return o, nil
}

func (o ColorOrder) String() string {
	b := make([]byte, 3)
	for i, ch := range o {
		b[i] = "RGB"[ch]
	}
	return string(b)
}

// Put writes c into dst[0:3] in device order.
func (o ColorOrder) Put(dst []byte, c store.Color) {
	ch := [3]byte{c.R, c.G, c.B}
	dst[0], dst[1], dst[2] = ch[o[0]], ch[o[1]], ch[o[2]]
}

// Get reads a color back out of src[0:3].
func (o ColorOrder) Get(src []byte) store.Color {
	var ch [3]byte
	ch[o[0]], ch[o[1]], ch[o[2]] = src[0], src[1], src[2]
	return store.Color{R: ch[0], G: ch[1], B: ch[2]}
}

// Layout combines wiring geometry and channel order.
type Layout struct {
	Geometry
	Order ColorOrder
}

// Set writes c for LED (x, y) into the framebuffer fb.
func (l Layout) Set(fb []byte, x, y int, c store.Color) {
	off := l.Offset(x, y)
	l.Order.Put(fb[off:off+BytesPerLED], c)
}

// At reads back the color of LED (x, y) from fb.
func (l Layout) At(fb []byte, x, y int) store.Color {
	off := l.Offset(x, y)
	return l.Order.Get(fb[off : off+BytesPerLED])
}

// Coords inverts Offset. ok is false for offsets that are not the start of
// an LED within the frame.
func (l Layout) Coords(offset int) (x, y int, ok bool) {
	if offset < 0 || offset >= l.FrameBytes() || offset%BytesPerLED != 0 {
		return 0, 0, false
	}
	led := offset / BytesPerLED
	half := l.StringCount / 2
	col, row := led/half, led%half
	if col < l.LEDCount {
		return col, row * 2, true
	}
	return 2*l.LEDCount - 1 - col, row*2 + 1, true
}
