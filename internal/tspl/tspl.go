// Package tspl encodes label jobs as TSPL2 printer commands
package tspl

import (
	"fmt"
	"strings"
)

// Paper types accepted by a print job
const (
	PaperGap        = 1
	PaperBlackMark  = 2
	PaperContinuous = 3
)

// StatusQuery asks the printer for its one-byte status
var StatusQuery = []byte{0x1b, '!', '?'}

// Command builds TSPL2 commands
type Command struct {
	buf strings.Builder
}

func New() *Command {
	return &Command{}
}

// Size sets label dimensions
func (c *Command) Size(width, height float64) *Command {
	fmt.Fprintf(&c.buf, "SIZE %.1f mm,%.1f mm\r\n", width, height)
	return c
}

// Gap sets the gap between labels
func (c *Command) Gap(gap, offset float64) *Command {
	fmt.Fprintf(&c.buf, "GAP %.1f mm,%.1f mm\r\n", gap, offset)
	return c
}

// BlackMark sets the black mark height for marked stock
func (c *Command) BlackMark(height, offset float64) *Command {
	fmt.Fprintf(&c.buf, "BLINE %.1f mm,%.1f mm\r\n", height, offset)
	return c
}

// Direction sets print direction (0 or 1)
func (c *Command) Direction(dir, mirror int) *Command {
	fmt.Fprintf(&c.buf, "DIRECTION %d,%d\r\n", dir, mirror)
	return c
}

// Reference moves the origin, in dots
func (c *Command) Reference(x, y int) *Command {
	fmt.Fprintf(&c.buf, "REFERENCE %d,%d\r\n", x, y)
	return c
}

// Density sets print darkness (0-15)
func (c *Command) Density(level int) *Command {
	fmt.Fprintf(&c.buf, "DENSITY %d\r\n", min(max(level, 0), 15))
	return c
}

// CLS clears the image buffer
func (c *Command) CLS() *Command {
	c.buf.WriteString("CLS\r\n")
	return c
}

// Bitmap adds a bitmap image in overwrite mode. data holds widthBytes*height
// bytes where a 0 bit prints.
func (c *Command) Bitmap(x, y, widthBytes, height int, data []byte) *Command {
	fmt.Fprintf(&c.buf, "BITMAP %d,%d,%d,%d,0,", x, y, widthBytes, height)
	c.buf.Write(data)
	c.buf.WriteString("\r\n")
	return c
}

// Print prints the buffer n times
func (c *Command) Print(n int) *Command {
	fmt.Fprintf(&c.buf, "PRINT %d\r\n", n)
	return c
}

// Feed advances the paper by n dots
func (c *Command) Feed(n int) *Command {
	fmt.Fprintf(&c.buf, "FEED %d\r\n", n)
	return c
}

// Bytes returns the raw command bytes to send to printer
func (c *Command) Bytes() []byte {
	return []byte(c.buf.String())
}

// String returns the command as a string (for debugging)
func (c *Command) String() string {
	return c.buf.String()
}
