package streamfmt

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// Width is the size of one code unit in the stream.
type Width uint8

const (
	Width8  Width = 8  // UTF-8 bytes
	Width16 Width = 16 // UTF-16 code units
	Width32 Width = 32 // UTF-32 code units
)

// String returns the width name.
func (w Width) String() string {
	switch w {
	case Width8:
		return "utf8"
	case Width16:
		return "ucs2"
	case Width32:
		return "ucs4"
	default:
		return fmt.Sprintf("width(%d)", uint8(w))
	}
}

// UnitSize returns the number of bytes in one code unit.
func (w Width) UnitSize() int {
	return int(w) / 8
}

// ParseWidth parses a width given as bits ("8", "16", "32") or by name.
func ParseWidth(s string) (Width, bool) {
	switch s {
	case "8", "utf8", "utf-8":
		return Width8, true
	case "16", "ucs2", "utf16", "utf-16":
		return Width16, true
	case "32", "ucs4", "utf32", "utf-32":
		return Width32, true
	default:
		return 0, false
	}
}

// Code units with structural meaning. They are identical across widths.
const (
	unitNUL       = 0x00
	unitTab       = '\t'
	unitLF        = '\n'
	unitVT        = 0x0B
	unitFF        = 0x0C
	unitCR        = '\r'
	unitSpace     = ' '
	unitSeparator = ';'
	unitAssign    = '='
	unitElement   = '~'
	unitNEL       = 0x85
	unitNBSP      = 0xA0
)

// Constants holds the structural token sequences for one code-unit width.
type Constants struct {
	Width            Width
	EndLine          []uint32
	Tab              uint32
	ElementPrefix    uint32
	ProtectedPrefix  []uint32
	ProtectedPostfix []uint32
	CommentPrefix    []uint32
	HeaderPrefix     []uint32

	// Latin-1 NEL and NBSP only count as whitespace when they are whole
	// code units. In UTF-8 they are continuation bytes.
	extendedWhitespace bool
}

func newConstants(w Width) *Constants {
	return &Constants{
		Width:              w,
		EndLine:            []uint32{unitCR, unitLF},
		Tab:                unitTab,
		ElementPrefix:      unitElement,
		ProtectedPrefix:    []uint32{'<', ':', '('},
		ProtectedPostfix:   []uint32{')', ':', '>'},
		CommentPrefix:      []uint32{unitElement, unitElement},
		HeaderPrefix:       []uint32{unitElement, unitElement, '!'},
		extendedWhitespace: w != Width8,
	}
}

var constantTables = map[Width]*Constants{
	Width8:  newConstants(Width8),
	Width16: newConstants(Width16),
	Width32: newConstants(Width32),
}

// ConstantsFor returns the constant table for a width.
func ConstantsFor(w Width) (*Constants, error) {
	c, ok := constantTables[w]
	if !ok {
		return nil, errors.Errorf("unsupported code unit width %d", uint8(w))
	}
	return c, nil
}

// IsFormatting reports whether u terminates an unprotected name or value.
func (c *Constants) IsFormatting(u uint32) bool {
	switch u {
	case unitElement, unitSeparator, unitAssign, unitCR, unitLF, unitNUL:
		return true
	}
	return false
}

// IsWhitespace reports whether u is whitespace, excluding newlines.
func (c *Constants) IsWhitespace(u uint32) bool {
	switch u {
	case unitSpace, unitTab, unitVT, unitFF, unitNUL:
		return true
	case unitNEL, unitNBSP:
		return c.extendedWhitespace
	}
	return false
}

// isUnsupportedWhitespace reports whitespace the reader refuses to treat as
// indentation.
func (c *Constants) isUnsupportedWhitespace(u uint32) bool {
	switch u {
	case unitVT, unitFF:
		return true
	case unitNEL, unitNBSP:
		return c.extendedWhitespace
	}
	return false
}

// ============================================================
// Code unit codec
// ============================================================

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// codec reads and writes code units of one width and byte order.
type codec struct {
	width Width
	size  int
	big   bool
	order byteOrder
}

func newCodec(w Width, bigEndian bool) codec {
	if bigEndian {
		return codec{width: w, size: w.UnitSize(), big: true, order: binary.BigEndian}
	}
	return codec{width: w, size: w.UnitSize(), order: binary.LittleEndian}
}

// unit decodes the code unit starting at byte offset off.
func (c codec) unit(buf []byte, off int) uint32 {
	switch c.size {
	case 1:
		return uint32(buf[off])
	case 2:
		return uint32(c.order.Uint16(buf[off:]))
	default:
		return c.order.Uint32(buf[off:])
	}
}

// appendUnit appends one encoded code unit to dst.
func (c codec) appendUnit(dst []byte, u uint32) []byte {
	switch c.size {
	case 1:
		return append(dst, byte(u))
	case 2:
		return c.order.AppendUint16(dst, uint16(u))
	default:
		return c.order.AppendUint32(dst, u)
	}
}

func (c codec) appendUnits(dst []byte, units []uint32) []byte {
	for _, u := range units {
		dst = c.appendUnit(dst, u)
	}
	return dst
}

// hasPrefix reports whether buf[off:end] starts with pattern.
func (c codec) hasPrefix(buf []byte, off, end int, pattern []uint32) bool {
	if end-off < len(pattern)*c.size {
		return false
	}
	for i, u := range pattern {
		if c.unit(buf, off+i*c.size) != u {
			return false
		}
	}
	return true
}

// index returns the byte offset of the first occurrence of pattern in
// buf[off:end], or -1.
func (c codec) index(buf []byte, off, end int, pattern []uint32) int {
	last := end - len(pattern)*c.size
	for p := off; p <= last; p += c.size {
		if c.hasPrefix(buf, p, end, pattern) {
			return p
		}
	}
	return -1
}

// units returns the number of whole code units in n bytes.
func (c codec) units(n int) int {
	return n / c.size
}
