package streamfmt

import (
	"strings"
)

// Header describes the optional declaration at the start of a stream:
//
//	~~!Format=1; Tab=4
//
// Fields are name=value pairs separated by whitespace or ';'. Names are
// case-insensitive; unknown fields are ignored.
type Header struct {
	Present  bool // Whether the stream started with a header
	Version  int  // Format version (always 1)
	TabWidth int  // Columns per tab when measuring indentation
}

// DefaultHeader returns the values in effect when a stream has no header.
func DefaultHeader() Header {
	return Header{Version: FormatVersion, TabWidth: DefaultTabWidth}
}

// readHeader parses header fields up to (not including) the end of the
// line. The header prefix has already been consumed.
func (r *Reader) readHeader() error {
	c := r.cursor
	var fieldName Section

	for c.Remaining() >= r.codec.size {
		u := r.codec.unit(c.buf, c.pos)
		switch {
		case u == unitTab || u == unitSpace || u == unitSeparator:
			c.Move(r.codec.size)

		case r.consts.isUnsupportedWhitespace(u):
			return formatErrorf(r.Location(), ErrUnsupportedWhitespace, "code unit 0x%02x in header", u)

		case u == unitElement:
			return formatErrorf(r.Location(), ErrUnexpectedHeaderElement, "header")

		case u == unitCR || u == unitLF:
			r.header.Present = true
			return nil

		case u == unitAssign:
			c.Move(r.codec.size)
			r.eatWhitespace()
			value := r.readUnprotected()
			if err := r.applyHeaderField(fieldName, value); err != nil {
				return err
			}

		default:
			fieldName = r.readUnprotected()
			if fieldName.IsEmpty() {
				// a NUL unit; skip it so the scan makes progress
				c.Move(r.codec.size)
			}
		}
	}
	r.header.Present = true
	return nil
}

func (r *Reader) applyHeaderField(name, value Section) error {
	switch strings.ToLower(name.String()) {
	case "format":
		v, err := parseHeaderInt(value)
		if err != nil || v != FormatVersion {
			return formatErrorf(r.Location(), ErrUnsupportedFormat, "format %q", value.String())
		}
		r.header.Version = v
	case "tab":
		v, err := parseHeaderInt(value)
		if err != nil || v <= 0 {
			return formatErrorf(r.Location(), ErrBadTabWidth, "tab %q", value.String())
		}
		r.header.TabWidth = v
		r.tabWidth = v
	}
	return nil
}
