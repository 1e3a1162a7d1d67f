package streamfmt

import (
	"fmt"

	"go.uber.org/atomic"
)

// Lease tracks whether a buffer handed to a Cursor may still be read.
// The owner of the buffer revokes the lease before releasing it (for
// example before unmapping a file); Sections created afterwards panic on
// access instead of touching released memory.
type Lease struct {
	revoked atomic.Bool
}

// NewLease returns a live lease.
func NewLease() *Lease {
	return &Lease{}
}

// Revoke marks the leased buffer as released. It is safe to call from any
// goroutine and more than once.
func (l *Lease) Revoke() {
	l.revoked.Store(true)
}

// Revoked reports whether Revoke has been called.
func (l *Lease) Revoked() bool {
	return l != nil && l.revoked.Load()
}

// Cursor is a read-only cursor over buf[start:end).
// It does not own the buffer; the caller keeps it alive for as long as the
// cursor and any Section derived from it are in use.
type Cursor struct {
	buf   []byte
	start int
	pos   int
	end   int
	lease *Lease
}

// NewCursor returns a cursor over the whole of buf.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf, end: len(buf)}
}

// NewCursorRange returns a cursor over buf[start:end).
func NewCursorRange(buf []byte, start, end int) *Cursor {
	if start < 0 || end > len(buf) || start > end {
		panic(fmt.Sprintf("streamfmt: cursor range [%d, %d) outside buffer of %d bytes", start, end, len(buf)))
	}
	return &Cursor{buf: buf, start: start, pos: start, end: end}
}

// NewLeasedCursor returns a cursor over buf whose Sections check lease
// before every access.
func NewLeasedCursor(buf []byte, lease *Lease) *Cursor {
	return &Cursor{buf: buf, end: len(buf), lease: lease}
}

// Pos returns the current byte offset.
func (c *Cursor) Pos() int { return c.pos }

// Start returns the first readable offset.
func (c *Cursor) Start() int { return c.start }

// End returns the offset one past the last readable byte.
func (c *Cursor) End() int { return c.end }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return c.end - c.pos }

// Move advances the cursor by offset bytes (which may be negative).
func (c *Cursor) Move(offset int) {
	c.SetPos(c.pos + offset)
}

// SetPos moves the cursor to an absolute offset.
func (c *Cursor) SetPos(pos int) {
	if pos < c.start || pos > c.end {
		panic(fmt.Sprintf("streamfmt: cursor position %d outside [%d, %d]", pos, c.start, c.end))
	}
	c.pos = pos
}

// Bytes returns the unread part of the range. The slice aliases the
// cursor's buffer.
func (c *Cursor) Bytes() []byte {
	c.checkLease()
	return c.buf[c.pos:c.end]
}

func (c *Cursor) checkLease() {
	if c.lease.Revoked() {
		panic("streamfmt: cursor used after its buffer was released")
	}
}

// section returns a view of buf[start:end).
func (c *Cursor) section(start, end int, cd codec) Section {
	return Section{buf: c.buf, start: start, end: end, lease: c.lease, codec: cd}
}

// Section is a borrowed view into the buffer a Reader is tokenizing. It
// never copies; the bytes stay valid only while the backing buffer does.
// The zero Section is empty.
type Section struct {
	buf   []byte
	start int
	end   int
	lease *Lease
	codec codec
}

// Start returns the byte offset of the first code unit.
func (s Section) Start() int { return s.start }

// End returns the byte offset one past the last code unit.
func (s Section) End() int { return s.end }

// Len returns the number of code units in the section.
func (s Section) Len() int {
	if s.codec.size == 0 {
		return 0
	}
	return (s.end - s.start) / s.codec.size
}

// IsEmpty reports whether the section has no content.
func (s Section) IsEmpty() bool { return s.end <= s.start }

// Bytes returns the raw encoded code units. The slice aliases the
// backing buffer and must not be modified.
func (s Section) Bytes() []byte {
	if s.IsEmpty() {
		return nil
	}
	if s.lease.Revoked() {
		panic("streamfmt: section used after its buffer was released")
	}
	return s.buf[s.start:s.end:s.end]
}

// String decodes the section to UTF-8. Invalid sequences decode to the
// replacement character.
func (s Section) String() string {
	b := s.Bytes()
	if len(b) == 0 {
		return ""
	}
	if s.codec.width == Width8 {
		return string(b)
	}
	str, err := DecodeUnits(b, s.codec.width, s.codec.big)
	if err != nil {
		return string(b)
	}
	return str
}

// Equal reports whether the section decodes to str.
func (s Section) Equal(str string) bool {
	return s.String() == str
}
