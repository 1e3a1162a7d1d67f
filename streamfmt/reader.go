package streamfmt

import (
	"github.com/pkg/errors"
)

// Blob is the kind of token primed at the reader's position.
type Blob uint8

const (
	BlobNone Blob = iota
	BlobBeginElement
	BlobEndElement
	BlobAttributeName
	BlobAttributeValue
)

// String returns the blob name.
func (b Blob) String() string {
	switch b {
	case BlobNone:
		return "NONE"
	case BlobBeginElement:
		return "BEGIN_ELEMENT"
	case BlobEndElement:
		return "END_ELEMENT"
	case BlobAttributeName:
		return "ATTRIBUTE_NAME"
	case BlobAttributeValue:
		return "ATTRIBUTE_VALUE"
	default:
		return "UNKNOWN"
	}
}

// DefaultMaxDepth is the capacity of the reader's indentation stack.
const DefaultMaxDepth = 64

// noParent is the parent base line outside any element.
const noParent = -1

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithWidth sets the code unit width of the input (default: Width8).
func WithWidth(width Width) ReaderOption {
	return func(r *Reader) {
		r.width = width
	}
}

// WithBigEndian reads multi-byte code units as big-endian.
func WithBigEndian() ReaderOption {
	return func(r *Reader) {
		r.bigEndian = true
	}
}

// WithMaxDepth sets the indentation stack capacity (default: 64).
func WithMaxDepth(n int) ReaderOption {
	return func(r *Reader) {
		r.maxDepth = n
	}
}

// WithTabWidth sets the tab width used until a header says otherwise
// (default: 4).
func WithTabWidth(n int) ReaderOption {
	return func(r *Reader) {
		r.tabWidth = n
	}
}

// Reader is a pull tokenizer over a Cursor. It never builds a tree: each
// consuming call returns Sections that alias the cursor's buffer.
//
// Nesting is inferred from indentation. A line indented no deeper than the
// element that is currently open ends that element; the token that ended it
// is not consumed and is examined again by the next PeekNext.
//
// The first error is sticky. A Reader is not safe for concurrent use.
type Reader struct {
	cursor    *Cursor
	width     Width
	bigEndian bool
	consts    *Constants
	codec     codec

	maxDepth int
	tabWidth int
	header   Header

	pendingHeader bool
	primed        Blob
	protected     bool

	activeLineSpaces int
	parentBaseLine   int
	baseLines        []int

	lineIndex int
	lineStart int

	err error
}

// NewReader creates a reader over the unread range of c.
func NewReader(c *Cursor, opts ...ReaderOption) *Reader {
	r := &Reader{
		cursor:         c,
		width:          Width8,
		maxDepth:       DefaultMaxDepth,
		tabWidth:       DefaultTabWidth,
		pendingHeader:  true,
		parentBaseLine: noParent,
		lineStart:      c.Pos(),
	}
	for _, opt := range opts {
		opt(r)
	}
	consts, err := ConstantsFor(r.width)
	if err != nil {
		r.err = err
		consts = constantTables[Width8]
	}
	if r.maxDepth <= 0 {
		r.maxDepth = DefaultMaxDepth
	}
	if r.tabWidth <= 0 {
		r.err = errors.Wrapf(ErrBadTabWidth, "tab width %d", r.tabWidth)
		r.tabWidth = DefaultTabWidth
	}
	r.consts = consts
	r.codec = newCodec(consts.Width, r.bigEndian)
	r.baseLines = make([]int, 0, r.maxDepth)
	r.header = Header{Version: FormatVersion, TabWidth: r.tabWidth}
	return r
}

// Header returns the header in effect. It is only complete after the first
// call to PeekNext.
func (r *Reader) Header() Header {
	return r.header
}

// Depth returns the number of elements begun and not yet ended.
func (r *Reader) Depth() int {
	return len(r.baseLines)
}

// Err returns the first error the reader encountered.
func (r *Reader) Err() error {
	return r.err
}

// Location returns the line and character of the cursor.
func (r *Reader) Location() Location {
	return Location{
		Line: 1 + r.lineIndex,
		Char: 1 + (r.cursor.Pos()-r.lineStart)/r.codec.size,
	}
}

// PeekNext returns the token at the current position without consuming
// it. Repeated calls return the same token until one of the TryRead
// methods consumes it. BlobNone with a nil error means the input is
// exhausted and every element has been ended.
func (r *Reader) PeekNext() (Blob, error) {
	if r.err != nil {
		return BlobNone, r.err
	}
	if r.primed != BlobNone {
		return r.primed, nil
	}

	c := r.cursor
	if r.pendingHeader {
		r.pendingHeader = false
		if r.tryEat(r.consts.HeaderPrefix) {
			if err := r.readHeader(); err != nil {
				return BlobNone, r.fail(err)
			}
		}
	}

	for c.Remaining() >= r.codec.size {
		u := r.codec.unit(c.buf, c.pos)

		switch {
		case u == unitTab:
			c.Move(r.codec.size)
			r.activeLineSpaces = ceilToMultiple(r.activeLineSpaces+1, r.tabWidth)

		case u == unitSpace:
			c.Move(r.codec.size)
			r.activeLineSpaces++

		case r.consts.isUnsupportedWhitespace(u):
			return BlobNone, r.fail(formatErrorf(r.Location(), ErrUnsupportedWhitespace, "code unit 0x%02x", u))

		case u == unitCR:
			// CR alone or CR LF is one line break
			c.Move(r.codec.size)
			if c.Remaining() >= r.codec.size && r.codec.unit(c.buf, c.pos) == unitLF {
				c.Move(r.codec.size)
			}
			r.startLine()

		case u == unitLF:
			c.Move(r.codec.size)
			r.startLine()

		case u == unitSeparator:
			c.Move(r.codec.size)

		case u == unitAssign:
			c.Move(r.codec.size)
			r.eatWhitespace()
			if err := r.eatProtectedPrefix(); err != nil {
				return BlobNone, r.fail(err)
			}
			return r.prime(BlobAttributeValue), nil

		case u == r.consts.ElementPrefix:
			if r.tryEat(r.consts.CommentPrefix) {
				r.skipToEndOfLine()
				continue
			}
			if r.activeLineSpaces <= r.parentBaseLine {
				r.protected = false
				return r.prime(BlobEndElement), nil
			}
			c.Move(r.codec.size)
			r.eatWhitespace()
			if err := r.eatProtectedPrefix(); err != nil {
				return BlobNone, r.fail(err)
			}
			return r.prime(BlobBeginElement), nil

		default:
			if r.activeLineSpaces <= r.parentBaseLine {
				r.protected = false
				return r.prime(BlobEndElement), nil
			}
			if err := r.eatProtectedPrefix(); err != nil {
				return BlobNone, r.fail(err)
			}
			return r.prime(BlobAttributeName), nil
		}
	}

	// end of input closes whatever is still open
	if len(r.baseLines) > 0 {
		return r.prime(BlobEndElement), nil
	}
	return BlobNone, nil
}

// TryReadBeginElement consumes a primed BeginElement and returns its name.
// It returns ok=false, without error, when another token is primed.
func (r *Reader) TryReadBeginElement() (name Section, ok bool, err error) {
	blob, err := r.PeekNext()
	if err != nil || blob != BlobBeginElement {
		return Section{}, false, err
	}

	name, err = r.readToken()
	if err != nil {
		return Section{}, false, r.fail(err)
	}
	if len(r.baseLines)+1 > r.maxDepth {
		return Section{}, false, r.fail(formatErrorf(r.Location(), ErrExcessiveIndentation, "depth %d exceeds %d", len(r.baseLines)+1, r.maxDepth))
	}

	// the new parent base line is the indentation of the line this element
	// started on
	r.baseLines = append(r.baseLines, r.activeLineSpaces)
	r.parentBaseLine = r.activeLineSpaces
	r.consume()
	return name, true, nil
}

// TryReadEndElement consumes a primed EndElement. It returns false,
// without error, when another token is primed.
func (r *Reader) TryReadEndElement() (bool, error) {
	blob, err := r.PeekNext()
	if err != nil || blob != BlobEndElement {
		return false, err
	}

	if n := len(r.baseLines); n > 0 {
		r.baseLines = r.baseLines[:n-1]
		if n > 1 {
			r.parentBaseLine = r.baseLines[n-2]
		} else {
			r.parentBaseLine = noParent
		}
	}
	r.consume()
	return true, nil
}

// TryReadAttribute consumes a primed AttributeName and the value that
// follows it, if any. An attribute without a value yields an empty value
// Section. It returns ok=false, without error, when another token is primed.
func (r *Reader) TryReadAttribute() (name, value Section, ok bool, err error) {
	blob, err := r.PeekNext()
	if err != nil || blob != BlobAttributeName {
		return Section{}, Section{}, false, err
	}

	name, err = r.readToken()
	if err != nil {
		return Section{}, Section{}, false, r.fail(err)
	}
	r.eatWhitespace()
	r.consume()

	blob, err = r.PeekNext()
	if err != nil {
		return Section{}, Section{}, false, err
	}
	if blob == BlobAttributeValue {
		value, err = r.readToken()
		if err != nil {
			return Section{}, Section{}, false, r.fail(err)
		}
		r.consume()
	}
	return name, value, true, nil
}

// SkipElement skips the primed token: a whole element subtree including
// its EndElement, or a single attribute. If the primed token is an
// EndElement it belongs to the enclosing element and is left in place.
func (r *Reader) SkipElement() error {
	depth := 0
	for {
		blob, err := r.PeekNext()
		if err != nil {
			return err
		}

		switch blob {
		case BlobBeginElement:
			if _, _, err := r.TryReadBeginElement(); err != nil {
				return err
			}
			depth++

		case BlobEndElement:
			if depth == 0 {
				return nil
			}
			if _, err := r.TryReadEndElement(); err != nil {
				return err
			}
			depth--
			if depth == 0 {
				return nil
			}

		case BlobAttributeName:
			if _, _, _, err := r.TryReadAttribute(); err != nil {
				return err
			}
			if depth == 0 {
				return nil
			}

		default:
			return r.fail(formatErrorf(r.Location(), ErrUnexpectedBlob, "%s while skipping forward", blob))
		}
	}
}

// ============================================================
// Scanning helpers
// ============================================================

func (r *Reader) prime(b Blob) Blob {
	r.primed = b
	return b
}

func (r *Reader) consume() {
	r.primed = BlobNone
	r.protected = false
}

func (r *Reader) fail(err error) error {
	if r.err == nil {
		r.err = err
	}
	return r.err
}

func (r *Reader) startLine() {
	r.activeLineSpaces = 0
	r.lineIndex++
	r.lineStart = r.cursor.Pos()
}

// tryEat consumes pattern if the input continues with it.
func (r *Reader) tryEat(pattern []uint32) bool {
	c := r.cursor
	if !r.codec.hasPrefix(c.buf, c.pos, c.end, pattern) {
		return false
	}
	c.Move(len(pattern) * r.codec.size)
	return true
}

// eatProtectedPrefix consumes the protected string prefix and switches the
// next read to protected mode. Input that starts like the prefix ("<:")
// but does not complete it is rejected.
func (r *Reader) eatProtectedPrefix() error {
	pre := r.consts.ProtectedPrefix
	r.protected = r.tryEat(pre)
	if r.protected {
		return nil
	}
	c := r.cursor
	if !r.codec.hasPrefix(c.buf, c.pos, c.end, pre[:2]) {
		return nil
	}
	if c.Remaining() < len(pre)*r.codec.size {
		return formatErrorf(r.Location(), ErrMarkerClipped, "protected string prefix")
	}
	return formatErrorf(r.Location(), ErrMalformedMarker, "protected string prefix")
}

// eatWhitespace skips whitespace without counting it as indentation.
func (r *Reader) eatWhitespace() {
	c := r.cursor
	p := c.pos
	for p+r.codec.size <= c.end && r.consts.IsWhitespace(r.codec.unit(c.buf, p)) {
		p += r.codec.size
	}
	c.SetPos(p)
}

// skipToEndOfLine leaves the cursor on the line break.
func (r *Reader) skipToEndOfLine() {
	c := r.cursor
	p := c.pos
	for p+r.codec.size <= c.end {
		u := r.codec.unit(c.buf, p)
		if u == unitCR || u == unitLF {
			break
		}
		p += r.codec.size
	}
	c.SetPos(p)
}

// readToken reads a name or value in the mode PeekNext detected.
func (r *Reader) readToken() (Section, error) {
	if r.protected {
		return r.readProtected()
	}
	return r.readUnprotected(), nil
}

// readProtected reads up to the protected string terminator and consumes
// it. Line breaks inside the string are counted so later locations stay
// accurate.
func (r *Reader) readProtected() (Section, error) {
	c := r.cursor
	start := c.pos
	end := r.codec.index(c.buf, start, c.end, r.consts.ProtectedPostfix)
	if end < 0 {
		return Section{}, formatErrorf(r.Location(), ErrUnterminatedString, "protected string")
	}

	for p := start; p < end; p += r.codec.size {
		switch r.codec.unit(c.buf, p) {
		case unitCR:
			if p+r.codec.size < end && r.codec.unit(c.buf, p+r.codec.size) == unitLF {
				p += r.codec.size
			}
			r.lineIndex++
			r.lineStart = p + r.codec.size
		case unitLF:
			r.lineIndex++
			r.lineStart = p + r.codec.size
		}
	}

	c.SetPos(end + len(r.consts.ProtectedPostfix)*r.codec.size)
	return c.section(start, end, r.codec), nil
}

// readUnprotected reads up to the next formatting character or the end of
// input. Trailing whitespace is not part of the result.
func (r *Reader) readUnprotected() Section {
	c := r.cursor
	start := c.pos
	p, stringEnd := start, start
	for p+r.codec.size <= c.end {
		u := r.codec.unit(c.buf, p)
		if r.consts.IsFormatting(u) {
			break
		}
		p += r.codec.size
		if !r.consts.IsWhitespace(u) {
			stringEnd = p
		}
	}
	c.SetPos(p)
	return c.section(start, stringEnd, r.codec)
}

func ceilToMultiple(x, m int) int {
	return (x + m - 1) / m * m
}
