package streamfmt

import (
	"io"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

const (
	// DefaultTabWidth is the tab width assumed when a stream has no header.
	DefaultTabWidth = 4

	// DefaultLineLength is the line length the writer tries to stay under.
	DefaultLineLength = 100

	// DefaultMaxIndent is the number of elements the writer lets be open at
	// once. It matches DefaultMaxDepth so default readers accept default
	// output.
	DefaultMaxIndent = 64

	// FormatVersion is the only format version understood.
	FormatVersion = 1
)

// ElementID identifies an element opened by Writer.BeginElement.
type ElementID uint64

// NoElementID is returned by writers that do not check element ids.
const NoElementID ElementID = 0

// elementIDs is shared by all writers so that ids from different writers
// never compare equal.
var elementIDs = atomic.NewUint64(0)

// elementTracker validates EndElement calls.
type elementTracker interface {
	begin() ElementID
	end(id ElementID) error
}

type uncheckedElements struct{}

func (uncheckedElements) begin() ElementID      { return NoElementID }
func (uncheckedElements) end(ElementID) error { return nil }

// checkedElements keeps a shadow stack of open element ids.
type checkedElements struct {
	stack []ElementID
}

func (c *checkedElements) begin() ElementID {
	id := ElementID(elementIDs.Inc())
	c.stack = append(c.stack, id)
	return id
}

func (c *checkedElements) end(id ElementID) error {
	if len(c.stack) == 0 {
		return ErrUnexpectedEndElement
	}
	if top := c.stack[len(c.stack)-1]; top != id {
		return errors.Wrapf(ErrElementIDMismatch, "got %d, innermost open element is %d", id, top)
	}
	c.stack = c.stack[:len(c.stack)-1]
	return nil
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithWriterWidth sets the code unit width of the output (default: Width8).
func WithWriterWidth(width Width) WriterOption {
	return func(w *Writer) {
		w.width = width
	}
}

// WithWriterBigEndian writes multi-byte code units big-endian.
func WithWriterBigEndian() WriterOption {
	return func(w *Writer) {
		w.bigEndian = true
	}
}

// WithCheckedElements makes EndElement verify the id returned by the
// matching BeginElement.
func WithCheckedElements() WriterOption {
	return func(w *Writer) {
		w.elements = &checkedElements{}
	}
}

// WithWriterTabWidth sets the tab width declared in the header and used for
// line length accounting (default: 4).
func WithWriterTabWidth(n int) WriterOption {
	return func(w *Writer) {
		w.tabWidth = n
	}
}

// WithLineLength sets the line length after which attributes wrap
// (default: 100).
func WithLineLength(n int) WriterOption {
	return func(w *Writer) {
		w.lineLength = n
	}
}

// WithMaxIndent sets how many elements may be open at once, which bounds
// the indentation the writer emits (default: 64).
func WithMaxIndent(n int) WriterOption {
	return func(w *Writer) {
		w.maxIndent = n
	}
}

// Writer emits elements and attributes to an io.Writer.
// A Writer is not safe for concurrent use.
type Writer struct {
	sink      io.Writer
	width     Width
	bigEndian bool
	consts    *Constants
	codec     codec

	tabWidth   int
	lineLength int
	maxIndent  int
	elements   elementTracker

	indent        int
	hotLine       bool
	pendingHeader bool
	closedLine    bool // an element ended on the current line
	lineIndent    int  // tabs written at the start of the current line
	lineLen       int

	scratch []byte
	written int64
	err     error
}

// NewWriter creates a writer that emits to sink.
func NewWriter(sink io.Writer, opts ...WriterOption) *Writer {
	w := &Writer{
		sink:          sink,
		width:         Width8,
		tabWidth:      DefaultTabWidth,
		lineLength:    DefaultLineLength,
		maxIndent:     DefaultMaxIndent,
		elements:      uncheckedElements{},
		pendingHeader: true,
		scratch:       make([]byte, 0, 256),
	}
	for _, opt := range opts {
		opt(w)
	}
	consts, err := ConstantsFor(w.width)
	if err != nil {
		w.err = err
		consts = constantTables[Width8]
	}
	if w.tabWidth <= 0 {
		w.err = errors.Wrapf(ErrBadTabWidth, "tab width %d", w.tabWidth)
	}
	w.consts = consts
	w.codec = newCodec(consts.Width, w.bigEndian)
	return w
}

// Depth returns the number of open elements.
func (w *Writer) Depth() int {
	return w.indent
}

// Err returns the first error the writer encountered.
func (w *Writer) Err() error {
	return w.err
}

// BytesWritten returns the number of bytes handed to the sink.
func (w *Writer) BytesWritten() int64 {
	return w.written
}

// BeginElement starts a new element on its own line, preceded by a blank
// line, and returns an id for EndElement.
func (w *Writer) BeginElement(name string) (ElementID, error) {
	if w.err != nil {
		return NoElementID, w.err
	}
	encoded, err := w.encode(name)
	if err != nil {
		return NoElementID, w.fail(err)
	}

	if w.indent >= w.maxIndent {
		return NoElementID, w.fail(errors.Wrapf(ErrExcessiveIndentLevel, "%d open elements, limit is %d", w.indent, w.maxIndent))
	}

	dst, err := w.newLine(w.scratch[:0])
	if err != nil {
		return NoElementID, w.fail(err)
	}
	w.hotLine = true
	if dst, err = w.newLine(dst); err != nil {
		return NoElementID, w.fail(err)
	}

	dst = w.codec.appendUnit(dst, w.consts.ElementPrefix)
	before := len(dst)
	if dst, err = w.appendToken(dst, encoded); err != nil {
		return NoElementID, w.fail(err)
	}

	w.hotLine = true
	w.lineLen += 1 + w.codec.units(len(dst)-before)
	w.indent++
	id := w.elements.begin()
	return id, w.flushScratch(dst)
}

// WriteAttribute writes name=value, wrapping onto a new line when the
// current one would grow past the line length or belongs to an element
// that has since ended.
func (w *Writer) WriteAttribute(name, value string) error {
	if w.err != nil {
		return w.err
	}
	encName, err := w.encode(name)
	if err != nil {
		return w.fail(err)
	}
	encValue, err := w.encode(value)
	if err != nil {
		return w.fail(err)
	}

	dst := w.scratch[:0]
	cost := w.codec.units(len(encName)) + w.codec.units(len(encValue)) + 3
	switch {
	case w.pendingHeader || w.closedLine || w.lineLen+cost > w.lineLength:
		// a line holding only a closed child's tabs still has to end
		if w.closedLine {
			w.hotLine = true
		}
		if dst, err = w.newLine(dst); err != nil {
			return w.fail(err)
		}
	case w.hotLine:
		dst = w.codec.appendUnits(dst, []uint32{unitSeparator, unitSpace})
		w.lineLen += 2
	}

	before := len(dst)
	if dst, err = w.appendToken(dst, encName); err != nil {
		return w.fail(err)
	}
	dst = w.codec.appendUnit(dst, unitAssign)
	if dst, err = w.appendToken(dst, encValue); err != nil {
		return w.fail(err)
	}

	w.lineLen += w.codec.units(len(dst) - before)
	w.hotLine = true
	return w.flushScratch(dst)
}

// EndElement closes the innermost open element. Writers created with
// WithCheckedElements require id to be the one BeginElement returned for it.
func (w *Writer) EndElement(id ElementID) error {
	if w.err != nil {
		return w.err
	}
	if w.indent == 0 {
		return w.fail(ErrUnexpectedEndElement)
	}
	if err := w.elements.end(id); err != nil {
		return w.fail(err)
	}
	w.indent--
	w.closedLine = w.hotLine || w.lineIndent > w.indent
	return nil
}

// NewLine ends the current line.
func (w *Writer) NewLine() error {
	if w.err != nil {
		return w.err
	}
	dst, err := w.newLine(w.scratch[:0])
	if err != nil {
		return w.fail(err)
	}
	return w.flushScratch(dst)
}

// Flush ends the current line and flushes the sink if it buffers. All
// elements must have been closed.
func (w *Writer) Flush() error {
	if err := w.NewLine(); err != nil {
		return err
	}
	if w.indent != 0 {
		return w.fail(errors.Wrapf(ErrUnclosedElements, "%d still open", w.indent))
	}
	if f, ok := w.sink.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return w.fail(errors.Wrap(err, "flush formatted output"))
		}
	}
	return nil
}

// newLine appends a line break and the current indentation if the line
// has content. The header goes out before the first line.
func (w *Writer) newLine(dst []byte) ([]byte, error) {
	if w.pendingHeader {
		dst = w.codec.appendUnits(dst, w.consts.HeaderPrefix)
		header, err := EncodeString("Format="+strconv.Itoa(FormatVersion)+"; Tab="+strconv.Itoa(w.tabWidth), w.width, w.bigEndian)
		if err != nil {
			return dst, err
		}
		dst = append(dst, header...)
		w.pendingHeader = false
		w.hotLine = true
	}

	if w.hotLine {
		if w.indent > w.maxIndent {
			return dst, errors.Wrapf(ErrExcessiveIndentLevel, "level %d exceeds %d", w.indent, w.maxIndent)
		}
		dst = w.codec.appendUnits(dst, w.consts.EndLine)
		for i := 0; i < w.indent; i++ {
			dst = w.codec.appendUnit(dst, w.consts.Tab)
		}
		w.hotLine = false
		w.closedLine = false
		w.lineIndent = w.indent
		w.lineLen = w.indent * w.tabWidth
	}
	return dst, nil
}

// appendToken appends encoded bare when it is simple and protected
// otherwise.
func (w *Writer) appendToken(dst, encoded []byte) ([]byte, error) {
	if isSimpleUnits(w.consts, w.codec, encoded) {
		return append(dst, encoded...), nil
	}
	if w.codec.index(encoded, 0, len(encoded), w.consts.ProtectedPostfix) >= 0 {
		return dst, ErrUnrepresentableString
	}
	dst = w.codec.appendUnits(dst, w.consts.ProtectedPrefix)
	dst = append(dst, encoded...)
	return w.codec.appendUnits(dst, w.consts.ProtectedPostfix), nil
}

func (w *Writer) encode(s string) ([]byte, error) {
	if w.width == Width8 {
		return []byte(s), nil
	}
	return EncodeString(s, w.width, w.bigEndian)
}

func (w *Writer) flushScratch(dst []byte) error {
	w.scratch = dst[:0]
	if len(dst) == 0 {
		return nil
	}
	n, err := w.sink.Write(dst)
	w.written += int64(n)
	if err != nil {
		return w.fail(errors.Wrap(err, "write formatted output"))
	}
	return nil
}

func (w *Writer) fail(err error) error {
	if w.err == nil {
		w.err = err
	}
	return w.err
}

// IsSimpleString reports whether s can be written without protection:
// it is non-empty, contains no formatting characters, has no leading or
// trailing whitespace and does not start like a protected string.
func IsSimpleString(s string) bool {
	return isSimpleUnits(constantTables[Width8], newCodec(Width8, false), []byte(s))
}

func isSimpleUnits(consts *Constants, cd codec, b []byte) bool {
	n := cd.units(len(b))
	if n == 0 {
		return false
	}
	for i := 0; i < n; i++ {
		if consts.IsFormatting(cd.unit(b, i*cd.size)) {
			return false
		}
	}
	first, last := cd.unit(b, 0), cd.unit(b, (n-1)*cd.size)
	if consts.IsWhitespace(first) || consts.IsWhitespace(last) {
		return false
	}
	return first != consts.ProtectedPrefix[0]
}
