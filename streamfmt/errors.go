package streamfmt

import (
	"fmt"

	"github.com/pkg/errors"
)

// Read-side format violations. They are returned wrapped in a *FormatError.
var (
	ErrMarkerClipped           = errors.New("blob prefix clipped")
	ErrMalformedMarker         = errors.New("malformed blob prefix")
	ErrUnterminatedString      = errors.New("string deliminator not found")
	ErrUnsupportedFormat       = errors.New("unsupported format in header")
	ErrBadTabWidth             = errors.New("bad tab width in header")
	ErrUnsupportedWhitespace   = errors.New("unsupported white space character")
	ErrExcessiveIndentation    = errors.New("excessive indentation")
	ErrUnexpectedBlob          = errors.New("unexpected blob")
	ErrUnexpectedHeaderElement = errors.New("unexpected element in header")
)

// Write-side usage errors.
var (
	ErrUnexpectedEndElement  = errors.New("unexpected EndElement")
	ErrElementIDMismatch     = errors.New("EndElement for wrong element id")
	ErrExcessiveIndentLevel  = errors.New("excessive indent level")
	ErrUnclosedElements      = errors.New("flush with open elements")
	ErrUnrepresentableString = errors.New("string contains the protected string terminator")
)

// Location is a position in the input, counted in code units.
type Location struct {
	Line int // 1-based
	Char int // 1-based
}

// String returns the location as "line:char".
func (l Location) String() string {
	return fmt.Sprintf("%d:%d", l.Line, l.Char)
}

// FormatError is a format violation found while reading, with the location
// at which it was detected.
type FormatError struct {
	Loc Location
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("format error (%v) at line (%d), char (%d)", e.Err, e.Loc.Line, e.Loc.Char)
}

// Unwrap returns the underlying sentinel error.
func (e *FormatError) Unwrap() error {
	return e.Err
}

// Cause supports errors.Cause from github.com/pkg/errors.
func (e *FormatError) Cause() error {
	return e.Err
}

func formatErrorf(loc Location, sentinel error, format string, args ...any) *FormatError {
	return &FormatError{Loc: loc, Err: errors.Wrapf(sentinel, format, args...)}
}
