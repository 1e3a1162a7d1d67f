// Package streamfmt implements an indentation-delimited hierarchical text
// format for configuration and data interchange.
//
// A document is a sequence of elements with key/value attributes. Nesting
// is expressed by indentation only; there are no closing markers.
//
// # Syntax
//
//	~~!Format=1; Tab=4
//
//	~Root; x=1
//
//		~Child; name=has space; pad=<:( leading):>
//	~~ a comment runs to the end of the line
//
// Header:     ~~!Format=1; Tab=<N> (optional, defaults to Tab=4)
// Element:    ~name on its own line
// Attribute:  name=value, separated by "; " when sharing a line
// Protected:  <:( ... ):> around names or values with edge whitespace,
// structural characters (~ ; = CR LF NUL) or a leading '<'
// Comment:    ~~ to the end of the line
//
// A line indented no deeper than an open element ends it; the end of input
// ends every element still open.
//
// # Reading
//
// Reader is a pull tokenizer over a Cursor. PeekNext reports the next Blob
// without consuming it; TryReadBeginElement, TryReadEndElement and
// TryReadAttribute consume it and return Sections that alias the input:
//
//	r := streamfmt.NewReader(streamfmt.NewCursor(buf))
//	for {
//		blob, err := r.PeekNext()
//		...
//	}
//
// Walk, Validate, Transcode and Dump drive a Reader to the end of input.
//
// # Writing
//
// Writer emits directly to an io.Writer, wrapping attributes at about 100
// columns and protecting names and values as needed.
//
// # Code unit widths
//
// Both directions work on 8, 16 or 32 bit code units, selected with
// WithWidth and WithWriterWidth.
package streamfmt
