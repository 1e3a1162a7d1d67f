package streamfmt

import (
	"crypto/sha256"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Event is one structural step of a document, as delivered by Walk.
type Event struct {
	Kind  Blob     // BlobBeginElement, BlobEndElement or BlobAttributeName
	Name  Section  // Element or attribute name
	Value Section  // Attribute value (empty if the attribute has none)
	Depth int      // Nesting depth after the event
	Loc   Location // Reader location after the event
}

// Handler is called for each event. Returning an error stops the walk.
type Handler func(ev Event) error

// Walk reads r to the end of input, calling h for every element begin,
// element end and attribute. Sections in an event alias the reader's
// buffer.
func Walk(r *Reader, h Handler) error {
	for {
		blob, err := r.PeekNext()
		if err != nil {
			return err
		}

		var ev Event
		switch blob {
		case BlobNone:
			return nil

		case BlobBeginElement:
			name, _, err := r.TryReadBeginElement()
			if err != nil {
				return err
			}
			ev = Event{Kind: BlobBeginElement, Name: name}

		case BlobEndElement:
			if _, err := r.TryReadEndElement(); err != nil {
				return err
			}
			ev = Event{Kind: BlobEndElement}

		case BlobAttributeName:
			name, value, _, err := r.TryReadAttribute()
			if err != nil {
				return err
			}
			ev = Event{Kind: BlobAttributeName, Name: name, Value: value}

		default:
			return r.fail(formatErrorf(r.Location(), ErrUnexpectedBlob, "%s without attribute name", blob))
		}

		ev.Depth = r.Depth()
		ev.Loc = r.Location()
		if err := h(ev); err != nil {
			return err
		}
	}
}

// Stats summarises a document.
type Stats struct {
	Header     Header
	Elements   int
	Attributes int
	MaxDepth   int
}

// Validate reads a whole document and reports its shape. The first format
// violation is returned with the stats gathered up to that point.
func Validate(r *Reader) (Stats, error) {
	var st Stats
	err := Walk(r, func(ev Event) error {
		switch ev.Kind {
		case BlobBeginElement:
			st.Elements++
			if ev.Depth > st.MaxDepth {
				st.MaxDepth = ev.Depth
			}
		case BlobAttributeName:
			st.Attributes++
		}
		return nil
	})
	st.Header = r.Header()
	return st, err
}

// Transcode re-emits every token read from r through w and flushes w.
// The reader and writer may use different widths and byte orders.
func Transcode(r *Reader, w *Writer) error {
	ids := make([]ElementID, 0, DefaultMaxDepth)
	err := Walk(r, func(ev Event) error {
		switch ev.Kind {
		case BlobBeginElement:
			id, err := w.BeginElement(ev.Name.String())
			if err != nil {
				return err
			}
			ids = append(ids, id)
		case BlobEndElement:
			if err := w.EndElement(ids[len(ids)-1]); err != nil {
				return err
			}
			ids = ids[:len(ids)-1]
		case BlobAttributeName:
			return w.WriteAttribute(ev.Name.String(), ev.Value.String())
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "transcode")
	}
	return errors.Wrap(w.Flush(), "transcode")
}

// Dump writes one line per event to out, indented by depth:
//
//	BEGIN_ELEMENT "Root"
//	  ATTRIBUTE "x" = "1"
//	END_ELEMENT
func Dump(r *Reader, out io.Writer) error {
	return Walk(r, func(ev Event) error {
		var line string
		switch ev.Kind {
		case BlobBeginElement:
			line = fmt.Sprintf("%s%s %q\n", strings.Repeat("  ", ev.Depth-1), ev.Kind, ev.Name.String())
		case BlobEndElement:
			line = fmt.Sprintf("%s%s\n", strings.Repeat("  ", ev.Depth), ev.Kind)
		case BlobAttributeName:
			line = fmt.Sprintf("%sATTRIBUTE %q = %q\n", strings.Repeat("  ", ev.Depth), ev.Name.String(), ev.Value.String())
		}
		_, err := io.WriteString(out, line)
		return err
	})
}

// CanonicalHash is SHA-256 of the document as Transcode would emit it with
// default writer options. Documents that differ only in layout, comments,
// code unit width or byte order hash the same.
func CanonicalHash(r *Reader) ([32]byte, error) {
	h := sha256.New()
	var sum [32]byte
	if err := Transcode(r, NewWriter(h)); err != nil {
		return sum, err
	}
	copy(sum[:], h.Sum(nil))
	return sum, nil
}
