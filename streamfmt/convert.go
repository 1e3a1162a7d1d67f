package streamfmt

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

// textEncoding returns the x/text encoding for a multi-unit width.
func textEncoding(w Width, bigEndian bool) (encoding.Encoding, error) {
	switch w {
	case Width16:
		if bigEndian {
			return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), nil
		}
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), nil
	case Width32:
		if bigEndian {
			return utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM), nil
		}
		return utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM), nil
	default:
		return nil, errors.Errorf("no text encoding for width %s", w)
	}
}

// EncodeString converts a UTF-8 string to code units of the given width.
func EncodeString(s string, w Width, bigEndian bool) ([]byte, error) {
	if w == Width8 {
		return []byte(s), nil
	}
	enc, err := textEncoding(w, bigEndian)
	if err != nil {
		return nil, err
	}
	b, err := enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, errors.Wrapf(err, "encode %q as %s", s, w)
	}
	return b, nil
}

// DecodeUnits converts code units of the given width to a UTF-8 string.
// A trailing partial code unit is ignored.
func DecodeUnits(b []byte, w Width, bigEndian bool) (string, error) {
	if w == Width8 {
		return string(b), nil
	}
	b = b[:len(b)-len(b)%w.UnitSize()]
	enc, err := textEncoding(w, bigEndian)
	if err != nil {
		return "", err
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", errors.Wrapf(err, "decode %s", w)
	}
	return string(out), nil
}

// Recode converts a code-unit sequence from one width and byte order to
// another.
func Recode(b []byte, from Width, fromBig bool, to Width, toBig bool) ([]byte, error) {
	if from == to && fromBig == toBig {
		return b, nil
	}
	s, err := DecodeUnits(b, from, fromBig)
	if err != nil {
		return nil, err
	}
	return EncodeString(s, to, toBig)
}

// parseHeaderInt parses a header field value. Surrounding whitespace is
// ignored.
func parseHeaderInt(s Section) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s.String()))
	if err != nil {
		return 0, errors.Wrapf(err, "header value %q", s.String())
	}
	return n, nil
}
