package vm

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// detection is the physical encoding found from the first bytes of a stream.
type detection struct {
	name  string
	order unicode.Endianness
	utf16 bool
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16BE = []byte{0xFE, 0xFF}
	bomUTF16LE = []byte{0xFF, 0xFE}

	// "<?" without a BOM
	declUTF16BE = []byte{0x00, 0x3C, 0x00, 0x3F}
	declUTF16LE = []byte{0x3C, 0x00, 0x3F, 0x00}
)

// detectEncoding inspects the first bytes of r and consumes a byte order mark.
// Everything that is not recognisably UTF-16 is treated as an 8-bit,
// ASCII-compatible stream whose charset the declaration may refine.
func detectEncoding(r *bufio.Reader) (detection, error) {
	head, err := r.Peek(4)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return detection{}, err
	}

	switch {
	case bytes.HasPrefix(head, bomUTF8):
		_, err = r.Discard(len(bomUTF8))
		return detection{name: "UTF-8"}, err
	case bytes.HasPrefix(head, bomUTF16BE):
		_, err = r.Discard(len(bomUTF16BE))
		return detection{name: "UTF-16BE", order: unicode.BigEndian, utf16: true}, err
	case bytes.HasPrefix(head, bomUTF16LE):
		_, err = r.Discard(len(bomUTF16LE))
		return detection{name: "UTF-16LE", order: unicode.LittleEndian, utf16: true}, err
	case bytes.Equal(head, declUTF16BE):
		return detection{name: "UTF-16BE", order: unicode.BigEndian, utf16: true}, nil
	case bytes.Equal(head, declUTF16LE):
		return detection{name: "UTF-16LE", order: unicode.LittleEndian, utf16: true}, nil
	}
	return detection{name: "UTF-8"}, nil
}

// reader returns r decoded to UTF-8 according to the detected encoding.
func (d detection) reader(r io.Reader) io.Reader {
	if !d.utf16 {
		return r
	}
	return transform.NewReader(r, unicode.UTF16(d.order, unicode.IgnoreBOM).NewDecoder())
}

// charsetError records why a declared encoding could not be honoured.
type charsetError struct {
	label  string
	reason string
}

func (e *charsetError) Error() string {
	return e.reason + ": " + e.label
}

// charsetReader switches an 8-bit stream to the declared charset.
// UTF-16 labels keep the detected encoding: a UTF-16 stream is already
// decoded, and an 8-bit stream declaring UTF-16 is read as detected.
func (d detection) charsetReader(label string, input io.Reader) (io.Reader, error) {
	if isUTF16Label(label) {
		return input, nil
	}
	if d.utf16 {
		return nil, &charsetError{label: label, reason: "document is " + d.name + " but declares"}
	}
	if isASCIICompatibleUnicode(label) {
		return input, nil
	}

	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil || enc == nil {
		return nil, &charsetError{label: label, reason: "unsupported encoding"}
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

func isUTF16Label(label string) bool {
	switch strings.ToUpper(label) {
	case "UTF-16", "UTF-16BE", "UTF-16LE", "UTF16", "UCS-2", "ISO-10646-UCS-2":
		return true
	}
	return false
}

func isASCIICompatibleUnicode(label string) bool {
	switch strings.ToUpper(label) {
	case "UTF-8", "UTF8", "US-ASCII", "ASCII", "ANSI_X3.4-1968":
		return true
	}
	return false
}

// validEncName reports whether name matches EncName in the XML grammar:
// [A-Za-z] ([A-Za-z0-9._] | '-')*
func validEncName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z':
		case i > 0 && (c >= '0' && c <= '9' || c == '.' || c == '_' || c == '-'):
		default:
			return false
		}
	}
	return true
}
