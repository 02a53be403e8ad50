package vm

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"sort"
	"strings"

	"github.com/jacoelho/xsd/pkg/xmlstream"
	"github.com/jacoelho/xsd/pkg/xmltext"
)

// Document builder features.
const (
	// FeatureDisallowDoctype rejects documents containing a DOCTYPE declaration.
	FeatureDisallowDoctype = "disallow-doctype-decl"
	// FeatureRequireDeclaration rejects documents without an XML declaration.
	FeatureRequireDeclaration = "require-xml-declaration"
)

var knownFeatures = map[string]bool{
	FeatureDisallowDoctype:    true,
	FeatureRequireDeclaration: true,
}

// DocumentBuilderFactory configures and creates document builders.
type DocumentBuilderFactory struct {
	features map[string]bool
}

// NewDocumentBuilderFactory returns a factory with every feature disabled.
func NewDocumentBuilderFactory() *DocumentBuilderFactory {
	return &DocumentBuilderFactory{features: make(map[string]bool)}
}

// SetFeature records a feature. Unknown features are only rejected when a
// builder is created with them enabled.
func (f *DocumentBuilderFactory) SetFeature(name string, value bool) {
	f.features[name] = value
}

// NewDocumentBuilder creates a builder. Builders hold per-parse state and are
// not safe for concurrent use.
func (f *DocumentBuilderFactory) NewDocumentBuilder(t *Thread) (*DocumentBuilder, *Throwable) {
	t.enter("DocumentBuilderFactory", "newDocumentBuilder")
	defer t.leave()

	var unknown []string
	features := make(map[string]bool, len(f.features))
	for name, on := range f.features {
		if on && !knownFeatures[name] {
			unknown = append(unknown, name)
		}
		features[name] = on
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, t.throwf(ClassConfigurationException,
			"feature %q is not recognized", strings.Join(unknown, ", "))
	}
	return &DocumentBuilder{t: t, features: features}, nil
}

// DocumentBuilder parses XML streams into Document objects.
type DocumentBuilder struct {
	t        *Thread
	features map[string]bool
}

// scanResult is what the scanner learns about a document before it is
// materialized in the heap.
type scanResult struct {
	version       string
	encoding      string
	inputEncoding string
	root          string
	elements      int
	standalone    Standalone
	hasDecl       bool // XML declaration present
	declared      bool // encoding declaration present
}

// Parse reads the whole stream and returns a new Document. The stream is
// closed on return. The document is only rooted by the thread's local frame.
func (b *DocumentBuilder) Parse(in InputStream) (Ref, *Throwable) {
	t := b.t
	t.enter("DocumentBuilder", "parse")
	defer t.leave()
	defer in.Close()

	res, thr := b.scan(in)
	if thr != nil {
		return 0, thr
	}

	doc := &Document{Standalone: res.standalone, Elements: res.elements}
	if res.declared {
		if doc.XMLEncoding, thr = t.NewString(res.encoding); thr != nil {
			return 0, thr
		}
	}
	if doc.XMLVersion, thr = t.NewString(res.version); thr != nil {
		return 0, thr
	}
	if doc.InputEncoding, thr = t.NewString(res.inputEncoding); thr != nil {
		return 0, thr
	}
	if doc.DocumentElem, thr = t.NewString(res.root); thr != nil {
		return 0, thr
	}
	return t.vm.register(t, doc), nil
}

func (b *DocumentBuilder) scan(in io.Reader) (*scanResult, *Throwable) {
	t := b.t
	t.enter("XMLScanner", "scanDocument")
	defer t.leave()

	src := &recordingReader{r: in}
	raw := bufio.NewReader(src)
	det, err := detectEncoding(raw)
	if err != nil {
		return nil, b.readFailure(err)
	}

	// text is UTF-8 for UTF-16 input and still 8-bit otherwise; either way
	// the declaration is ASCII and can be read before choosing a charset.
	text := bufio.NewReader(det.reader(raw))
	decl, thr := b.readDeclaration(text)
	if thr != nil {
		return nil, thr
	}

	res := &scanResult{version: "1.0", inputEncoding: det.name}
	body := io.Reader(text)
	if decl != nil {
		res.hasDecl = true
		res.version = decl.version
		res.standalone = decl.standalone
		if decl.hasEncoding {
			res.encoding = decl.encoding
			res.declared = true
			if !det.utf16 && !isUTF16Label(decl.encoding) {
				res.inputEncoding = decl.encoding
			}
			if body, err = det.charsetReader(decl.encoding, text); err != nil {
				thr := t.throwf(ClassEncodingException, "%v", err)
				thr.Line = 1
				return nil, thr
			}
		}
	}
	if !res.hasDecl && b.features[FeatureRequireDeclaration] {
		return nil, t.throwf(ClassParseException,
			"XML declaration is required when feature %q is set", FeatureRequireDeclaration)
	}

	r, err := xmlstream.NewReader(body,
		xmltext.WithCharsetReader(decodedCharset),
		xmltext.EmitDirectives(true),
	)
	if err != nil {
		return nil, b.tokenFailure(err)
	}

	depth := 0
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if src.err != nil {
				return nil, b.readFailure(src.err)
			}
			return nil, b.tokenFailure(err)
		}

		switch ev.Kind {
		case xmlstream.EventStartElement:
			if depth == 0 {
				res.root = ev.Name.Local
			}
			depth++
			res.elements++

		case xmlstream.EventEndElement:
			depth--

		case xmlstream.EventDirective:
			if bytes.HasPrefix(ev.Text, []byte("DOCTYPE")) && b.features[FeatureDisallowDoctype] {
				thr := t.throwf(ClassParseException,
					"DOCTYPE is disallowed when feature %q is set", FeatureDisallowDoctype)
				thr.Line = ev.Line
				return nil, thr
			}
		}
	}
	return res, nil
}

// decodedCharset hands the stream back unchanged. The tokenizer still finds
// the encoding label in the declaration, but by then the charset chosen by
// readDeclaration is already applied.
func decodedCharset(_ string, r io.Reader) (io.Reader, error) {
	return r, nil
}

func (b *DocumentBuilder) tokenFailure(err error) *Throwable {
	var syn *xmltext.SyntaxError
	if errors.As(err, &syn) && syn.Err != nil {
		thr := b.t.throwf(ClassParseException, "%v", syn.Err)
		thr.Line = syn.Line
		return thr
	}
	return b.t.throwf(ClassParseException, "%v", err)
}

func (b *DocumentBuilder) readFailure(err error) *Throwable {
	thr := b.t.throwf(ClassIOException, "%v", err)
	var cause *Throwable
	if errors.As(err, &cause) {
		thr.Message = "read failed"
		thr.Cause = cause
	}
	return thr
}

// recordingReader remembers the first read error other than io.EOF so that
// stream failures can be told apart from syntax errors.
type recordingReader struct {
	r   io.Reader
	err error
}

func (r *recordingReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil && err != io.EOF && r.err == nil {
		r.err = err
	}
	return n, err
}
