package vm

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// maxDeclLen bounds how far the scanner looks for the end of an XML declaration.
const maxDeclLen = 1024

const declSpace = " \t\r\n"

// xmlDecl holds the pseudo-attributes of an XML declaration.
type xmlDecl struct {
	version     string
	encoding    string
	hasEncoding bool
	standalone  Standalone
}

// Pseudo-attributes in the only order the grammar allows.
const (
	declNone = iota
	declVersion
	declEncoding
	declStandalone
)

func declPosition(name string) int {
	switch name {
	case "version":
		return declVersion
	case "encoding":
		return declEncoding
	case "standalone":
		return declStandalone
	}
	return declNone
}

// readDeclaration peeks at the start of r and parses the XML declaration, if
// there is one. Nothing is consumed: the tokenizer still sees the declaration
// and keeps its line numbers.
//
//	XMLDecl ::= '<?xml' VersionInfo EncodingDecl? SDDecl? S? '?>'
func (b *DocumentBuilder) readDeclaration(r *bufio.Reader) (*xmlDecl, *Throwable) {
	head, err := r.Peek(maxDeclLen)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, b.readFailure(err)
	}
	if len(head) < 5 || !strings.EqualFold(string(head[:5]), "<?xml") {
		return nil, nil
	}
	if len(head) > 5 && !isSpace(head[5]) && head[5] != '?' {
		// A processing instruction whose target merely starts with "xml".
		return nil, nil
	}
	if string(head[:5]) != "<?xml" {
		return nil, b.declFailure(ClassParseException,
			"processing instruction target matching \"[xX][mM][lL]\" is not allowed")
	}
	end := bytes.Index(head, []byte("?>"))
	if end < 0 {
		return nil, b.declFailure(ClassParseException, "XML declaration is not terminated")
	}
	return b.parseDeclaration(string(head[5:end]))
}

func (b *DocumentBuilder) parseDeclaration(s string) (*xmlDecl, *Throwable) {
	decl := &xmlDecl{}
	last := declNone
	for {
		rest := strings.TrimLeft(s, declSpace)
		spaced := len(rest) < len(s)
		s = rest
		if s == "" {
			break
		}

		name, value, tail, ok := declAttr(s)
		if !ok {
			return nil, b.declFailure(ClassParseException,
				"malformed pseudo-attribute in the XML declaration near %q", clip(s, 16))
		}
		if !spaced {
			return nil, b.declFailure(ClassParseException,
				"whitespace is required before %q in the XML declaration", name)
		}
		pos := declPosition(name)
		switch {
		case pos == declNone:
			return nil, b.declFailure(ClassParseException,
				"%q is not allowed in the XML declaration", name)
		case last == declNone && pos != declVersion:
			return nil, b.declFailure(ClassParseException,
				"the version is required first in the XML declaration, found %q", name)
		case pos <= last:
			return nil, b.declFailure(ClassParseException,
				"%q is repeated or out of order in the XML declaration", name)
		}
		last = pos

		switch pos {
		case declVersion:
			if !validVersionNum(value) {
				return nil, b.declFailure(ClassParseException, "unsupported XML version %q", value)
			}
			decl.version = value
		case declEncoding:
			if !validEncName(value) {
				return nil, b.declFailure(ClassEncodingException, "invalid encoding name %q", value)
			}
			decl.encoding = value
			decl.hasEncoding = true
		case declStandalone:
			switch value {
			case "yes":
				decl.standalone = StandaloneYes
			case "no":
				decl.standalone = StandaloneNo
			default:
				return nil, b.declFailure(ClassParseException,
					"standalone must be \"yes\" or \"no\", not %q", value)
			}
		}
		s = tail
	}

	if last == declNone {
		return nil, b.declFailure(ClassParseException, "the version is required in the XML declaration")
	}
	return decl, nil
}

// declFailure reports a malformed declaration. Declarations start the
// document, so the line is always 1.
func (b *DocumentBuilder) declFailure(class, format string, args ...any) *Throwable {
	thr := b.t.throwf(class, format, args...)
	thr.Line = 1
	return thr
}

// declAttr splits name Eq quoted-value off the front of s.
//
//	Eq ::= S? '=' S?
func declAttr(s string) (name, value, rest string, ok bool) {
	i := 0
	for i < len(s) && isDeclNameByte(s[i]) {
		i++
	}
	if i == 0 {
		return "", "", s, false
	}
	name, rest = s[:i], strings.TrimLeft(s[i:], declSpace)
	if !strings.HasPrefix(rest, "=") {
		return name, "", rest, false
	}
	rest = strings.TrimLeft(rest[1:], declSpace)
	if rest == "" || (rest[0] != '"' && rest[0] != '\'') {
		return name, "", rest, false
	}
	end := strings.IndexByte(rest[1:], rest[0])
	if end < 0 {
		return name, "", rest, false
	}
	return name, rest[1 : 1+end], rest[end+2:], true
}

func isDeclNameByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '_' || c == '-' || c == '.' || c == ':'
}

// validVersionNum matches VersionNum: '1.' [0-9]+
func validVersionNum(v string) bool {
	digits, ok := strings.CutPrefix(v, "1.")
	if !ok || digits == "" {
		return false
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return false
		}
	}
	return true
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
