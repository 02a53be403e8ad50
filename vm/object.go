package vm

import (
	xmlbridge "github.com/wippyai/xml-bridge"
)

// Ref is an opaque reference to a foreign object. 0 is null.
// Refs are never reused within one VM, so a Ref is the object's identity.
type Ref uint64

// GlobalRef is a reference that keeps its object reachable until deleted.
type GlobalRef uint64

// Object is a value living in the foreign heap.
type Object interface {
	// Class returns the foreign class name.
	Class() string
	// refs lists the objects this object keeps reachable.
	refs() []Ref
	// free releases heap storage. Called once, by the collector.
	free(alloc xmlbridge.Allocator)
}

// ByteArray is a byte array stored in heap memory.
type ByteArray struct {
	ptr    uint32
	length uint32
}

func (*ByteArray) Class() string { return "byte[]" }
func (*ByteArray) refs() []Ref   { return nil }
func (a *ByteArray) free(alloc xmlbridge.Allocator) {
	alloc.Free(a.ptr, a.length, 1)
}

// Len returns the array length.
func (a *ByteArray) Len() int { return int(a.length) }

// String is an immutable string stored in heap memory as UTF-16LE code units.
type String struct {
	ptr   uint32
	units uint32
}

func (*String) Class() string { return "String" }
func (*String) refs() []Ref   { return nil }
func (s *String) free(alloc xmlbridge.Allocator) {
	alloc.Free(s.ptr, s.units*2, 2)
}

// Len returns the length in UTF-16 code units.
func (s *String) Len() int { return int(s.units) }

// Standalone is the value of the standalone pseudo-attribute.
type Standalone int8

const (
	StandaloneUnspecified Standalone = iota
	StandaloneYes
	StandaloneNo
)

// Document is a parsed XML document.
// String fields hold refs to *String objects; XMLEncoding is null when the
// document has no encoding declaration.
type Document struct {
	XMLEncoding   Ref
	XMLVersion    Ref
	InputEncoding Ref
	DocumentElem  Ref
	Standalone    Standalone
	Elements      int
}

func (*Document) Class() string { return "Document" }

func (d *Document) refs() []Ref {
	return []Ref{d.XMLEncoding, d.XMLVersion, d.InputEncoding, d.DocumentElem}
}

func (*Document) free(xmlbridge.Allocator) {}
