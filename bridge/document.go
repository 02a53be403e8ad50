package bridge

import (
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/xml-bridge/errors"
	"github.com/wippyai/xml-bridge/pin"
	"github.com/wippyai/xml-bridge/vm"
)

// Document is a host handle to a pinned foreign document.
//
// Close releases the document; it is safe to call more than once. A handle
// dropped without Close is released when the Go collector reclaims it, but
// that may happen late or never, so callers should always Close.
type Document struct {
	state   *handleState
	cleanup runtime.Cleanup
}

// handleState is kept apart from Document so the cleanup can reach it without
// keeping the Document itself alive.
type handleState struct {
	mu     sync.RWMutex
	bridge *Bridge
	entry  pin.Entry
	closed bool
}

// wrap pins ref and returns its handle. It must run while ref is still held
// by the calling thread's local frame.
func (b *Bridge) wrap(ref vm.Ref) (*Document, error) {
	entry, err := b.registry.Pin(ref)
	if err != nil {
		return nil, err
	}
	b.pinsChanged()

	st := &handleState{bridge: b, entry: entry}
	d := &Document{state: st}
	d.cleanup = runtime.AddCleanup(d, func(s *handleState) {
		if err := s.release(releaseCleanup); err != nil {
			s.bridge.log.Warn("document cleanup failed", zap.Error(err))
		}
	}, st)
	return d, nil
}

func (b *Bridge) pinsChanged() {
	if b.countPins {
		b.metrics.Pinned.Set(float64(b.registry.Count()))
	}
}

// release unpins the document exactly once.
// The bridge lifetime lock is always taken before the handle lock.
func (s *handleState) release(how string) error {
	b := s.bridge
	b.lifeMu.RLock()
	defer b.lifeMu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if b.closed.Load() {
		// Bridge.Close already dropped every anchor.
		return nil
	}
	if err := b.registry.Unpin(s.entry); err != nil {
		return err
	}
	b.pinsChanged()
	b.metrics.released(how)
	b.log.Debug("document released",
		zap.String("how", how),
		zap.Uint64("ref", uint64(s.entry.Ref)))
	return nil
}

// Close releases the document. Subsequent calls return nil.
func (d *Document) Close() error {
	d.cleanup.Stop()
	return d.state.release(releaseClose)
}

// Closed reports whether the handle has been released.
func (d *Document) Closed() bool {
	d.state.mu.RLock()
	defer d.state.mu.RUnlock()
	return d.state.closed || d.state.bridge.closed.Load()
}

// read runs fn against the foreign document on an attached thread.
// The read locks keep both Document.Close and Bridge.Close out until fn returns.
func (d *Document) read(method string, fn func(*vm.Thread, *vm.Document) *vm.Throwable) error {
	s := d.state
	s.bridge.lifeMu.RLock()
	defer s.bridge.lifeMu.RUnlock()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed || s.bridge.closed.Load() {
		return errors.Disposed("document")
	}

	t, err := s.bridge.vm.AttachCurrentThread()
	if err != nil {
		return errors.Wrap(errors.PhaseAccess, errors.KindInitialization, err, "attach thread")
	}
	defer t.Detach()

	doc, thr := t.Document(s.entry.Ref)
	if thr == nil {
		thr = fn(t, doc)
	}
	runtime.KeepAlive(d)
	if thr != nil {
		return s.bridge.translate(errors.PhaseAccess, thr, "Document", method)
	}
	return nil
}

func (d *Document) readString(method string, field func(*vm.Document) vm.Ref) (string, error) {
	var out string
	err := d.read(method, func(t *vm.Thread, doc *vm.Document) *vm.Throwable {
		s, thr := t.StringUTF(field(doc))
		out = s
		return thr
	})
	return out, err
}

// Encoding returns the encoding named in the XML declaration, exactly as
// written. It is "" when the document declares no encoding.
func (d *Document) Encoding() (string, error) {
	enc, _, err := d.LookupEncoding()
	return enc, err
}

// LookupEncoding is like Encoding but also reports whether an encoding was
// declared at all.
func (d *Document) LookupEncoding() (string, bool, error) {
	var (
		enc      string
		declared bool
	)
	err := d.read("LookupEncoding", func(t *vm.Thread, doc *vm.Document) *vm.Throwable {
		if doc.XMLEncoding == 0 {
			return nil
		}
		s, thr := t.StringUTF(doc.XMLEncoding)
		enc, declared = s, thr == nil
		return thr
	})
	if err != nil {
		return "", false, err
	}
	return enc, declared, nil
}

// Version returns the XML version, "1.0" when undeclared.
func (d *Document) Version() (string, error) {
	return d.readString("Version", func(doc *vm.Document) vm.Ref { return doc.XMLVersion })
}

// InputEncoding returns the encoding the document was actually read with.
func (d *Document) InputEncoding() (string, error) {
	return d.readString("InputEncoding", func(doc *vm.Document) vm.Ref { return doc.InputEncoding })
}

// RootName returns the local name of the document element.
func (d *Document) RootName() (string, error) {
	return d.readString("RootName", func(doc *vm.Document) vm.Ref { return doc.DocumentElem })
}

// Standalone returns "yes" or "no" as declared, or "" when undeclared.
func (d *Document) Standalone() (string, error) {
	var out string
	err := d.read("Standalone", func(_ *vm.Thread, doc *vm.Document) *vm.Throwable {
		switch doc.Standalone {
		case vm.StandaloneYes:
			out = "yes"
		case vm.StandaloneNo:
			out = "no"
		}
		return nil
	})
	return out, err
}

// ElementCount returns the number of elements in the document.
func (d *Document) ElementCount() (int, error) {
	var n int
	err := d.read("ElementCount", func(_ *vm.Thread, doc *vm.Document) *vm.Throwable {
		n = doc.Elements
		return nil
	})
	return n, err
}
