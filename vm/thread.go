package vm

import (
	"runtime"

	"golang.org/x/text/encoding/unicode"

	"github.com/wippyai/xml-bridge/errors"
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Thread is an OS thread attached to the runtime. It owns a local reference
// frame: every object created through it stays reachable until Detach.
// A Thread must only be used by the goroutine that attached it.
type Thread struct {
	vm     *VM
	locals []Ref   // guarded by vm.mu
	frames []Frame // call stack for stack traces
}

// AttachCurrentThread locks the calling goroutine to its OS thread and
// attaches it. Detach must be called on the same goroutine.
func (v *VM) AttachCurrentThread() (*Thread, error) {
	runtime.LockOSThread()

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		runtime.UnlockOSThread()
		return nil, errors.New(errors.PhaseBootstrap, errors.KindInitialization).
			Detail("runtime closed").
			Build()
	}

	t := &Thread{vm: v}
	v.threads[t] = struct{}{}
	return t, nil
}

// Detach drops the local frame and releases the OS thread.
func (t *Thread) Detach() {
	t.vm.mu.Lock()
	delete(t.vm.threads, t)
	t.locals = nil
	t.vm.mu.Unlock()
	runtime.UnlockOSThread()
}

// VM returns the runtime the thread is attached to.
func (t *Thread) VM() *VM {
	return t.vm
}

func (t *Thread) enter(class, method string) {
	t.frames = append(t.frames, Frame{Class: class, Method: method})
}

func (t *Thread) leave() {
	t.frames = t.frames[:len(t.frames)-1]
}

func (t *Thread) snapshot() []Frame {
	out := make([]Frame, len(t.frames))
	for i, f := range t.frames {
		out[len(t.frames)-1-i] = f
	}
	return out
}

// alloc reserves heap memory, collecting once and retrying if the heap is full.
func (t *Thread) alloc(size, align uint32) (uint32, *Throwable) {
	ptr, err := t.vm.alloc.Alloc(size, align)
	if err == nil {
		return ptr, nil
	}
	t.vm.Collect()
	ptr, err = t.vm.alloc.Alloc(size, align)
	if err != nil {
		return 0, t.throwf(ClassOutOfMemoryError, "cannot allocate %d bytes: %v", size, err)
	}
	return ptr, nil
}

// NewByteArray copies data into a new foreign byte array.
func (t *Thread) NewByteArray(data []byte) (Ref, *Throwable) {
	t.enter("VM", "newByteArray")
	defer t.leave()

	ptr, thr := t.alloc(uint32(len(data)), 1)
	if thr != nil {
		return 0, thr
	}
	if err := t.vm.mem.Write(ptr, data); err != nil {
		t.vm.alloc.Free(ptr, uint32(len(data)), 1)
		return 0, t.throwf(ClassInternalError, "write byte array: %v", err)
	}
	return t.vm.register(t, &ByteArray{ptr: ptr, length: uint32(len(data))}), nil
}

// ByteArrayRegion copies length bytes of the array starting at start.
func (t *Thread) ByteArrayRegion(ref Ref, start, length int) ([]byte, *Throwable) {
	arr, thr := lookupAs[*ByteArray](t, ref)
	if thr != nil {
		return nil, thr
	}
	if start < 0 || length < 0 || start+length > arr.Len() {
		return nil, t.throwf(ClassIllegalStateException,
			"region [%d, %d) outside array of length %d", start, start+length, arr.Len())
	}
	data, err := t.vm.mem.Read(arr.ptr+uint32(start), uint32(length))
	if err != nil {
		return nil, t.throwf(ClassInternalError, "read byte array: %v", err)
	}
	return data, nil
}

// NewString stores s as a foreign string.
func (t *Thread) NewString(s string) (Ref, *Throwable) {
	t.enter("VM", "newString")
	defer t.leave()

	units, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return 0, t.throwf(ClassEncodingException, "encode string: %v", err)
	}
	ptr, thr := t.alloc(uint32(len(units)), 2)
	if thr != nil {
		return 0, thr
	}
	if err := t.vm.mem.Write(ptr, units); err != nil {
		t.vm.alloc.Free(ptr, uint32(len(units)), 2)
		return 0, t.throwf(ClassInternalError, "write string: %v", err)
	}
	return t.vm.register(t, &String{ptr: ptr, units: uint32(len(units) / 2)}), nil
}

// StringUTF returns the string as UTF-8.
func (t *Thread) StringUTF(ref Ref) (string, *Throwable) {
	s, thr := lookupAs[*String](t, ref)
	if thr != nil {
		return "", thr
	}
	units, err := t.vm.mem.Read(s.ptr, s.units*2)
	if err != nil {
		return "", t.throwf(ClassInternalError, "read string: %v", err)
	}
	out, err := utf16le.NewDecoder().Bytes(units)
	if err != nil {
		return "", t.throwf(ClassEncodingException, "decode string: %v", err)
	}
	return string(out), nil
}

// StringUTFLength returns the length in bytes of the UTF-8 form of the string.
func (t *Thread) StringUTFLength(ref Ref) (int, *Throwable) {
	s, thr := t.StringUTF(ref)
	if thr != nil {
		return 0, thr
	}
	return len(s), nil
}

// Document returns the document behind ref.
func (t *Thread) Document(ref Ref) (*Document, *Throwable) {
	return lookupAs[*Document](t, ref)
}

func lookupAs[T Object](t *Thread, ref Ref) (T, *Throwable) {
	var zero T
	if ref == 0 {
		return zero, t.throwf(ClassIllegalStateException, "null reference")
	}
	obj, ok := t.vm.Lookup(ref)
	if !ok {
		return zero, t.throwf(ClassIllegalStateException, "stale reference %d", ref)
	}
	typed, ok := obj.(T)
	if !ok {
		return zero, t.throwf(ClassIllegalStateException, "reference %d is a %s", ref, obj.Class())
	}
	return typed, nil
}
