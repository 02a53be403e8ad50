package bridge

import (
	"fmt"

	"github.com/wippyai/xml-bridge/vm"
)

// guard runs call and converts a panic inside the foreign runtime into an
// InternalError so that it takes the same path as any foreign exception.
func guard(t *vm.Thread, call func(*vm.Thread) (vm.Ref, *vm.Throwable)) (ref vm.Ref, thr *vm.Throwable) {
	defer func() {
		if r := recover(); r != nil {
			ref = 0
			thr = &vm.Throwable{
				Class:   vm.ClassInternalError,
				Message: fmt.Sprint(r),
				Stack:   []vm.Frame{{Class: "Bridge", Method: "invoke"}},
			}
		}
	}()
	return call(t)
}

func newBuilder(t *vm.Thread, features map[string]bool) (*vm.DocumentBuilder, *vm.Throwable) {
	f := vm.NewDocumentBuilderFactory()
	for name, on := range features {
		f.SetFeature(name, on)
	}
	return f.NewDocumentBuilder(t)
}

// parseBytes parses a foreign byte array with a fresh document builder.
// The document is returned unpinned.
func parseBytes(t *vm.Thread, buf vm.Ref, features map[string]bool) (vm.Ref, *vm.Throwable) {
	in, thr := vm.NewByteArrayInputStream(t, buf)
	if thr != nil {
		return 0, thr
	}
	builder, thr := newBuilder(t, features)
	if thr != nil {
		return 0, thr
	}
	return builder.Parse(in)
}

// parseFile parses the file at path with a fresh document builder.
func parseFile(t *vm.Thread, path string, features map[string]bool) (vm.Ref, *vm.Throwable) {
	builder, thr := newBuilder(t, features)
	if thr != nil {
		return 0, thr
	}
	in, thr := vm.NewFileInputStream(t, path)
	if thr != nil {
		return 0, thr
	}
	return builder.Parse(in)
}
