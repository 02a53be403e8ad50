package vm

import (
	"sync"

	"go.uber.org/zap"

	xmlbridge "github.com/wippyai/xml-bridge"
	"github.com/wippyai/xml-bridge/engine"
	"github.com/wippyai/xml-bridge/errors"
)

// DefaultGCThreshold is the number of allocations between automatic collections.
const DefaultGCThreshold = 256

// Config holds configuration for the foreign runtime
type Config struct {
	// GCThreshold is the number of object allocations that triggers a
	// collection. 0 means DefaultGCThreshold; negative disables automatic
	// collection.
	GCThreshold int
}

// Stats is a snapshot of runtime state.
type Stats struct {
	Objects     int
	Globals     int
	Threads     int
	Collections uint64
	Freed       uint64
	Heap        engine.HeapStats
}

// VM is the foreign managed runtime. Objects are reachable only from global
// references and from the local frames of attached threads; everything else is
// reclaimed by Collect.
type VM struct {
	mem     xmlbridge.Memory
	alloc   xmlbridge.Allocator
	objects map[Ref]Object
	globals map[GlobalRef]Ref
	threads map[*Thread]struct{}

	mu          sync.Mutex
	nextRef     Ref
	nextGlobal  GlobalRef
	sinceGC     int
	threshold   int
	collections uint64
	freed       uint64
	closed      bool
}

// heapStats is implemented by allocators that can describe themselves,
// such as engine.Heap.
type heapStats interface {
	Stats() engine.HeapStats
}

// New creates a runtime whose objects are allocated by alloc and stored in mem.
func New(mem xmlbridge.Memory, alloc xmlbridge.Allocator, cfg *Config) *VM {
	threshold := DefaultGCThreshold
	if cfg != nil && cfg.GCThreshold != 0 {
		threshold = cfg.GCThreshold
	}
	return &VM{
		mem:       mem,
		alloc:     alloc,
		objects:   make(map[Ref]Object),
		globals:   make(map[GlobalRef]Ref),
		threads:   make(map[*Thread]struct{}),
		threshold: threshold,
	}
}

// NewGlobalRef makes ref a collector root until DeleteGlobalRef.
func (v *VM) NewGlobalRef(ref Ref) (GlobalRef, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return 0, errors.New(errors.PhaseRuntime, errors.KindNotFound).Detail("runtime closed").Build()
	}
	if _, ok := v.objects[ref]; !ok {
		return 0, errors.NotFound(errors.PhaseRuntime, "object", ref)
	}
	v.nextGlobal++
	g := v.nextGlobal
	v.globals[g] = ref
	return g, nil
}

// DeleteGlobalRef removes a root created by NewGlobalRef.
func (v *VM) DeleteGlobalRef(g GlobalRef) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.globals[g]; !ok {
		return errors.NotFound(errors.PhaseRuntime, "global reference", g)
	}
	delete(v.globals, g)
	return nil
}

// Lookup returns the object behind ref.
func (v *VM) Lookup(ref Ref) (Object, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	obj, ok := v.objects[ref]
	return obj, ok
}

// Collect runs a full mark and sweep and returns the number of objects freed.
func (v *VM) Collect() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.collectLocked()
}

func (v *VM) collectLocked() int {
	if v.closed {
		return 0
	}

	marked := make(map[Ref]struct{}, len(v.objects))
	var stack []Ref
	push := func(r Ref) {
		if r == 0 {
			return
		}
		if _, seen := marked[r]; seen {
			return
		}
		if _, live := v.objects[r]; !live {
			return
		}
		marked[r] = struct{}{}
		stack = append(stack, r)
	}

	for _, r := range v.globals {
		push(r)
	}
	for t := range v.threads {
		for _, r := range t.locals {
			push(r)
		}
	}
	for len(stack) > 0 {
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range v.objects[r].refs() {
			push(child)
		}
	}

	freed := 0
	for r, obj := range v.objects {
		if _, ok := marked[r]; ok {
			continue
		}
		obj.free(v.alloc)
		delete(v.objects, r)
		freed++
	}

	v.sinceGC = 0
	v.collections++
	v.freed += uint64(freed)
	Logger().Debug("foreign collection",
		zap.Int("freed", freed),
		zap.Int("live", len(v.objects)),
		zap.Int("globals", len(v.globals)))
	return freed
}

// register stores obj and roots it in t's local frame.
func (v *VM) register(t *Thread, obj Object) Ref {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.nextRef++
	ref := v.nextRef
	v.objects[ref] = obj
	t.locals = append(t.locals, ref)

	v.sinceGC++
	if v.threshold > 0 && v.sinceGC >= v.threshold {
		v.collectLocked()
	}
	return ref
}

// Stats returns a snapshot of runtime state.
func (v *VM) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	st := Stats{
		Objects:     len(v.objects),
		Globals:     len(v.globals),
		Threads:     len(v.threads),
		Collections: v.collections,
		Freed:       v.freed,
	}
	if hs, ok := v.alloc.(heapStats); ok {
		st.Heap = hs.Stats()
	}
	return st
}

// Close drops every object. The heap itself is owned by the engine.
func (v *VM) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	for r, obj := range v.objects {
		obj.free(v.alloc)
		delete(v.objects, r)
	}
	clear(v.globals)
	v.closed = true
}
