package engine

import (
	"slices"
	"sort"
	"sync"

	xmlbridge "github.com/wippyai/xml-bridge"
	"github.com/wippyai/xml-bridge/errors"
)

// heapBase keeps offset 0 free so that 0 can mean null.
const heapBase = 8

// granule is the allocation unit and minimum alignment.
const granule = 8

type block struct {
	off  uint32
	size uint32
}

// Heap is a first-fit block allocator over the heap module's memory.
// Freed blocks are coalesced; a free block touching the top shrinks the top.
type Heap struct {
	mem    *WazeroMemory
	free   []block // sorted by off, never adjacent
	mu     sync.RWMutex
	top    uint32
	used   uint32
	closed bool
}

// HeapStats is a snapshot of allocator state.
type HeapStats struct {
	Used       uint32 // bytes in live blocks
	Top        uint32 // high-water mark of the allocated region
	Size       uint32 // current memory size in bytes
	FreeBlocks int
}

func newHeap(mem *WazeroMemory) *Heap {
	return &Heap{mem: mem, top: heapBase}
}

// Alloc reserves size bytes aligned to align (at least 8) and returns the offset.
// A zero size returns offset 0 without reserving anything.
func (h *Heap) Alloc(size, align uint32) (uint32, error) {
	if size == 0 {
		return 0, nil
	}
	if align < granule {
		align = granule
	}
	if align&(align-1) != 0 {
		return 0, errors.New(errors.PhaseRuntime, errors.KindAllocation).
			Detail("alignment %d is not a power of two", align).
			Build()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, errors.New(errors.PhaseRuntime, errors.KindAllocation).Detail("heap closed").Build()
	}

	n64 := alignUp64(uint64(size), granule)
	if n64 > 1<<32-1 {
		return 0, errors.AllocationFailed(errors.PhaseRuntime, size, align)
	}
	n := uint32(n64)

	for i, b := range h.free {
		start := alignUp64(uint64(b.off), uint64(align))
		pad := start - uint64(b.off)
		if uint64(b.size) < pad+uint64(n) {
			continue
		}
		var repl []block
		if pad > 0 {
			repl = append(repl, block{off: b.off, size: uint32(pad)})
		}
		if tail := uint64(b.size) - pad - uint64(n); tail > 0 {
			repl = append(repl, block{off: uint32(start) + n, size: uint32(tail)})
		}
		h.free = slices.Replace(h.free, i, i+1, repl...)
		h.used += n
		return uint32(start), nil
	}

	start := alignUp64(uint64(h.top), uint64(align))
	end := start + uint64(n)
	if end > 1<<32 {
		return 0, errors.AllocationFailed(errors.PhaseRuntime, size, align)
	}
	if memSize := uint64(h.mem.Size()); end > memSize {
		pages := (end - memSize + PageSize - 1) / PageSize
		if !h.mem.grow(uint32(pages)) {
			return 0, errors.AllocationFailed(errors.PhaseRuntime, n, align)
		}
		Logger().Debug("foreign heap grown")
	}
	if start > uint64(h.top) {
		h.insertFree(block{off: h.top, size: uint32(start) - h.top})
	}
	h.top = uint32(end)
	h.used += n
	return uint32(start), nil
}

// Free releases a block previously returned by Alloc with the same size.
func (h *Heap) Free(ptr, size, align uint32) {
	if ptr == 0 || size == 0 {
		return
	}
	n := uint32(alignUp64(uint64(size), granule))

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	h.insertFree(block{off: ptr, size: n})
	h.used -= n

	if last := len(h.free) - 1; last >= 0 && h.free[last].off+h.free[last].size == h.top {
		h.top = h.free[last].off
		h.free = h.free[:last]
	}
}

// Stats returns a snapshot of allocator state.
func (h *Heap) Stats() HeapStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HeapStats{
		Used:       h.used,
		Top:        h.top,
		Size:       h.mem.Size(),
		FreeBlocks: len(h.free),
	}
}

func (h *Heap) close() {
	h.mu.Lock()
	h.closed = true
	h.free = nil
	h.mu.Unlock()
}

// insertFree adds b to the free list and merges it with its neighbours.
// Caller holds h.mu.
func (h *Heap) insertFree(b block) {
	i := sort.Search(len(h.free), func(i int) bool { return h.free[i].off >= b.off })
	h.free = slices.Insert(h.free, i, b)

	if i+1 < len(h.free) && h.free[i].off+h.free[i].size == h.free[i+1].off {
		h.free[i].size += h.free[i+1].size
		h.free = slices.Delete(h.free, i+1, i+2)
	}
	if i > 0 && h.free[i-1].off+h.free[i-1].size == h.free[i].off {
		h.free[i-1].size += h.free[i].size
		h.free = slices.Delete(h.free, i, i+1)
	}
}

func alignUp64(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

// Compile-time check that Heap implements xmlbridge.Allocator
var _ xmlbridge.Allocator = (*Heap)(nil)
