package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
)

const (
	// PageSize is the WebAssembly page size in bytes.
	PageSize = 65536

	heapModuleName = "xmlbridge-heap"
	heapMemoryName = "memory"
)

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum heap size in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32

	// InitialPages is the heap size at start-up. 0 means one page.
	InitialPages uint32
}

// Engine owns the wazero runtime hosting the foreign heap.
type Engine struct {
	runtime wazero.Runtime
	memory  *WazeroMemory
	heap    *Heap
}

// Start creates the wazero runtime and instantiates the heap module.
func Start(ctx context.Context, cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	initial := cfg.InitialPages
	if initial == 0 {
		initial = 1
	}
	if cfg.MemoryLimitPages > 0 && initial > cfg.MemoryLimitPages {
		return nil, fmt.Errorf("initial pages %d exceed limit %d", initial, cfg.MemoryLimitPages)
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	mod, err := rt.InstantiateWithConfig(ctx, heapModule(initial),
		wazero.NewModuleConfig().WithName(heapModuleName))
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate heap module: %w", err)
	}

	mem := mod.ExportedMemory(heapMemoryName)
	if mem == nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("heap module does not export %q", heapMemoryName)
	}

	wm := &WazeroMemory{mem: mem}
	Logger().Debug("foreign heap started",
		zap.Uint32("pages", initial),
		zap.Uint32("limit_pages", cfg.MemoryLimitPages))

	return &Engine{
		runtime: rt,
		memory:  wm,
		heap:    newHeap(wm),
	}, nil
}

// Heap returns the block allocator over the heap memory.
func (e *Engine) Heap() *Heap {
	return e.heap
}

// Memory returns the heap memory. Blocks handed out by Heap are read and
// written through it.
func (e *Engine) Memory() *WazeroMemory {
	return e.memory
}

// Close releases the wazero runtime. The heap is unusable afterwards.
func (e *Engine) Close(ctx context.Context) error {
	e.heap.close()
	return e.runtime.Close(ctx)
}

// heapModule encodes a core module that declares one memory of the given
// initial size, without maximum, and exports it.
func heapModule(pages uint32) []byte {
	out := []byte{
		0x00, 0x61, 0x73, 0x6d, // \0asm
		0x01, 0x00, 0x00, 0x00, // version 1
	}

	// memory section: one memory, limits flag 0 (min only)
	mem := append([]byte{0x01, 0x00}, uleb128(pages)...)
	out = append(out, 0x05)
	out = append(out, uleb128(uint32(len(mem)))...)
	out = append(out, mem...)

	// export section: "memory" -> memory 0
	exp := []byte{0x01}
	exp = append(exp, uleb128(uint32(len(heapMemoryName)))...)
	exp = append(exp, heapMemoryName...)
	exp = append(exp, 0x02, 0x00)
	out = append(out, 0x07)
	out = append(out, uleb128(uint32(len(exp)))...)
	out = append(out, exp...)

	return out
}

func uleb128(v uint32) []byte {
	var b []byte
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b = append(b, c)
		if v == 0 {
			return b
		}
	}
}
