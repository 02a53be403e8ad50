// Package engine provides the storage layer of the foreign runtime.
//
// The foreign heap is the linear memory of a tiny WebAssembly module run by
// wazero. The module exports nothing but its memory; blocks are carved out of it
// by a host-side first-fit allocator that grows the memory one or more pages at
// a time.
//
// # Architecture
//
//	Engine        - Owns the wazero runtime and the instantiated heap module
//	WazeroMemory  - Bounds-checked, copying access to the heap module's memory
//	Heap          - Block allocator over WazeroMemory (Alloc/Free/Read/Write)
//
// # Start-up
//
//	eng, err := engine.Start(ctx, &engine.Config{MemoryLimitPages: 256})
//	if err != nil {
//	    return err
//	}
//	defer eng.Close(ctx)
//
//	ptr, err := eng.Heap().Alloc(uint32(len(data)), 8)
//	err = eng.Memory().Write(ptr, data)
//
// # Concurrency
//
// Heap is safe for concurrent use. Growing the memory may move the buffer that
// backs it, so reads copy out under a shared lock and growth takes the
// exclusive lock.
package engine
