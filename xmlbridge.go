package xmlbridge

// Memory is a bounds-checked view of the foreign heap's linear memory
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
}

// Allocator allocates blocks in the foreign heap
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr, size, align uint32)
}
