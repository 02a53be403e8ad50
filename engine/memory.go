package engine

import (
	"sync"

	"github.com/tetratelabs/wazero/api"

	xmlbridge "github.com/wippyai/xml-bridge"
	"github.com/wippyai/xml-bridge/errors"
)

// WazeroMemory wraps wazero memory to implement xmlbridge.Memory.
// Reads return copies; the view wazero hands out is invalidated by Grow,
// so reads and writes hold the read lock and grow holds the write lock.
type WazeroMemory struct {
	mem api.Memory
	mu  sync.RWMutex
}

func (m *WazeroMemory) Read(offset uint32, length uint32) ([]byte, error) {
	if length == 0 {
		return []byte{}, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseRuntime, offset, length)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *WazeroMemory) Write(offset uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseRuntime, offset, uint32(len(data)))
	}
	return nil
}

// Size returns the current memory size in bytes.
func (m *WazeroMemory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mem.Size()
}

// grow adds delta pages and reports success.
func (m *WazeroMemory) grow(delta uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.mem.Grow(delta)
	return ok
}

// Compile-time check that WazeroMemory implements xmlbridge.Memory
var _ xmlbridge.Memory = (*WazeroMemory)(nil)
