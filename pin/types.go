package pin

import (
	"github.com/wippyai/xml-bridge/vm"
)

// Rooter creates and deletes collector roots. *vm.VM implements it.
type Rooter interface {
	NewGlobalRef(ref vm.Ref) (vm.GlobalRef, error)
	DeleteGlobalRef(g vm.GlobalRef) error
}

// Entry is one anchored object. ID is unique for the life of a table, so a
// stale Entry never releases an anchor created later for the same object.
type Entry struct {
	ID     uint64
	Ref    vm.Ref
	Global vm.GlobalRef
}

// EventType identifies a pin lifecycle notification.
type EventType uint8

const (
	EventPinned EventType = iota
	EventUnpinned
)

func (t EventType) String() string {
	switch t {
	case EventPinned:
		return "pinned"
	case EventUnpinned:
		return "unpinned"
	}
	return "unknown"
}

// Event represents a pin lifecycle event.
type Event struct {
	Entry Entry
	Count int // anchors held after the event
	Type  EventType
}

// Observer receives notifications about pin lifecycle events.
// Observers are called with no table lock held.
type Observer interface {
	OnPinEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnPinEvent(e Event) { f(e) }

// Registry anchors foreign objects so the collector keeps them alive while a
// host handle refers to them.
type Registry interface {
	// Pin anchors ref. A second Pin of the same ref fails with
	// errors.KindAlreadyPinned until it is unpinned.
	Pin(ref vm.Ref) (Entry, error)

	// Unpin releases an anchor created by Pin. Unpinning an entry that is
	// no longer held fails with errors.KindNotPinned.
	Unpin(e Entry) error

	// Count returns the number of anchors held.
	Count() int
}
