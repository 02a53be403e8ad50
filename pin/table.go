package pin

import (
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/xml-bridge/errors"
	"github.com/wippyai/xml-bridge/vm"
)

// Table is the default Registry. It holds one global reference per pinned
// object, keyed by the object's identity.
type Table struct {
	rooter    Rooter
	entries   map[vm.Ref]Entry
	observers []Observer
	mu        sync.Mutex
	obsMu     sync.RWMutex
	nextID    uint64
	closed    bool
}

// NewTable creates an empty table rooting objects through r.
func NewTable(r Rooter) *Table {
	return &Table{
		rooter:  r,
		entries: make(map[vm.Ref]Entry),
	}
}

// Pin anchors ref.
func (t *Table) Pin(ref vm.Ref) (Entry, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return Entry{}, errors.New(errors.PhasePin, errors.KindDisposed).Detail("pin table closed").Build()
	}
	if _, ok := t.entries[ref]; ok {
		t.mu.Unlock()
		return Entry{}, errors.AlreadyPinned(ref)
	}

	g, err := t.rooter.NewGlobalRef(ref)
	if err != nil {
		t.mu.Unlock()
		return Entry{}, errors.Wrap(errors.PhasePin, errors.KindNotFound, err, "create global reference")
	}
	t.nextID++
	e := Entry{ID: t.nextID, Ref: ref, Global: g}
	t.entries[ref] = e
	count := len(t.entries)
	t.mu.Unlock()

	Logger().Debug("pinned", zap.Uint64("ref", uint64(ref)), zap.Int("count", count))
	t.notify(Event{Type: EventPinned, Entry: e, Count: count})
	return e, nil
}

// Unpin releases e.
func (t *Table) Unpin(e Entry) error {
	t.mu.Lock()
	cur, ok := t.entries[e.Ref]
	if !ok || cur.ID != e.ID {
		t.mu.Unlock()
		return errors.NotPinned(e.Ref)
	}
	delete(t.entries, e.Ref)
	count := len(t.entries)
	t.mu.Unlock()

	err := t.rooter.DeleteGlobalRef(cur.Global)
	Logger().Debug("unpinned", zap.Uint64("ref", uint64(e.Ref)), zap.Int("count", count))
	t.notify(Event{Type: EventUnpinned, Entry: cur, Count: count})
	if err != nil {
		return errors.Wrap(errors.PhasePin, errors.KindNotFound, err, "delete global reference")
	}
	return nil
}

// Count returns the number of anchors held.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Pinned reports whether ref is anchored.
func (t *Table) Pinned(ref vm.Ref) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[ref]
	return ok
}

// Each calls fn for every entry until fn returns false.
// Entries are snapshotted first, so fn may call Unpin.
func (t *Table) Each(fn func(Entry) bool) {
	t.mu.Lock()
	snapshot := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		snapshot = append(snapshot, e)
	}
	t.mu.Unlock()

	for _, e := range snapshot {
		if !fn(e) {
			return
		}
	}
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer. Observers are compared by identity, so
// ObserverFunc values cannot be unsubscribed.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Close releases every anchor and rejects further pins.
func (t *Table) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	var errs error
	t.Each(func(e Entry) bool {
		errs = multierr.Append(errs, t.Unpin(e))
		return true
	})
	return errs
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnPinEvent(e)
	}
}

var _ Registry = (*Table)(nil)
