// Package pin anchors foreign documents for as long as host handles use them.
//
// A pinned object is held by one global reference, so the foreign collector
// treats it as a root. The Table keys anchors by object identity: an object is
// pinned at most once, and every Entry carries a table-unique ID so that an
// outdated Entry cannot release a newer anchor for the same object.
//
//	table := pin.NewTable(runtime) // runtime implements pin.Rooter
//
//	e, err := table.Pin(ref)
//	...
//	err = table.Unpin(e)
//
// Observers receive EventPinned and EventUnpinned with the resulting anchor
// count; the bridge uses them to drive its pinned-documents gauge.
package pin
