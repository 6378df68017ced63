package pbnj

import "sync/atomic"

// ID identifies one configuration of a Volume or Camera. A new ID is issued
// whenever an object changes in a way that invalidates its engine handle.
// The zero ID never identifies an object.
type ID uint64

var lastID atomic.Uint64

func nextID() ID {
	return ID(lastID.Add(1))
}
