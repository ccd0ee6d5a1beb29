package bptree

import "github.com/cockroachdb/errors"

// ErrCorruptPage signals a page header or slot directory that fails its own
// consistency checks. The tree does not attempt to repair this; the
// operation that discovered it aborts with the tree left in its
// pre-operation state.
var ErrCorruptPage = errors.New("bptree: corrupt page")

// ErrNotFound is the error form of an absent key. The tree's own operations
// (Get, Take, Delete, Update) report absence through their boolean results
// and never return it.
var ErrNotFound = errors.New("bptree: key not found")

// ErrIteratorAtEnd is returned by Iterator.Cur when the iterator has been
// advanced past the last leaf slot.
var ErrIteratorAtEnd = errors.New("bptree: iterator at end")
