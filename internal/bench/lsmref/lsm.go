// Package lsmref wraps Pebble (CockroachDB's LSM storage engine) behind the
// bench.Index interface so it can be benchmarked alongside the paged
// B+tree on the same byte-string-keyed workload.
package lsmref

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/wingdb/bptree/internal/bench"
)

type LSM struct {
	db *pebble.DB
}

// Open opens (or creates) a Pebble database at the given directory path.
func Open(dir string) (*LSM, error) {
	opts := &pebble.Options{
		MemTableSize:                16 << 20,
		MemTableStopWritesThreshold: 4,
		L0CompactionThreshold:       4,
		L0StopWritesThreshold:       12,
	}

	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, errors.Wrap(err, "lsmref: open")
	}
	return &LSM{db: db}, nil
}

// Close cleanly shuts down Pebble, flushing any in-memory state.
func (l *LSM) Close() error {
	return l.db.Close()
}

// Insert inserts or updates the value for key.
func (l *LSM) Insert(key, value []byte) error {
	return l.db.Set(key, value, pebble.NoSync)
}

// Get retrieves the value for key. Returns nil if not found.
func (l *LSM) Get(key []byte) ([]byte, error) {
	val, closer, err := l.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "lsmref: get")
	}
	result := append([]byte(nil), val...)
	closer.Close()
	return result, nil
}

// Delete removes key from the store.
func (l *LSM) Delete(key []byte) error {
	if err := l.db.Delete(key, pebble.NoSync); err != nil {
		return errors.Wrap(err, "lsmref: delete")
	}
	return nil
}

// Range returns an iterator over [start, end] inclusive.
func (l *LSM) Range(start, end []byte) (bench.Iterator, error) {
	iterOpts := &pebble.IterOptions{
		LowerBound: start,
		UpperBound: append(append([]byte(nil), end...), 0x00),
	}
	iter, err := l.db.NewIter(iterOpts)
	if err != nil {
		return nil, errors.Wrap(err, "lsmref: range")
	}
	return &rangeIterator{iter: iter, first: true}, nil
}

type rangeIterator struct {
	iter  *pebble.Iterator
	first bool
	key   []byte
	val   []byte
	err   error
}

func (it *rangeIterator) Next() bool {
	var valid bool
	if it.first {
		valid = it.iter.First()
		it.first = false
	} else {
		valid = it.iter.Next()
	}
	if !valid {
		return false
	}
	it.key = append([]byte(nil), it.iter.Key()...)
	it.val = append([]byte(nil), it.iter.Value()...)
	return true
}

func (it *rangeIterator) Key() []byte   { return it.key }
func (it *rangeIterator) Value() []byte { return it.val }
func (it *rangeIterator) Error() error  { return it.err }
func (it *rangeIterator) Close() error  { return it.iter.Close() }
