// Package bench defines a common interface the benchmark CLI drives across
// the paged B+tree and any comparison baseline, and an adapter wiring
// bptree.Tree into it.
package bench

import (
	"bytes"

	"github.com/wingdb/bptree/bptree"
)

// Index is the interface the benchmark CLI drives. Keys and values are
// arbitrary byte strings, matching the tree's own API rather than the
// int64-keyed interface the teacher's comparison harness used.
type Index interface {
	Insert(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	Range(start, end []byte) (Iterator, error)
	Close() error
}

// Iterator scans a range of key-value pairs in ascending key order.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}

// TreeIndex adapts a *bptree.Tree to Index.
type TreeIndex struct {
	tree *bptree.Tree
}

// NewTreeIndex wraps an already-open tree.
func NewTreeIndex(t *bptree.Tree) *TreeIndex {
	return &TreeIndex{tree: t}
}

func (x *TreeIndex) Insert(key, value []byte) error {
	_, err := x.tree.Insert(key, value)
	return err
}

func (x *TreeIndex) Get(key []byte) ([]byte, error) {
	val, _, err := x.tree.Get(key)
	return val, err
}

func (x *TreeIndex) Delete(key []byte) error {
	_, err := x.tree.Delete(key)
	return err
}

// Range returns an iterator over [start, end] inclusive.
func (x *TreeIndex) Range(start, end []byte) (Iterator, error) {
	it, err := x.tree.LowerBound(start)
	if err != nil {
		return nil, err
	}
	return &treeRangeIterator{it: it, end: end, first: true}, nil
}

// Close is a no-op: the underlying pager outlives any one TreeIndex and is
// closed by whoever opened it.
func (x *TreeIndex) Close() error { return nil }

type treeRangeIterator struct {
	it    *bptree.Iterator
	end   []byte
	first bool
	key   []byte
	val   []byte
	err   error
}

func (r *treeRangeIterator) Next() bool {
	if r.err != nil {
		return false
	}
	if !r.first {
		if err := r.it.Next(); err != nil {
			r.err = err
			return false
		}
	}
	r.first = false
	if r.it.End() {
		return false
	}
	k, v, err := r.it.Cur()
	if err != nil {
		r.err = err
		return false
	}
	if bytes.Compare(k, r.end) > 0 {
		return false
	}
	r.key = append([]byte(nil), k...)
	r.val = append([]byte(nil), v...)
	return true
}

func (r *treeRangeIterator) Key() []byte   { return r.key }
func (r *treeRangeIterator) Value() []byte { return r.val }
func (r *treeRangeIterator) Error() error  { return r.err }
func (r *treeRangeIterator) Close() error  { r.it.Close(); return nil }
