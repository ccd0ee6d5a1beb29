package bptree

import "github.com/wingdb/bptree/pager"

// Iterator walks leaf slots in key order across the leaf sibling chain. It
// holds the page-manager and meta page ID it needs to re-pin the next leaf
// as it advances, rather than recreating a tree handle on every step.
type Iterator struct {
	tree *Tree
	leaf *pager.SortedPageHandle // nil once the iterator has reached the end
	slot pager.SlotID
}

// Begin returns an iterator positioned at the smallest key in the tree,
// found by walking the leftmost-child chain from the root.
func (t *Tree) Begin() (*Iterator, error) {
	var rootID pager.PageID
	var levelNum uint8
	if err := t.withMeta(func(mv metaView) error {
		rootID = mv.rootPageID()
		levelNum = mv.levelNum()
		return nil
	}); err != nil {
		return nil, err
	}

	curID := rootID
	for level := int(levelNum) - 1; level > 0; level-- {
		inner, err := t.getInnerPage(curID)
		if err != nil {
			return nil, err
		}
		var childID pager.PageID
		if inner.SlotNum() == 0 {
			childID = decodePageID(inner.ReadSpecial(0, innerSpecialLen))
		} else {
			next, _, derr := decodeInnerSlot(inner.Slot(0))
			if derr != nil {
				inner.Drop()
				return nil, derr
			}
			childID = next
		}
		inner.Drop()
		curID = childID
	}

	leaf, err := t.getLeafPage(curID)
	if err != nil {
		return nil, err
	}
	it := &Iterator{tree: t, leaf: leaf, slot: 0}
	if err := it.normalize(); err != nil {
		return nil, err
	}
	return it, nil
}

// LowerBound returns an iterator positioned at the first key >= key.
func (t *Tree) LowerBound(key []byte) (*Iterator, error) {
	return t.seek(key, (*pager.SortedPageHandle).LowerBound)
}

// UpperBound returns an iterator positioned at the first key > key.
func (t *Tree) UpperBound(key []byte) (*Iterator, error) {
	return t.seek(key, (*pager.SortedPageHandle).UpperBound)
}

func (t *Tree) seek(key []byte, bound func(*pager.SortedPageHandle, []byte) pager.SlotID) (*Iterator, error) {
	leafID, _, err := t.descendToLeaf(key)
	if err != nil {
		return nil, err
	}
	leaf, err := t.getLeafPage(leafID)
	if err != nil {
		return nil, err
	}
	it := &Iterator{tree: t, leaf: leaf, slot: bound(leaf, key)}
	if err := it.normalize(); err != nil {
		return nil, err
	}
	return it, nil
}

// normalize advances past the end of the current leaf, following next_leaf
// links, until the iterator lands on a real slot or runs out of leaves.
func (it *Iterator) normalize() error {
	for it.leaf != nil && int(it.slot) >= int(it.leaf.SlotNum()) {
		nextID := decodePageID(it.leaf.ReadSpecial(4, 4))
		it.leaf.Drop()
		if nextID == pager.NilPageID {
			it.leaf = nil
			return nil
		}
		next, err := it.tree.getLeafPage(nextID)
		if err != nil {
			return err
		}
		it.leaf = next
		it.slot = 0
	}
	return nil
}

// Next advances the iterator by one slot. Calling Next at the end is a
// no-op.
func (it *Iterator) Next() error {
	if it.leaf == nil {
		return nil
	}
	it.slot++
	return it.normalize()
}

// End reports whether the iterator has been advanced past the last slot.
func (it *Iterator) End() bool { return it.leaf == nil }

// Cur returns the key and value at the iterator's current position. Both
// slices alias the pinned leaf page and are only valid until the next call
// to Next or Close.
func (it *Iterator) Cur() (key, value []byte, err error) {
	if it.leaf == nil {
		return nil, nil, ErrIteratorAtEnd
	}
	return decodeLeafSlot(it.leaf.Slot(it.slot))
}

// Close releases the iterator's pin on its current leaf, if any. It must be
// called exactly once, on every exit path, once the iterator is no longer
// needed.
func (it *Iterator) Close() {
	if it.leaf != nil {
		it.leaf.Drop()
		it.leaf = nil
	}
}
