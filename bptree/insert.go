package bptree

import (
	"github.com/cockroachdb/errors"
	"github.com/wingdb/bptree/pager"
)

// Insert adds key/value if key is not already present. It returns false
// (with no mutation) if key is already present; callers that want
// replace-or-insert semantics should use Update.
func (t *Tree) Insert(key, value []byte) (bool, error) {
	leafID, stack, err := t.descendToLeaf(key)
	if err != nil {
		return false, err
	}
	leaf, err := t.getLeafPage(leafID)
	if err != nil {
		return false, err
	}

	if _, found := leaf.Find(key); found {
		leaf.Drop()
		return false, nil
	}

	slot := encodeLeafSlot(key, value)
	pos := leaf.LowerBound(key)

	if leaf.IsInsertable(slot) {
		leaf.InsertBeforeSlot(pos, slot)
		leaf.Drop()
		return true, t.bumpTupleNum(1)
	}

	leftChild, rightChild, separator, err := t.splitLeaf(leaf, slot, pos)
	if err != nil {
		return false, err
	}
	if err := t.propagateSplit(stack, leftChild, rightChild, separator); err != nil {
		return false, err
	}
	return true, t.bumpTupleNum(1)
}

// splitLeaf splits a full leaf, inserting newSlot at the position it would
// occupy among the leaf's existing slots, fixes up the sibling chain, and
// returns the inner routing entry that must be installed in the parent:
// (original leaf ID, smallest key of the new right leaf).
func (t *Tree) splitLeaf(leaf *pager.SortedPageHandle, newSlot []byte, pos pager.SlotID) (leftChild, rightChild pager.PageID, separator []byte, err error) {
	right, err := t.allocLeafPage()
	if err != nil {
		leaf.Drop()
		return 0, 0, nil, err
	}
	if !right.IsInsertable(newSlot) {
		t.freeSortedPage(right)
		leaf.Drop()
		return 0, 0, nil, errors.Wrap(pager.ErrSlotTooLarge, "insert: slot too large for any leaf page")
	}
	if err := leaf.SplitInsert(right, newSlot, pos); err != nil {
		t.freeSortedPage(right)
		leaf.Drop()
		return 0, 0, nil, err
	}

	leafID, rightID := leaf.ID(), right.ID()
	oldNext := decodePageID(leaf.ReadSpecial(4, 4))
	leaf.WriteSpecial(4, encodePageID(rightID))
	right.WriteSpecial(0, encodePageID(leafID))
	right.WriteSpecial(4, encodePageID(oldNext))
	if oldNext != pager.NilPageID {
		oldNextLeaf, err := t.getLeafPage(oldNext)
		if err != nil {
			leaf.Drop()
			right.Drop()
			return 0, 0, nil, err
		}
		oldNextLeaf.WriteSpecial(0, encodePageID(rightID))
		oldNextLeaf.Drop()
	}

	sepKey, _, derr := decodeLeafSlot(right.Slot(0))
	if derr != nil {
		leaf.Drop()
		right.Drop()
		return 0, 0, nil, derr
	}
	separator = append([]byte(nil), sepKey...)
	leaf.Drop()
	right.Drop()
	return leafID, rightID, separator, nil
}

// propagateSplit installs the routing entry (leftChild, separator) ‖
// rightChild into the ancestor chain recorded in stack, splitting ancestors
// as needed and growing a new root if the split reaches the top.
func (t *Tree) propagateSplit(stack []stackEntry, leftChild, rightChild pager.PageID, separator []byte) error {
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		parent, err := t.getInnerPage(top.id)
		if err != nil {
			return err
		}
		fits, err := t.tryInsertSeparator(parent, leftChild, rightChild, separator)
		if err != nil {
			parent.Drop()
			return err
		}
		if fits {
			parent.Drop()
			return nil
		}

		newRight, pushSep, err := t.splitInnerWithUpdate(parent, top.level, leftChild, rightChild, separator)
		parent.Drop()
		if err != nil {
			return err
		}
		leftChild = top.id
		rightChild = newRight.ID()
		separator = pushSep
		newRight.Drop()
	}

	newRoot, err := t.allocInnerPage()
	if err != nil {
		return err
	}
	rootSlot := encodeInnerSlot(leftChild, separator)
	if !newRoot.InsertBeforeSlot(0, rootSlot) {
		t.freeSortedPage(newRoot)
		return errors.Wrap(pager.ErrSlotTooLarge, "insert: new root cannot hold its single separator")
	}
	newRoot.WriteSpecial(0, encodePageID(rightChild))
	newRootID := newRoot.ID()
	newRoot.Drop()

	return t.withMeta(func(mv metaView) error {
		mv.setRootPageID(newRootID)
		mv.setLevelNum(mv.levelNum() + 1)
		return nil
	})
}

// tryInsertSeparator attempts to install the routing entry for a just-split
// child without splitting parent. The child previously reachable as
// leftChild now only covers keys < separator; whatever previously routed to
// it (an ordinary slot, or the special pointer) must be updated to route to
// rightChild instead, with a new entry inserted ahead of it for leftChild.
func (t *Tree) tryInsertSeparator(parent *pager.SortedPageHandle, leftChild, rightChild pager.PageID, separator []byte) (fits bool, err error) {
	idx0 := parent.UpperBound(separator)
	newSlot := encodeInnerSlot(leftChild, separator)

	if int(idx0) == int(parent.SlotNum()) {
		if !parent.WouldFit(newSlot) {
			return false, nil
		}
		parent.WriteSpecial(0, encodePageID(rightChild))
		if !parent.InsertBeforeSlot(idx0, newSlot) {
			return false, errors.Wrap(ErrCorruptPage, "insert: separator unexpectedly did not fit after WouldFit check")
		}
		return true, nil
	}

	old := append([]byte(nil), parent.Slot(idx0)...)
	_, oldUb, derr := decodeInnerSlot(old)
	if derr != nil {
		return false, derr
	}
	oldUb = append([]byte(nil), oldUb...)
	rSlot := encodeInnerSlot(rightChild, oldUb)
	if !parent.WouldFit(newSlot, rSlot) {
		return false, nil
	}
	parent.DeleteSlot(idx0)
	if !parent.InsertBeforeSlot(idx0, newSlot) {
		return false, errors.Wrap(ErrCorruptPage, "insert: left half of separator unexpectedly did not fit")
	}
	if !parent.InsertBeforeSlot(idx0+1, rSlot) {
		return false, errors.Wrap(ErrCorruptPage, "insert: right half of separator unexpectedly did not fit")
	}
	return true, nil
}

// splitInnerWithUpdate splits parent while simultaneously applying the same
// leftChild/rightChild routing update tryInsertSeparator would have made, had
// there been room. It returns the newly allocated right sibling (still
// pinned; the caller must Drop it) and the separator to push to the next
// level up.
//
// The split is computed over parent's existing ordinary slots plus one
// synthetic trailing slot standing in for parent's current special pointer
// (which always sorts last). Redistributing that synthetic slot along with
// the rest guarantees it lands on whichever side ends up owning the
// unbounded tail, at which point it is popped back out into that side's own
// special pointer.
func (t *Tree) splitInnerWithUpdate(parent *pager.SortedPageHandle, parentLevel uint8, leftChild, rightChild pager.PageID, separator []byte) (newRight *pager.SortedPageHandle, pushSeparator []byte, err error) {
	n := int(parent.SlotNum())
	slots := make([][]byte, 0, n+2)
	for i := 0; i < n; i++ {
		slots = append(slots, append([]byte(nil), parent.Slot(pager.SlotID(i))...))
	}

	idx0 := int(parent.UpperBound(separator))
	oldSpecialNext := decodePageID(parent.ReadSpecial(0, innerSpecialLen))
	newSlotForLeft := encodeInnerSlot(leftChild, separator)

	var trailingNext pager.PageID
	if idx0 == n {
		slots = append(slots, newSlotForLeft)
		trailingNext = rightChild
	} else {
		oldUb := append([]byte(nil), sliceInnerUpperBound(slots[idx0])...)
		rSlot := encodeInnerSlot(rightChild, oldUb)
		rest := append([][]byte{}, slots[idx0+1:]...)
		slots = append(slots[:idx0], newSlotForLeft, rSlot)
		slots = append(slots, rest...)
		trailingNext = oldSpecialNext
	}
	slots = append(slots, encodeInnerSlot(trailingNext, nil))

	mid := (len(slots) + 1) / 2
	leftSlots := slots[:mid]
	rightSlots := slots[mid:]

	newRight, err = t.allocInnerPage()
	if err != nil {
		return nil, nil, err
	}

	parent.Init(innerSpecialLen) // reclaims the old cells; special is rewritten below
	for i, s := range leftSlots {
		if !parent.InsertBeforeSlot(pager.SlotID(i), s) {
			t.freeSortedPage(newRight)
			return nil, nil, errors.Wrap(pager.ErrSlotTooLarge, "insert: inner split left half does not fit")
		}
	}
	for i, s := range rightSlots {
		if !newRight.InsertBeforeSlot(pager.SlotID(i), s) {
			t.freeSortedPage(newRight)
			return nil, nil, errors.Wrap(pager.ErrSlotTooLarge, "insert: inner split right half does not fit")
		}
	}

	lastIdx := newRight.SlotNum() - 1
	lastSlot := append([]byte(nil), newRight.Slot(lastIdx)...)
	trueSpecial, _, derr := decodeInnerSlot(lastSlot)
	if derr != nil {
		return nil, nil, derr
	}
	newRight.DeleteSlot(lastIdx)
	newRight.WriteSpecial(0, encodePageID(trueSpecial))

	// The left half's last slot likewise becomes the left page's special.
	leftSpecial, _, derr := decodeInnerSlot(parent.Slot(parent.SlotNum() - 1))
	if derr != nil {
		return nil, nil, derr
	}
	parent.DeleteSlot(parent.SlotNum() - 1)
	parent.WriteSpecial(0, encodePageID(leftSpecial))

	if newRight.SlotNum() == 0 {
		pushSeparator, err = t.smallestKey(trueSpecial, parentLevel-1)
		return newRight, pushSeparator, err
	}

	firstRightNext, _, derr := decodeInnerSlot(newRight.Slot(0))
	if derr != nil {
		return nil, nil, derr
	}
	pushSeparator, err = t.smallestKey(firstRightNext, parentLevel-1)
	return newRight, pushSeparator, err
}

func (t *Tree) bumpTupleNum(delta int64) error {
	return t.withMeta(func(mv metaView) error {
		if delta >= 0 {
			mv.setTupleNum(mv.tupleNum() + uint64(delta))
		} else {
			mv.setTupleNum(mv.tupleNum() - uint64(-delta))
		}
		return nil
	})
}

// Update replaces the value stored for key. It returns false (with no
// mutation) if key is absent. If the new value fits in place the slot is
// rewritten directly; otherwise the key is deleted and reinserted, which is
// observationally atomic to the caller and preserves the tuple count.
func (t *Tree) Update(key, value []byte) (bool, error) {
	leafID, _, err := t.descendToLeaf(key)
	if err != nil {
		return false, err
	}
	leaf, err := t.getLeafPage(leafID)
	if err != nil {
		return false, err
	}
	idx, found := leaf.Find(key)
	if !found {
		leaf.Drop()
		return false, nil
	}

	newSlot := encodeLeafSlot(key, value)
	old := append([]byte(nil), leaf.Slot(idx)...)
	if leaf.IsInsertable(newSlot) {
		leaf.DeleteSlot(idx)
		leaf.InsertBeforeSlot(idx, newSlot)
		leaf.Drop()
		return true, nil
	}
	// Doesn't fit in place; fall back to delete+insert, which may itself
	// need to split the leaf.
	leaf.Drop()

	if _, err := t.Delete(key); err != nil {
		return false, err
	}
	if _, err := t.Insert(key, value); err != nil {
		// Put the previous value back so a failed update leaves the key as it was.
		if _, oldValue, derr := decodeLeafSlot(old); derr == nil {
			t.Insert(key, oldValue)
		}
		return false, err
	}
	return true, nil
}
