package bptree

import "github.com/wingdb/bptree/pager"

// Delete removes key if present and reports whether anything was removed.
// A leaf that becomes empty (and is not the root) is spliced out of the
// sibling chain and freed; ancestors that become wholly empty as a result
// are freed in turn, and the root is shrunk if it ends up with a single
// remaining child.
func (t *Tree) Delete(key []byte) (bool, error) {
	leafID, stack, err := t.descendToLeaf(key)
	if err != nil {
		return false, err
	}
	leaf, err := t.getLeafPage(leafID)
	if err != nil {
		return false, err
	}
	if !leaf.DeleteSlotByKey(key) {
		leaf.Drop()
		return false, nil
	}

	isRoot := len(stack) == 0
	if isRoot || !leaf.IsEmpty() {
		leaf.Drop()
		return true, t.bumpTupleNum(-1)
	}

	prevID := decodePageID(leaf.ReadSpecial(0, 4))
	nextID := decodePageID(leaf.ReadSpecial(4, 4))
	if prevID != pager.NilPageID {
		prevLeaf, err := t.getLeafPage(prevID)
		if err != nil {
			leaf.Drop()
			return false, err
		}
		prevLeaf.WriteSpecial(4, encodePageID(nextID))
		prevLeaf.Drop()
	}
	if nextID != pager.NilPageID {
		nextLeaf, err := t.getLeafPage(nextID)
		if err != nil {
			leaf.Drop()
			return false, err
		}
		nextLeaf.WriteSpecial(0, encodePageID(prevID))
		nextLeaf.Drop()
	}
	if err := t.freeSortedPage(leaf); err != nil {
		return false, err
	}

	if err := t.collapseUpward(stack, key); err != nil {
		return false, err
	}
	if err := t.shrinkRootIfNeeded(); err != nil {
		return false, err
	}
	return true, t.bumpTupleNum(-1)
}

// collapseUpward removes or promotes, at each ancestor level from the
// deepest up, the routing entry that pointed at the child just freed. If
// doing so leaves an ancestor with no ordinary slots and no valid special
// child, that ancestor is itself freed and the same treatment is applied one
// level further up; the loop stops at the first ancestor left with any
// remaining child.
func (t *Tree) collapseUpward(stack []stackEntry, key []byte) error {
	for i := len(stack) - 1; i >= 0; i-- {
		parent, err := t.getInnerPage(stack[i].id)
		if err != nil {
			return err
		}

		idx0 := parent.UpperBound(key)
		emptied := false
		if int(idx0) == int(parent.SlotNum()) {
			if parent.SlotNum() == 0 {
				parent.WriteSpecial(0, encodePageID(pager.NilPageID))
				emptied = true
			} else {
				last := parent.SlotNum() - 1
				lastSlot := append([]byte(nil), parent.Slot(last)...)
				nextChild, _, derr := decodeInnerSlot(lastSlot)
				if derr != nil {
					parent.Drop()
					return derr
				}
				parent.WriteSpecial(0, encodePageID(nextChild))
				parent.DeleteSlot(last)
			}
		} else {
			parent.DeleteSlot(idx0)
		}

		if !emptied {
			parent.Drop()
			return nil
		}
		if err := t.freeSortedPage(parent); err != nil {
			return err
		}
	}
	return nil
}

// shrinkRootIfNeeded promotes the root's special child to be the new root,
// for as long as the current root is an inner page with no ordinary slots.
// If the promoted child would leave the tree with no pages at all it leaves
// a single empty leaf root in place instead.
func (t *Tree) shrinkRootIfNeeded() error {
	for {
		var rootID pager.PageID
		var levelNum uint8
		err := t.withMeta(func(mv metaView) error {
			rootID = mv.rootPageID()
			levelNum = mv.levelNum()
			return nil
		})
		if err != nil {
			return err
		}
		if levelNum <= 1 {
			return nil
		}

		root, err := t.getInnerPage(rootID)
		if err != nil {
			return err
		}
		if root.SlotNum() > 0 {
			root.Drop()
			return nil
		}

		special := decodePageID(root.ReadSpecial(0, innerSpecialLen))
		if err := t.freeSortedPage(root); err != nil {
			return err
		}

		if special == pager.NilPageID {
			newLeaf, err := t.allocLeafPage()
			if err != nil {
				return err
			}
			newLeafID := newLeaf.ID()
			newLeaf.Drop()
			return t.withMeta(func(mv metaView) error {
				mv.setRootPageID(newLeafID)
				mv.setLevelNum(1)
				return nil
			})
		}

		if err := t.withMeta(func(mv metaView) error {
			mv.setRootPageID(special)
			mv.setLevelNum(mv.levelNum() - 1)
			return nil
		}); err != nil {
			return err
		}
	}
}

// Take removes key and returns the value it held, equivalent to Get
// followed by Delete.
func (t *Tree) Take(key []byte) ([]byte, bool, error) {
	value, found, err := t.Get(key)
	if err != nil || !found {
		return nil, found, err
	}
	if _, err := t.Delete(key); err != nil {
		return nil, false, err
	}
	return value, true, nil
}
