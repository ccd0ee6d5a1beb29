// Package bptree implements an ordered, byte-string-keyed index stored as a
// paged B+tree: a meta page tracking the root and tuple count, inner pages
// routing by strict upper bound, and leaf pages holding key/value slots
// linked into a sibling chain for range scans.
//
// The package never touches a file directly; all page I/O, pinning, and
// free-space bookkeeping is delegated to package pager. bptree only knows
// how to interpret the bytes of a page and how to walk and rebalance the
// tree structure built from them.
package bptree

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/wingdb/bptree/pager"
)

const (
	innerSpecialLen = 4 // rightmost child page id
	leafSpecialLen  = 8 // prev_leaf(u32) ‖ next_leaf(u32)
)

// Tree is a handle onto one B+tree index stored behind a pager.Pager. It
// holds no page pins between calls; every operation pins exactly the pages
// it touches and drops them before returning.
type Tree struct {
	pm     *pager.Pager
	metaID pager.PageID
	cmp    Comparator
	log    *slog.Logger
}

// Option configures a Tree at Create or Open time.
type Option func(*Tree)

// WithComparator overrides the default lexicographic byte-order comparator.
func WithComparator(cmp Comparator) Option {
	return func(t *Tree) { t.cmp = cmp }
}

// WithLogger attaches a structured logger to the Tree. The Tree stores it,
// but its operations emit no log records; splits, collapses and root changes
// are not logged.
func WithLogger(log *slog.Logger) Option {
	return func(t *Tree) { t.log = log }
}

// Create allocates a fresh meta page and a single empty leaf root, and
// returns a Tree handle onto it. The caller is responsible for remembering
// MetaPageID() in order to Open the same tree later.
func Create(pm *pager.Pager, opts ...Option) (*Tree, error) {
	t := &Tree{pm: pm, cmp: ByteCompare, log: slog.Default()}
	for _, o := range opts {
		o(t)
	}

	metaHandle, err := pm.AllocPlainPage()
	if err != nil {
		return nil, err
	}
	defer metaHandle.Drop()

	root, err := t.allocLeafPage()
	if err != nil {
		return nil, err
	}
	rootID := root.ID()
	root.Drop()

	mv := metaView{metaHandle}
	mv.setLevelNum(1)
	mv.setRootPageID(rootID)
	mv.setTupleNum(0)

	t.metaID = metaHandle.ID()
	return t, nil
}

// Open returns a Tree handle onto a previously Create'd tree, identified by
// its meta page ID.
func Open(pm *pager.Pager, metaID pager.PageID, opts ...Option) (*Tree, error) {
	t := &Tree{pm: pm, metaID: metaID, cmp: ByteCompare, log: slog.Default()}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// MetaPageID returns the page ID callers should persist to reopen this tree.
func (t *Tree) MetaPageID() pager.PageID { return t.metaID }

func (t *Tree) withMeta(fn func(metaView) error) error {
	h, err := t.pm.GetPlainPage(t.metaID)
	if err != nil {
		return err
	}
	defer h.Drop()
	return fn(metaView{h})
}

// TupleNum returns the tree's maintained key count, read directly from the
// meta page rather than re-derived by iteration.
func (t *Tree) TupleNum() (uint64, error) {
	var n uint64
	err := t.withMeta(func(mv metaView) error {
		n = mv.tupleNum()
		return nil
	})
	return n, err
}

// IsEmpty reports whether the tree holds zero tuples.
func (t *Tree) IsEmpty() (bool, error) {
	n, err := t.TupleNum()
	return n == 0, err
}

func (t *Tree) leafCmpKey() pager.CompareSlotKey {
	return func(slot, key []byte) int { return t.cmp(sliceLeafKey(slot), key) }
}

func (t *Tree) leafCmpSlot() pager.CompareSlotSlot {
	return func(a, b []byte) int { return t.cmp(sliceLeafKey(a), sliceLeafKey(b)) }
}

func (t *Tree) innerCmpKey() pager.CompareSlotKey {
	return func(slot, key []byte) int { return t.cmp(sliceInnerUpperBound(slot), key) }
}

func (t *Tree) innerCmpSlot() pager.CompareSlotSlot {
	return func(a, b []byte) int { return t.cmp(sliceInnerUpperBound(a), sliceInnerUpperBound(b)) }
}

func (t *Tree) getInnerPage(id pager.PageID) (*pager.SortedPageHandle, error) {
	return t.pm.GetSortedPage(id, innerSpecialLen, t.innerCmpKey(), t.innerCmpSlot())
}

func (t *Tree) getLeafPage(id pager.PageID) (*pager.SortedPageHandle, error) {
	return t.pm.GetSortedPage(id, leafSpecialLen, t.leafCmpKey(), t.leafCmpSlot())
}

func (t *Tree) allocInnerPage() (*pager.SortedPageHandle, error) {
	h, err := t.pm.AllocSortedPage(t.innerCmpKey(), t.innerCmpSlot())
	if err != nil {
		return nil, err
	}
	h.Init(innerSpecialLen)
	return h, nil
}

func (t *Tree) allocLeafPage() (*pager.SortedPageHandle, error) {
	h, err := t.pm.AllocSortedPage(t.leafCmpKey(), t.leafCmpSlot())
	if err != nil {
		return nil, err
	}
	h.Init(leafSpecialLen)
	return h, nil
}

func (t *Tree) freeSortedPage(h *pager.SortedPageHandle) error {
	id := h.ID()
	h.Drop()
	return t.pm.Free(id)
}

// stackEntry records one ancestor visited during a descent: its page ID and
// its level (0 = leaf, increasing toward the root).
type stackEntry struct {
	id    pager.PageID
	level uint8
}

// descendToLeaf walks from the root to the leaf that would hold key,
// recording every inner page visited along the way. It is the single
// descent code path shared by Get, Insert, Update, and Delete.
func (t *Tree) descendToLeaf(key []byte) (leafID pager.PageID, stack []stackEntry, err error) {
	var rootID pager.PageID
	var levelNum uint8
	err = t.withMeta(func(mv metaView) error {
		rootID = mv.rootPageID()
		levelNum = mv.levelNum()
		return nil
	})
	if err != nil {
		return 0, nil, err
	}

	curID := rootID
	for level := int(levelNum) - 1; level > 0; level-- {
		inner, e := t.getInnerPage(curID)
		if e != nil {
			return 0, nil, e
		}
		stack = append(stack, stackEntry{id: curID, level: uint8(level)})

		idx := inner.UpperBound(key)
		var childID pager.PageID
		if int(idx) == int(inner.SlotNum()) {
			childID = decodePageID(inner.ReadSpecial(0, innerSpecialLen))
		} else {
			next, _, derr := decodeInnerSlot(inner.Slot(idx))
			if derr != nil {
				inner.Drop()
				return 0, nil, derr
			}
			childID = next
		}
		inner.Drop()
		curID = childID
	}
	return curID, stack, nil
}

// smallestKey walks the leftmost-child chain from (pageID, level) down to a
// leaf and returns a copy of that leaf's first key. Used to compute the
// separator pushed up when an inner page splits.
func (t *Tree) smallestKey(pageID pager.PageID, level uint8) ([]byte, error) {
	curID := pageID
	for l := int(level); l > 0; l-- {
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
	defer leaf.Drop()
	if leaf.IsEmpty() {
		return nil, errors.Wrap(ErrCorruptPage, "smallestKey: reached an empty leaf")
	}
	key, _, derr := decodeLeafSlot(leaf.Slot(0))
	if derr != nil {
		return nil, derr
	}
	return append([]byte(nil), key...), nil
}

// MaxKey walks the rightmost-child (special) chain from the root down to a
// leaf and returns a copy of that leaf's last key, or (nil, false) if the
// tree is empty.
func (t *Tree) MaxKey() ([]byte, bool, error) {
	var rootID pager.PageID
	var levelNum uint8
	err := t.withMeta(func(mv metaView) error {
		rootID = mv.rootPageID()
		levelNum = mv.levelNum()
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	curID := rootID
	for level := int(levelNum) - 1; level > 0; level-- {
		inner, err := t.getInnerPage(curID)
		if err != nil {
			return nil, false, err
		}
		childID := decodePageID(inner.ReadSpecial(0, innerSpecialLen))
		inner.Drop()
		curID = childID
	}

	leaf, err := t.getLeafPage(curID)
	if err != nil {
		return nil, false, err
	}
	defer leaf.Drop()
	if leaf.IsEmpty() {
		return nil, false, nil
	}
	key, _, derr := decodeLeafSlot(leaf.Slot(leaf.SlotNum() - 1))
	if derr != nil {
		return nil, false, derr
	}
	return append([]byte(nil), key...), true, nil
}

// Destroy frees every page belonging to the tree, including the meta page,
// via a recursive post-order walk. The Tree must not be used afterward.
func (t *Tree) Destroy() error {
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
	if err := t.destroySubtree(rootID, levelNum-1); err != nil {
		return err
	}
	return t.pm.Free(t.metaID)
}

func (t *Tree) destroySubtree(pageID pager.PageID, level uint8) error {
	if level == 0 {
		leaf, err := t.getLeafPage(pageID)
		if err != nil {
			return err
		}
		return t.freeSortedPage(leaf)
	}

	inner, err := t.getInnerPage(pageID)
	if err != nil {
		return err
	}
	children := make([]pager.PageID, 0, int(inner.SlotNum())+1)
	for i := pager.SlotID(0); i < inner.SlotNum(); i++ {
		next, _, derr := decodeInnerSlot(inner.Slot(i))
		if derr != nil {
			inner.Drop()
			return derr
		}
		children = append(children, next)
	}
	children = append(children, decodePageID(inner.ReadSpecial(0, innerSpecialLen)))
	if err := t.freeSortedPage(inner); err != nil {
		return err
	}
	for _, c := range children {
		if err := t.destroySubtree(c, level-1); err != nil {
			return err
		}
	}
	return nil
}
