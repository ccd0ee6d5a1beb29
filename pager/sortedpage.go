package pager

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// ErrSlotTooLarge is returned when a slot cannot fit on an empty page of this
// layout, so no split could ever make room for it.
var ErrSlotTooLarge = errors.New("pager: slot too large for a page")

const (
	offNumSlots         = 0
	offCellContentStart = 2
	offSpecial          = 4

	dirEntrySize = 4 // offset uint16, length uint16
)

// CompareSlotKey compares a slot's logical key against a raw key: negative if
// the slot sorts before key, zero if equal, positive if after.
type CompareSlotKey func(slot, key []byte) int

// CompareSlotSlot compares two slots directly, with the same sign convention.
type CompareSlotSlot func(a, b []byte) int

// SortedPageHandle is a pinned view of a page following the sorted-page-view
// discipline: an ordered sequence of variable-length byte slots addressed
// through a slot directory, plus a fixed-length special region reserved for
// the caller (inner pages use it for the rightmost child ID, leaf pages for
// sibling links). The special region sits directly after the 4-byte page
// header, ahead of the slot directory, not at the end of the page.
//
// Slot order and all lookups are driven entirely by the two injected
// comparators; SortedPageHandle itself never interprets slot bytes beyond
// their length.
type SortedPageHandle struct {
	pager      *Pager
	id         PageID
	page       *Page
	specialLen int
	cmpKey     CompareSlotKey
	cmpSlot    CompareSlotSlot
	live       bool
}

// AllocSortedPage allocates a new page and returns it pinned, ready for
// Init.
func (p *Pager) AllocSortedPage(cmpKey CompareSlotKey, cmpSlot CompareSlotSlot) (*SortedPageHandle, error) {
	id, err := p.Allocate()
	if err != nil {
		return nil, err
	}
	p.pin(id)
	return &SortedPageHandle{pager: p, id: id, page: new(Page), cmpKey: cmpKey, cmpSlot: cmpSlot, live: true}, nil
}

// GetSortedPage pins and returns an existing sorted page. specialLen must
// match the value the page was Init'd with.
func (p *Pager) GetSortedPage(id PageID, specialLen int, cmpKey CompareSlotKey, cmpSlot CompareSlotSlot) (*SortedPageHandle, error) {
	pg, err := p.read(id)
	if err != nil {
		return nil, err
	}
	p.pin(id)
	return &SortedPageHandle{pager: p, id: id, page: pg, specialLen: specialLen, cmpKey: cmpKey, cmpSlot: cmpSlot, live: true}, nil
}

// ID returns the handle's page ID.
func (h *SortedPageHandle) ID() PageID { return h.id }

// Init resets the page to empty with the given special-trailer length. Must
// be called once, before any other operation, on a freshly allocated page.
func (h *SortedPageHandle) Init(specialLen int) {
	for i := range h.page {
		h.page[i] = 0
	}
	h.specialLen = specialLen
	h.setNumSlots(0)
	h.setCellContentStart(PageSize)
	h.markDirty()
}

func (h *SortedPageHandle) numSlots() int {
	return int(binary.LittleEndian.Uint16(h.page[offNumSlots : offNumSlots+2]))
}

func (h *SortedPageHandle) setNumSlots(n int) {
	binary.LittleEndian.PutUint16(h.page[offNumSlots:offNumSlots+2], uint16(n))
}

func (h *SortedPageHandle) cellContentStart() int {
	return int(binary.LittleEndian.Uint16(h.page[offCellContentStart : offCellContentStart+2]))
}

func (h *SortedPageHandle) setCellContentStart(v int) {
	binary.LittleEndian.PutUint16(h.page[offCellContentStart:offCellContentStart+2], uint16(v))
}

func (h *SortedPageHandle) dirOffset() int { return offSpecial + h.specialLen }

func (h *SortedPageHandle) dirEntryOffset(i int) int { return h.dirOffset() + i*dirEntrySize }

func (h *SortedPageHandle) dirEnd() int { return h.dirEntryOffset(h.numSlots()) }

func (h *SortedPageHandle) markDirty() {
	h.pager.cache.put(h.id, h.page, true)
}

// SlotNum returns the number of slots on the page.
func (h *SortedPageHandle) SlotNum() SlotID { return SlotID(h.numSlots()) }

// IsEmpty reports whether the page has no slots.
func (h *SortedPageHandle) IsEmpty() bool { return h.numSlots() == 0 }

// Slot returns the raw bytes of the slot at index i. The returned slice
// aliases the page buffer and must not be retained past the next mutation.
func (h *SortedPageHandle) Slot(i SlotID) []byte {
	eo := h.dirEntryOffset(int(i))
	off := binary.LittleEndian.Uint16(h.page[eo : eo+2])
	length := binary.LittleEndian.Uint16(h.page[eo+2 : eo+4])
	return h.page[off : off+length]
}

// ReadSpecial returns length bytes of the special trailer starting at off.
func (h *SortedPageHandle) ReadSpecial(off, length int) []byte {
	base := offSpecial + off
	out := make([]byte, length)
	copy(out, h.page[base:base+length])
	return out
}

// WriteSpecial writes data into the special trailer starting at off.
func (h *SortedPageHandle) WriteSpecial(off int, data []byte) {
	base := offSpecial + off
	copy(h.page[base:base+len(data)], data)
	h.markDirty()
}

// freeSpace is the number of bytes available for one more slot plus its
// directory entry.
func (h *SortedPageHandle) freeSpace() int {
	return h.cellContentStart() - h.dirEnd()
}

// IsInsertable reports whether slot can be inserted without a split.
func (h *SortedPageHandle) IsInsertable(slot []byte) bool {
	return h.freeSpace() >= len(slot)+dirEntrySize
}

// WouldFit reports whether all of the given slots could be inserted together
// without a split, ignoring order. Used by callers that need to replace one
// routing entry with several in a single atomic step.
func (h *SortedPageHandle) WouldFit(slots ...[]byte) bool {
	need := 0
	for _, s := range slots {
		need += len(s) + dirEntrySize
	}
	return h.freeSpace() >= need
}

// Find returns the index of the first slot not ordered before key (the
// insertion point key would occupy), and whether the slot at that index is
// an exact match.
func (h *SortedPageHandle) Find(key []byte) (SlotID, bool) {
	idx := h.LowerBound(key)
	if int(idx) < h.numSlots() && h.cmpKey(h.Slot(idx), key) == 0 {
		return idx, true
	}
	return idx, false
}

// FindSlot returns the slot bytes for an exact key match, if present.
func (h *SortedPageHandle) FindSlot(key []byte) ([]byte, bool) {
	idx, ok := h.Find(key)
	if !ok {
		return nil, false
	}
	return h.Slot(idx), true
}

// LowerBound returns the index of the first slot whose key is >= key.
func (h *SortedPageHandle) LowerBound(key []byte) SlotID {
	n := h.numSlots()
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		if h.cmpKey(h.Slot(SlotID(mid)), key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return SlotID(lo)
}

// UpperBound returns the index of the first slot whose key is > key.
func (h *SortedPageHandle) UpperBound(key []byte) SlotID {
	n := h.numSlots()
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		if h.cmpKey(h.Slot(SlotID(mid)), key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return SlotID(lo)
}

// allocCell reserves size bytes at the top of the cell content area and
// returns their starting offset.
func (h *SortedPageHandle) allocCell(size int) int {
	top := h.cellContentStart() - size
	h.setCellContentStart(top)
	return top
}

// InsertBeforeSlot inserts slot at logical index i, shifting subsequent
// directory entries forward. Returns false if there is no room; callers
// must check IsInsertable (or handle the false return) before relying on
// the insert having happened.
func (h *SortedPageHandle) InsertBeforeSlot(i SlotID, slot []byte) bool {
	if !h.IsInsertable(slot) {
		return false
	}
	n := h.numSlots()
	off := h.allocCell(len(slot))
	copy(h.page[off:off+len(slot)], slot)

	// Shift directory entries [i, n) forward by one slot to make room.
	for k := n; k > int(i); k-- {
		src := h.dirEntryOffset(k - 1)
		dst := h.dirEntryOffset(k)
		copy(h.page[dst:dst+dirEntrySize], h.page[src:src+dirEntrySize])
	}
	eo := h.dirEntryOffset(int(i))
	binary.LittleEndian.PutUint16(h.page[eo:eo+2], uint16(off))
	binary.LittleEndian.PutUint16(h.page[eo+2:eo+4], uint16(len(slot)))
	h.setNumSlots(n + 1)
	h.markDirty()
	return true
}

// DeleteSlot removes the slot at logical index i. The underlying cell bytes
// are not reclaimed until the page is next split or reinitialized.
func (h *SortedPageHandle) DeleteSlot(i SlotID) {
	n := h.numSlots()
	for k := int(i); k < n-1; k++ {
		src := h.dirEntryOffset(k + 1)
		dst := h.dirEntryOffset(k)
		copy(h.page[dst:dst+dirEntrySize], h.page[src:src+dirEntrySize])
	}
	h.setNumSlots(n - 1)
	h.markDirty()
}

// DeleteSlotByKey deletes the slot matching key, if present, and reports
// whether anything was removed.
func (h *SortedPageHandle) DeleteSlotByKey(key []byte) bool {
	idx, ok := h.Find(key)
	if !ok {
		return false
	}
	h.DeleteSlot(idx)
	return true
}

// SplitInsert moves roughly the upper half of this page's slots into right
// (which must already be Init'd with the same special length), then inserts
// slot at the logical position insertPos would occupy in the pre-split
// ordering, into whichever of the two pages now owns that position.
func (h *SortedPageHandle) SplitInsert(right *SortedPageHandle, slot []byte, insertPos SlotID) error {
	n := h.numSlots()
	mid := (n + 1) / 2

	all := make([][]byte, n)
	for i := 0; i < n; i++ {
		all[i] = append([]byte(nil), h.Slot(SlotID(i))...)
	}
	// Rebuild the left half from an empty cell area so the bytes of the
	// moved slots (and of earlier deletions) are reclaimed; the special
	// region is left untouched.
	h.setNumSlots(0)
	h.setCellContentStart(PageSize)
	for _, s := range all[:mid] {
		h.InsertBeforeSlot(h.SlotNum(), s)
	}
	for _, s := range all[mid:] {
		if !right.InsertBeforeSlot(right.SlotNum(), s) {
			return errors.Wrap(ErrSlotTooLarge, "sorted page split: moved slot does not fit on new sibling")
		}
	}

	if int(insertPos) <= mid {
		if !h.InsertBeforeSlot(insertPos, slot) {
			return errors.Wrap(ErrSlotTooLarge, "sorted page split: inserted slot does not fit on left half")
		}
	} else {
		if !right.InsertBeforeSlot(insertPos-SlotID(mid), slot) {
			return errors.Wrap(ErrSlotTooLarge, "sorted page split: inserted slot does not fit on right half")
		}
	}
	return nil
}

// Drop releases the handle's pin. Every mutation has already marked the page
// dirty in the pager's cache when it was made, so Drop writes nothing itself.
// It must be called exactly once, on every exit path.
func (h *SortedPageHandle) Drop() {
	if !h.live {
		return
	}
	h.live = false
	h.pager.unpin(h.id)
}
