package pager

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"testing"
)

// testSlotKey treats a slot as key_len(uint16) ‖ key ‖ value and compares the
// key portion against a raw key, mirroring the leaf-slot shape used by
// package bptree.
func testSlotKey(slot, key []byte) int {
	klen := int(binary.LittleEndian.Uint16(slot[:2]))
	return bytes.Compare(slot[2:2+klen], key)
}

func testSlotSlot(a, b []byte) int {
	aklen := int(binary.LittleEndian.Uint16(a[:2]))
	bklen := int(binary.LittleEndian.Uint16(b[:2]))
	return bytes.Compare(a[2:2+aklen], b[2:2+bklen])
}

func makeTestSlot(key, value []byte) []byte {
	buf := make([]byte, 2+len(key)+len(value))
	binary.LittleEndian.PutUint16(buf[:2], uint16(len(key)))
	copy(buf[2:], key)
	copy(buf[2+len(key):], value)
	return buf
}

func openSortedTestPager(t *testing.T) *Pager {
	t.Helper()
	p, err := Open(filepath.Join(t.TempDir(), "sp.pg"), 4)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestSortedPageInsertAndFind(t *testing.T) {
	p := openSortedTestPager(t)
	h, err := p.AllocSortedPage(testSlotKey, testSlotSlot)
	if err != nil {
		t.Fatalf("AllocSortedPage: %v", err)
	}
	defer h.Drop()
	h.Init(8)

	keys := []string{"b", "d", "a", "c"}
	for _, k := range keys {
		slot := makeTestSlot([]byte(k), []byte("v-"+k))
		pos := h.LowerBound([]byte(k))
		if !h.InsertBeforeSlot(pos, slot) {
			t.Fatalf("InsertBeforeSlot(%q) reported no room", k)
		}
	}

	if h.SlotNum() != 4 {
		t.Fatalf("SlotNum = %d, want 4", h.SlotNum())
	}

	wantOrder := []string{"a", "b", "c", "d"}
	for i, want := range wantOrder {
		slot := h.Slot(SlotID(i))
		klen := int(binary.LittleEndian.Uint16(slot[:2]))
		got := string(slot[2 : 2+klen])
		if got != want {
			t.Fatalf("slot %d = %q, want %q", i, got, want)
		}
	}

	slot, ok := h.FindSlot([]byte("c"))
	if !ok {
		t.Fatalf("FindSlot(c) not found")
	}
	klen := int(binary.LittleEndian.Uint16(slot[:2]))
	if val := string(slot[2+klen:]); val != "v-c" {
		t.Fatalf("FindSlot(c) value = %q, want v-c", val)
	}

	if _, ok := h.FindSlot([]byte("z")); ok {
		t.Fatalf("FindSlot(z) unexpectedly found")
	}
}

func TestSortedPageDeleteSlot(t *testing.T) {
	p := openSortedTestPager(t)
	h, _ := p.AllocSortedPage(testSlotKey, testSlotSlot)
	defer h.Drop()
	h.Init(8)

	for _, k := range []string{"a", "b", "c"} {
		h.InsertBeforeSlot(h.LowerBound([]byte(k)), makeTestSlot([]byte(k), nil))
	}
	if !h.DeleteSlotByKey([]byte("b")) {
		t.Fatalf("DeleteSlotByKey(b) reported not found")
	}
	if h.SlotNum() != 2 {
		t.Fatalf("SlotNum after delete = %d, want 2", h.SlotNum())
	}
	if _, ok := h.FindSlot([]byte("b")); ok {
		t.Fatalf("b still present after delete")
	}
	if _, ok := h.FindSlot([]byte("a")); !ok {
		t.Fatalf("a missing after unrelated delete")
	}
}

func TestSortedPageSpecialTrailer(t *testing.T) {
	p := openSortedTestPager(t)
	h, _ := p.AllocSortedPage(testSlotKey, testSlotSlot)
	defer h.Drop()
	h.Init(8)

	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], 42)
	binary.LittleEndian.PutUint32(buf[4:8], 99)
	h.WriteSpecial(0, buf[:])

	got := h.ReadSpecial(0, 8)
	if binary.LittleEndian.Uint32(got[0:4]) != 42 || binary.LittleEndian.Uint32(got[4:8]) != 99 {
		t.Fatalf("special trailer roundtrip failed: %v", got)
	}
}

func TestSortedPageSplitInsertDistributesAndOrders(t *testing.T) {
	p := openSortedTestPager(t)
	left, _ := p.AllocSortedPage(testSlotKey, testSlotSlot)
	defer left.Drop()
	left.Init(8)

	right, err := p.AllocSortedPage(testSlotKey, testSlotSlot)
	if err != nil {
		t.Fatalf("AllocSortedPage: %v", err)
	}
	defer right.Drop()
	right.Init(8)

	keys := []string{"a", "b", "c", "d", "e", "f"}
	for _, k := range keys {
		left.InsertBeforeSlot(left.LowerBound([]byte(k)), makeTestSlot([]byte(k), nil))
	}

	insertKey := []byte("g")
	insertPos := left.LowerBound(insertKey)
	if err := left.SplitInsert(right, makeTestSlot(insertKey, nil), insertPos); err != nil {
		t.Fatalf("SplitInsert: %v", err)
	}

	total := int(left.SlotNum()) + int(right.SlotNum())
	if total != len(keys)+1 {
		t.Fatalf("total slots after split = %d, want %d", total, len(keys)+1)
	}

	var seen []string
	for i := SlotID(0); i < left.SlotNum(); i++ {
		slot := left.Slot(i)
		klen := int(binary.LittleEndian.Uint16(slot[:2]))
		seen = append(seen, string(slot[2:2+klen]))
	}
	for i := SlotID(0); i < right.SlotNum(); i++ {
		slot := right.Slot(i)
		klen := int(binary.LittleEndian.Uint16(slot[:2]))
		seen = append(seen, string(slot[2:2+klen]))
	}

	want := []string{"a", "b", "c", "d", "e", "f", "g"}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i, w := range want {
		if seen[i] != w {
			t.Fatalf("seen[%d] = %q, want %q (full: %v)", i, seen[i], w, seen)
		}
	}
}
