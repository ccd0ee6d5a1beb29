package bptree

import (
	"fmt"
	"path/filepath"
	"sort"
	"testing"

	"github.com/wingdb/bptree/pager"
)

func openTestTree(t *testing.T) *Tree {
	t.Helper()
	pm, err := pager.Open(filepath.Join(t.TempDir(), "tree.db"), 64)
	if err != nil {
		t.Fatalf("pager.Open: %v", err)
	}
	t.Cleanup(func() { pm.Close() })
	tr, err := Create(pm)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return tr
}

func TestInsertGetRoundtrip(t *testing.T) {
	tr := openTestTree(t)

	ok, err := tr.Insert([]byte("apple"), []byte("red"))
	if err != nil || !ok {
		t.Fatalf("Insert = %v, %v", ok, err)
	}
	ok, err = tr.Insert([]byte("apple"), []byte("green"))
	if err != nil {
		t.Fatalf("Insert duplicate: %v", err)
	}
	if ok {
		t.Fatalf("Insert of an existing key should report false")
	}

	val, found, err := tr.Get([]byte("apple"))
	if err != nil || !found {
		t.Fatalf("Get = %v, %v, %v", val, found, err)
	}
	if string(val) != "red" {
		t.Fatalf("Get value = %q, want red (Insert must not overwrite)", val)
	}

	if _, found, _ := tr.Get([]byte("banana")); found {
		t.Fatalf("Get(banana) unexpectedly found")
	}

	n, err := tr.TupleNum()
	if err != nil || n != 1 {
		t.Fatalf("TupleNum = %d, %v, want 1", n, err)
	}
}

func TestUpdateReplacesInPlaceAndOnGrowth(t *testing.T) {
	tr := openTestTree(t)
	tr.Insert([]byte("k"), []byte("short"))

	ok, err := tr.Update([]byte("k"), []byte("still-short"))
	if err != nil || !ok {
		t.Fatalf("Update = %v, %v", ok, err)
	}
	val, _, _ := tr.Get([]byte("k"))
	if string(val) != "still-short" {
		t.Fatalf("Get after update = %q", val)
	}

	big := make([]byte, 3000)
	for i := range big {
		big[i] = 'x'
	}
	ok, err = tr.Update([]byte("k"), big)
	if err != nil || !ok {
		t.Fatalf("Update with large value = %v, %v", ok, err)
	}
	val, found, _ := tr.Get([]byte("k"))
	if !found || len(val) != len(big) {
		t.Fatalf("Get after growth update: found=%v len=%d", found, len(val))
	}

	n, _ := tr.TupleNum()
	if n != 1 {
		t.Fatalf("TupleNum after update = %d, want 1 (update must not change count)", n)
	}

	ok, err = tr.Update([]byte("missing"), []byte("x"))
	if err != nil || ok {
		t.Fatalf("Update of an absent key should report false, got %v, %v", ok, err)
	}
}

func TestDeleteAndTake(t *testing.T) {
	tr := openTestTree(t)
	tr.Insert([]byte("a"), []byte("1"))
	tr.Insert([]byte("b"), []byte("2"))

	ok, err := tr.Delete([]byte("z"))
	if err != nil || ok {
		t.Fatalf("Delete of an absent key should report false")
	}

	val, found, err := tr.Take([]byte("a"))
	if err != nil || !found || string(val) != "1" {
		t.Fatalf("Take(a) = %q, %v, %v", val, found, err)
	}
	if _, found, _ := tr.Get([]byte("a")); found {
		t.Fatalf("a still present after Take")
	}

	n, _ := tr.TupleNum()
	if n != 1 {
		t.Fatalf("TupleNum after Take = %d, want 1", n)
	}

	tr.Delete([]byte("b"))
	empty, err := tr.IsEmpty()
	if err != nil || !empty {
		t.Fatalf("IsEmpty = %v, %v, want true", empty, err)
	}
}

// TestManyKeysForceSplitsAndOrder inserts enough keys to force many leaf
// splits (well beyond what fits on one 4096-byte page; the resulting leaves
// still fit under a single inner root, so no inner page splits), then
// verifies every key is retrievable and an in-order scan sees them sorted.
func TestManyKeysForceSplitsAndOrder(t *testing.T) {
	tr := openTestTree(t)

	const count = 5000
	keys := make([]string, count)
	for i := 0; i < count; i++ {
		keys[i] = fmt.Sprintf("key-%05d", i)
	}
	// Insert out of order to exercise splits at arbitrary positions, not just
	// the rightmost edge.
	shuffled := append([]string(nil), keys...)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := (i * 2654435761) % (i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}

	for _, k := range shuffled {
		ok, err := tr.Insert([]byte(k), []byte("v-"+k))
		if err != nil {
			t.Fatalf("Insert(%s): %v", k, err)
		}
		if !ok {
			t.Fatalf("Insert(%s) reported false on a fresh key", k)
		}
	}

	n, err := tr.TupleNum()
	if err != nil || n != count {
		t.Fatalf("TupleNum = %d, %v, want %d", n, err, count)
	}

	for _, k := range keys {
		val, found, err := tr.Get([]byte(k))
		if err != nil || !found {
			t.Fatalf("Get(%s) = %v, %v, %v", k, val, found, err)
		}
		if string(val) != "v-"+k {
			t.Fatalf("Get(%s) = %q, want %q", k, val, "v-"+k)
		}
	}

	it, err := tr.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer it.Close()

	var scanned []string
	for !it.End() {
		k, _, err := it.Cur()
		if err != nil {
			t.Fatalf("Cur: %v", err)
		}
		scanned = append(scanned, string(k))
		if err := it.Next(); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}

	sortedKeys := append([]string(nil), keys...)
	sort.Strings(sortedKeys)
	if len(scanned) != len(sortedKeys) {
		t.Fatalf("scanned %d keys, want %d", len(scanned), len(sortedKeys))
	}
	for i := range sortedKeys {
		if scanned[i] != sortedKeys[i] {
			t.Fatalf("scan order mismatch at %d: got %q, want %q", i, scanned[i], sortedKeys[i])
		}
	}
}

func TestDeleteAllKeysCollapsesToEmptyLeafRoot(t *testing.T) {
	tr := openTestTree(t)

	const count = 2000
	keys := make([]string, count)
	for i := 0; i < count; i++ {
		keys[i] = fmt.Sprintf("k-%05d", i)
		if _, err := tr.Insert([]byte(keys[i]), []byte("v")); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	for _, k := range keys {
		ok, err := tr.Delete([]byte(k))
		if err != nil || !ok {
			t.Fatalf("Delete(%s) = %v, %v", k, ok, err)
		}
	}

	empty, err := tr.IsEmpty()
	if err != nil || !empty {
		t.Fatalf("IsEmpty after deleting everything = %v, %v", empty, err)
	}

	it, err := tr.Begin()
	if err != nil {
		t.Fatalf("Begin on empty tree: %v", err)
	}
	if !it.End() {
		t.Fatalf("Begin on empty tree should immediately be at End")
	}
	it.Close()

	if _, err := tr.Insert([]byte("fresh"), []byte("v")); err != nil {
		t.Fatalf("Insert after emptying the tree: %v", err)
	}
	if val, found, err := tr.Get([]byte("fresh")); err != nil || !found || string(val) != "v" {
		t.Fatalf("Get(fresh) = %q, %v, %v", val, found, err)
	}
}

func TestLowerBoundAndUpperBoundIterators(t *testing.T) {
	tr := openTestTree(t)
	for _, k := range []string{"b", "d", "f", "h"} {
		tr.Insert([]byte(k), []byte(k))
	}

	it, err := tr.LowerBound([]byte("e"))
	if err != nil {
		t.Fatalf("LowerBound: %v", err)
	}
	defer it.Close()
	k, _, err := it.Cur()
	if err != nil || string(k) != "f" {
		t.Fatalf("LowerBound(e).Cur() = %q, %v, want f", k, err)
	}

	it2, err := tr.UpperBound([]byte("d"))
	if err != nil {
		t.Fatalf("UpperBound: %v", err)
	}
	defer it2.Close()
	k2, _, err := it2.Cur()
	if err != nil || string(k2) != "f" {
		t.Fatalf("UpperBound(d).Cur() = %q, %v, want f", k2, err)
	}

	it3, err := tr.LowerBound([]byte("z"))
	if err != nil {
		t.Fatalf("LowerBound(z): %v", err)
	}
	if !it3.End() {
		t.Fatalf("LowerBound(z) should be at End")
	}
	it3.Close()
}

func TestReopenSeesPersistedTree(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reopen.db")

	pm, err := pager.Open(path, 32)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	tr, err := Create(pm)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	metaID := tr.MetaPageID()
	for _, k := range []string{"one", "two", "three"} {
		if _, err := tr.Insert([]byte(k), []byte(k)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	if err := pm.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	pm2, err := pager.Open(path, 32)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer pm2.Close()
	tr2, err := Open(pm2, metaID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, k := range []string{"one", "two", "three"} {
		if _, found, err := tr2.Get([]byte(k)); err != nil || !found {
			t.Fatalf("Get(%s) after reopen = %v, %v", k, found, err)
		}
	}
}

func TestDestroyFreesRootLeaf(t *testing.T) {
	tr := openTestTree(t)
	for _, k := range []string{"a", "b", "c"} {
		tr.Insert([]byte(k), []byte(k))
	}
	if err := tr.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
}
