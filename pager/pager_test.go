package pager

import (
	"bytes"
	"path/filepath"
	"testing"
)

func openTestPager(t *testing.T) *Pager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.pg")
	p, err := Open(path, 4)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestAllocateGrowsFile(t *testing.T) {
	p := openTestPager(t)

	a, err := p.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	b, err := p.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct page IDs, got %d twice", a)
	}
	if a == NilPageID || b == NilPageID {
		t.Fatalf("allocated page ID collided with NilPageID")
	}
}

func TestFreeAndReuse(t *testing.T) {
	p := openTestPager(t)

	a, _ := p.Allocate()
	countBefore := p.PageCount()

	h, err := p.GetPlainPage(a)
	if err != nil {
		t.Fatalf("GetPlainPage: %v", err)
	}
	h.Drop()

	if err := p.Free(a); err != nil {
		t.Fatalf("Free: %v", err)
	}

	reused, err := p.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if reused != a {
		t.Fatalf("expected Allocate to reuse freed page %d, got %d", a, reused)
	}
	if p.PageCount() != countBefore {
		t.Fatalf("Allocate should not have grown the file when a free page was available")
	}
}

func TestFreeRefusesPinnedPage(t *testing.T) {
	p := openTestPager(t)
	id, _ := p.Allocate()

	h, err := p.GetPlainPage(id)
	if err != nil {
		t.Fatalf("GetPlainPage: %v", err)
	}
	defer h.Drop()

	if err := p.Free(id); err == nil {
		t.Fatalf("expected Free to refuse a pinned page")
	}
}

func TestPlainPageReadWriteRoundtrips(t *testing.T) {
	p := openTestPager(t)
	id, _ := p.Allocate()

	h, err := p.GetPlainPage(id)
	if err != nil {
		t.Fatalf("GetPlainPage: %v", err)
	}
	want := []byte("hello storage engine")
	h.Write(10, want)
	h.Drop()

	h2, err := p.GetPlainPage(id)
	if err != nil {
		t.Fatalf("GetPlainPage: %v", err)
	}
	defer h2.Drop()
	got := h2.Read(10, len(want))
	if !bytes.Equal(got, want) {
		t.Fatalf("Read = %q, want %q", got, want)
	}
}

func TestHeaderSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.pg")
	p, err := Open(path, 4)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	a, _ := p.Allocate()
	b, _ := p.Allocate()
	ha, _ := p.GetPlainPage(a)
	ha.Drop()
	if err := p.Free(a); err != nil {
		t.Fatalf("Free: %v", err)
	}
	countBefore := p.PageCount()
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	p2, err := Open(path, 4)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer p2.Close()
	if p2.PageCount() != countBefore {
		t.Fatalf("page count did not survive reopen: got %d, want %d", p2.PageCount(), countBefore)
	}
	reused, err := p2.Allocate()
	if err != nil {
		t.Fatalf("Allocate after reopen: %v", err)
	}
	if reused != a {
		t.Fatalf("free-list did not survive reopen: got %d, want %d", reused, a)
	}
	_ = b
}
