package pager

// PlainPageHandle is a pinned, exclusive view of a page with no imposed
// structure: raw byte-range reads and writes. Used for the meta page.
type PlainPageHandle struct {
	pager *Pager
	id    PageID
	page  *Page
	live  bool
}

// GetPlainPage pins and returns the page with the given ID.
func (p *Pager) GetPlainPage(id PageID) (*PlainPageHandle, error) {
	pg, err := p.read(id)
	if err != nil {
		return nil, err
	}
	p.pin(id)
	return &PlainPageHandle{pager: p, id: id, page: pg, live: true}, nil
}

// AllocPlainPage allocates a new page and returns it pinned, zeroed.
func (p *Pager) AllocPlainPage() (*PlainPageHandle, error) {
	id, err := p.Allocate()
	if err != nil {
		return nil, err
	}
	p.pin(id)
	return &PlainPageHandle{pager: p, id: id, page: new(Page), live: true}, nil
}

// ID returns the handle's page ID.
func (h *PlainPageHandle) ID() PageID { return h.id }

// Read returns a copy of length bytes starting at off.
func (h *PlainPageHandle) Read(off, length int) []byte {
	out := make([]byte, length)
	copy(out, h.page[off:off+length])
	return out
}

// Write stores data at off and marks the page dirty in the pager's cache.
func (h *PlainPageHandle) Write(off int, data []byte) {
	copy(h.page[off:off+len(data)], data)
	h.pager.cache.put(h.id, h.page, true)
}

// Drop releases the handle's pin. It must be called exactly once, on every
// exit path, before the page can be freed.
func (h *PlainPageHandle) Drop() {
	if !h.live {
		return
	}
	h.live = false
	h.pager.unpin(h.id)
}
