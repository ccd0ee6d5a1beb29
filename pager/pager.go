package pager

import (
	"encoding/binary"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
)

// ErrPagePinned is returned by Free when the page still has live handles.
var ErrPagePinned = errors.New("pager: page is still pinned")

// Option configures a Pager at Open time.
type Option func(*Pager)

// WithLogger overrides the logger used for structural events (allocations and
// frees at Debug level, a failed flush on cache eviction at Error level).
// Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pager) { p.log = l }
}

// WithMetrics installs a metrics sink. Defaults to a private, unregistered
// registry (see metrics.go).
func WithMetrics(m *pagerMetrics) Option {
	return func(p *Pager) { p.metrics = m }
}

// Pager manages a file of fixed-size pages, an LRU cache of recently used
// pages, and a free-list of reclaimed page IDs.
type Pager struct {
	file      *os.File
	cache     *lruCache
	pageCount uint32 // total number of pages ever allocated, including page 0
	free      []PageID
	pinned    map[PageID]int
	log       *slog.Logger
	metrics   *pagerMetrics
}

// Open opens (or creates) a pager backed by the given file. cacheSize is the
// number of pages held in the LRU cache before eviction.
func Open(path string, cacheSize int, opts ...Option) (*Pager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "pager: open %q", path)
	}

	p := &Pager{
		file:    f,
		cache:   newLRUCache(cacheSize),
		pinned:  make(map[PageID]int),
		log:     slog.Default(),
		metrics: newPagerMetrics(),
	}
	p.cache.pager = p
	for _, opt := range opts {
		opt(p)
	}

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		// Page 0 is reserved as the file header; the first usable page is 1.
		p.pageCount = 1
		if err := p.writePageToDisk(0, new(Page)); err != nil {
			return nil, err
		}
		if err := p.writeHeader(); err != nil {
			return nil, err
		}
	} else {
		hdr, err := p.readPageFromDisk(0)
		if err != nil {
			return nil, errors.Wrap(err, "pager: read header page")
		}
		p.pageCount = binary.LittleEndian.Uint32(hdr[:4])
		freeCount := binary.LittleEndian.Uint32(hdr[4:8])
		p.free = make([]PageID, 0, freeCount)
		for i := uint32(0); i < freeCount; i++ {
			off := 8 + i*4
			p.free = append(p.free, PageID(binary.LittleEndian.Uint32(hdr[off:off+4])))
		}
	}

	return p, nil
}

// Allocate reserves a page, preferring a page released by Free over growing
// the file.
func (p *Pager) Allocate() (PageID, error) {
	if n := len(p.free); n > 0 {
		id := p.free[n-1]
		p.free = p.free[:n-1]
		if err := p.writeHeader(); err != nil {
			return NilPageID, err
		}
		p.metrics.allocations.Inc()
		p.log.Debug("pager: allocate (reused)", "page", id)
		return id, nil
	}

	id := PageID(p.pageCount)
	p.pageCount++
	if err := p.writePageToDisk(id, new(Page)); err != nil {
		return NilPageID, err
	}
	if err := p.writeHeader(); err != nil {
		return NilPageID, err
	}
	p.metrics.allocations.Inc()
	p.log.Debug("pager: allocate (grew file)", "page", id)
	return id, nil
}

// Free releases a page back to the free-list. It is an error to free a page
// with a nonzero pin count: callers must Drop every outstanding handle
// first.
func (p *Pager) Free(id PageID) error {
	if p.pinned[id] > 0 {
		return errors.Wrapf(ErrPagePinned, "page %d", id)
	}
	p.free = append(p.free, id)
	p.cache.remove(id)
	p.metrics.frees.Inc()
	p.log.Debug("pager: free", "page", id)
	return p.writeHeader()
}

// Close flushes every dirty cached page to disk, then closes the underlying
// file.
func (p *Pager) Close() error {
	if err := p.cache.flushAll(); err != nil {
		return err
	}
	return p.file.Close()
}

// PageCount returns the total number of pages ever allocated (including
// reserved page 0), not the number currently live.
func (p *Pager) PageCount() uint32 {
	return p.pageCount
}

func (p *Pager) pin(id PageID) {
	p.pinned[id]++
}

func (p *Pager) unpin(id PageID) {
	if p.pinned[id] > 0 {
		p.pinned[id]--
		if p.pinned[id] == 0 {
			delete(p.pinned, id)
		}
	}
}

func (p *Pager) read(id PageID) (*Page, error) {
	if pg := p.cache.get(id); pg != nil {
		p.metrics.cacheHits.Inc()
		return pg, nil
	}
	p.metrics.cacheMisses.Inc()
	pg, err := p.readPageFromDisk(id)
	if err != nil {
		return nil, err
	}
	p.cache.put(id, pg, false)
	return pg, nil
}

// --- raw disk I/O ---

func (p *Pager) offset(id PageID) int64 {
	return int64(id) * PageSize
}

func (p *Pager) readPageFromDisk(id PageID) (*Page, error) {
	pg := new(Page)
	if _, err := p.file.ReadAt(pg[:], p.offset(id)); err != nil {
		return nil, errors.Wrapf(err, "pager: read page %d", id)
	}
	return pg, nil
}

func (p *Pager) writePageToDisk(id PageID, pg *Page) error {
	if _, err := p.file.WriteAt(pg[:], p.offset(id)); err != nil {
		return errors.Wrapf(err, "pager: write page %d", id)
	}
	return nil
}

// writeHeader persists pageCount and the free-list to page 0.
func (p *Pager) writeHeader() error {
	var hdr Page
	binary.LittleEndian.PutUint32(hdr[0:4], p.pageCount)
	n := len(p.free)
	if max := (PageSize - 8) / 4; n > max {
		n = max
	}
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(n))
	for i, id := range p.free {
		off := 8 + i*4
		if off+4 > PageSize {
			break // free-list overflowed the header page; rest is lost on restart, acceptable for this reference pager
		}
		binary.LittleEndian.PutUint32(hdr[off:off+4], uint32(id))
	}
	return p.writePageToDisk(0, &hdr)
}

// ─── LRU Cache ────────────────────────────────────────────────────────────────

type lruEntry struct {
	id    PageID
	page  *Page
	dirty bool
	prev  *lruEntry
	next  *lruEntry
}

type lruCache struct {
	cap   int
	items map[PageID]*lruEntry
	head  *lruEntry // most recent
	tail  *lruEntry // least recent
	pager *Pager    // back-reference, for flushing dirty pages on eviction/close
}

func newLRUCache(cap int) *lruCache {
	return &lruCache{
		cap:   cap,
		items: make(map[PageID]*lruEntry, cap),
	}
}

func (c *lruCache) get(id PageID) *Page {
	e, ok := c.items[id]
	if !ok {
		return nil
	}
	c.moveToFront(e)
	return e.page
}

// put inserts or updates the cached copy of id. dirty marks the page as
// having in-memory content not yet written to disk; an already-dirty entry
// stays dirty regardless of the dirty argument.
func (c *lruCache) put(id PageID, pg *Page, dirty bool) {
	if e, ok := c.items[id]; ok {
		e.page = pg
		e.dirty = e.dirty || dirty
		c.moveToFront(e)
		return
	}
	e := &lruEntry{id: id, page: pg, dirty: dirty}
	c.items[id] = e
	c.pushFront(e)
	if len(c.items) > c.cap {
		c.evict()
	}
}

func (c *lruCache) remove(id PageID) {
	e, ok := c.items[id]
	if !ok {
		return
	}
	c.unlink(e)
	delete(c.items, id)
}

// flushAll writes every dirty cached page to disk, used on Close.
func (c *lruCache) flushAll() error {
	for id, e := range c.items {
		if !e.dirty {
			continue
		}
		if err := c.pager.writePageToDisk(id, e.page); err != nil {
			return err
		}
		e.dirty = false
	}
	return nil
}

func (c *lruCache) pushFront(e *lruEntry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) moveToFront(e *lruEntry) {
	if c.head == e {
		return
	}
	c.unlink(e)
	c.pushFront(e)
}

func (c *lruCache) unlink(e *lruEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	if c.head == e {
		c.head = e.next
	}
	if c.tail == e {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

// evict drops the least-recently-used entry that is not currently pinned,
// flushing it to disk first if dirty. A pinned page's in-memory content is
// the only live copy a caller is holding, so it must never be dropped from
// the cache out from under them; if every entry is pinned, the cache is
// left over capacity rather than evicting one.
func (c *lruCache) evict() {
	e := c.tail
	for e != nil && c.pager.pinned[e.id] > 0 {
		e = e.prev
	}
	if e == nil {
		return
	}
	if e.dirty {
		if err := c.pager.writePageToDisk(e.id, e.page); err != nil {
			c.pager.log.Error("pager: flush on evict failed", "page", e.id, "error", err)
			return
		}
	}
	c.unlink(e)
	delete(c.items, e.id)
}
