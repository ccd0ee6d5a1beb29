// Package pager implements the on-disk page manager the B+tree in package
// bptree runs on: fixed-size pages, an LRU cache, a free-list of reclaimed
// page IDs, and pinned page handles.
package pager

// PageSize is the fixed size of every page on disk, matching the OS page
// size.
const PageSize = 4096

// Page is a raw 4 KB block read from or written to disk.
type Page [PageSize]byte

// PageID identifies a page. Zero is reserved: it never names an allocated
// page, and is used as the nil/end-of-chain sentinel (e.g. a leaf with no
// next sibling).
type PageID uint32

// NilPageID is the reserved zero value of PageID.
const NilPageID PageID = 0

// SlotID indexes a slot within a sorted page, 0-based.
type SlotID uint16

// PageOffset is the width used for in-page byte offsets and length-prefixed
// slot fields.
type PageOffset = uint16
