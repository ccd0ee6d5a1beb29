package bptree

import (
	"encoding/binary"

	"github.com/wingdb/bptree/pager"
)

const (
	metaOffLevelNum  = 0
	metaOffRootPage  = 4
	metaOffTupleNum  = 8
	metaPageByteSize = 16
)

// metaView is a typed accessor over the tree's meta page: level_num (u8),
// root_page_id (u32), tuple_num (u64).
type metaView struct {
	h *pager.PlainPageHandle
}

func (m metaView) levelNum() uint8 {
	return m.h.Read(metaOffLevelNum, 1)[0]
}

func (m metaView) setLevelNum(n uint8) {
	m.h.Write(metaOffLevelNum, []byte{n})
}

func (m metaView) rootPageID() pager.PageID {
	return decodePageID(m.h.Read(metaOffRootPage, 4))
}

func (m metaView) setRootPageID(id pager.PageID) {
	m.h.Write(metaOffRootPage, encodePageID(id))
}

func (m metaView) tupleNum() uint64 {
	return binary.LittleEndian.Uint64(m.h.Read(metaOffTupleNum, 8))
}

func (m metaView) setTupleNum(n uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], n)
	m.h.Write(metaOffTupleNum, buf[:])
}
