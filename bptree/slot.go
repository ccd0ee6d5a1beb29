package bptree

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/wingdb/bptree/pager"
)

// ErrCorruptSlot is returned when a slot's header is inconsistent with its
// actual length (e.g. a leaf slot's key_len exceeds the slot's total size).
var ErrCorruptSlot = errors.New("bptree: corrupt slot")

const innerNextSize = 4 // encoded width of PageID within an inner slot

// encodeInnerSlot writes next_child_id (u32 little-endian) ‖
// strict_upper_bound. The encoded length is always 4+len(upperBound); no
// sizeof-the-view-type shortcuts.
func encodeInnerSlot(next pager.PageID, upperBound []byte) []byte {
	buf := make([]byte, innerNextSize+len(upperBound))
	binary.LittleEndian.PutUint32(buf[:innerNextSize], uint32(next))
	copy(buf[innerNextSize:], upperBound)
	return buf
}

// decodeInnerSlot reads next_child_id then treats the remainder as the
// strict upper bound. The returned upperBound aliases slot.
func decodeInnerSlot(slot []byte) (next pager.PageID, upperBound []byte, err error) {
	if len(slot) < innerNextSize {
		return 0, nil, errors.Wrapf(ErrCorruptSlot, "inner slot of %d bytes shorter than header", len(slot))
	}
	next = pager.PageID(binary.LittleEndian.Uint32(slot[:innerNextSize]))
	upperBound = slot[innerNextSize:]
	return next, upperBound, nil
}

const leafKeyLenSize = 2 // encoded width of pgoff_t used for key_len

// encodeLeafSlot writes key_len (pgoff_t little-endian) ‖ key ‖ value.
func encodeLeafSlot(key, value []byte) []byte {
	buf := make([]byte, leafKeyLenSize+len(key)+len(value))
	binary.LittleEndian.PutUint16(buf[:leafKeyLenSize], uint16(len(key)))
	copy(buf[leafKeyLenSize:], key)
	copy(buf[leafKeyLenSize+len(key):], value)
	return buf
}

// decodeLeafSlot reads key_len, then splits the remainder into key and
// value. Both returned slices alias slot.
func decodeLeafSlot(slot []byte) (key, value []byte, err error) {
	if len(slot) < leafKeyLenSize {
		return nil, nil, errors.Wrapf(ErrCorruptSlot, "leaf slot of %d bytes shorter than header", len(slot))
	}
	klen := int(binary.LittleEndian.Uint16(slot[:leafKeyLenSize]))
	if leafKeyLenSize+klen > len(slot) {
		return nil, nil, errors.Wrapf(ErrCorruptSlot, "leaf slot key_len %d exceeds slot length %d", klen, len(slot))
	}
	key = slot[leafKeyLenSize : leafKeyLenSize+klen]
	value = slot[leafKeyLenSize+klen:]
	return key, value, nil
}

// sliceInnerUpperBound returns the upper-bound portion of an inner slot
// without validating its length; used on the hot comparator path where the
// page's own invariants guarantee well-formedness.
func sliceInnerUpperBound(slot []byte) []byte { return slot[innerNextSize:] }

// sliceLeafKey returns the key portion of a leaf slot without validating its
// length; used on the hot comparator path.
func sliceLeafKey(slot []byte) []byte {
	klen := int(binary.LittleEndian.Uint16(slot[:leafKeyLenSize]))
	return slot[leafKeyLenSize : leafKeyLenSize+klen]
}

func encodePageID(id pager.PageID) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(id))
	return buf[:]
}

func decodePageID(b []byte) pager.PageID {
	return pager.PageID(binary.LittleEndian.Uint32(b))
}
