package bptree

import "bytes"

// Comparator orders two keys with the same sign convention as bytes.Compare.
type Comparator func(a, b []byte) int

// ByteCompare is the default Comparator: plain lexicographic byte order.
func ByteCompare(a, b []byte) int { return bytes.Compare(a, b) }
