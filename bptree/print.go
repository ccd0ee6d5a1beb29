package bptree

import (
	"fmt"
	"io"
	"strings"

	"github.com/wingdb/bptree/pager"
)

// KeyPrinter writes a human-readable form of key to w and returns the
// number of characters written, used to keep the ASCII tree diagram's
// branch guides aligned.
type KeyPrinter func(w io.Writer, key []byte) (int, error)

// PrintString is a KeyPrinter that renders keys as plain strings; suitable
// for text keys, not arbitrary binary data.
func PrintString(w io.Writer, key []byte) (int, error) {
	return io.WriteString(w, string(key))
}

// Print writes an ASCII diagram of the tree structure to w, branching at
// each inner slot's strict upper bound down to each leaf's key range.
func (t *Tree) Print(w io.Writer, keyPrinter KeyPrinter) error {
	var rootID pager.PageID
	var levelNum uint8
	if err := t.withMeta(func(mv metaView) error {
		rootID = mv.rootPageID()
		levelNum = mv.levelNum()
		return nil
	}); err != nil {
		return err
	}
	return t.printSubtree(w, "", rootID, levelNum-1, keyPrinter)
}

func (t *Tree) printSubtree(w io.Writer, prefix string, pageID pager.PageID, level uint8, kp KeyPrinter) error {
	if level == 0 {
		leaf, err := t.getLeafPage(pageID)
		if err != nil {
			return err
		}
		defer leaf.Drop()
		if leaf.IsEmpty() {
			_, err := io.WriteString(w, "{empty}\n")
			return err
		}
		smallest, _, derr := decodeLeafSlot(leaf.Slot(0))
		if derr != nil {
			return derr
		}
		largest, _, derr := decodeLeafSlot(leaf.Slot(leaf.SlotNum() - 1))
		if derr != nil {
			return derr
		}
		if _, err := io.WriteString(w, "{smallest:"); err != nil {
			return err
		}
		if _, err := kp(w, smallest); err != nil {
			return err
		}
		if _, err := io.WriteString(w, ",largest:"); err != nil {
			return err
		}
		if _, err := kp(w, largest); err != nil {
			return err
		}
		_, err = io.WriteString(w, "}\n")
		return err
	}

	inner, err := t.getInnerPage(pageID)
	if err != nil {
		return err
	}
	n := inner.SlotNum()
	for i := pager.SlotID(0); i < n; i++ {
		if i > 0 {
			if _, err := io.WriteString(w, prefix); err != nil {
				inner.Drop()
				return err
			}
		}
		next, upperBound, derr := decodeInnerSlot(inner.Slot(i))
		if derr != nil {
			inner.Drop()
			return derr
		}
		length, werr := kp(w, upperBound)
		if werr != nil {
			inner.Drop()
			return werr
		}
		if _, err := io.WriteString(w, "-"); err != nil {
			inner.Drop()
			return err
		}
		childPrefix := prefix + "|" + strings.Repeat(" ", length)
		if err := t.printSubtree(w, childPrefix, next, level-1, kp); err != nil {
			inner.Drop()
			return err
		}
	}
	special := decodePageID(inner.ReadSpecial(0, innerSpecialLen))
	inner.Drop()

	if _, err := fmt.Fprintf(w, "%s|-", prefix); err != nil {
		return err
	}
	return t.printSubtree(w, prefix+"  ", special, level-1, kp)
}
