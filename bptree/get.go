package bptree

// Get looks up key and returns a copy of its value. The second return value
// is false if key is absent; this is never surfaced as an error.
func (t *Tree) Get(key []byte) ([]byte, bool, error) {
	leafID, _, err := t.descendToLeaf(key)
	if err != nil {
		return nil, false, err
	}
	leaf, err := t.getLeafPage(leafID)
	if err != nil {
		return nil, false, err
	}
	defer leaf.Drop()

	slot, ok := leaf.FindSlot(key)
	if !ok {
		return nil, false, nil
	}
	_, value, derr := decodeLeafSlot(slot)
	if derr != nil {
		return nil, false, derr
	}
	return append([]byte(nil), value...), true, nil
}
