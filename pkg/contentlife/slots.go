package contentlife

import "sort"

// SlotRef is one (slot, blob) pair from a record's slot map.
type SlotRef struct {
	Slot   string
	BlobID string
}

// Replacement is a slot whose blob changed between two slot maps.
type Replacement struct {
	Slot      string
	OldBlobID string
	NewBlobID string
}

// SlotDiff is the result of comparing a record's slot map before and after a
// mutation. Added holds brand-new slots, Replaced holds slots whose blob was
// swapped, Removed holds slots that were cleared. Successful updates retire
// Replaced.OldBlobID and Removed.BlobID through the cleanup queue.
type SlotDiff struct {
	Added    []SlotRef
	Replaced []Replacement
	Removed  []SlotRef
}

// DiffSlots compares two slot maps. It is a pure function with no storage
// access, which keeps the coordinator's failure handling testable without
// mocking I/O. Results are ordered by slot name.
func DiffSlots(oldSlots, newSlots map[string]BlobRef) SlotDiff {
	var d SlotDiff

	for _, slot := range sortedSlots(newSlots) {
		newRef := newSlots[slot]
		oldRef, ok := oldSlots[slot]
		switch {
		case !ok:
			d.Added = append(d.Added, SlotRef{Slot: slot, BlobID: newRef.BlobID})
		case oldRef.BlobID != newRef.BlobID:
			d.Replaced = append(d.Replaced, Replacement{
				Slot:      slot,
				OldBlobID: oldRef.BlobID,
				NewBlobID: newRef.BlobID,
			})
		}
	}

	for _, slot := range sortedSlots(oldSlots) {
		if _, ok := newSlots[slot]; !ok {
			d.Removed = append(d.Removed, SlotRef{Slot: slot, BlobID: oldSlots[slot].BlobID})
		}
	}

	return d
}

// RetiredBlobIDs returns the blobs the new slot map no longer references:
// every replaced slot's old blob plus every removed slot's blob.
func (d SlotDiff) RetiredBlobIDs() []string {
	ids := make([]string, 0, len(d.Replaced)+len(d.Removed))
	for _, r := range d.Replaced {
		ids = append(ids, r.OldBlobID)
	}
	for _, r := range d.Removed {
		ids = append(ids, r.BlobID)
	}
	return ids
}

// ValidateSlots rejects a slot map that references the same blob from two
// slots. Cross-record uniqueness needs no check: Store never hands out the
// same blob ID twice.
func ValidateSlots(slots map[string]BlobRef) error {
	seen := make(map[string]string, len(slots))
	for _, slot := range sortedSlots(slots) {
		id := slots[slot].BlobID
		if id == "" {
			return &ValidationError{Field: slot, Reason: "slot has empty blob id"}
		}
		if prev, ok := seen[id]; ok {
			return &ValidationError{Field: slot, Reason: "blob already referenced by slot " + prev}
		}
		seen[id] = slot
	}
	return nil
}

func sortedSlots(slots map[string]BlobRef) []string {
	names := make([]string, 0, len(slots))
	for name := range slots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
