package contentlife

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ref(blobID string) BlobRef {
	return BlobRef{BlobID: blobID}
}

func TestDiffSlots(t *testing.T) {
	tests := []struct {
		name     string
		old      map[string]BlobRef
		new      map[string]BlobRef
		expected SlotDiff
	}{
		{
			name: "both empty",
			old:  nil,
			new:  nil,
		},
		{
			name: "all added",
			old:  nil,
			new:  map[string]BlobRef{"image": ref("b1"), "pdf": ref("b2")},
			expected: SlotDiff{
				Added: []SlotRef{{Slot: "image", BlobID: "b1"}, {Slot: "pdf", BlobID: "b2"}},
			},
		},
		{
			name: "unchanged slot produces nothing",
			old:  map[string]BlobRef{"image": ref("b1")},
			new:  map[string]BlobRef{"image": ref("b1")},
		},
		{
			name: "replacement",
			old:  map[string]BlobRef{"image": ref("b1")},
			new:  map[string]BlobRef{"image": ref("b2")},
			expected: SlotDiff{
				Replaced: []Replacement{{Slot: "image", OldBlobID: "b1", NewBlobID: "b2"}},
			},
		},
		{
			name: "removal",
			old:  map[string]BlobRef{"image": ref("b1"), "pdf": ref("b2")},
			new:  map[string]BlobRef{"image": ref("b1")},
			expected: SlotDiff{
				Removed: []SlotRef{{Slot: "pdf", BlobID: "b2"}},
			},
		},
		{
			name: "mixed add replace remove",
			old:  map[string]BlobRef{"image": ref("b1"), "pdf": ref("b2")},
			new:  map[string]BlobRef{"image": ref("b3"), "thumbnail": ref("b4")},
			expected: SlotDiff{
				Added:    []SlotRef{{Slot: "thumbnail", BlobID: "b4"}},
				Replaced: []Replacement{{Slot: "image", OldBlobID: "b1", NewBlobID: "b3"}},
				Removed:  []SlotRef{{Slot: "pdf", BlobID: "b2"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DiffSlots(tt.old, tt.new))
		})
	}
}

func TestRetiredBlobIDs(t *testing.T) {
	d := DiffSlots(
		map[string]BlobRef{"image": ref("b1"), "pdf": ref("b2"), "media": ref("b3")},
		map[string]BlobRef{"image": ref("b4"), "media": ref("b3")},
	)
	assert.ElementsMatch(t, []string{"b1", "b2"}, d.RetiredBlobIDs())
}

func TestValidateSlots(t *testing.T) {
	assert.NoError(t, ValidateSlots(nil))
	assert.NoError(t, ValidateSlots(map[string]BlobRef{"image": ref("b1"), "pdf": ref("b2")}))

	err := ValidateSlots(map[string]BlobRef{"image": ref("b1"), "thumbnail": ref("b1")})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	err = ValidateSlots(map[string]BlobRef{"image": ref("")})
	assert.ErrorAs(t, err, &verr)
}
