package zealfs

import (
	"math/bits"

	"github.com/dsoprea/go-logging"
)

// bitmap is the page-allocation bitmap: bit n of byte m means page m*8+n is
// allocated. It is a thin wrapper over the raw bytes living inside the image
// buffer so that mutations are visible to whatever holds the backing slice.
type bitmap struct {
	raw []byte

	// getFree/setFree read and write the header's free_pages counter,
	// whatever its on-disk width (1 byte in v1, 2 in v2, saturating per
	// DESIGN.md's Open Question decision). Using accessors instead of a
	// *uint32 lets each variant keep its own narrow-width field as the
	// source of truth without an intermediate shadow copy going stale.
	getFree func() uint32
	setFree func(uint32)
}

// newBitmap wraps the given bitmap bytes together with accessors for the
// header's free_pages counter so allocate/free keep it in sync without the
// caller re-deriving it from a zero-bit scan every time.
func newBitmap(raw []byte, getFree func() uint32, setFree func(uint32)) *bitmap {
	return &bitmap{raw: raw, getFree: getFree, setFree: setFree}
}

// isAllocated tests the bit for the given page.
func (b *bitmap) isAllocated(page uint32) bool {
	byteIndex := page / 8
	bitIndex := page % 8

	if int(byteIndex) >= len(b.raw) {
		log.Panicf("page out of bitmap range: (%d)", page)
	}

	return b.raw[byteIndex]&(1<<bitIndex) != 0
}

// setAllocated marks a page allocated without touching free_pages. Used by
// format to seed the reserved pages (header, FAT) directly.
func (b *bitmap) setAllocated(page uint32) {
	byteIndex := page / 8
	bitIndex := page % 8

	b.raw[byteIndex] |= 1 << bitIndex
}

// allocate scans for the first unset bit, sets it, decrements free_pages,
// and returns the page index. Returns 0 if the bitmap is saturated; page 0
// is always reserved, so 0 is never a valid allocation result.
func (b *bitmap) allocate() uint32 {
	for byteIndex, v := range b.raw {
		if v == 0xFF {
			continue
		}

		// TrailingZeros8 of the inverted byte finds the first 0-bit.
		bitIndex := bits.TrailingZeros8(^v)
		page := uint32(byteIndex)*8 + uint32(bitIndex)

		b.raw[byteIndex] |= 1 << uint(bitIndex)

		if free := b.getFree(); free > 0 {
			b.setFree(free - 1)
		}

		return page
	}

	return 0
}

// free clears the bit for page and increments free_pages. Freeing page 0 is
// a programming error and panics.
func (b *bitmap) free(page uint32) {
	if page == 0 {
		log.Panicf("cannot free page 0, it is permanently reserved")
	}

	byteIndex := page / 8
	bitIndex := page % 8

	if int(byteIndex) >= len(b.raw) {
		log.Panicf("page out of bitmap range: (%d)", page)
	}

	wasSet := b.raw[byteIndex]&(1<<bitIndex) != 0
	b.raw[byteIndex] &^= 1 << bitIndex

	if wasSet {
		b.setFree(b.getFree() + 1)
	}
}

// freePages returns the current value of the header's free_pages counter.
func (b *bitmap) freePages() uint32 {
	return b.getFree()
}

// zeroBitCount counts the unset bits across the whole bitmap, used by the
// integrity check to cross-validate the stored free_pages counter.
func (b *bitmap) zeroBitCount() uint32 {
	count := uint32(0)

	for _, v := range b.raw {
		count += uint32(bits.OnesCount8(^v))
	}

	return count
}
