package zealfs

import (
	"github.com/dsoprea/go-logging"
)

// variant carries the per-layout constants and behaviors so that everything
// else in the engine (directory.go, resolver.go, engine.go) can be written
// once against this interface instead of branching on version. img is
// always the raw ZealFS image bytes (post-MBR-offset, if any); it never
// includes a wrapping MBR sector.
type variant interface {
	// PageSize is the fixed (v1) or chosen (v2) page size in bytes.
	PageSize() uint32

	// PayloadPerPage is how many content bytes a page can hold: PageSize-1
	// for v1 (the in-band next-pointer byte), PageSize for v2.
	PayloadPerPage() uint32

	// EntrySize is always 32, kept on the interface so callers never
	// hard-code it.
	EntrySize() uint32

	// RootEntryOffset/RootEntryCount locate the root directory's fixed slot
	// region inside page 0.
	RootEntryOffset() uint32
	RootEntryCount() int

	// PageCount is the total number of logical pages the image holds.
	PageCount() uint32

	// Bitmap returns the allocator bound to this image's bitmap bytes and
	// free_pages counter.
	Bitmap(img []byte) *bitmap

	// NewChain returns the page-chain implementation for this variant.
	NewChain(img []byte) pageChain

	// Page returns the byte slice for page p within img.
	Page(img []byte, p uint32) []byte

	// PagePayload returns the content-bearing portion of page p: all of it
	// for v2, everything but the in-band next-pointer byte for v1.
	PagePayload(img []byte, p uint32) []byte

	// ZeroPage clears a freshly allocated page's bytes (used by mkdir and by
	// write's chain extension); for v1 this leaves the next-pointer byte as
	// 0 (end of chain) by construction.
	ZeroPage(img []byte, p uint32)

	// BitmapSize is the number of bytes the allocation bitmap occupies.
	BitmapSize() uint32
}

// v1variant implements the ≤64 KiB, fixed-256-byte-page, in-band-chained
// layout.
type v1variant struct {
	pageCount uint32

	// bitmapSize is the logical, in-use byte count of the bitmap
	// (page_count / 8, rounded up), which is not always the full 32-byte
	// region the header reserves for it; only a 64 KiB (maximum-size) v1
	// image uses all 32 bytes.
	bitmapSize uint32
}

func newV1Variant(imageSize uint64, bitmapSize uint32) *v1variant {
	return &v1variant{
		pageCount:  uint32(imageSize / v1PageSize),
		bitmapSize: bitmapSize,
	}
}

func (v *v1variant) PageSize() uint32       { return v1PageSize }
func (v *v1variant) PayloadPerPage() uint32 { return v1PayloadPerPage }
func (v *v1variant) EntrySize() uint32      { return v1EntrySize }
func (v *v1variant) RootEntryOffset() uint32 { return v1HeaderSize }
func (v *v1variant) RootEntryCount() int    { return v1RootEntryCount }
func (v *v1variant) PageCount() uint32      { return v.pageCount }

func (v *v1variant) Bitmap(img []byte) *bitmap {
	raw := img[4 : 4+v.bitmapSize]

	return newBitmap(raw,
		func() uint32 { return v1FreePages(img) },
		func(n uint32) { v1SetFreePages(img, n) },
	)
}

func (v *v1variant) NewChain(img []byte) pageChain {
	return &v1Chain{img: img}
}

func (v *v1variant) Page(img []byte, p uint32) []byte {
	off := uint64(p) * uint64(v1PageSize)

	return img[off : off+v1PageSize]
}

func (v *v1variant) ZeroPage(img []byte, p uint32) {
	page := v.Page(img, p)
	for i := range page {
		page[i] = 0
	}
}

func (v *v1variant) PagePayload(img []byte, p uint32) []byte {
	return v.Page(img, p)[1:]
}

func (v *v1variant) BitmapSize() uint32 { return v.bitmapSize }

// v2variant implements the 256B-64KiB-page, FAT-chained, up-to-4GiB layout.
type v2variant struct {
	layout    v2HeaderLayout
	pageCount uint32
	fatPages  uint32
}

func newV2Variant(imageSize uint64, pageSizeCode uint8, bitmapSize uint32) (*v2variant, error) {
	layout, err := computeV2HeaderLayout(pageSizeCode, bitmapSize)
	if err != nil {
		return nil, log.Wrap(err)
	}

	return &v2variant{
		layout:    layout,
		pageCount: uint32(imageSize / uint64(layout.pageSize)),
		fatPages:  v2FatPages(imageSize, layout.pageSize),
	}, nil
}

func (v *v2variant) PageSize() uint32        { return v.layout.pageSize }
func (v *v2variant) PayloadPerPage() uint32  { return v.layout.pageSize }
func (v *v2variant) EntrySize() uint32       { return v2EntrySize }
func (v *v2variant) RootEntryOffset() uint32 { return v.layout.rootEntryOffset }
func (v *v2variant) RootEntryCount() int     { return v.layout.rootEntryCount }
func (v *v2variant) PageCount() uint32       { return v.pageCount }

func (v *v2variant) Bitmap(img []byte) *bitmap {
	raw := img[v2HeaderPrefixSize : v2HeaderPrefixSize+v.layout.bitmapSize]

	return newBitmap(raw,
		func() uint32 { return v2FreePages(img) },
		func(n uint32) { v2SetFreePages(img, n) },
	)
}

func (v *v2variant) NewChain(img []byte) pageChain {
	return &v2Chain{
		img:         img,
		pageSize:    v.layout.pageSize,
		entryWidth:  v2FatEntryWidthFromVariant(v),
		fatStartOff: uint64(v.layout.pageSize), // FAT starts at page 1
	}
}

// v2FatEntryWidthFromVariant derives the FAT entry width from the variant's
// own geometry (pageCount*pageSize approximates the image size used at
// format time closely enough to reproduce the same small-image rule; the
// authoritative value is pinned at format time via v2FatEntryWidth and does
// not change across the image's lifetime).
func v2FatEntryWidthFromVariant(v *v2variant) int {
	imageSize := uint64(v.pageCount) * uint64(v.layout.pageSize)

	return v2FatEntryWidth(imageSize, v.layout.pageSize)
}

func (v *v2variant) Page(img []byte, p uint32) []byte {
	off := uint64(p) * uint64(v.layout.pageSize)

	return img[off : off+uint64(v.layout.pageSize)]
}

func (v *v2variant) ZeroPage(img []byte, p uint32) {
	page := v.Page(img, p)
	for i := range page {
		page[i] = 0
	}
}

func (v *v2variant) PagePayload(img []byte, p uint32) []byte {
	return v.Page(img, p)
}

func (v *v2variant) BitmapSize() uint32 { return v.layout.bitmapSize }
