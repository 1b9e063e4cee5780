package zealfs

import (
	"encoding/binary"

	"github.com/dsoprea/go-logging"
	"github.com/go-restruct/restruct"
)

// Byte-exact v1/v2 header layouts. Both headers live at the start of page
// 0; restruct packs/unpacks the fixed-width prefix via
// restruct.Unpack(raw, defaultEncoding, &h). The variable-width
// bitmap/reserved region that follows each prefix is handled with plain
// byte-slice arithmetic rather than as part of one monolithic struct.

const (
	magicByte = 0x5A // 'Z'

	v1Version = 1
	v2Version = 2

	v1PageSize       = 256
	v1BitmapSize     = 32
	v1HeaderSize     = 64 // magic+version+bitmap_size+free_pages+bitmap+reserved
	v1RootEntryCount = 6
	v1EntrySize      = 32
	v1PayloadPerPage = v1PageSize - 1 // first byte is the next-page pointer

	v2HeaderPrefixSize = 7 // magic+version+bitmap_size+free_pages+page_size_code
	v2EntrySize        = 32
	v2FatPageCount     = 2
	v2FatPageCountTiny = 1 // 64 KiB image, 256 B pages only
	maxPageSizeCode    = 8
)

// defaultEncoding is the package-level byte-order constant used everywhere
// restruct or binary.Read need an explicit order.
var defaultEncoding = binary.LittleEndian

// v1HeaderPrefix is the fixed 64-byte v1 header.
type v1HeaderPrefix struct {
	Magic       uint8
	Version     uint8
	BitmapSize  uint8
	FreePages   uint8
	PagesBitmap [v1BitmapSize]byte
	Reserved    [28]byte
}

// v2HeaderPrefix is the fixed 7-byte v2 header prefix; the bitmap and
// reserved padding that follow are variable-width and are parsed separately
// by readV2Header.
type v2HeaderPrefix struct {
	Magic        uint8
	Version      uint8
	BitmapSize   uint16
	FreePages    uint16
	PageSizeCode uint8
}

// alignUp32 rounds n up to the next multiple of 32, used to find the first
// root-directory-entry offset: the first root entry must land on a 32-byte
// boundary.
func alignUp32(n uint32) uint32 {
	if n%32 == 0 {
		return n
	}

	return n + (32 - n%32)
}

// v2PageSize returns the page size in bytes for a page_size_code: 256 << code.
func v2PageSize(code uint8) uint32 {
	if code > maxPageSizeCode {
		log.Panicf("page_size_code out of range: (%d)", code)
	}

	return 256 << uint(code)
}

// v2PageSizeCodeForSize picks the recommended page_size_code for an image of
// the given byte size. The table's entries are inclusive upper bounds; the
// code returned is the smallest that satisfies the image size.
func v2PageSizeCodeForSize(imageSize uint64) (code uint8, err error) {
	table := []struct {
		maxSize uint64
		code    uint8
	}{
		{64 * 1024, 0},         // 256 B
		{256 * 1024, 1},        // 512 B
		{1024 * 1024, 2},       // 1 KiB
		{4 * 1024 * 1024, 3},   // 2 KiB
		{16 * 1024 * 1024, 4},  // 4 KiB
		{64 * 1024 * 1024, 5},  // 8 KiB
		{256 * 1024 * 1024, 6}, // 16 KiB
		{1024 * 1024 * 1024, 7},
		{4 * uint64(1024*1024*1024), 8},
	}

	for _, row := range table {
		if imageSize <= row.maxSize {
			return row.code, nil
		}
	}

	return 0, log.Errorf("image too large for v2: (%d) bytes", imageSize)
}

// v2FatEntryWidth returns 1 when the small-image special case applies
// (≤64 KiB image and 256 B pages), else 2.
func v2FatEntryWidth(imageSize uint64, pageSize uint32) int {
	if imageSize <= 64*1024 && pageSize == 256 {
		return 1
	}

	return 2
}

// v2FatPages returns how many pages the FAT occupies: always exactly two,
// except the small-image/256B special case, which uses one.
func v2FatPages(imageSize uint64, pageSize uint32) uint32 {
	if v2FatEntryWidth(imageSize, pageSize) == 1 {
		return v2FatPageCountTiny
	}

	return v2FatPageCount
}

// readV1Header parses the fixed v1 prefix out of page 0.
func readV1Header(page0 []byte) (h v1HeaderPrefix, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	err = restruct.Unpack(page0[:v1HeaderSize], defaultEncoding, &h)
	log.PanicIf(err)

	if h.Magic != magicByte {
		log.Panicf("bad magic byte: (0x%02x)", h.Magic)
	}

	if h.Version != v1Version {
		log.Panicf("bad v1 version: (%d)", h.Version)
	}

	return h, nil
}

// writeV1Header packs h back into page 0.
func writeV1Header(page0 []byte, h v1HeaderPrefix) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	raw, err := restruct.Pack(defaultEncoding, &h)
	log.PanicIf(err)

	copy(page0[:v1HeaderSize], raw)

	return nil
}

// v2HeaderLayout describes where, within page 0, a v2 header's variable
// regions land. Computed once at load/format time and held on the v2
// variant value.
type v2HeaderLayout struct {
	pageSize        uint32
	pageSizeCode    uint8
	bitmapSize      uint32
	rootEntryOffset uint32
	rootEntryCount  int
}

// computeV2HeaderLayout derives offsets from bitmapSize and pageSizeCode,
// validating that the header plus root-entry region fits entirely within
// page 0.
func computeV2HeaderLayout(pageSizeCode uint8, bitmapSize uint32) (layout v2HeaderLayout, err error) {
	pageSize := v2PageSize(pageSizeCode)

	rootEntryOffset := alignUp32(v2HeaderPrefixSize + bitmapSize)
	if rootEntryOffset >= pageSize {
		return v2HeaderLayout{}, log.Errorf("v2 header overflows page 0: offset (%d) >= page size (%d)", rootEntryOffset, pageSize)
	}

	rootEntryCount := int((pageSize - rootEntryOffset) / v2EntrySize)
	if rootEntryCount <= 0 {
		return v2HeaderLayout{}, log.Errorf("no room for root entries in page 0")
	}

	return v2HeaderLayout{
		pageSize:        pageSize,
		pageSizeCode:    pageSizeCode,
		bitmapSize:      bitmapSize,
		rootEntryOffset: rootEntryOffset,
		rootEntryCount:  rootEntryCount,
	}, nil
}

// readV2Header parses the fixed prefix and derives the header layout.
func readV2Header(page0 []byte) (h v2HeaderPrefix, layout v2HeaderLayout, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	err = restruct.Unpack(page0[:v2HeaderPrefixSize], defaultEncoding, &h)
	log.PanicIf(err)

	if h.Magic != magicByte {
		log.Panicf("bad magic byte: (0x%02x)", h.Magic)
	}

	if h.Version != v2Version {
		log.Panicf("bad v2 version: (%d)", h.Version)
	}

	if h.PageSizeCode > maxPageSizeCode {
		log.Panicf("page_size_code out of range: (%d)", h.PageSizeCode)
	}

	layout, err = computeV2HeaderLayout(h.PageSizeCode, uint32(h.BitmapSize))
	log.PanicIf(err)

	return h, layout, nil
}

// writeV2Header packs the fixed prefix back into page 0. The bitmap bytes
// themselves are mutated in place by the bitmap type and are not
// re-serialized here.
func writeV2Header(page0 []byte, h v2HeaderPrefix) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	raw, err := restruct.Pack(defaultEncoding, &h)
	log.PanicIf(err)

	copy(page0[:v2HeaderPrefixSize], raw)

	return nil
}

// v1FreePages/v1SetFreePages and v2FreePages/v2SetFreePages give the bitmap
// type narrow-width-aware access to the header's free_pages counter without
// needing to carry a whole decoded header struct around. v2's counter
// saturates at 0xFFFF rather than wrapping (DESIGN.md's free_pages Open
// Question decision).

func v1FreePages(page0 []byte) uint32 {
	return uint32(page0[3])
}

func v1SetFreePages(page0 []byte, v uint32) {
	if v > 0xff {
		v = 0xff
	}

	page0[3] = byte(v)
}

func v2FreePages(page0 []byte) uint32 {
	return uint32(defaultEncoding.Uint16(page0[4:6]))
}

func v2SetFreePages(page0 []byte, v uint32) {
	if v > 0xffff {
		v = 0xffff
	}

	defaultEncoding.PutUint16(page0[4:6], uint16(v))
}
