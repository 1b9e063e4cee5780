package zealfs

import (
	"github.com/dsoprea/go-logging"
)

const (
	maxV1ImageSize = 64 * 1024
	maxV2ImageSize = 4 * uint64(1024*1024*1024)
)

// formatV1 builds a fresh v1 image of the given size.
func formatV1(imageSize uint64) (img []byte, v *v1variant, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if imageSize == 0 || imageSize%v1PageSize != 0 || imageSize > maxV1ImageSize {
		return nil, nil, ErrTooLarge
	}

	img = make([]byte, imageSize)

	pageCount := uint32(imageSize / v1PageSize)
	bitmapSize := (pageCount + 7) / 8

	img[0] = magicByte
	img[1] = v1Version
	img[2] = byte(bitmapSize)
	img[3] = byte(pageCount - 1) // free_pages; pageCount <= 256 here so this always fits

	v = newV1Variant(imageSize, bitmapSize)

	bm := v.Bitmap(img)
	bm.setAllocated(0)

	return img, v, nil
}

// formatV2 builds a fresh v2 image of the given size, picking the
// recommended page size for that size unless pageSizeCode is non-nil.
func formatV2(imageSize uint64, pageSizeCode *uint8) (img []byte, v *v2variant, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if imageSize == 0 || imageSize > maxV2ImageSize {
		return nil, nil, ErrTooLarge
	}

	var code uint8

	if pageSizeCode != nil {
		code = *pageSizeCode
	} else {
		code, err = v2PageSizeCodeForSize(imageSize)
		log.PanicIf(err)
	}

	pageSize := v2PageSize(code)

	if imageSize%uint64(pageSize) != 0 {
		return nil, nil, log.Errorf("image size (%d) is not a multiple of the chosen page size (%d)", imageSize, pageSize)
	}

	pageCount := uint32(imageSize / uint64(pageSize))
	bitmapSize := (pageCount + 7) / 8
	fatPages := v2FatPages(imageSize, pageSize)

	layout, err := computeV2HeaderLayout(code, bitmapSize)
	log.PanicIf(err)

	if uint64(fatPages)+1 >= uint64(pageCount) {
		return nil, nil, log.Errorf("image too small: no room for data pages after header and FAT")
	}

	freePages := pageCount - 1 - fatPages

	img = make([]byte, imageSize)

	prefix := v2HeaderPrefix{
		Magic:        magicByte,
		Version:      v2Version,
		BitmapSize:   uint16(bitmapSize),
		FreePages:    0, // set below via v2SetFreePages, which saturates correctly
		PageSizeCode: code,
	}

	err = writeV2Header(img, prefix)
	log.PanicIf(err)

	v = &v2variant{layout: layout, pageCount: pageCount, fatPages: fatPages}

	v2SetFreePages(img, freePages)

	bm := v.Bitmap(img)
	bm.setAllocated(0) // header page

	for p := uint32(1); p < 1+fatPages; p++ {
		bm.setAllocated(p)
	}

	return img, v, nil
}
