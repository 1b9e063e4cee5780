package zealfs

import (
	"testing"
)

func TestFormatV1_32KiB(t *testing.T) {
	// A 32 KiB image has 128 pages and bitmap_size=16.
	img, v, err := formatV1(32 * 1024)
	if err != nil {
		t.Fatalf("formatV1 failed: %v", err)
	}

	if img[0] != magicByte || img[1] != v1Version {
		t.Fatalf("unexpected header bytes: (0x%02x 0x%02x)", img[0], img[1])
	}

	if v.BitmapSize() != 16 {
		t.Fatalf("expected bitmap_size 16 for a 32 KiB v1 image, got (%d)", v.BitmapSize())
	}

	if v.PageCount() != 128 {
		t.Fatalf("expected 128 pages, got (%d)", v.PageCount())
	}

	bm := v.Bitmap(img)
	if !bm.isAllocated(0) {
		t.Fatalf("expected the header page to be marked allocated")
	}

	if bm.freePages() != 127 {
		t.Fatalf("expected 127 free pages, got (%d)", bm.freePages())
	}
}

func TestFormatV1_RejectsOversize(t *testing.T) {
	if _, _, err := formatV1(128 * 1024); err != ErrTooLarge {
		t.Fatalf("expected ErrTooLarge for a >64KiB v1 image, got (%v)", err)
	}
}

func TestFormatV2_1MiB(t *testing.T) {
	// A 1 MiB image picks page_size_code=2 (1 KiB pages), bitmap_size=128,
	// free_pages=1021.
	img, v, err := formatV2(1024*1024, nil)
	if err != nil {
		t.Fatalf("formatV2 failed: %v", err)
	}

	if img[0] != magicByte || img[1] != v2Version {
		t.Fatalf("unexpected header bytes: (0x%02x 0x%02x)", img[0], img[1])
	}

	if v.PageSize() != 1024 {
		t.Fatalf("expected a 1 KiB page size, got (%d)", v.PageSize())
	}

	if v.BitmapSize() != 128 {
		t.Fatalf("expected bitmap_size 128, got (%d)", v.BitmapSize())
	}

	bm := v.Bitmap(img)
	if bm.freePages() != 1021 {
		t.Fatalf("expected 1021 free pages, got (%d)", bm.freePages())
	}
}

func TestFormatV2_ExplicitPageSizeCode(t *testing.T) {
	code := uint8(1) // 512 B pages

	img, v, err := formatV2(256*1024, &code)
	if err != nil {
		t.Fatalf("formatV2 failed: %v", err)
	}

	if v.PageSize() != 512 {
		t.Fatalf("expected a 512 B page size, got (%d)", v.PageSize())
	}

	if len(img) != 256*1024 {
		t.Fatalf("expected the image buffer to match the requested size")
	}
}

func TestFormatV2_RejectsOversize(t *testing.T) {
	if _, _, err := formatV2(maxV2ImageSize+1, nil); err != ErrTooLarge {
		t.Fatalf("expected ErrTooLarge for an over-4GiB v2 image, got (%v)", err)
	}
}
