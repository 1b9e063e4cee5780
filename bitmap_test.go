package zealfs

import (
	"testing"
)

func newTestBitmap(size int, free uint32) (*bitmap, *uint32) {
	raw := make([]byte, size)
	freePages := free

	bm := newBitmap(raw,
		func() uint32 { return freePages },
		func(n uint32) { freePages = n },
	)

	return bm, &freePages
}

func TestBitmap_AllocateFree(t *testing.T) {
	bm, free := newTestBitmap(2, 15)
	bm.setAllocated(0)

	if *free != 15 {
		t.Fatalf("setAllocated must not touch free_pages; got (%d)", *free)
	}

	p1 := bm.allocate()
	if p1 != 1 {
		t.Fatalf("expected first allocation to return page 1, got (%d)", p1)
	}

	p2 := bm.allocate()
	if p2 != 2 {
		t.Fatalf("expected second allocation to return page 2, got (%d)", p2)
	}

	if *free != 13 {
		t.Fatalf("expected free_pages to drop to 13, got (%d)", *free)
	}

	bm.free(p1)
	if *free != 14 {
		t.Fatalf("expected free_pages to rise back to 14, got (%d)", *free)
	}

	if bm.isAllocated(p1) {
		t.Fatalf("page (%d) should be unallocated after free", p1)
	}
}

func TestBitmap_FreePageZeroPanics(t *testing.T) {
	bm, _ := newTestBitmap(1, 8)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected free(0) to panic")
		}
	}()

	bm.free(0)
}

func TestBitmap_SaturatedReturnsZero(t *testing.T) {
	bm, _ := newTestBitmap(1, 0)

	for i := 0; i < 8; i++ {
		bm.setAllocated(uint32(i))
	}

	if p := bm.allocate(); p != 0 {
		t.Fatalf("expected saturated bitmap to return 0, got (%d)", p)
	}
}

func TestBitmap_ZeroBitCount(t *testing.T) {
	bm, _ := newTestBitmap(2, 0)
	bm.setAllocated(0)
	bm.setAllocated(1)

	if count := bm.zeroBitCount(); count != 14 {
		t.Fatalf("expected 14 zero bits across 16 bits with 2 set, got (%d)", count)
	}
}
