package zealfs

import (
	"testing"
)

func TestRootDirectory_ForEachSlot_V1(t *testing.T) {
	img, v, err := formatV1(4 * v1PageSize)
	if err != nil {
		t.Fatalf("formatV1 failed: %v", err)
	}

	dir := rootDirectory(img, v)

	count := 0
	err = dir.forEachSlot(func(ref EntryRef, data []byte) (bool, error) {
		if ref.Page != 0 {
			t.Fatalf("root slots must report page 0, got (%d)", ref.Page)
		}

		count++
		return true, nil
	})
	if err != nil {
		t.Fatalf("forEachSlot failed: %v", err)
	}

	if count != v1RootEntryCount {
		t.Fatalf("expected (%d) root slots, got (%d)", v1RootEntryCount, count)
	}
}

func TestNonRootDirectory_V1_SinglePageOnly(t *testing.T) {
	img, v, err := formatV1(4 * v1PageSize)
	if err != nil {
		t.Fatalf("formatV1 failed: %v", err)
	}

	bm := v.Bitmap(img)
	dirPage := bm.allocate()

	v.ZeroPage(img, dirPage)

	// Plant a byte pattern in slot 0 that would look like a bogus next-page
	// pointer if forEachSlot ever mistakenly consulted the chain for v1.
	pageData := v.Page(img, dirPage)
	pageData[0] = 0xFF

	dir := nonRootDirectory(img, v, dirPage)

	if pages := dir.pages(); len(pages) != 1 || pages[0] != dirPage {
		t.Fatalf("expected a v1 non-root directory to report exactly one page, got (%v)", pages)
	}

	count := 0
	err = dir.forEachSlot(func(ref EntryRef, data []byte) (bool, error) {
		count++
		return true, nil
	})
	if err != nil {
		t.Fatalf("forEachSlot failed: %v", err)
	}

	expected := int(v1PageSize / v1EntrySize)
	if count != expected {
		t.Fatalf("expected (%d) slots in one v1 directory page, got (%d)", expected, count)
	}
}

func TestDirectory_FindFreeSlot(t *testing.T) {
	img, v, err := formatV1(4 * v1PageSize)
	if err != nil {
		t.Fatalf("formatV1 failed: %v", err)
	}

	dir := rootDirectory(img, v)

	ref, found, err := dir.findFreeSlot()
	if err != nil {
		t.Fatalf("findFreeSlot failed: %v", err)
	}

	if !found {
		t.Fatalf("expected a free slot in a freshly formatted root directory")
	}

	if ref.Page != 0 {
		t.Fatalf("expected the free slot to be in page 0, got (%d)", ref.Page)
	}
}

func TestDirectory_Grow_RootCannotGrow(t *testing.T) {
	img, v, err := formatV1(4 * v1PageSize)
	if err != nil {
		t.Fatalf("formatV1 failed: %v", err)
	}

	dir := rootDirectory(img, v)

	_, err = dir.grow(func() (uint32, error) { return 0, nil })
	if err != ErrNoFreeDirent {
		t.Fatalf("expected ErrNoFreeDirent growing the root directory, got (%v)", err)
	}
}

func TestDirectory_Grow_V2Chain(t *testing.T) {
	img, v, err := formatV2(1024*1024, nil)
	if err != nil {
		t.Fatalf("formatV2 failed: %v", err)
	}

	bm := v.Bitmap(img)
	firstPage := bm.allocate()
	v.ZeroPage(img, firstPage)

	dir := nonRootDirectory(img, v, firstPage)

	ref, growErr := dir.grow(func() (uint32, error) {
		p := bm.allocate()
		if p == 0 {
			return 0, ErrNoSpace
		}
		return p, nil
	})
	if growErr != nil {
		t.Fatalf("grow failed: %v", growErr)
	}

	if ref.Slot != 0 {
		t.Fatalf("expected the grown page's first slot, got slot (%d)", ref.Slot)
	}

	if pages := dir.pages(); len(pages) != 2 {
		t.Fatalf("expected the chain to now have 2 pages, got (%d)", len(pages))
	}
}

func TestDirectory_SameAs(t *testing.T) {
	img, v, err := formatV1(4 * v1PageSize)
	if err != nil {
		t.Fatalf("formatV1 failed: %v", err)
	}

	root1 := rootDirectory(img, v)
	root2 := rootDirectory(img, v)

	if !root1.sameAs(root2) {
		t.Fatalf("two root directory handles must compare equal")
	}

	nonRoot := nonRootDirectory(img, v, 2)
	if root1.sameAs(nonRoot) {
		t.Fatalf("a root directory must never compare equal to a non-root one")
	}

	sibling := nonRootDirectory(img, v, 2)
	if !nonRoot.sameAs(sibling) {
		t.Fatalf("two non-root handles on the same first page must compare equal")
	}
}
