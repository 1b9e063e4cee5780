package zealfs

import (
	"github.com/dsoprea/go-logging"
)

// EntryRef addresses one 32-byte directory-entry slot as (page, slot-index)
// rather than a raw memory address, so it stays valid across reallocation.
// For a slot inside the root directory, Page is always 0 (the header page);
// resolver.go and directory.go both know the root lives in page 0's tail,
// not in a chain of its own.
type EntryRef struct {
	Page uint32
	Slot uint16
}

// Directory is a single abstraction over two shapes: the root directory's
// fixed slot region inside page 0, and a non-root directory's one page (v1)
// or growable FAT-linked chain (v2). Callers (resolver.go, engine.go) use
// forEachSlot/grow uniformly and never special-case root vs. non-root
// beyond construction.
type Directory struct {
	img       []byte
	v         variant
	isRoot    bool
	firstPage uint32 // meaningless when isRoot
}

func rootDirectory(img []byte, v variant) *Directory {
	return &Directory{img: img, v: v, isRoot: true}
}

func nonRootDirectory(img []byte, v variant, firstPage uint32) *Directory {
	return &Directory{img: img, v: v, firstPage: firstPage}
}

// slotVisitor is called for every slot in the directory, in chain order.
// Returning false from cont stops the walk early.
type slotVisitor func(ref EntryRef, data []byte) (cont bool, err error)

// pageSlotCount is how many 32-byte slots a single non-root page holds.
func (d *Directory) pageSlotCount() int {
	return int(d.v.PageSize() / d.v.EntrySize())
}

// forEachSlot walks every slot of the directory, across all pages of its
// chain for a non-root v2 directory.
func (d *Directory) forEachSlot(cb slotVisitor) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if d.isRoot {
		offset := d.v.RootEntryOffset()
		count := d.v.RootEntryCount()
		entrySize := d.v.EntrySize()

		for i := 0; i < count; i++ {
			start := offset + uint32(i)*entrySize
			data := d.img[start : start+entrySize]

			cont, err := cb(EntryRef{Page: 0, Slot: uint16(i)}, data)
			log.PanicIf(err)

			if !cont {
				return nil
			}
		}

		return nil
	}

	// v1 non-root directories are always exactly one page; they carry no
	// in-band next-pointer byte, so chain.next() must never be consulted for
	// them. Doing so would misread entry 0's flags byte as a page index.
	_, isV1 := d.v.(*v1variant)

	chain := d.v.NewChain(d.img)
	entrySize := d.v.EntrySize()
	slotsPerPage := d.pageSlotCount()

	page := d.firstPage
	for {
		pageData := d.v.Page(d.img, page)

		for i := 0; i < slotsPerPage; i++ {
			start := uint32(i) * entrySize
			data := pageData[start : start+entrySize]

			cont, err := cb(EntryRef{Page: page, Slot: uint16(i)}, data)
			log.PanicIf(err)

			if !cont {
				return nil
			}
		}

		if isV1 {
			break
		}

		next := chain.next(page)
		if next == 0 {
			break
		}

		page = next
	}

	return nil
}

// slotData returns the raw 32-byte slot addressed by ref.
func (d *Directory) slotData(ref EntryRef) []byte {
	return entrySlotBytes(d.img, d.v, ref)
}

// entrySlotBytes locates the raw 32-byte slot for ref directly from img and
// v, without needing the Directory it came from. ref.Page == 0 always means
// a root slot: page 0 is permanently reserved for the header and is never a
// non-root directory's chain page, so the two cases can't collide. Engine
// operations hold only an EntryRef and use this to reach the slot each call
// rather than keeping a *Directory alive across operations.
func entrySlotBytes(img []byte, v variant, ref EntryRef) []byte {
	entrySize := v.EntrySize()

	if ref.Page == 0 {
		start := v.RootEntryOffset() + uint32(ref.Slot)*entrySize
		return img[start : start+entrySize]
	}

	pageData := v.Page(img, ref.Page)
	start := uint32(ref.Slot) * entrySize

	return pageData[start : start+entrySize]
}

// findFreeSlot returns the first unoccupied slot in the directory, if any.
func (d *Directory) findFreeSlot() (ref EntryRef, found bool, err error) {
	err = d.forEachSlot(func(candidate EntryRef, data []byte) (bool, error) {
		if emptyEntrySlot(data) {
			ref = candidate
			found = true
			return false, nil
		}

		return true, nil
	})

	return ref, found, err
}

// grow allocates and links a new page for a non-root v2 directory when its
// chain is full, returning the first slot of the new page. Root directories
// and v1 non-root directories (single page only) cannot grow; those, and a
// failed page allocation, report ErrNoFreeDirent.
func (d *Directory) grow(alloc func() (uint32, error)) (ref EntryRef, err error) {
	if d.isRoot {
		return EntryRef{}, ErrNoFreeDirent
	}

	if _, ok := d.v.(*v1variant); ok {
		return EntryRef{}, ErrNoFreeDirent
	}

	chain := d.v.NewChain(d.img)

	lastPage := d.firstPage
	for {
		next := chain.next(lastPage)
		if next == 0 {
			break
		}

		lastPage = next
	}

	newPage, err := alloc()
	if err != nil {
		return EntryRef{}, ErrNoFreeDirent
	}

	d.v.ZeroPage(d.img, newPage)
	chain.setNext(lastPage, newPage)

	return EntryRef{Page: newPage, Slot: 0}, nil
}

// sameAs reports whether d and other denote the same directory (both root,
// or both non-root with the same first page). Used by rename to tell an
// in-place rename from a cross-directory move.
func (d *Directory) sameAs(other *Directory) bool {
	if d.isRoot || other.isRoot {
		return d.isRoot && other.isRoot
	}

	return d.firstPage == other.firstPage
}

// pages returns every page number in a non-root directory's chain, in order.
// Used by rmdir/unlink to free the whole chain.
func (d *Directory) pages() []uint32 {
	if d.isRoot {
		return nil
	}

	if _, isV1 := d.v.(*v1variant); isV1 {
		return []uint32{d.firstPage}
	}

	chain := d.v.NewChain(d.img)

	pages := []uint32{d.firstPage}
	page := d.firstPage

	for {
		next := chain.next(page)
		if next == 0 {
			break
		}

		pages = append(pages, next)
		page = next
	}

	return pages
}
