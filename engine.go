package zealfs

import (
	"time"

	"github.com/dsoprea/go-logging"
)

// Variant selects which on-disk layout a new image uses.
type Variant int

const (
	V1 Variant = iota
	V2
)

// MountConfig is the command-line boundary's contract: image path, size,
// optional MBR wrapping, and variant selection. It carries no behavior of
// its own; cmd/zealfs-format builds one from parsed flags and hands it to
// FormatBacking.
type MountConfig struct {
	ImagePath    string
	SizeKiB      uint64
	MBR          bool
	Variant      Variant
	PageSizeCode *uint8 // v2 only; nil picks the recommended size for the image
}

// FileInfo is the engine's stat-shaped return value: a host binding will
// eventually need exactly this to satisfy its VFS's getattr contract, even
// though the VFS adapter itself is out of scope here.
type FileInfo struct {
	Name    string
	Size    uint64
	IsDir   bool
	ModTime time.Time
}

// FileHandle is a (page_index, slot_index) descriptor standing in for an
// open file: it carries no other state, since an open has no per-open
// state of its own.
type FileHandle struct {
	ref EntryRef
}

// DirHandle references an open directory for ReadDir.
type DirHandle struct {
	dir *Directory
}

// DirEnt is one entry produced by ReadDir.
type DirEnt struct {
	Name  string
	IsDir bool
	Size  uint64
}

// RenameFlag selects rename's replacement behavior: default, no-replace, or
// exchange.
type RenameFlag int

const (
	RenameDefault RenameFlag = iota
	RenameNoReplace
	RenameExchange
)

// Engine is a mount session's owned state: its backing image and variant,
// rather than module-level globals shared across mounts.
type Engine struct {
	img       []byte
	v         variant
	partition Partition
	now       func() time.Time
}

func maxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}

	return b
}

// FormatBacking builds a complete, freshly formatted backing-file image for
// cfg: either the raw ZealFS image alone, or, when cfg.MBR is set, an MBR
// sector followed by a single ZealFS partition. It returns the mounted
// Engine (bound to the partition's byte range within backing) and the full
// backing buffer for the caller to persist; the Engine's image is a
// sub-slice of backing, so mutations through the Engine are visible in
// backing without copying back.
func FormatBacking(cfg MountConfig) (eng *Engine, backing []byte, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	imageSize := cfg.SizeKiB * 1024

	var offset uint64

	if cfg.MBR {
		offset = mbrSectorSize
	}

	total := offset + imageSize
	backing = make([]byte, total)

	var v variant

	switch cfg.Variant {
	case V1:
		img, v1, ferr := formatV1(imageSize)
		log.PanicIf(ferr)

		copy(backing[offset:], img)
		v = v1
	case V2:
		img, v2, ferr := formatV2(imageSize, cfg.PageSizeCode)
		log.PanicIf(ferr)

		copy(backing[offset:], img)
		v = v2
	default:
		log.Panicf("unknown variant: (%d)", cfg.Variant)
	}

	if cfg.MBR {
		err = WriteMBR(backing, offset, imageSize)
		log.PanicIf(err)
	}

	eng = &Engine{
		img:       backing[offset : offset+imageSize],
		v:         v,
		partition: Partition{Offset: offset, Size: imageSize},
		now:       time.Now,
	}

	return eng, backing, nil
}

// OpenBacking mounts an existing backing buffer: discovers the partition
// (MBR-wrapped or raw), determines the variant from the version byte, and
// runs the integrity check before returning. A failed Check aborts the
// mount.
func OpenBacking(backing []byte) (eng *Engine, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	part, err := DetectPartition(backing)
	log.PanicIf(err)

	if part.Offset+part.Size > uint64(len(backing)) {
		return nil, ErrCorrupt
	}

	img := backing[part.Offset : part.Offset+part.Size]

	if len(img) == 0 || img[0] != magicByte {
		return nil, ErrCorrupt
	}

	var v variant

	switch img[1] {
	case v1Version:
		h, herr := readV1Header(img)
		if herr != nil {
			return nil, ErrCorrupt
		}

		v = newV1Variant(uint64(len(img)), uint32(h.BitmapSize))
	case v2Version:
		_, layout, herr := readV2Header(img)
		if herr != nil {
			return nil, ErrCorrupt
		}

		pageCount := uint32(uint64(len(img)) / uint64(layout.pageSize))
		fatPages := v2FatPages(uint64(len(img)), layout.pageSize)

		v = &v2variant{layout: layout, pageCount: pageCount, fatPages: fatPages}
	default:
		return nil, ErrCorrupt
	}

	eng = &Engine{img: img, v: v, partition: part, now: time.Now}

	if cerr := eng.Check(); cerr != nil {
		return nil, cerr
	}

	return eng, nil
}

// Bytes returns the engine's live image bytes (the sub-slice of whatever
// backing buffer it was opened from). Teardown is just persisting this; the
// engine itself never owns a file descriptor or decides how that buffer is
// mapped to a file.
func (e *Engine) Bytes() []byte {
	return e.img
}

// Check re-runs the integrity validation against the engine's current
// image. Callable at any time, not just at load.
func (e *Engine) Check() (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if len(e.img) == 0 || e.img[0] != magicByte {
		return ErrCorrupt
	}

	bitmapSize := e.v.BitmapSize()
	if bitmapSize == 0 {
		return ErrCorrupt
	}

	pageSize := uint64(e.v.PageSize())
	claimedBytes := uint64(bitmapSize) * 8 * pageSize

	if claimedBytes > uint64(len(e.img)) {
		return ErrCorrupt
	}
	// claimedBytes < len(e.img): trailing bytes beyond the bitmap's span are
	// unreachable. That's a warning-level condition only; the engine has no
	// logging sink for non-fatal warnings, so it's accepted.

	bm := e.v.Bitmap(e.img)
	zeroBits := bm.zeroBitCount()
	free := bm.freePages()

	if zeroBits > free {
		return ErrCorrupt
	}
	// zeroBits < free is likewise a warning (some pages unreachable from the
	// bitmap's perspective), and is accepted.

	return nil
}

// GetAttr returns stat-shaped attributes for path. The root is synthesized
// rather than resolved: it has no directory entry of its own.
func (e *Engine) GetAttr(path string) (FileInfo, error) {
	if path == "/" {
		return FileInfo{Name: "/", Size: uint64(e.v.PageSize()), IsDir: true}, nil
	}

	result, err := resolvePath(e.img, e.v, path, false)
	if err != nil {
		return FileInfo{}, err
	}

	if !result.found {
		return FileInfo{}, ErrNotFound
	}

	return FileInfo{
		Name:    result.entry.nameString(),
		Size:    uint64(result.entry.Size),
		IsDir:   result.entry.IsDir,
		ModTime: decodeBCD(result.entry.Date).Time(),
	}, nil
}

// Open resolves path to a file handle. Fails with ErrIsDirectory if the
// target is a directory, ErrNotFound otherwise.
func (e *Engine) Open(path string) (FileHandle, error) {
	result, err := resolvePath(e.img, e.v, path, false)
	if err != nil {
		return FileHandle{}, err
	}

	if !result.found {
		return FileHandle{}, ErrNotFound
	}

	if result.entry.IsDir {
		return FileHandle{}, ErrIsDirectory
	}

	return FileHandle{ref: result.ref}, nil
}

// OpenDir resolves path to a directory handle. Fails with ErrNotADirectory
// if path names a file.
func (e *Engine) OpenDir(path string) (DirHandle, error) {
	if path == "/" {
		return DirHandle{dir: rootDirectory(e.img, e.v)}, nil
	}

	result, err := resolvePath(e.img, e.v, path, false)
	if err != nil {
		return DirHandle{}, err
	}

	if !result.found {
		return DirHandle{}, ErrNotFound
	}

	if !result.entry.IsDir {
		return DirHandle{}, ErrNotADirectory
	}

	return DirHandle{dir: nonRootDirectory(e.img, e.v, result.entry.StartPage)}, nil
}

// ReadDir emits "." and ".." first, then every occupied slot across the
// directory's chain.
func (e *Engine) ReadDir(h DirHandle) (entries []DirEnt, err error) {
	entries = append(entries, DirEnt{Name: ".", IsDir: true}, DirEnt{Name: "..", IsDir: true})

	walkErr := h.dir.forEachSlot(func(ref EntryRef, data []byte) (bool, error) {
		if emptyEntrySlot(data) {
			return true, nil
		}

		ent, derr := decodeEntry(e.v, data)
		if derr != nil {
			return false, derr
		}

		entries = append(entries, DirEnt{Name: ent.nameString(), IsDir: ent.IsDir, Size: uint64(ent.Size)})

		return true, nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	return entries, nil
}

// Read walks the chain by floor(offset/payload) steps, then copies
// min(n, size-offset) bytes from there on.
func (e *Engine) Read(h FileHandle, offset uint64, n int) (out []byte, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	data := entrySlotBytes(e.img, e.v, h.ref)

	entry, derr := decodeEntry(e.v, data)
	log.PanicIf(derr)

	if !entry.Occupied {
		return nil, ErrNotFound
	}

	if entry.IsDir {
		return nil, ErrIsDirectory
	}

	if offset >= uint64(entry.Size) || n <= 0 {
		return []byte{}, nil
	}

	remaining := uint64(entry.Size) - offset
	if uint64(n) < remaining {
		remaining = uint64(n)
	}

	payload := uint64(e.v.PayloadPerPage())
	chain := e.v.NewChain(e.img)

	steps := int(offset / payload)
	pageOffset := int(offset % payload)

	page := walkTo(chain, entry.StartPage, steps)

	out = make([]byte, 0, remaining)

	for uint64(len(out)) < remaining {
		pagePayload := e.v.PagePayload(e.img, page)

		avail := len(pagePayload) - pageOffset
		take := int(remaining) - len(out)
		if take > avail {
			take = avail
		}

		out = append(out, pagePayload[pageOffset:pageOffset+take]...)
		pageOffset = 0

		if uint64(len(out)) >= remaining {
			break
		}

		next := chain.next(page)
		if next == 0 {
			// The chain is shorter than the entry's recorded size; return
			// what was actually reachable rather than panicking.
			break
		}

		page = next
	}

	return out, nil
}

// Write copies buf into the file's content chain starting at offset,
// extending the chain with freshly zeroed pages as needed. The resulting
// size is max(old_size, offset+len(buf)), never old_size+len(buf), so
// overwriting a range inside an existing file doesn't inflate its size.
func (e *Engine) Write(h FileHandle, offset uint64, buf []byte) (written int, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	data := entrySlotBytes(e.img, e.v, h.ref)

	entry, derr := decodeEntry(e.v, data)
	log.PanicIf(derr)

	if !entry.Occupied {
		return 0, ErrNotFound
	}

	if entry.IsDir {
		return 0, ErrIsDirectory
	}

	payload := uint64(e.v.PayloadPerPage())
	bm := e.v.Bitmap(e.img)
	chain := e.v.NewChain(e.img)

	slack := payload - offset%payload
	capacity := uint64(bm.freePages())*payload + slack

	if uint64(len(buf)) > capacity {
		return 0, ErrTooLarge
	}

	steps := int(offset / payload)
	pageOffset := int(offset % payload)

	page := entry.StartPage
	for i := 0; i < steps; i++ {
		next := chain.next(page)
		if next == 0 {
			newPage := bm.allocate()
			if newPage == 0 {
				return 0, ErrNoSpace
			}

			e.v.ZeroPage(e.img, newPage)
			chain.setNext(page, newPage)
			next = newPage
		}

		page = next
	}

	persist := func() {
		entry.Size = maxU32(entry.Size, uint32(offset)+uint32(written))

		encoded, eerr := encodeEntry(e.v, entry)
		log.PanicIf(eerr)

		copy(data, encoded)
	}

	for written < len(buf) {
		pagePayload := e.v.PagePayload(e.img, page)

		space := int(payload) - pageOffset
		take := len(buf) - written
		if take > space {
			take = space
		}

		copy(pagePayload[pageOffset:pageOffset+take], buf[written:written+take])
		written += take
		pageOffset = 0

		if written >= len(buf) {
			break
		}

		next := chain.next(page)
		if next == 0 {
			newPage := bm.allocate()
			if newPage == 0 {
				persist()
				return written, ErrNoSpace
			}

			e.v.ZeroPage(e.img, newPage)
			chain.setNext(page, newPage)
			next = newPage
		}

		page = next
	}

	persist()

	return written, nil
}

// freeChain walks a content chain from start, freeing every page in it.
func (e *Engine) freeChain(start uint32) {
	chain := e.v.NewChain(e.img)
	bm := e.v.Bitmap(e.img)

	page := start
	for page != 0 {
		next := chain.next(page)
		bm.free(page)
		page = next
	}
}

// createEntry is the shared body of Create and Mkdir: resolve the parent
// directory and a free slot in it (growing the parent's chain if it's full
// and growable), reject an existing target, then allocate and zero one
// content page and write the new entry into the claimed slot.
func (e *Engine) createEntry(path string, isDir bool) (ref EntryRef, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	result, rerr := resolvePath(e.img, e.v, path, true)
	log.PanicIf(rerr)

	if result.found {
		return EntryRef{}, ErrExists
	}

	if result.parent == nil {
		return EntryRef{}, ErrNotFound
	}

	name, nerr := basename(path)
	log.PanicIf(nerr)

	nameField, berr := nameBytes(name)
	log.PanicIf(berr)

	var slot EntryRef

	if result.hasFree {
		slot = result.freeSlot
	} else {
		bm := e.v.Bitmap(e.img)

		grown, gerr := result.parent.grow(func() (uint32, error) {
			p := bm.allocate()
			if p == 0 {
				return 0, ErrNoSpace
			}

			return p, nil
		})
		if gerr != nil {
			return EntryRef{}, gerr
		}

		slot = grown
	}

	bm := e.v.Bitmap(e.img)

	contentPage := bm.allocate()
	if contentPage == 0 {
		return EntryRef{}, ErrNoSpace
	}

	e.v.ZeroPage(e.img, contentPage)

	size := uint32(0)
	if isDir {
		size = e.v.PageSize()
	}

	entry := DirEntry{
		Occupied:  true,
		IsDir:     isDir,
		Name:      nameField,
		StartPage: contentPage,
		Size:      size,
		Date:      nowBCD(e.now),
	}

	encoded, eerr := encodeEntry(e.v, entry)
	log.PanicIf(eerr)

	copy(entrySlotBytes(e.img, e.v, slot), encoded)

	return slot, nil
}

// Create makes a new empty regular file at path and returns a handle to it.
// Fails with ErrExists if path is already occupied.
func (e *Engine) Create(path string) (FileHandle, error) {
	ref, err := e.createEntry(path, false)
	if err != nil {
		return FileHandle{}, err
	}

	return FileHandle{ref: ref}, nil
}

// Mkdir makes a new empty directory at path. Fails with ErrExists if path
// is already occupied.
func (e *Engine) Mkdir(path string) error {
	_, err := e.createEntry(path, true)
	return err
}

// Unlink removes a regular file at path, freeing its content chain. Fails
// with ErrIsDirectory if path names a directory.
func (e *Engine) Unlink(path string) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	result, rerr := resolvePath(e.img, e.v, path, false)
	log.PanicIf(rerr)

	if !result.found {
		return ErrNotFound
	}

	if result.entry.IsDir {
		return ErrIsDirectory
	}

	e.freeChain(result.entry.StartPage)

	data := entrySlotBytes(e.img, e.v, result.ref)
	data[0] = 0

	return nil
}

// Rmdir removes an empty directory at path, freeing its page chain. Fails
// with ErrNotEmpty if it holds any occupied slot, ErrPermission for "/".
func (e *Engine) Rmdir(path string) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if path == "/" {
		return ErrPermission
	}

	result, rerr := resolvePath(e.img, e.v, path, false)
	log.PanicIf(rerr)

	if !result.found {
		return ErrNotFound
	}

	if !result.entry.IsDir {
		return ErrNotADirectory
	}

	dir := nonRootDirectory(e.img, e.v, result.entry.StartPage)

	empty := true

	walkErr := dir.forEachSlot(func(ref EntryRef, data []byte) (bool, error) {
		if !emptyEntrySlot(data) {
			empty = false
			return false, nil
		}

		return true, nil
	})
	log.PanicIf(walkErr)

	if !empty {
		return ErrNotEmpty
	}

	bm := e.v.Bitmap(e.img)
	for _, p := range dir.pages() {
		bm.free(p)
	}

	data := entrySlotBytes(e.img, e.v, result.ref)
	data[0] = 0

	return nil
}

// unlinkRef frees whatever entry occupies ref (file content chain, or
// directory page chain) and clears its slot. Used by Rename when replacing
// an existing target.
func (e *Engine) unlinkRef(entry DirEntry, ref EntryRef) {
	if entry.IsDir {
		dir := nonRootDirectory(e.img, e.v, entry.StartPage)
		bm := e.v.Bitmap(e.img)

		for _, p := range dir.pages() {
			bm.free(p)
		}
	} else {
		e.freeChain(entry.StartPage)
	}

	data := entrySlotBytes(e.img, e.v, ref)
	data[0] = 0
}

// Rename moves the entry at from to to, replacing an existing target unless
// flag is RenameNoReplace. A same-directory rename rewrites the entry's
// name in place; a cross-directory move copies the entry into the
// destination slot (reusing an existing target's slot rather than claiming
// a fresh one) and then clears the source slot.
func (e *Engine) Rename(from, to string, flag RenameFlag) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if flag == RenameExchange {
		return ErrUnsupported
	}

	srcResult, rerr := resolvePath(e.img, e.v, from, false)
	log.PanicIf(rerr)

	if !srcResult.found {
		return ErrNotFound
	}

	dstResult, rerr := resolvePath(e.img, e.v, to, true)
	log.PanicIf(rerr)

	if flag == RenameNoReplace && dstResult.found {
		return ErrExists
	}

	newName, nerr := basename(to)
	log.PanicIf(nerr)

	nameField, berr := nameBytes(newName)
	log.PanicIf(berr)

	if srcResult.parent == nil || dstResult.parent == nil {
		return ErrNotFound
	}

	if srcResult.parent.sameAs(dstResult.parent) {
		if dstResult.found && dstResult.ref != srcResult.ref {
			e.unlinkRef(dstResult.entry, dstResult.ref)
		}

		renamed := srcResult.entry
		renamed.Name = nameField

		encoded, eerr := encodeEntry(e.v, renamed)
		log.PanicIf(eerr)

		copy(entrySlotBytes(e.img, e.v, srcResult.ref), encoded)

		return nil
	}

	var destSlot EntryRef

	switch {
	case dstResult.found:
		e.unlinkRef(dstResult.entry, dstResult.ref)
		destSlot = dstResult.ref
	case dstResult.hasFree:
		destSlot = dstResult.freeSlot
	default:
		bm := e.v.Bitmap(e.img)

		grown, gerr := dstResult.parent.grow(func() (uint32, error) {
			p := bm.allocate()
			if p == 0 {
				return 0, ErrNoSpace
			}

			return p, nil
		})
		if gerr != nil {
			return gerr
		}

		destSlot = grown
	}

	moved := srcResult.entry
	moved.Name = nameField

	encoded, eerr := encodeEntry(e.v, moved)
	log.PanicIf(eerr)

	copy(entrySlotBytes(e.img, e.v, destSlot), encoded)

	srcData := entrySlotBytes(e.img, e.v, srcResult.ref)
	srcData[0] = 0

	return nil
}
