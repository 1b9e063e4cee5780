package zealfs

import (
	"bytes"

	"github.com/dsoprea/go-logging"
	"github.com/go-restruct/restruct"
)

// Flag bits within a directory entry's first byte.
const (
	flagOccupied  = 0x80
	flagDirectory = 0x01
)

const maxNameLength = 16

// v1EntryOnDisk is the packed 32-byte v1 directory entry.
type v1EntryOnDisk struct {
	Flags      uint8
	Name       [maxNameLength]byte
	StartPage  uint8
	Size       uint16
	Date       bcdDate
	Reserved   [4]byte
}

// v2EntryOnDisk is the packed 32-byte v2 directory entry.
type v2EntryOnDisk struct {
	Flags     uint8
	Name      [maxNameLength]byte
	StartPage uint16
	Size      uint32
	Date      bcdDate
	Reserved  uint8
}

// DirEntry is the variant-agnostic in-memory view of a directory entry,
// produced by decodeEntry and consumed by encodeEntry. Engine code (resolver,
// directory, operations) only ever deals with this shape; the on-disk width
// differences between v1 and v2 stay inside entry.go.
type DirEntry struct {
	Occupied  bool
	IsDir     bool
	Name      [maxNameLength]byte
	StartPage uint32
	Size      uint32
	Date      bcdDate
}

// nameString returns the entry's name with zero padding trimmed: everything
// up to but not including the first NUL padding byte, or the full 16-byte
// field if it holds no NUL.
func (e DirEntry) nameString() string {
	idx := bytes.IndexByte(e.Name[:], 0)
	if idx < 0 {
		return string(e.Name[:])
	}

	return string(e.Name[:idx])
}

// nameBytes packs a name string into the fixed 16-byte, zero-padded field,
// rejecting names that are too long or contain '/' or an embedded NUL.
func nameBytes(name string) (out [maxNameLength]byte, err error) {
	if len(name) == 0 || len(name) > maxNameLength {
		return out, ErrNameTooLong
	}

	for i := 0; i < len(name); i++ {
		if name[i] == '/' || name[i] == 0 {
			return out, log.Errorf("invalid character in name: %q", name)
		}
	}

	copy(out[:], name)

	return out, nil
}

// decodeEntry unpacks a 32-byte slot using the given variant's on-disk
// layout into the unified DirEntry shape.
func decodeEntry(v variant, raw []byte) (entry DirEntry, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if len(raw) != v1EntrySize {
		log.Panicf("entry slot must be (%d) bytes, got (%d)", v1EntrySize, len(raw))
	}

	switch v.(type) {
	case *v1variant:
		var d v1EntryOnDisk
		err = restruct.Unpack(raw, defaultEncoding, &d)
		log.PanicIf(err)

		entry = DirEntry{
			Occupied:  d.Flags&flagOccupied != 0,
			IsDir:     d.Flags&flagDirectory != 0,
			Name:      d.Name,
			StartPage: uint32(d.StartPage),
			Size:      uint32(d.Size),
			Date:      d.Date,
		}
	case *v2variant:
		var d v2EntryOnDisk
		err = restruct.Unpack(raw, defaultEncoding, &d)
		log.PanicIf(err)

		entry = DirEntry{
			Occupied:  d.Flags&flagOccupied != 0,
			IsDir:     d.Flags&flagDirectory != 0,
			Name:      d.Name,
			StartPage: uint32(d.StartPage),
			Size:      d.Size,
			Date:      d.Date,
		}
	default:
		log.Panicf("unknown variant")
	}

	return entry, nil
}

// encodeEntry packs a DirEntry back into a 32-byte slot for the given
// variant.
func encodeEntry(v variant, entry DirEntry) (raw []byte, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	flags := uint8(0)
	if entry.Occupied {
		flags |= flagOccupied
	}
	if entry.IsDir {
		flags |= flagDirectory
	}

	switch v.(type) {
	case *v1variant:
		if entry.StartPage > 0xff {
			log.Panicf("start page does not fit in a v1 entry: (%d)", entry.StartPage)
		}

		d := v1EntryOnDisk{
			Flags:     flags,
			Name:      entry.Name,
			StartPage: uint8(entry.StartPage),
			Size:      uint16(entry.Size),
			Date:      entry.Date,
		}

		raw, err = restruct.Pack(defaultEncoding, &d)
		log.PanicIf(err)
	case *v2variant:
		if entry.StartPage > 0xffff {
			log.Panicf("start page does not fit in a v2 entry: (%d)", entry.StartPage)
		}

		d := v2EntryOnDisk{
			Flags:     flags,
			Name:      entry.Name,
			StartPage: uint16(entry.StartPage),
			Size:      entry.Size,
			Date:      entry.Date,
		}

		raw, err = restruct.Pack(defaultEncoding, &d)
		log.PanicIf(err)
	default:
		log.Panicf("unknown variant")
	}

	return raw, nil
}

// emptyEntrySlot reports whether raw (a 32-byte slot) is unoccupied: either
// all-zero or has the occupied bit clear.
func emptyEntrySlot(raw []byte) bool {
	return raw[0]&flagOccupied == 0
}
