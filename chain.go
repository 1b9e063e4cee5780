package zealfs

import (
	"github.com/dsoprea/go-logging"
)

// pageChain abstracts over the two chaining schemes: next()/setNext() are
// enough to both walk and extend a file's or directory's content chain.
// walkTo is provided once here rather than duplicated by every variant.
type pageChain interface {
	next(page uint32) uint32
	setNext(page, next uint32)
}

// walkTo follows steps links from start and returns the page reached. The
// caller is responsible for ensuring the chain is at least that long; here
// it panics if not, which every engine caller recovers from at its own
// boundary.
func walkTo(pc pageChain, start uint32, steps int) uint32 {
	page := start

	for i := 0; i < steps; i++ {
		next := pc.next(page)
		if next == 0 {
			log.Panicf("page chain shorter than requested walk: start=(%d) steps=(%d)", start, steps)
		}

		page = next
	}

	return page
}

// v1Chain implements the in-band scheme: the first byte of each 256-byte
// page is the index of the next page, or 0 for end of chain.
type v1Chain struct {
	img []byte
}

func (c *v1Chain) next(page uint32) uint32 {
	off := uint64(page) * v1PageSize

	return uint32(c.img[off])
}

func (c *v1Chain) setNext(page, next uint32) {
	if next > 0xff {
		log.Panicf("v1 next-page index does not fit in one byte: (%d)", next)
	}

	off := uint64(page) * v1PageSize
	c.img[off] = byte(next)
}

// v2Chain implements the FAT scheme: a table of page_count entries (1 or 2
// bytes wide) starting at page 1; fat[p] == 0 means p is a chain tail.
type v2Chain struct {
	img         []byte
	pageSize    uint32
	entryWidth  int
	fatStartOff uint64 // absolute byte offset of fat[0], i.e. start of page 1
}

func (c *v2Chain) entryOffset(page uint32) uint64 {
	return c.fatStartOff + uint64(page)*uint64(c.entryWidth)
}

func (c *v2Chain) next(page uint32) uint32 {
	off := c.entryOffset(page)

	if c.entryWidth == 1 {
		return uint32(c.img[off])
	}

	return uint32(defaultEncoding.Uint16(c.img[off : off+2]))
}

func (c *v2Chain) setNext(page, next uint32) {
	off := c.entryOffset(page)

	if c.entryWidth == 1 {
		if next > 0xff {
			log.Panicf("v2 (tiny) next-page index does not fit in one byte: (%d)", next)
		}

		c.img[off] = byte(next)

		return
	}

	if next > 0xffff {
		log.Panicf("v2 next-page index does not fit in two bytes: (%d)", next)
	}

	defaultEncoding.PutUint16(c.img[off:off+2], uint16(next))
}
