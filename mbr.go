package zealfs

import (
	"github.com/dsoprea/go-logging"
	"github.com/go-restruct/restruct"
)

const (
	mbrSectorSize      = 512
	mbrSignature       = 0xAA55 // bytes 510..511, little-endian 0x55 0xAA
	mbrPartitionOffset = 446
	mbrPartitionCount  = 4
	mbrPartitionType   = 0x5A
)

// partitionEntry is one of the MBR's four fixed 16-byte partition records.
type partitionEntry struct {
	Status      uint8
	StartCHS    [3]byte
	Type        uint8
	EndCHS      [3]byte
	LBA         uint32
	SectorCount uint32
}

// mbrSector is the full 512-byte sector, parsed with restruct as a single
// packed struct over a fixed-size read.
type mbrSector struct {
	BootCode   [mbrPartitionOffset]byte
	Partitions [mbrPartitionCount]partitionEntry
	Signature  uint16
}

// Partition describes where a ZealFS image lives within a backing file:
// either wrapped in an MBR partition, or occupying the whole file (raw).
type Partition struct {
	Offset uint64
	Size   uint64
}

// DetectPartition tries, in order: a valid MBR signature with a
// 0x5A-typed partition entry, then a raw image (byte 0 == 0x5A with no MBR
// signature present), else reports the image as unrecognized.
func DetectPartition(backing []byte) (part Partition, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if len(backing) >= mbrSectorSize {
		var sector mbrSector

		unpackErr := restruct.Unpack(backing[:mbrSectorSize], defaultEncoding, &sector)
		if unpackErr == nil && sector.Signature == mbrSignature {
			for _, p := range sector.Partitions {
				if p.Type == mbrPartitionType {
					return Partition{
						Offset: uint64(p.LBA) * mbrSectorSize,
						Size:   uint64(p.SectorCount) * mbrSectorSize,
					}, nil
				}
			}

			return Partition{}, log.Errorf("valid MBR found but no ZealFS partition (type 0x%02x)", mbrPartitionType)
		}
	}

	if len(backing) > 0 && backing[0] == magicByte {
		return Partition{Offset: 0, Size: uint64(len(backing))}, nil
	}

	return Partition{}, log.Errorf("image not recognised: no MBR and no raw ZealFS signature")
}

// WriteMBR writes a single-partition MBR describing a ZealFS image at
// [offset, offset+size) into the first 512 bytes of backing. offset and
// size must both be multiples of 512.
func WriteMBR(backing []byte, offset, size uint64) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if len(backing) < mbrSectorSize {
		log.Panicf("backing buffer too small for an MBR sector: (%d)", len(backing))
	}

	if offset%mbrSectorSize != 0 || size%mbrSectorSize != 0 {
		log.Panicf("MBR offset and size must be sector-aligned: offset=(%d) size=(%d)", offset, size)
	}

	sector := mbrSector{
		Signature: mbrSignature,
	}

	sector.Partitions[0] = partitionEntry{
		Status:      0,
		Type:        mbrPartitionType,
		LBA:         uint32(offset / mbrSectorSize),
		SectorCount: uint32(size / mbrSectorSize),
	}

	raw, err := restruct.Pack(defaultEncoding, &sector)
	log.PanicIf(err)

	copy(backing[:mbrSectorSize], raw)

	return nil
}
