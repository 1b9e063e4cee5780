package zealfs

import (
	"testing"
)

func TestDetectPartition_RawImage(t *testing.T) {
	img, _, err := formatV1(4 * v1PageSize)
	if err != nil {
		t.Fatalf("formatV1 failed: %v", err)
	}

	part, err := DetectPartition(img)
	if err != nil {
		t.Fatalf("DetectPartition failed: %v", err)
	}

	if part.Offset != 0 || part.Size != uint64(len(img)) {
		t.Fatalf("expected a raw image to span the whole buffer, got (%+v)", part)
	}
}

func TestWriteMBR_DetectPartition_RoundTrip(t *testing.T) {
	imageSize := uint64(4 * v1PageSize)
	backing := make([]byte, mbrSectorSize+imageSize)

	img, _, err := formatV1(imageSize)
	if err != nil {
		t.Fatalf("formatV1 failed: %v", err)
	}

	copy(backing[mbrSectorSize:], img)

	if err := WriteMBR(backing, mbrSectorSize, imageSize); err != nil {
		t.Fatalf("WriteMBR failed: %v", err)
	}

	part, err := DetectPartition(backing)
	if err != nil {
		t.Fatalf("DetectPartition failed: %v", err)
	}

	if part.Offset != mbrSectorSize || part.Size != imageSize {
		t.Fatalf("unexpected partition: (%+v)", part)
	}
}

func TestDetectPartition_Unrecognized(t *testing.T) {
	backing := make([]byte, mbrSectorSize)

	if _, err := DetectPartition(backing); err == nil {
		t.Fatalf("expected an all-zero buffer to be unrecognized")
	}
}

func TestWriteMBR_RejectsUnalignedOffset(t *testing.T) {
	backing := make([]byte, 2*mbrSectorSize)

	if err := WriteMBR(backing, 100, mbrSectorSize); err == nil {
		t.Fatalf("expected a non-sector-aligned offset to be rejected")
	}
}
