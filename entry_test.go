package zealfs

import (
	"testing"
)

func TestNameBytes_RoundTrip(t *testing.T) {
	name, err := nameBytes("hello.txt")
	if err != nil {
		t.Fatalf("nameBytes failed: %v", err)
	}

	entry := DirEntry{Name: name}

	if entry.nameString() != "hello.txt" {
		t.Fatalf("nameString mismatch: got (%s)", entry.nameString())
	}
}

func TestNameBytes_TooLong(t *testing.T) {
	if _, err := nameBytes("seventeen-chars-x"); err != ErrNameTooLong {
		t.Fatalf("expected ErrNameTooLong, got (%v)", err)
	}
}

func TestNameBytes_RejectsSlash(t *testing.T) {
	if _, err := nameBytes("a/b"); err == nil {
		t.Fatalf("expected an error for a name containing '/'")
	}
}

func TestEncodeDecodeEntry_V1(t *testing.T) {
	v := newV1Variant(32*1024, 16)

	name, err := nameBytes("a.txt")
	if err != nil {
		t.Fatalf("nameBytes failed: %v", err)
	}

	entry := DirEntry{
		Occupied:  true,
		IsDir:     false,
		Name:      name,
		StartPage: 5,
		Size:      100,
	}

	raw, err := encodeEntry(v, entry)
	if err != nil {
		t.Fatalf("encodeEntry failed: %v", err)
	}

	if len(raw) != v1EntrySize {
		t.Fatalf("expected a 32-byte entry, got (%d)", len(raw))
	}

	got, err := decodeEntry(v, raw)
	if err != nil {
		t.Fatalf("decodeEntry failed: %v", err)
	}

	if !got.Occupied || got.IsDir || got.StartPage != 5 || got.Size != 100 {
		t.Fatalf("v1 entry round-trip mismatch: (%+v)", got)
	}

	if got.nameString() != "a.txt" {
		t.Fatalf("v1 entry name round-trip mismatch: (%s)", got.nameString())
	}
}

func TestEncodeDecodeEntry_V2(t *testing.T) {
	v, err := newV2Variant(1024*1024, 2, 128)
	if err != nil {
		t.Fatalf("newV2Variant failed: %v", err)
	}

	name, err := nameBytes("dir")
	if err != nil {
		t.Fatalf("nameBytes failed: %v", err)
	}

	entry := DirEntry{
		Occupied:  true,
		IsDir:     true,
		Name:      name,
		StartPage: 300,
		Size:      1024,
	}

	raw, err := encodeEntry(v, entry)
	if err != nil {
		t.Fatalf("encodeEntry failed: %v", err)
	}

	got, err := decodeEntry(v, raw)
	if err != nil {
		t.Fatalf("decodeEntry failed: %v", err)
	}

	if !got.IsDir || got.StartPage != 300 || got.Size != 1024 {
		t.Fatalf("v2 entry round-trip mismatch: (%+v)", got)
	}
}

func TestEmptyEntrySlot(t *testing.T) {
	raw := make([]byte, v1EntrySize)

	if !emptyEntrySlot(raw) {
		t.Fatalf("a zeroed slot must be reported empty")
	}

	raw[0] = flagOccupied

	if emptyEntrySlot(raw) {
		t.Fatalf("a slot with the occupied bit set must not be reported empty")
	}
}
