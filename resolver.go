package zealfs

import (
	"strings"

	"github.com/dsoprea/go-logging"
)

// resolveResult is what path resolution produces: the entry itself (if
// found), the directory it lives in (for rename/unlink/rmdir to mutate),
// and optionally the first free slot seen in the terminal directory (for
// create/mkdir).
type resolveResult struct {
	found    bool
	entry    DirEntry
	ref      EntryRef
	parent   *Directory
	freeSlot EntryRef
	hasFree  bool
}

// splitPath breaks an absolute path into non-empty components, rejecting
// anything that isn't rooted at '/' and any component over 16 bytes.
func splitPath(path string) (parts []string, err error) {
	if len(path) == 0 || path[0] != '/' {
		return nil, log.Errorf("path must be absolute: %q", path)
	}

	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}

		if len(part) > maxNameLength {
			return nil, ErrNameTooLong
		}

		parts = append(parts, part)
	}

	return parts, nil
}

// nameMatches compares a component string against a slot's raw, zero-padded
// 16-byte name field.
func nameMatches(name string, raw [maxNameLength]byte) bool {
	if len(name) > maxNameLength {
		return false
	}

	var candidate [maxNameLength]byte
	copy(candidate[:], name)

	return candidate == raw
}

// resolvePath walks img's directory tree for path. When wantFreeSlot is
// true, the first unoccupied slot seen while scanning the
// terminal directory (the one that would hold path's leaf) is recorded,
// supporting create/mkdir's "reuse a free slot" step even when the leaf
// itself is not found.
func resolvePath(img []byte, v variant, path string, wantFreeSlot bool) (result resolveResult, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	parts, err := splitPath(path)
	log.PanicIf(err)

	dir := rootDirectory(img, v)

	if len(parts) == 0 {
		// The root itself; callers special-case this, since it has no
		// directory entry of its own to synthesize attributes from.
		return resolveResult{found: false, parent: dir}, nil
	}

	for i, name := range parts {
		isLast := i == len(parts)-1

		var (
			matchEntry DirEntry
			matchRef   EntryRef
			matched    bool
			freeRef    EntryRef
			haveFree   bool
		)

		walkErr := dir.forEachSlot(func(ref EntryRef, data []byte) (bool, error) {
			if emptyEntrySlot(data) {
				if isLast && wantFreeSlot && !haveFree {
					freeRef = ref
					haveFree = true
				}

				return true, nil
			}

			entry, decodeErr := decodeEntry(v, data)
			if decodeErr != nil {
				return false, decodeErr
			}

			if nameMatches(name, entry.Name) {
				matchEntry = entry
				matchRef = ref
				matched = true

				return false, nil
			}

			return true, nil
		})
		log.PanicIf(walkErr)

		if !matched {
			if isLast {
				return resolveResult{
					found:    false,
					parent:   dir,
					freeSlot: freeRef,
					hasFree:  haveFree,
				}, nil
			}

			return resolveResult{found: false}, nil
		}

		if isLast {
			return resolveResult{
				found:  true,
				entry:  matchEntry,
				ref:    matchRef,
				parent: dir,
			}, nil
		}

		// An interior component must be a directory; a file cannot be an
		// interior path component.
		if !matchEntry.IsDir {
			return resolveResult{found: false}, nil
		}

		dir = nonRootDirectory(img, v, matchEntry.StartPage)
	}

	// Unreachable: the loop always returns on its last iteration.
	return resolveResult{found: false}, nil
}

// basename returns the final path component, used by create/mkdir/rename to
// validate and store the leaf name.
func basename(path string) (string, error) {
	parts, err := splitPath(path)
	if err != nil {
		return "", err
	}

	if len(parts) == 0 {
		return "", ErrPermission
	}

	return parts[len(parts)-1], nil
}

// dirname returns the path with its final component removed ("/" for a
// top-level entry).
func dirname(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "/"
	}

	return path[:idx]
}
