package pfs

import (
	"context"

	"github.com/objfsd/objfsd/internal/vfsapi"
)

// DirectoryIterator walks a pseudo-directory's static, sorted child
// list. Mirrors PfsDirectoryIterator, minus the weak-pointer expiry
// skip (pfs.File entries never expire once created).
type DirectoryIterator struct {
	dir   *File
	names []string
	pos   int
}

var _ vfsapi.DirectoryIterator = (*DirectoryIterator)(nil)

func (it *DirectoryIterator) Next(ctx context.Context) (vfsapi.DirEntry, bool, error) {
	if it.pos >= len(it.names) {
		return vfsapi.DirEntry{}, false, nil
	}
	name := it.names[it.pos]
	it.pos++
	child := it.dir.entries[name]
	return vfsapi.DirEntry{
		FileId: vfsapi.FileId(child.fileid),
		Name:   name,
		Cookie: uint64(it.pos),
		File:   child,
	}, true, nil
}

func (it *DirectoryIterator) Close() error { return nil }
