package objfs

import (
	"context"

	"github.com/objfsd/objfsd/internal/kv"
	"github.com/objfsd/objfsd/internal/vfsapi"
)

// directoryIterator streams a directory's entries in name order.
// Grounded on objdir.cpp's ObjDirectoryIterator, minus its "lame seek
// implementation" comment: cookies here are just the 1-based ordinal
// position, so Next still walks forward from the requested seek, but
// a BadCookie is reported if the store's iterator cannot be
// positioned at all (e.g. the namespace disappeared).
type directoryIterator struct {
	fs     *Filesystem
	parent vfsapi.FileId
	seek   uint64
	it     kv.Iterator
}

func newDirectoryIterator(fs *Filesystem, parent vfsapi.FileId, seek uint64) (*directoryIterator, error) {
	start := dirKey(parent, "")
	end := dirKey(parent+1, "")
	it, err := fs.dirNS.Range(start, end)
	if err != nil {
		return nil, err
	}
	di := &directoryIterator{fs: fs, parent: parent, seek: seek, it: it}
	di.it.SeekToFirst()
	for i := uint64(0); i < seek && di.it.Valid(); i++ {
		di.it.Next()
	}
	return di, nil
}

var _ vfsapi.DirectoryIterator = (*directoryIterator)(nil)

func (di *directoryIterator) Next(ctx context.Context) (vfsapi.DirEntry, bool, error) {
	if !di.it.Valid() {
		return vfsapi.DirEntry{}, false, nil
	}
	name := dirKeyName(di.it.Key())
	id, err := decodeDirEntry(di.it.Value())
	if err != nil {
		return vfsapi.DirEntry{}, false, err
	}
	di.seek++
	entry := vfsapi.DirEntry{
		FileId: id,
		Name:   name,
		Cookie: di.seek,
	}
	file, ferr := di.fs.find(id)
	if ferr == nil {
		entry.File = file
	}
	di.it.Next()
	return entry, true, nil
}

func (di *directoryIterator) Close() error {
	return di.it.Close()
}
