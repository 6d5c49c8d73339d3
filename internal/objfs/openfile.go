package objfs

import (
	"context"

	"github.com/objfsd/objfsd/internal/kv"
	"github.com/objfsd/objfsd/internal/posix"
	"github.com/objfsd/objfsd/internal/vfsapi"
)

// openFile is a logical open-file handle. Grounded on objfs.h/.cpp's
// ObjOpenFile: closing one never affects the underlying inode beyond
// decrementing its reference count (and purging it if it was a
// zombie), matching spec.md §4.2.
type openFile struct {
	cred      posix.Cred
	file      *File
	flags     posix.OpenFlags
	needFlush bool
	closed    bool
}

func newOpenFile(cred posix.Cred, file *File, flags posix.OpenFlags) *openFile {
	return &openFile{cred: cred, file: file, flags: flags}
}

var _ vfsapi.OpenFile = (*openFile)(nil)

func (of *openFile) File() vfsapi.File { return of.file }

// Read implements vfsapi.OpenFile.Read. Grounded on ObjOpenFile::read:
// reads one data block at a time, returning zeros for any block never
// written (a sparse hole).
func (of *openFile) Read(ctx context.Context, offset uint64, size uint32) ([]byte, bool, error) {
	f := of.file
	f.mu.Lock()
	defer f.mu.Unlock()

	if !of.flags.Has(posix.OpenRead) {
		return nil, false, posix.New(posix.Perm, "file not opened for reading")
	}

	f.meta.Attr.Atime = f.fs.clock()
	if err := f.writeMetaStandalone(ctx); err != nil {
		return nil, false, err
	}

	blockSize := uint64(f.meta.BlockSize)
	if blockSize == 0 {
		blockSize = defaultBlockSize
	}
	fileSize := f.meta.Attr.Size

	if offset >= fileSize {
		return nil, true, nil
	}
	eof := false
	length := uint64(size)
	if offset+length >= fileSize {
		eof = true
		length = fileSize - offset
	}

	out := make([]byte, length)
	bn := offset / blockSize
	boff := offset % blockSize
	var i uint64
	for i < length {
		off := bn * blockSize
		block, err := f.fs.dataNS.Get(dataKey(f.meta.FileId, off))
		blen := blockSize - boff
		if i+blen > length {
			blen = length - i
		}
		if err == nil && uint64(len(block)) >= boff {
			n := blen
			avail := uint64(len(block)) - boff
			if avail < n {
				n = avail
			}
			copy(out[i:i+n], block[boff:boff+n])
			// remainder, if any, stays zero (sparse tail)
		}
		i += blen
		boff = 0
		bn++
	}
	return out, eof, nil
}

// Write implements vfsapi.OpenFile.Write. Grounded on
// ObjOpenFile::write: writes one block at a time, merging with the
// existing block when the write doesn't cover it completely.
func (of *openFile) Write(ctx context.Context, offset uint64, data []byte) (uint32, error) {
	f := of.file
	f.mu.Lock()
	if !of.flags.Has(posix.OpenWrite) {
		f.mu.Unlock()
		return 0, posix.New(posix.Perm, "file not opened for writing")
	}
	blockSize := uint64(f.meta.BlockSize)
	if blockSize == 0 {
		blockSize = defaultBlockSize
	}
	fileSize := f.meta.Attr.Size
	fileId := f.meta.FileId
	f.mu.Unlock()

	length := uint64(len(data))
	txn := f.fs.store.BeginTransaction()

	bn := offset / blockSize
	boff := offset % blockSize
	var i uint64
	for i < length {
		off := bn * blockSize
		blen := blockSize - boff
		if i+blen > length {
			blen = length - i
		}
		key := dataKey(fileId, off)

		var block []byte
		needMerge := boff > 0 || (blen < blockSize && off+blen < fileSize)
		if needMerge {
			old, err := f.fs.dataNS.Get(key)
			block = make([]byte, blockSize)
			if err == nil {
				copy(block, old)
			}
			copy(block[boff:boff+blen], data[i:i+blen])
		} else if blen == blockSize {
			block = append([]byte(nil), data[i:i+blen]...)
		} else {
			block = make([]byte, blockSize)
			copy(block, data[i:i+blen])
		}
		txn.Put(f.fs.dataNS, key, block)

		i += blen
		boff = 0
		bn++
	}

	f.mu.Lock()
	of.needFlush = true
	f.meta.Attr.Ctime = f.fs.clock()
	f.meta.Attr.Mtime = f.meta.Attr.Ctime
	if offset+length > f.meta.Attr.Size {
		f.meta.Attr.Size = offset + length
	}
	if err := f.writeMeta(txn); err != nil {
		f.mu.Unlock()
		return 0, err
	}
	f.mu.Unlock()

	if err := f.fs.store.Commit(ctx, txn); err != nil {
		return 0, err
	}
	return uint32(length), nil
}

func (of *openFile) Flush(ctx context.Context) error {
	f := of.file
	f.mu.Lock()
	needFlush := of.needFlush
	of.needFlush = false
	f.mu.Unlock()
	if needFlush {
		return f.fs.store.Flush(ctx)
	}
	return nil
}

// Close decrements the inode's open-handle reference count, purging a
// zombie inode (one whose last link was removed while still open)
// once the count reaches zero.
func (of *openFile) Close() error {
	f := of.file
	f.mu.Lock()
	if of.closed {
		f.mu.Unlock()
		return nil
	}
	of.closed = true
	f.refCount--
	purge := f.zombie && f.refCount == 0
	f.mu.Unlock()

	if !purge {
		return nil
	}

	f.mu.Lock()
	var txn kv.Transaction = f.fs.store.BeginTransaction()
	f.purgeLocked(txn)
	f.mu.Unlock()
	return f.fs.store.Commit(context.Background(), txn)
}
