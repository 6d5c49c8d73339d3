package objfs

import (
	"time"

	"github.com/objfsd/objfsd/internal/kv"
)

func unixNanoToTime(ns int64) time.Time {
	return time.Unix(0, ns)
}

// truncateLocked adjusts data blocks for a size change from oldSize to
// newSize. Caller holds f.mu. Grounded on ObjFile::truncate, which is
// invoked from setattr whenever attr.size changes.
func (f *File) truncateLocked(txn kv.Transaction, oldSize, newSize uint64) error {
	if newSize >= oldSize {
		return nil
	}
	f.truncateDataLocked(txn, newSize)
	return nil
}

// truncateDataLocked purges every data block at or beyond newSize and,
// if newSize falls in the middle of a block, zeroes that block's tail
// so a future extend never exposes stale bytes. Caller holds f.mu.
func (f *File) truncateDataLocked(txn kv.Transaction, newSize uint64) {
	blockSize := uint64(f.meta.BlockSize)
	if blockSize == 0 {
		blockSize = defaultBlockSize
	}
	blockMask := blockSize - 1
	start := (newSize + blockMask) &^ blockMask

	it, err := f.fs.dataNS.Range(dataKey(f.meta.FileId, start), dataKey(f.meta.FileId+1, 0))
	if err == nil {
		defer it.Close()
		for it.SeekToFirst(); it.Valid(); it.Next() {
			key := append([]byte(nil), it.Key()...)
			txn.Remove(f.fs.dataNS, key)
		}
	}

	bn := newSize / blockSize
	boff := newSize % blockSize
	off := bn * blockSize
	if boff == 0 {
		return
	}
	key := dataKey(f.meta.FileId, off)
	old, err := f.fs.dataNS.Get(key)
	if err != nil {
		return
	}
	block := make([]byte, blockSize)
	n := boff
	if uint64(len(old)) < n {
		n = uint64(len(old))
	}
	copy(block, old[:n])
	txn.Put(f.fs.dataNS, key, block)
}
