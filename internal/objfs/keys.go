package objfs

import (
	"encoding/binary"

	"github.com/objfsd/objfsd/internal/vfsapi"
)

// Namespace names within the backing kv.Store, one per key family, per
// spec.md §4.2 and grounded on objfs.cpp's defaultNS/directoriesNS/dataNS
// split ("meta", "dir", "data" here).
const (
	metaNamespace = "meta"
	dirNamespace  = "dir"
	dataNamespace = "data"
)

// metaKey is the key for a file's metadata record in the meta
// namespace: an 8-byte big-endian FileId. FileId(0) is the filesystem
// superblock.
func metaKey(id vfsapi.FileId) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

// dirKey is the key for one directory entry: parent FileId followed by
// the entry name, so a Range(dirKey(parent,""), dirKey(parent+1,""))
// scans exactly that directory's entries in name order.
func dirKey(parent vfsapi.FileId, name string) []byte {
	b := make([]byte, 8+len(name))
	binary.BigEndian.PutUint64(b[:8], uint64(parent))
	copy(b[8:], name)
	return b
}

func dirKeyName(key []byte) string {
	return string(key[8:])
}

// dataKey is the key for one file's data block: FileId followed by the
// block's starting byte offset, both big-endian, so a file's blocks
// sort in offset order.
func dataKey(id vfsapi.FileId, offset uint64) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[:8], uint64(id))
	binary.BigEndian.PutUint64(b[8:], offset)
	return b
}

func dataKeyOffset(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[8:])
}
