package objfs

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/objfsd/objfsd/internal/posix"
	"github.com/objfsd/objfsd/internal/vfsapi"
)

const metaVersion = 1

// fileMeta is the persisted inode body, grounded on objfs.h's
// ObjFileMetaImpl. It is gob-encoded rather than XDR: this is our own
// private on-disk format, never seen on the wire, so there is no
// interop requirement pulling in the hand-rolled XDR codec used by
// internal/nfs3.
type fileMeta struct {
	Vers      uint32
	FileId    vfsapi.FileId
	BlockSize uint32
	Attr      posix.PosixAttr
	// Extra holds the symlink target for PT_LNK files; unused otherwise.
	Extra []byte
}

func encodeMeta(m fileMeta) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&m); err != nil {
		return nil, fmt.Errorf("objfs: encode meta: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeMeta(data []byte) (fileMeta, error) {
	var m fileMeta
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
		return fileMeta{}, fmt.Errorf("objfs: decode meta: %w", err)
	}
	if m.Vers != metaVersion {
		return fileMeta{}, posix.New(posix.IO, fmt.Sprintf("unexpected file metadata version %d", m.Vers))
	}
	return m, nil
}

// superblockMeta is the filesystem-wide record stored at FileId(0),
// grounded on objfs.cpp's ObjFilesystemMeta (vers/fsid/nextId).
type superblockMeta struct {
	Vers   uint32
	FsidHi uint64
	FsidLo uint64
	NextId uint64
}

func encodeSuperblock(m superblockMeta) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&m); err != nil {
		return nil, fmt.Errorf("objfs: encode superblock: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeSuperblock(data []byte) (superblockMeta, error) {
	var m superblockMeta
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
		return superblockMeta{}, fmt.Errorf("objfs: decode superblock: %w", err)
	}
	return m, nil
}

// dirEntryMeta is the value stored for one directory entry.
type dirEntryMeta struct {
	FileId vfsapi.FileId
}

func encodeDirEntry(id vfsapi.FileId) []byte {
	var buf bytes.Buffer
	gob.NewEncoder(&buf).Encode(&dirEntryMeta{FileId: id})
	return buf.Bytes()
}

func decodeDirEntry(data []byte) (vfsapi.FileId, error) {
	var e dirEntryMeta
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
		return 0, fmt.Errorf("objfs: decode dir entry: %w", err)
	}
	return e.FileId, nil
}
