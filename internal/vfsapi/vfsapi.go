// Package vfsapi defines the abstract filesystem contract shared by every
// filesystem implementation (ObjFS, NfsFS, PFS), per spec.md §4.1. It is a
// narrow polymorphic interface rather than a deep class hierarchy: callers
// hold a Filesystem and a tree of File values and never need to know which
// substrate they are talking to.
package vfsapi

import (
	"context"

	"github.com/objfsd/objfsd/internal/posix"
)

// FileId is a 64-bit identifier unique within one filesystem. FileId(0)
// is reserved for superblock metadata, FileId(1) for the root directory.
type FileId uint64

const (
	SuperblockId FileId = 0
	RootId       FileId = 1
)

// FileHandle is the stable, opaque, wire-level identifier for a file.
type FileHandle struct {
	Version uint32
	Bytes   []byte // <= 128 bytes
}

// Fsattr is the result of Filesystem.Fsstat.
type Fsattr struct {
	TotalBytes     uint64
	FreeBytes      uint64
	AvailBytes     uint64
	TotalFiles     uint64
	FreeFiles      uint64
	AvailFiles     uint64
	LinkMax        uint32
	NameMax        uint32
	RepairQueueSize uint32
}

// SetattrMutation is the staged mutation passed to setattr-family calls.
// Only fields with their Set* bool true should be applied; this is the
// Go rendering of the "attribute-mutation closure" pattern described in
// spec.md §9: callers build one of these (directly, or via a builder) and
// the implementation applies exactly what was requested.
type SetattrMutation struct {
	SetMode bool
	Mode    uint32

	SetUID bool
	UID    uint32

	SetGID bool
	GID    uint32

	SetSize bool
	Size    uint64

	SetMtime bool
	Mtime    int64 // unix nanoseconds; ignored if SetMtimeNow

	SetMtimeNow bool

	SetAtime bool
	Atime    int64

	SetAtimeNow bool

	// CreateVerf overlays atime for NFSv3 EXCLUSIVE create verification;
	// non-nil only when staged by an exclusive-create open.
	CreateVerf []byte
}

// Mutator builds a SetattrMutation. Implementations call it once and
// apply only the fields it set, matching the C++ source's
// function<void(Setattr*)> callback pattern.
type Mutator func(*SetattrMutation)

// DirectoryIterator streams directory entries in cookie order.
type DirectoryIterator interface {
	// Next advances to and returns the next entry, or (zero, false, nil)
	// at end of directory. err is non-nil only on a read failure.
	Next(ctx context.Context) (DirEntry, bool, error)
	Close() error
}

// DirEntry is one entry produced by DirectoryIterator.
type DirEntry struct {
	FileId FileId
	Name   string
	Cookie uint64
	File   File
}

// OpenFile is a logical open-file handle: flags plus a reference to the
// underlying inode. Closing one is in-memory bookkeeping only; it never
// affects other open handles on the same inode (spec.md §4.2).
type OpenFile interface {
	File() File
	Read(ctx context.Context, offset uint64, size uint32) (data []byte, eof bool, err error)
	Write(ctx context.Context, offset uint64, data []byte) (n uint32, err error)
	Flush(ctx context.Context) error
	Close() error
}

// File is a file, directory, symlink or other filesystem object.
type File interface {
	Filesystem() Filesystem
	Handle() FileHandle

	Access(ctx context.Context, cred posix.Cred, mode posix.AccessFlags) bool
	Getattr(ctx context.Context) (posix.PosixAttr, error)
	Setattr(ctx context.Context, cred posix.Cred, mutate Mutator) error

	Lookup(ctx context.Context, cred posix.Cred, name string) (File, error)

	Open(ctx context.Context, cred posix.Cred, name string, flags posix.OpenFlags, mutate Mutator) (OpenFile, error)
	OpenSelf(ctx context.Context, cred posix.Cred, flags posix.OpenFlags) (OpenFile, error)

	Readlink(ctx context.Context, cred posix.Cred) (string, error)

	Mkdir(ctx context.Context, cred posix.Cred, name string, mutate Mutator) (File, error)
	Symlink(ctx context.Context, cred posix.Cred, name, target string, mutate Mutator) (File, error)
	Mkfifo(ctx context.Context, cred posix.Cred, name string, mutate Mutator) (File, error)

	Remove(ctx context.Context, cred posix.Cred, name string) error
	Rmdir(ctx context.Context, cred posix.Cred, name string) error
	Rename(ctx context.Context, cred posix.Cred, toName string, fromDir File, fromName string) error
	Link(ctx context.Context, cred posix.Cred, name string, target File) error

	Readdir(ctx context.Context, cred posix.Cred, seek uint64) (DirectoryIterator, error)
	Fsstat(ctx context.Context, cred posix.Cred) (Fsattr, error)
}

// Filesystem is the root handle onto one mounted substrate.
type Filesystem interface {
	Root(ctx context.Context) (File, error)
}
