// Package nfsfs implements NfsFS, the NFSv3 client filesystem of
// spec.md §4.3: an attribute-cached, filehandle-keyed abstract
// Filesystem/File built on internal/nfs3. Grounded on original_source's
// filesys/nfs3 (NfsFilesystem/NfsFile/NfsOpenFile/NfsDirectoryIterator).
package nfsfs

import (
	"time"

	"github.com/objfsd/objfsd/internal/nfs3"
	"github.com/objfsd/objfsd/internal/posix"
)

// AttrTimeout is spec.md §4.3's ATTR_TIMEOUT: a cached attribute is
// valid for this long from the time it was fetched.
const AttrTimeout = 5 * time.Second

func nfsTimeToGo(t nfs3.TimeVal3) time.Time {
	return time.Unix(int64(t.Seconds), int64(t.Nseconds))
}

func goTimeToNfs(t time.Time) nfs3.TimeVal3 {
	return nfs3.TimeVal3{Seconds: uint32(t.Unix()), Nseconds: uint32(t.Nanosecond())}
}

func nfsTypeToPosix(t nfs3.FType3) posix.FileType {
	switch t {
	case nfs3.NF3Reg:
		return posix.TypeFile
	case nfs3.NF3Dir:
		return posix.TypeDirectory
	case nfs3.NF3Blk:
		return posix.TypeBlockDev
	case nfs3.NF3Chr:
		return posix.TypeCharDev
	case nfs3.NF3Lnk:
		return posix.TypeSymlink
	case nfs3.NF3Sock:
		return posix.TypeSocket
	case nfs3.NF3Fifo:
		return posix.TypeFifo
	default:
		return posix.TypeFile
	}
}

func posixTypeToNfs(t posix.FileType) nfs3.FType3 {
	switch t {
	case posix.TypeDirectory:
		return nfs3.NF3Dir
	case posix.TypeBlockDev:
		return nfs3.NF3Blk
	case posix.TypeCharDev:
		return nfs3.NF3Chr
	case posix.TypeSymlink:
		return nfs3.NF3Lnk
	case posix.TypeSocket:
		return nfs3.NF3Sock
	case posix.TypeFifo:
		return nfs3.NF3Fifo
	default:
		return nfs3.NF3Reg
	}
}

func fattrToPosix(a nfs3.Fattr3) posix.PosixAttr {
	return posix.PosixAttr{
		Type:  nfsTypeToPosix(a.Type),
		Mode:  a.Mode,
		Nlink: a.Nlink,
		UID:   a.UID,
		GID:   a.GID,
		Size:  a.Size,
		Atime: nfsTimeToGo(a.Atime),
		Mtime: nfsTimeToGo(a.Mtime),
		Ctime: nfsTimeToGo(a.Ctime),
	}
}

// mapStatus translates an NFS3 status into the abstract error Kind,
// mirroring original_source's nfs3file.cpp mapStatus table.
func mapStatus(stat nfs3.Status) *posix.Error {
	switch stat {
	case nfs3.NFS3OK:
		return nil
	case nfs3.NFS3ErrPerm:
		return posix.New(posix.Perm, "operation not permitted")
	case nfs3.NFS3ErrNoEnt:
		return posix.New(posix.NotFound, "no such file or directory")
	case nfs3.NFS3ErrAcces:
		return posix.New(posix.AccessDenied, "permission denied")
	case nfs3.NFS3ErrExist:
		return posix.New(posix.Exists, "file exists")
	case nfs3.NFS3ErrXdev:
		return posix.New(posix.CrossDevice, "cross-device link")
	case nfs3.NFS3ErrNotDir:
		return posix.New(posix.NotDir, "not a directory")
	case nfs3.NFS3ErrIsDir:
		return posix.New(posix.IsDir, "is a directory")
	case nfs3.NFS3ErrInval:
		return posix.New(posix.Invalid, "invalid argument")
	case nfs3.NFS3ErrFbig:
		return posix.New(posix.Invalid, "file too large")
	case nfs3.NFS3ErrNoSpc:
		return posix.New(posix.NoSpace, "no space left on device")
	case nfs3.NFS3ErrRofs:
		return posix.New(posix.ReadOnlyFS, "read-only filesystem")
	case nfs3.NFS3ErrNameTooLong:
		return posix.New(posix.NameTooLong, "file name too long")
	case nfs3.NFS3ErrNotEmpty:
		return posix.New(posix.NotEmpty, "directory not empty")
	case nfs3.NFS3ErrDquot:
		return posix.New(posix.Quota, "disk quota exceeded")
	case nfs3.NFS3ErrStale:
		return posix.New(posix.Stale, "stale file handle")
	case nfs3.NFS3ErrBadHandle:
		return posix.New(posix.Stale, "bad file handle")
	case nfs3.NFS3ErrBadCookie:
		return posix.New(posix.BadCookie, "bad directory cookie")
	case nfs3.NFS3ErrNotSupp:
		return posix.New(posix.Unsupported, "operation not supported")
	default:
		return posix.New(posix.IO, "nfs3 i/o error")
	}
}
