// Package posix holds the POSIX-flavoured value types shared by every
// filesystem implementation: attributes, credentials, mode bits and the
// typed error kinds of the abstract filesystem contract.
package posix

import (
	"time"

	"golang.org/x/sys/unix"
)

// FileType is the type of a filesystem object.
type FileType int

const (
	TypeFile FileType = iota
	TypeDirectory
	TypeBlockDev
	TypeCharDev
	TypeSymlink
	TypeSocket
	TypeFifo
)

func (t FileType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDirectory:
		return "directory"
	case TypeBlockDev:
		return "blockdev"
	case TypeCharDev:
		return "chardev"
	case TypeSymlink:
		return "symlink"
	case TypeSocket:
		return "socket"
	case TypeFifo:
		return "fifo"
	default:
		return "unknown"
	}
}

// Mode bit constants, POSIX layout: 4 bits of type-ish flags (setuid,
// setgid, sticky) followed by three rwx triples for user/group/other.
const (
	ModeSetUID = unix.S_ISUID
	ModeSetGID = unix.S_ISGID
	ModeSticky = unix.S_ISVTX

	ModeRUser = 0o400
	ModeWUser = 0o200
	ModeXUser = 0o100

	ModeRGroup = 0o040
	ModeWGroup = 0o020
	ModeXGroup = 0o010

	ModeROther = 0o004
	ModeWOther = 0o002
	ModeXOther = 0o001

	ModePerm = 0o7777
)

// AccessFlags are the bits passed to File.access and used internally by
// CheckAccess. They are bitwise-or'd together.
type AccessFlags int

const (
	AccessRead AccessFlags = 1 << iota
	AccessWrite
	AccessExecute
)

const AccessAll = AccessRead | AccessWrite | AccessExecute

// OpenFlags are the bits passed to File.Open.
type OpenFlags int

const (
	OpenRead OpenFlags = 1 << iota
	OpenWrite
	OpenCreate
	OpenTruncate
	OpenExclusive
	OpenSHLock
	OpenEXLock
)

func (f OpenFlags) Has(bit OpenFlags) bool { return f&bit != 0 }

// RDWR is shorthand for OpenRead|OpenWrite, matching the spec's naming.
const OpenRDWR = OpenRead | OpenWrite

// PosixAttr is the inode body: the POSIX-visible attributes of a
// filesystem object, as specified in spec.md §3.
type PosixAttr struct {
	Type      FileType
	Mode      uint32
	Nlink     uint32
	UID       uint32
	GID       uint32
	Size      uint64
	Atime     time.Time
	Mtime     time.Time
	Ctime     time.Time
	Birthtime time.Time
}

// Cred is the caller's credential used for access checks.
type Cred struct {
	UID        uint32
	GID        uint32
	Groups     []uint32
	Privileged bool
}

// HasGroup reports whether gid is the credential's primary or a
// supplementary group.
func (c Cred) HasGroup(gid uint32) bool {
	if c.GID == gid {
		return true
	}
	for _, g := range c.Groups {
		if g == gid {
			return true
		}
	}
	return false
}

// CheckAccess implements the POSIX owner/group/other triple check:
// the owner triple applies if cred.UID == uid, the group triple if the
// credential holds gid, otherwise the other triple. A privileged
// credential always succeeds. Mirrors original_source's
// filesys::CheckAccess.
func CheckAccess(uid, gid uint32, mode uint32, cred Cred, requested AccessFlags) error {
	var granted AccessFlags
	switch {
	case cred.UID == uid:
		if mode&ModeRUser != 0 {
			granted |= AccessRead
		}
		if mode&ModeWUser != 0 {
			granted |= AccessWrite
		}
		if mode&ModeXUser != 0 {
			granted |= AccessExecute
		}
	case cred.HasGroup(gid):
		if mode&ModeRGroup != 0 {
			granted |= AccessRead
		}
		if mode&ModeWGroup != 0 {
			granted |= AccessWrite
		}
		if mode&ModeXGroup != 0 {
			granted |= AccessExecute
		}
	default:
		if mode&ModeROther != 0 {
			granted |= AccessRead
		}
		if mode&ModeWOther != 0 {
			granted |= AccessWrite
		}
		if mode&ModeXOther != 0 {
			granted |= AccessExecute
		}
	}
	if requested&granted == requested {
		return nil
	}
	if cred.Privileged {
		return nil
	}
	return New(AccessDenied, "access denied")
}
