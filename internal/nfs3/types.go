// Package nfs3 implements the client side of NFSv3 (RFC 1813): wire
// types, the ONC RPC transport, and the MOUNT protocol client used to
// bootstrap a mount. Grounded on original_source's filesys/nfs3 (the
// shapes of fattr3/sattr3/the per-procedure args/res structs) and, for
// general RPC/XDR framing conventions, the other_examples/ dittofs
// handler files (protocol/nfs/v3 types, status codes).
package nfs3

import (
	"fmt"

	"github.com/objfsd/objfsd/internal/nfs3/xdr"
)

const (
	Program       uint32 = 100003
	Version3      uint32 = 3
	MountProgram  uint32 = 100005
	MountVersion3 uint32 = 3
)

// NFSv3 procedure numbers, RFC 1813 §3.3.
const (
	ProcNull        = 0
	ProcGetattr     = 1
	ProcSetattr     = 2
	ProcLookup      = 3
	ProcAccess      = 4
	ProcReadlink    = 5
	ProcRead        = 6
	ProcWrite       = 7
	ProcCreate      = 8
	ProcMkdir       = 9
	ProcSymlink     = 10
	ProcMknod       = 11
	ProcRemove      = 12
	ProcRmdir       = 13
	ProcRename      = 14
	ProcLink        = 15
	ProcReaddir     = 16
	ProcReaddirplus = 17
	ProcFsstat      = 18
	ProcFsinfo      = 19
	ProcPathconf    = 20
	ProcCommit      = 21
)

// MOUNT procedure numbers, RFC 1813 Appendix I.
const (
	MountProcNull    = 0
	MountProcMnt     = 1
	MountProcDump    = 2
	MountProcUmnt    = 3
	MountProcUmntAll = 4
	MountProcExport  = 5
)

// Status is the nfsstat3 wire value.
type Status uint32

const (
	NFS3OK             Status = 0
	NFS3ErrPerm        Status = 1
	NFS3ErrNoEnt       Status = 2
	NFS3ErrIO          Status = 5
	NFS3ErrNxio        Status = 6
	NFS3ErrAcces       Status = 13
	NFS3ErrExist       Status = 17
	NFS3ErrXdev        Status = 18
	NFS3ErrNodev       Status = 19
	NFS3ErrNotDir      Status = 20
	NFS3ErrIsDir       Status = 21
	NFS3ErrInval       Status = 22
	NFS3ErrFbig        Status = 27
	NFS3ErrNoSpc       Status = 28
	NFS3ErrRofs        Status = 30
	NFS3ErrMlink       Status = 31
	NFS3ErrNameTooLong Status = 63
	NFS3ErrNotEmpty    Status = 66
	NFS3ErrDquot       Status = 69
	NFS3ErrStale       Status = 70
	NFS3ErrRemote      Status = 71
	NFS3ErrBadHandle   Status = 10001
	NFS3ErrNotSync     Status = 10002
	NFS3ErrBadCookie   Status = 10003
	NFS3ErrNotSupp     Status = 10004
	NFS3ErrTooSmall    Status = 10005
	NFS3ErrServerFault Status = 10006
	NFS3ErrBadType     Status = 10007
	NFS3ErrJukebox     Status = 10008
)

func (s Status) Error() string { return fmt.Sprintf("nfs3: status %d", s) }

// FType3 is the ftype3 wire value.
type FType3 uint32

const (
	NF3Reg FType3 = iota + 1
	NF3Dir
	NF3Blk
	NF3Chr
	NF3Lnk
	NF3Sock
	NF3Fifo
)

// ACCESS3 bits, RFC 1813 §3.3.4.
const (
	Access3Read    uint32 = 0x0001
	Access3Lookup  uint32 = 0x0002
	Access3Modify  uint32 = 0x0004
	Access3Extend  uint32 = 0x0008
	Access3Delete  uint32 = 0x0010
	Access3Execute uint32 = 0x0020
)

// FSINFO properties bits, RFC 1813 §3.3.19.
const (
	FSFLink         uint32 = 0x0001
	FSFSymlink      uint32 = 0x0002
	FSFHomogeneous  uint32 = 0x0008
	FSFCanSetTime   uint32 = 0x0010
)

// createmode3, RFC 1813 §3.3.8.
const (
	Unchecked uint32 = iota
	Guarded
	Exclusive
)

// stable_how, RFC 1813 §3.3.7.
const (
	Unstable uint32 = iota
	DataSync
	FileSync
)

// FH3 is an opaque NFSv3 file handle, up to 64 bytes.
type FH3 []byte

// TimeVal3 is nfstime3.
type TimeVal3 struct {
	Seconds  uint32
	Nseconds uint32
}

func (t TimeVal3) encode(e *xdr.Encoder) {
	e.PutUint32(t.Seconds)
	e.PutUint32(t.Nseconds)
}

func decodeTimeVal3(d *xdr.Decoder) (TimeVal3, error) {
	s, err := d.GetUint32()
	if err != nil {
		return TimeVal3{}, err
	}
	n, err := d.GetUint32()
	if err != nil {
		return TimeVal3{}, err
	}
	return TimeVal3{Seconds: s, Nseconds: n}, nil
}

// Specdata3 carries major/minor device numbers for NF3CHR/NF3BLK.
type Specdata3 struct {
	Major uint32
	Minor uint32
}

// Fattr3 is the fattr3 wire struct, RFC 1813 §2.3.3.
type Fattr3 struct {
	Type     FType3
	Mode     uint32
	Nlink    uint32
	UID      uint32
	GID      uint32
	Size     uint64
	Used     uint64
	Rdev     Specdata3
	Fsid     uint64
	Fileid   uint64
	Atime    TimeVal3
	Mtime    TimeVal3
	Ctime    TimeVal3
}

func decodeFattr3(d *xdr.Decoder) (Fattr3, error) {
	var a Fattr3
	typ, err := d.GetUint32()
	if err != nil {
		return a, err
	}
	a.Type = FType3(typ)
	if a.Mode, err = d.GetUint32(); err != nil {
		return a, err
	}
	if a.Nlink, err = d.GetUint32(); err != nil {
		return a, err
	}
	if a.UID, err = d.GetUint32(); err != nil {
		return a, err
	}
	if a.GID, err = d.GetUint32(); err != nil {
		return a, err
	}
	if a.Size, err = d.GetUint64(); err != nil {
		return a, err
	}
	if a.Used, err = d.GetUint64(); err != nil {
		return a, err
	}
	if a.Rdev.Major, err = d.GetUint32(); err != nil {
		return a, err
	}
	if a.Rdev.Minor, err = d.GetUint32(); err != nil {
		return a, err
	}
	if a.Fsid, err = d.GetUint64(); err != nil {
		return a, err
	}
	if a.Fileid, err = d.GetUint64(); err != nil {
		return a, err
	}
	if a.Atime, err = decodeTimeVal3(d); err != nil {
		return a, err
	}
	if a.Mtime, err = decodeTimeVal3(d); err != nil {
		return a, err
	}
	if a.Ctime, err = decodeTimeVal3(d); err != nil {
		return a, err
	}
	return a, nil
}

// PostOpAttr is post_op_attr: attributes that may or may not follow.
type PostOpAttr struct {
	Present bool
	Attr    Fattr3
}

func decodePostOpAttr(d *xdr.Decoder) (PostOpAttr, error) {
	follows, err := d.GetBool()
	if err != nil || !follows {
		return PostOpAttr{}, err
	}
	a, err := decodeFattr3(d)
	return PostOpAttr{Present: true, Attr: a}, err
}

// WccAttr is the pre-op subset used in wcc_data.
type WccAttr struct {
	Size  uint64
	Mtime TimeVal3
	Ctime TimeVal3
}

// WccData is wcc_data: optional pre- and post-op attributes describing
// the effect of a mutating call on a directory or file.
type WccData struct {
	Before PostOpWccAttr
	After  PostOpAttr
}

type PostOpWccAttr struct {
	Present bool
	Attr    WccAttr
}

func decodeWccData(d *xdr.Decoder) (WccData, error) {
	var w WccData
	present, err := d.GetBool()
	if err != nil {
		return w, err
	}
	if present {
		var a WccAttr
		if a.Size, err = d.GetUint64(); err != nil {
			return w, err
		}
		if a.Mtime, err = decodeTimeVal3(d); err != nil {
			return w, err
		}
		if a.Ctime, err = decodeTimeVal3(d); err != nil {
			return w, err
		}
		w.Before = PostOpWccAttr{Present: true, Attr: a}
	}
	w.After, err = decodePostOpAttr(d)
	return w, err
}

// PostOpFH3 is post_op_fh3.
type PostOpFH3 struct {
	Present bool
	Handle  FH3
}

func decodePostOpFH3(d *xdr.Decoder) (PostOpFH3, error) {
	follows, err := d.GetBool()
	if err != nil || !follows {
		return PostOpFH3{}, err
	}
	fh, err := d.GetOpaque(64)
	return PostOpFH3{Present: true, Handle: FH3(fh)}, err
}

// Sattr3 is sattr3: the staged-mutation wire struct for SETATTR/CREATE/
// MKDIR/SYMLINK attribute arguments. Each field carries its own
// set_it discriminant.
type Sattr3 struct {
	SetMode bool
	Mode    uint32

	SetUID bool
	UID    uint32

	SetGID bool
	GID    uint32

	SetSize bool
	Size    uint64

	SetAtime  uint32 // 0=don't set, 1=SET_TO_SERVER_TIME, 2=SET_TO_CLIENT_TIME
	Atime     TimeVal3

	SetMtime uint32
	Mtime    TimeVal3
}

const (
	DontChange     uint32 = 0
	SetToServerTime uint32 = 1
	SetToClientTime uint32 = 2
)

func (s Sattr3) encode(e *xdr.Encoder) {
	e.PutBool(s.SetMode)
	if s.SetMode {
		e.PutUint32(s.Mode)
	}
	e.PutBool(s.SetUID)
	if s.SetUID {
		e.PutUint32(s.UID)
	}
	e.PutBool(s.SetGID)
	if s.SetGID {
		e.PutUint32(s.GID)
	}
	e.PutBool(s.SetSize)
	if s.SetSize {
		e.PutUint64(s.Size)
	}
	e.PutUint32(s.SetAtime)
	if s.SetAtime == SetToClientTime {
		s.Atime.encode(e)
	}
	e.PutUint32(s.SetMtime)
	if s.SetMtime == SetToClientTime {
		s.Mtime.encode(e)
	}
}

func encodeDirOpArgs(e *xdr.Encoder, dir FH3, name string) {
	e.PutOpaque(dir)
	e.PutString(name)
}

// DirEntry3Plus is one READDIRPLUS entry.
type DirEntry3Plus struct {
	FileID     uint64
	Name       string
	Cookie     uint64
	Attr       PostOpAttr
	Handle     PostOpFH3
}
