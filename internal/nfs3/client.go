package nfs3

import (
	"time"

	"github.com/objfsd/objfsd/internal/nfs3/xdr"
)

// Program3 is a synchronous NFSv3 RPC client, one per mounted export,
// grounded on original_source's INfsProgram3/NfsProgram3<Client>: each
// method there maps one-to-one onto these, minus the template
// parameterization over auth flavors (this client always uses
// AUTH_SYS, per spec.md's external-interface scope).
type Program3 struct {
	rpc *Client
}

func NewProgram3(rpc *Client) *Program3 { return &Program3{rpc: rpc} }

func (p *Program3) call(proc uint32, argBody []byte) (*xdr.Decoder, error) {
	res, err := p.rpc.Call(Program, Version3, proc, argBody)
	if err != nil {
		return nil, err
	}
	return xdr.NewDecoder(res), nil
}

type GetattrResult struct {
	Status Status
	Attr   Fattr3
}

func (p *Program3) Getattr(fh FH3) (GetattrResult, error) {
	e := xdr.NewEncoder()
	e.PutOpaque(fh)
	d, err := p.call(ProcGetattr, e.Bytes())
	if err != nil {
		return GetattrResult{}, err
	}
	var r GetattrResult
	stat, err := d.GetUint32()
	if err != nil {
		return r, err
	}
	r.Status = Status(stat)
	if r.Status == NFS3OK {
		r.Attr, err = decodeFattr3(d)
	}
	return r, err
}

type SetattrResult struct {
	Status  Status
	ObjWcc  WccData
}

func (p *Program3) Setattr(fh FH3, attr Sattr3) (SetattrResult, error) {
	e := xdr.NewEncoder()
	e.PutOpaque(fh)
	attr.encode(e)
	e.PutBool(false) // guard.check = false: never compare ctime (spec.md §4.3)
	d, err := p.call(ProcSetattr, e.Bytes())
	if err != nil {
		return SetattrResult{}, err
	}
	var r SetattrResult
	stat, err := d.GetUint32()
	if err != nil {
		return r, err
	}
	r.Status = Status(stat)
	r.ObjWcc, err = decodeWccData(d)
	return r, err
}

type LookupResult struct {
	Status        Status
	Object        FH3
	ObjAttributes PostOpAttr
	DirAttributes PostOpAttr
}

func (p *Program3) Lookup(dir FH3, name string) (LookupResult, error) {
	e := xdr.NewEncoder()
	encodeDirOpArgs(e, dir, name)
	d, err := p.call(ProcLookup, e.Bytes())
	if err != nil {
		return LookupResult{}, err
	}
	var r LookupResult
	stat, err := d.GetUint32()
	if err != nil {
		return r, err
	}
	r.Status = Status(stat)
	if r.Status == NFS3OK {
		obj, err := d.GetOpaque(64)
		if err != nil {
			return r, err
		}
		r.Object = FH3(obj)
		if r.ObjAttributes, err = decodePostOpAttr(d); err != nil {
			return r, err
		}
		r.DirAttributes, err = decodePostOpAttr(d)
		return r, err
	}
	r.DirAttributes, err = decodePostOpAttr(d)
	return r, err
}

type AccessResult struct {
	Status     Status
	Attributes PostOpAttr
	Access     uint32
}

func (p *Program3) Access(fh FH3, access uint32) (AccessResult, error) {
	e := xdr.NewEncoder()
	e.PutOpaque(fh)
	e.PutUint32(access)
	d, err := p.call(ProcAccess, e.Bytes())
	if err != nil {
		return AccessResult{}, err
	}
	var r AccessResult
	stat, err := d.GetUint32()
	if err != nil {
		return r, err
	}
	r.Status = Status(stat)
	if r.Attributes, err = decodePostOpAttr(d); err != nil {
		return r, err
	}
	if r.Status == NFS3OK {
		r.Access, err = d.GetUint32()
	}
	return r, err
}

type ReadlinkResult struct {
	Status             Status
	SymlinkAttributes  PostOpAttr
	Data               string
}

func (p *Program3) Readlink(fh FH3) (ReadlinkResult, error) {
	e := xdr.NewEncoder()
	e.PutOpaque(fh)
	d, err := p.call(ProcReadlink, e.Bytes())
	if err != nil {
		return ReadlinkResult{}, err
	}
	var r ReadlinkResult
	stat, err := d.GetUint32()
	if err != nil {
		return r, err
	}
	r.Status = Status(stat)
	if r.SymlinkAttributes, err = decodePostOpAttr(d); err != nil {
		return r, err
	}
	if r.Status == NFS3OK {
		r.Data, err = d.GetString(1024)
	}
	return r, err
}

type ReadResult struct {
	Status         Status
	FileAttributes PostOpAttr
	Count          uint32
	EOF            bool
	Data           []byte
}

func (p *Program3) Read(fh FH3, offset uint64, count uint32) (ReadResult, error) {
	e := xdr.NewEncoder()
	e.PutOpaque(fh)
	e.PutUint64(offset)
	e.PutUint32(count)
	d, err := p.call(ProcRead, e.Bytes())
	if err != nil {
		return ReadResult{}, err
	}
	var r ReadResult
	stat, err := d.GetUint32()
	if err != nil {
		return r, err
	}
	r.Status = Status(stat)
	if r.FileAttributes, err = decodePostOpAttr(d); err != nil {
		return r, err
	}
	if r.Status == NFS3OK {
		if r.Count, err = d.GetUint32(); err != nil {
			return r, err
		}
		if r.EOF, err = d.GetBool(); err != nil {
			return r, err
		}
		r.Data, err = d.GetOpaque(int(count) + 4)
	}
	return r, err
}

type WriteResult struct {
	Status   Status
	FileWcc  WccData
	Count    uint32
	Committed uint32
}

func (p *Program3) Write(fh FH3, offset uint64, data []byte, stable uint32) (WriteResult, error) {
	e := xdr.NewEncoder()
	e.PutOpaque(fh)
	e.PutUint64(offset)
	e.PutUint32(uint32(len(data)))
	e.PutUint32(stable)
	e.PutOpaque(data)
	d, err := p.call(ProcWrite, e.Bytes())
	if err != nil {
		return WriteResult{}, err
	}
	var r WriteResult
	stat, err := d.GetUint32()
	if err != nil {
		return r, err
	}
	r.Status = Status(stat)
	if r.FileWcc, err = decodeWccData(d); err != nil {
		return r, err
	}
	if r.Status == NFS3OK {
		if r.Count, err = d.GetUint32(); err != nil {
			return r, err
		}
		if r.Committed, err = d.GetUint32(); err != nil {
			return r, err
		}
		_, err = d.GetFixedOpaque(8) // writeverf3
	}
	return r, err
}

type CreateHow struct {
	Mode       uint32
	Attributes Sattr3
	Verf       [8]byte
}

type CreateResult struct {
	Status         Status
	Obj            PostOpFH3
	ObjAttributes  PostOpAttr
	DirWcc         WccData
}

func (p *Program3) Create(dir FH3, name string, how CreateHow) (CreateResult, error) {
	e := xdr.NewEncoder()
	encodeDirOpArgs(e, dir, name)
	e.PutUint32(how.Mode)
	if how.Mode == Exclusive {
		e.PutFixedOpaque(how.Verf[:])
	} else {
		how.Attributes.encode(e)
	}
	return decodeCreateLike(p, ProcCreate, e.Bytes())
}

func (p *Program3) Mkdir(dir FH3, name string, attr Sattr3) (CreateResult, error) {
	e := xdr.NewEncoder()
	encodeDirOpArgs(e, dir, name)
	attr.encode(e)
	return decodeCreateLike(p, ProcMkdir, e.Bytes())
}

func (p *Program3) Symlink(dir FH3, name string, target string, attr Sattr3) (CreateResult, error) {
	e := xdr.NewEncoder()
	encodeDirOpArgs(e, dir, name)
	attr.encode(e)
	e.PutString(target)
	return decodeCreateLike(p, ProcSymlink, e.Bytes())
}

func (p *Program3) Mknod(dir FH3, name string, ftype FType3, attr Sattr3) (CreateResult, error) {
	e := xdr.NewEncoder()
	encodeDirOpArgs(e, dir, name)
	e.PutUint32(uint32(ftype))
	attr.encode(e)
	return decodeCreateLike(p, ProcMknod, e.Bytes())
}

func decodeCreateLike(p *Program3, proc uint32, argBody []byte) (CreateResult, error) {
	d, err := p.call(proc, argBody)
	if err != nil {
		return CreateResult{}, err
	}
	var r CreateResult
	stat, err := d.GetUint32()
	if err != nil {
		return r, err
	}
	r.Status = Status(stat)
	if r.Status == NFS3OK {
		if r.Obj, err = decodePostOpFH3(d); err != nil {
			return r, err
		}
		if r.ObjAttributes, err = decodePostOpAttr(d); err != nil {
			return r, err
		}
	}
	r.DirWcc, err = decodeWccData(d)
	return r, err
}

type RemoveResult struct {
	Status Status
	DirWcc WccData
}

func (p *Program3) Remove(dir FH3, name string) (RemoveResult, error) {
	return removeLike(p, ProcRemove, dir, name)
}

func (p *Program3) Rmdir(dir FH3, name string) (RemoveResult, error) {
	return removeLike(p, ProcRmdir, dir, name)
}

func removeLike(p *Program3, proc uint32, dir FH3, name string) (RemoveResult, error) {
	e := xdr.NewEncoder()
	encodeDirOpArgs(e, dir, name)
	d, err := p.call(proc, e.Bytes())
	if err != nil {
		return RemoveResult{}, err
	}
	var r RemoveResult
	stat, err := d.GetUint32()
	if err != nil {
		return r, err
	}
	r.Status = Status(stat)
	r.DirWcc, err = decodeWccData(d)
	return r, err
}

type RenameResult struct {
	Status      Status
	FromDirWcc  WccData
	ToDirWcc    WccData
}

func (p *Program3) Rename(fromDir FH3, fromName string, toDir FH3, toName string) (RenameResult, error) {
	e := xdr.NewEncoder()
	encodeDirOpArgs(e, fromDir, fromName)
	encodeDirOpArgs(e, toDir, toName)
	d, err := p.call(ProcRename, e.Bytes())
	if err != nil {
		return RenameResult{}, err
	}
	var r RenameResult
	stat, err := d.GetUint32()
	if err != nil {
		return r, err
	}
	r.Status = Status(stat)
	if r.FromDirWcc, err = decodeWccData(d); err != nil {
		return r, err
	}
	r.ToDirWcc, err = decodeWccData(d)
	return r, err
}

type LinkResult struct {
	Status        Status
	FileAttributes PostOpAttr
	LinkDirWcc    WccData
}

func (p *Program3) Link(fh FH3, dir FH3, name string) (LinkResult, error) {
	e := xdr.NewEncoder()
	e.PutOpaque(fh)
	encodeDirOpArgs(e, dir, name)
	d, err := p.call(ProcLink, e.Bytes())
	if err != nil {
		return LinkResult{}, err
	}
	var r LinkResult
	stat, err := d.GetUint32()
	if err != nil {
		return r, err
	}
	r.Status = Status(stat)
	if r.FileAttributes, err = decodePostOpAttr(d); err != nil {
		return r, err
	}
	r.LinkDirWcc, err = decodeWccData(d)
	return r, err
}

type ReaddirplusResult struct {
	Status      Status
	DirAttributes PostOpAttr
	CookieVerf  uint64
	Entries     []DirEntry3Plus
	EOF         bool
}

func (p *Program3) Readdirplus(dir FH3, cookie uint64, cookieverf uint64, dircount, maxcount uint32) (ReaddirplusResult, error) {
	e := xdr.NewEncoder()
	e.PutOpaque(dir)
	e.PutUint64(cookie)
	e.PutUint64(cookieverf)
	e.PutUint32(dircount)
	e.PutUint32(maxcount)
	d, err := p.call(ProcReaddirplus, e.Bytes())
	if err != nil {
		return ReaddirplusResult{}, err
	}
	var r ReaddirplusResult
	stat, err := d.GetUint32()
	if err != nil {
		return r, err
	}
	r.Status = Status(stat)
	if r.DirAttributes, err = decodePostOpAttr(d); err != nil {
		return r, err
	}
	if r.Status != NFS3OK {
		return r, nil
	}
	if r.CookieVerf, err = d.GetUint64(); err != nil {
		return r, err
	}
	for {
		more, err := d.GetBool()
		if err != nil {
			return r, err
		}
		if !more {
			break
		}
		var ent DirEntry3Plus
		if ent.FileID, err = d.GetUint64(); err != nil {
			return r, err
		}
		if ent.Name, err = d.GetString(255); err != nil {
			return r, err
		}
		if ent.Cookie, err = d.GetUint64(); err != nil {
			return r, err
		}
		if ent.Attr, err = decodePostOpAttr(d); err != nil {
			return r, err
		}
		if ent.Handle, err = decodePostOpFH3(d); err != nil {
			return r, err
		}
		r.Entries = append(r.Entries, ent)
	}
	r.EOF, err = d.GetBool()
	return r, err
}

type FsstatResult struct {
	Status     Status
	Attributes PostOpAttr
	Tbytes     uint64
	Fbytes     uint64
	Abytes     uint64
	Tfiles     uint64
	Ffiles     uint64
	Afiles     uint64
	Invarsec   uint32
}

func (p *Program3) Fsstat(fh FH3) (FsstatResult, error) {
	e := xdr.NewEncoder()
	e.PutOpaque(fh)
	d, err := p.call(ProcFsstat, e.Bytes())
	if err != nil {
		return FsstatResult{}, err
	}
	var r FsstatResult
	stat, err := d.GetUint32()
	if err != nil {
		return r, err
	}
	r.Status = Status(stat)
	if r.Attributes, err = decodePostOpAttr(d); err != nil {
		return r, err
	}
	if r.Status != NFS3OK {
		return r, nil
	}
	if r.Tbytes, err = d.GetUint64(); err != nil {
		return r, err
	}
	if r.Fbytes, err = d.GetUint64(); err != nil {
		return r, err
	}
	if r.Abytes, err = d.GetUint64(); err != nil {
		return r, err
	}
	if r.Tfiles, err = d.GetUint64(); err != nil {
		return r, err
	}
	if r.Ffiles, err = d.GetUint64(); err != nil {
		return r, err
	}
	if r.Afiles, err = d.GetUint64(); err != nil {
		return r, err
	}
	r.Invarsec, err = d.GetUint32()
	return r, err
}

type FsinfoResult struct {
	Status      Status
	Attributes  PostOpAttr
	Rtmax       uint32
	Rtpref      uint32
	Rtmult      uint32
	Wtmax       uint32
	Wtpref      uint32
	Wtmult      uint32
	Dtpref      uint32
	Maxfilesize uint64
	TimeDelta   TimeVal3
	Properties  uint32
}

func (p *Program3) Fsinfo(fh FH3) (FsinfoResult, error) {
	e := xdr.NewEncoder()
	e.PutOpaque(fh)
	d, err := p.call(ProcFsinfo, e.Bytes())
	if err != nil {
		return FsinfoResult{}, err
	}
	var r FsinfoResult
	stat, err := d.GetUint32()
	if err != nil {
		return r, err
	}
	r.Status = Status(stat)
	if r.Attributes, err = decodePostOpAttr(d); err != nil {
		return r, err
	}
	if r.Status != NFS3OK {
		return r, nil
	}
	if r.Rtmax, err = d.GetUint32(); err != nil {
		return r, err
	}
	if r.Rtpref, err = d.GetUint32(); err != nil {
		return r, err
	}
	if r.Rtmult, err = d.GetUint32(); err != nil {
		return r, err
	}
	if r.Wtmax, err = d.GetUint32(); err != nil {
		return r, err
	}
	if r.Wtpref, err = d.GetUint32(); err != nil {
		return r, err
	}
	if r.Wtmult, err = d.GetUint32(); err != nil {
		return r, err
	}
	if r.Dtpref, err = d.GetUint32(); err != nil {
		return r, err
	}
	if r.Maxfilesize, err = d.GetUint64(); err != nil {
		return r, err
	}
	if r.TimeDelta, err = decodeTimeVal3(d); err != nil {
		return r, err
	}
	r.Properties, err = d.GetUint32()
	return r, err
}

type PathconfResult struct {
	Status          Status
	Attributes      PostOpAttr
	LinkMax         uint32
	NameMax         uint32
	NoTrunc         bool
	ChownRestricted bool
	CaseInsensitive bool
	CasePreserving  bool
}

func (p *Program3) Pathconf(fh FH3) (PathconfResult, error) {
	e := xdr.NewEncoder()
	e.PutOpaque(fh)
	d, err := p.call(ProcPathconf, e.Bytes())
	if err != nil {
		return PathconfResult{}, err
	}
	var r PathconfResult
	stat, err := d.GetUint32()
	if err != nil {
		return r, err
	}
	r.Status = Status(stat)
	if r.Attributes, err = decodePostOpAttr(d); err != nil {
		return r, err
	}
	if r.Status != NFS3OK {
		return r, nil
	}
	if r.LinkMax, err = d.GetUint32(); err != nil {
		return r, err
	}
	if r.NameMax, err = d.GetUint32(); err != nil {
		return r, err
	}
	if r.NoTrunc, err = d.GetBool(); err != nil {
		return r, err
	}
	if r.ChownRestricted, err = d.GetBool(); err != nil {
		return r, err
	}
	if r.CaseInsensitive, err = d.GetBool(); err != nil {
		return r, err
	}
	r.CasePreserving, err = d.GetBool()
	return r, err
}

type CommitResult struct {
	Status  Status
	FileWcc WccData
}

func (p *Program3) Commit(fh FH3, offset uint64, count uint32) (CommitResult, error) {
	e := xdr.NewEncoder()
	e.PutOpaque(fh)
	e.PutUint64(offset)
	e.PutUint32(count)
	d, err := p.call(ProcCommit, e.Bytes())
	if err != nil {
		return CommitResult{}, err
	}
	var r CommitResult
	stat, err := d.GetUint32()
	if err != nil {
		return r, err
	}
	r.Status = Status(stat)
	if r.FileWcc, err = decodeWccData(d); err != nil {
		return r, err
	}
	return r, err
}

// NowVerifier produces an 8-byte EXCLUSIVE-create verifier from the
// current time, matching NfsFile::open's verf construction.
func NowVerifier() [8]byte {
	var v [8]byte
	n := uint64(time.Now().UnixNano())
	for i := 0; i < 8; i++ {
		v[i] = byte(n >> (8 * i))
	}
	return v
}
