package nfsfs

import (
	"context"
	"sync"
	"time"

	"github.com/objfsd/objfsd/internal/nfs3"
	"github.com/objfsd/objfsd/internal/posix"
	"github.com/objfsd/objfsd/internal/vfsapi"
)

// File is one NFSv3-backed inode, grounded on original_source's
// NfsFile: a file handle plus a TTL-cached fattr3.
type File struct {
	fs *Filesystem

	mu       sync.Mutex
	fh       nfs3.FH3
	attr     nfs3.Fattr3
	attrTime time.Time

	// refCount is the number of open handles referencing this inode;
	// the cache (filesystem.go's evictUnbusy) never evicts an entry
	// while it is held, so every OpenFile sharing this handle keeps
	// observing the same attribute-cache state (spec.md §4.3).
	refCount int
}

var _ vfsapi.File = (*File)(nil)

func (f *File) Filesystem() vfsapi.Filesystem { return f.fs }

// Handle implements vfsapi.File.Handle. NFSv3 handles are already
// opaque wire-stable identifiers, so they pass through unchanged;
// original_source's NfsFile::handle() instead throws EOPNOTSUPP since
// the C++ abstract layer never needed a exportable handle for NFS
// mounts, but PFS composition here needs one to place NfsFS children
// under a mount point, so it is implemented rather than elided.
func (f *File) Handle() vfsapi.FileHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return vfsapi.FileHandle{Version: 1, Bytes: append([]byte(nil), f.fh...)}
}

// update applies a freshly fetched attribute and resets the TTL clock,
// mirroring NfsFile::update(fattr3).
func (f *File) update(attr nfs3.Fattr3, now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if attr.Fileid != 0 || attr.Type != 0 {
		f.attr = attr
		f.attrTime = now
	}
}

func (f *File) updatePostOp(p nfs3.PostOpAttr) {
	if p.Present {
		f.update(p.Attr, f.fs.clock())
	}
}

func (f *File) Access(ctx context.Context, cred posix.Cred, mode posix.AccessFlags) bool {
	var flags uint32
	if mode&posix.AccessRead != 0 {
		flags |= nfs3.Access3Read
	}
	if mode&posix.AccessWrite != 0 {
		flags |= nfs3.Access3Modify
	}
	if mode&posix.AccessExecute != 0 {
		f.mu.Lock()
		isDir := f.attr.Type == nfs3.NF3Dir
		f.mu.Unlock()
		if isDir {
			flags |= nfs3.Access3Lookup
		} else {
			flags |= nfs3.Access3Execute
		}
	}
	res, err := f.fs.prog.Access(f.fh, flags)
	if err != nil {
		return false
	}
	f.updatePostOp(res.Attributes)
	if res.Status != nfs3.NFS3OK {
		return false
	}
	return res.Access == flags
}

// Getattr issues at most one GETATTR per AttrTimeout window, per
// spec.md §4.3 and original_source's NfsFile::getattr.
func (f *File) Getattr(ctx context.Context) (posix.PosixAttr, error) {
	f.mu.Lock()
	stale := f.fs.clock().Sub(f.attrTime) > AttrTimeout
	fh := f.fh
	f.mu.Unlock()
	if stale {
		res, err := f.fs.prog.Getattr(fh)
		if err != nil {
			return posix.PosixAttr{}, err
		}
		if res.Status != nfs3.NFS3OK {
			return posix.PosixAttr{}, mapStatus(res.Status)
		}
		f.update(res.Attr, f.fs.clock())
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return fattrToPosix(f.attr), nil
}

// Setattr elides the call entirely when the staged mutation would not
// actually change anything cached, per original_source's
// NfsFile::setattr "don't bother" short-circuit.
func (f *File) Setattr(ctx context.Context, cred posix.Cred, mutate vfsapi.Mutator) error {
	var sm vfsapi.SetattrMutation
	mutate(&sm)

	f.mu.Lock()
	cur := f.attr
	fh := f.fh
	f.mu.Unlock()

	var sattr nfs3.Sattr3
	changed := false

	if sm.SetMode {
		sattr.SetMode, sattr.Mode = true, sm.Mode
		if sm.Mode != cur.Mode {
			changed = true
		}
	}
	if sm.SetUID {
		sattr.SetUID, sattr.UID = true, sm.UID
		if sm.UID != cur.UID {
			changed = true
		}
	}
	if sm.SetGID {
		sattr.SetGID, sattr.GID = true, sm.GID
		if sm.GID != cur.GID {
			changed = true
		}
	}
	if sm.SetSize {
		sattr.SetSize, sattr.Size = true, sm.Size
		if sm.Size != cur.Size {
			changed = true
		}
	}
	if sm.SetAtimeNow {
		sattr.SetAtime = nfs3.SetToServerTime
		changed = true
	} else if sm.SetAtime {
		sattr.SetAtime = nfs3.SetToClientTime
		sattr.Atime = goTimeToNfs(time.Unix(0, sm.Atime))
		if sattr.Atime != cur.Atime {
			changed = true
		}
	}
	if sm.SetMtimeNow {
		sattr.SetMtime = nfs3.SetToServerTime
		changed = true
	} else if sm.SetMtime {
		sattr.SetMtime = nfs3.SetToClientTime
		sattr.Mtime = goTimeToNfs(time.Unix(0, sm.Mtime))
		if sattr.Mtime != cur.Mtime {
			changed = true
		}
	}
	if !changed {
		return nil
	}

	res, err := f.fs.prog.Setattr(fh, sattr)
	if err != nil {
		return err
	}
	f.updatePostOp(res.ObjWcc.After)
	if res.Status != nfs3.NFS3OK {
		return mapStatus(res.Status)
	}
	return nil
}

func (f *File) Lookup(ctx context.Context, cred posix.Cred, name string) (vfsapi.File, error) {
	res, err := f.fs.prog.Lookup(f.fh, name)
	if err != nil {
		return nil, err
	}
	f.updatePostOp(res.DirAttributes)
	if res.Status != nfs3.NFS3OK {
		return nil, mapStatus(res.Status)
	}
	if res.ObjAttributes.Present {
		return f.fs.find(res.Object, &res.ObjAttributes.Attr), nil
	}
	return f.fs.findByHandle(res.Object)
}

func (f *File) Open(ctx context.Context, cred posix.Cred, name string, flags posix.OpenFlags, mutate vfsapi.Mutator) (vfsapi.OpenFile, error) {
	if !flags.Has(posix.OpenCreate) {
		child, err := f.Lookup(ctx, cred, name)
		if err != nil {
			return nil, err
		}
		return newOpenFile(child.(*File)), nil
	}

	var sm vfsapi.SetattrMutation
	if mutate != nil {
		mutate(&sm)
	}

	how := nfs3.CreateHow{Mode: nfs3.Unchecked}
	if flags.Has(posix.OpenExclusive) {
		how.Mode = nfs3.Exclusive
		how.Verf = nfs3.NowVerifier()
	} else {
		how.Attributes = mutationToSattr(sm)
	}

	res, err := f.fs.prog.Create(f.fh, name, how)
	if err != nil {
		return nil, err
	}
	f.updatePostOp(res.DirWcc.After)
	if res.Status != nfs3.NFS3OK {
		return nil, mapStatus(res.Status)
	}

	var child *File
	if res.Obj.Present {
		if res.ObjAttributes.Present {
			child = f.fs.find(res.Obj.Handle, &res.ObjAttributes.Attr)
		} else {
			child, err = f.fs.findByHandle(res.Obj.Handle)
			if err != nil {
				return nil, err
			}
		}
	} else {
		got, err := f.Lookup(ctx, cred, name)
		if err != nil {
			return nil, err
		}
		child = got.(*File)
	}

	if flags.Has(posix.OpenTruncate) {
		if err := child.Setattr(ctx, cred, func(sa *vfsapi.SetattrMutation) {
			sa.SetSize, sa.Size = true, 0
		}); err != nil {
			return nil, err
		}
	}
	if flags.Has(posix.OpenExclusive) {
		if err := child.Setattr(ctx, cred, mutate); err != nil {
			return nil, err
		}
	}
	return newOpenFile(child), nil
}

func (f *File) OpenSelf(ctx context.Context, cred posix.Cred, flags posix.OpenFlags) (vfsapi.OpenFile, error) {
	return newOpenFile(f), nil
}

func (f *File) Readlink(ctx context.Context, cred posix.Cred) (string, error) {
	res, err := f.fs.prog.Readlink(f.fh)
	if err != nil {
		return "", err
	}
	f.updatePostOp(res.SymlinkAttributes)
	if res.Status != nfs3.NFS3OK {
		return "", mapStatus(res.Status)
	}
	return res.Data, nil
}

func (f *File) Mkdir(ctx context.Context, cred posix.Cred, name string, mutate vfsapi.Mutator) (vfsapi.File, error) {
	var sm vfsapi.SetattrMutation
	if mutate != nil {
		mutate(&sm)
	}
	res, err := f.fs.prog.Mkdir(f.fh, name, mutationToSattr(sm))
	if err != nil {
		return nil, err
	}
	f.updatePostOp(res.DirWcc.After)
	if res.Status != nfs3.NFS3OK {
		return nil, mapStatus(res.Status)
	}
	return f.resolveCreated(ctx, cred, name, res)
}

func (f *File) Symlink(ctx context.Context, cred posix.Cred, name, target string, mutate vfsapi.Mutator) (vfsapi.File, error) {
	var sm vfsapi.SetattrMutation
	if mutate != nil {
		mutate(&sm)
	}
	res, err := f.fs.prog.Symlink(f.fh, name, target, mutationToSattr(sm))
	if err != nil {
		return nil, err
	}
	f.updatePostOp(res.DirWcc.After)
	if res.Status != nfs3.NFS3OK {
		return nil, mapStatus(res.Status)
	}
	return f.resolveCreated(ctx, cred, name, res)
}

func (f *File) Mkfifo(ctx context.Context, cred posix.Cred, name string, mutate vfsapi.Mutator) (vfsapi.File, error) {
	var sm vfsapi.SetattrMutation
	if mutate != nil {
		mutate(&sm)
	}
	res, err := f.fs.prog.Mknod(f.fh, name, nfs3.NF3Fifo, mutationToSattr(sm))
	if err != nil {
		return nil, err
	}
	f.updatePostOp(res.DirWcc.After)
	if res.Status != nfs3.NFS3OK {
		return nil, mapStatus(res.Status)
	}
	return f.resolveCreated(ctx, cred, name, res)
}

func (f *File) resolveCreated(ctx context.Context, cred posix.Cred, name string, res nfs3.CreateResult) (vfsapi.File, error) {
	if res.Obj.Present {
		if res.ObjAttributes.Present {
			return f.fs.find(res.Obj.Handle, &res.ObjAttributes.Attr), nil
		}
		return f.fs.findByHandle(res.Obj.Handle)
	}
	f.fs.log.Warn("create-type RPC returned no file handle, falling back to lookup")
	return f.Lookup(ctx, cred, name)
}

func (f *File) Remove(ctx context.Context, cred posix.Cred, name string) error {
	res, err := f.fs.prog.Remove(f.fh, name)
	if err != nil {
		return err
	}
	f.updatePostOp(res.DirWcc.After)
	return statusErr(res.Status)
}

func (f *File) Rmdir(ctx context.Context, cred posix.Cred, name string) error {
	res, err := f.fs.prog.Rmdir(f.fh, name)
	if err != nil {
		return err
	}
	f.updatePostOp(res.DirWcc.After)
	return statusErr(res.Status)
}

func (f *File) Rename(ctx context.Context, cred posix.Cred, toName string, fromDir vfsapi.File, fromName string) error {
	from, ok := fromDir.(*File)
	if !ok {
		return posix.New(posix.Invalid, "cross-filesystem rename")
	}
	res, err := f.fs.prog.Rename(from.fh, fromName, f.fh, toName)
	if err != nil {
		return err
	}
	from.updatePostOp(res.FromDirWcc.After)
	f.updatePostOp(res.ToDirWcc.After)
	return statusErr(res.Status)
}

func (f *File) Link(ctx context.Context, cred posix.Cred, name string, target vfsapi.File) error {
	src, ok := target.(*File)
	if !ok {
		return posix.New(posix.Invalid, "cross-filesystem link")
	}
	res, err := f.fs.prog.Link(src.fh, f.fh, name)
	if err != nil {
		return err
	}
	src.updatePostOp(res.FileAttributes)
	f.updatePostOp(res.LinkDirWcc.After)
	return statusErr(res.Status)
}

func (f *File) Readdir(ctx context.Context, cred posix.Cred, seek uint64) (vfsapi.DirectoryIterator, error) {
	return newDirectoryIterator(f, seek), nil
}

func (f *File) Fsstat(ctx context.Context, cred posix.Cred) (vfsapi.Fsattr, error) {
	sres, err := f.fs.prog.Fsstat(f.fh)
	if err != nil {
		return vfsapi.Fsattr{}, err
	}
	f.updatePostOp(sres.Attributes)
	if sres.Status != nfs3.NFS3OK {
		return vfsapi.Fsattr{}, mapStatus(sres.Status)
	}
	pres, err := f.fs.prog.Pathconf(f.fh)
	if err != nil {
		return vfsapi.Fsattr{}, err
	}
	f.updatePostOp(pres.Attributes)
	if pres.Status != nfs3.NFS3OK {
		return vfsapi.Fsattr{}, mapStatus(pres.Status)
	}
	return vfsapi.Fsattr{
		TotalBytes: sres.Tbytes,
		FreeBytes:  sres.Fbytes,
		AvailBytes: sres.Abytes,
		TotalFiles: sres.Tfiles,
		FreeFiles:  sres.Ffiles,
		AvailFiles: sres.Afiles,
		LinkMax:    pres.LinkMax,
		NameMax:    pres.NameMax,
	}, nil
}

func mutationToSattr(sm vfsapi.SetattrMutation) nfs3.Sattr3 {
	var sattr nfs3.Sattr3
	if sm.SetMode {
		sattr.SetMode, sattr.Mode = true, sm.Mode
	}
	if sm.SetUID {
		sattr.SetUID, sattr.UID = true, sm.UID
	}
	if sm.SetGID {
		sattr.SetGID, sattr.GID = true, sm.GID
	}
	if sm.SetSize {
		sattr.SetSize, sattr.Size = true, sm.Size
	}
	if sm.SetAtimeNow {
		sattr.SetAtime = nfs3.SetToServerTime
	} else if sm.SetAtime {
		sattr.SetAtime = nfs3.SetToClientTime
		sattr.Atime = goTimeToNfs(time.Unix(0, sm.Atime))
	}
	if sm.SetMtimeNow {
		sattr.SetMtime = nfs3.SetToServerTime
	} else if sm.SetMtime {
		sattr.SetMtime = nfs3.SetToClientTime
		sattr.Mtime = goTimeToNfs(time.Unix(0, sm.Mtime))
	}
	return sattr
}
