package objfs

import (
	"context"
	"sync"

	"github.com/objfsd/objfsd/internal/kv"
	"github.com/objfsd/objfsd/internal/posix"
	"github.com/objfsd/objfsd/internal/vfsapi"
)

// objfsNameMax matches FreeBSD's default NAME_MAX, per objfs.h's
// OBJFS_NAME_MAX.
const objfsNameMax = 255

// File is one ObjFS inode. Grounded on objfs.h/objfile.cpp's ObjFile.
type File struct {
	fs *Filesystem

	mu   sync.Mutex
	meta fileMeta

	// refCount is the number of open handles referencing this inode.
	// zombie marks an inode whose last directory link was removed while
	// refCount was still > 0: its data and metadata are purged only once
	// refCount returns to zero (spec.md's unlink-while-open handling).
	refCount int
	zombie   bool
}

var _ vfsapi.File = (*File)(nil)

func (f *File) Filesystem() vfsapi.Filesystem { return f.fs }

func (f *File) fileId() vfsapi.FileId {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meta.FileId
}

// Handle implements vfsapi.File: fsid (16 bytes) followed by the
// 8-byte big-endian FileId, mirroring ObjFile::handle.
func (f *File) Handle() vfsapi.FileHandle {
	fsid := f.fs.Fsid()
	id := f.fileId()
	b := make([]byte, 16+8)
	copy(b, fsid[:])
	putUint64(b[16:], uint64(id))
	return vfsapi.FileHandle{Version: 1, Bytes: b}
}

func (f *File) Access(ctx context.Context, cred posix.Cred, mode posix.AccessFlags) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checkAccessLocked(cred, mode) == nil
}

func (f *File) checkAccessLocked(cred posix.Cred, mode posix.AccessFlags) error {
	return posix.CheckAccess(f.meta.Attr.UID, f.meta.Attr.GID, f.meta.Attr.Mode, cred, mode)
}

// checkSticky enforces the restricted-deletion (sticky) bit: if this
// directory has the sticky bit set, only the owner of child (or the
// directory's owner, or a privileged caller) may remove/rename it.
// Grounded on objfile.cpp's ObjFile::checkSticky.
func (f *File) checkSticky(cred posix.Cred, child *File) error {
	if cred.Privileged {
		return nil
	}
	if f.meta.Attr.Mode&posix.ModeSticky == 0 {
		return nil
	}
	if cred.UID == child.meta.Attr.UID || cred.UID == f.meta.Attr.UID {
		return nil
	}
	return posix.New(posix.Perm, "sticky directory: not owner")
}

func (f *File) Getattr(ctx context.Context) (posix.PosixAttr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meta.Attr, nil
}

func (f *File) Setattr(ctx context.Context, cred posix.Cred, mutate vfsapi.Mutator) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	oldSize := f.meta.Attr.Size
	sa := &vfsapi.SetattrMutation{}
	mutate(sa)
	if err := f.applySetattr(cred, sa); err != nil {
		return err
	}
	f.meta.Attr.Ctime = f.fs.clock()

	txn := f.fs.store.BeginTransaction()
	if f.meta.Attr.Size != oldSize {
		if err := f.truncateLocked(txn, oldSize, f.meta.Attr.Size); err != nil {
			return err
		}
	}
	if err := f.writeMeta(txn); err != nil {
		return err
	}
	return f.fs.store.Commit(ctx, txn)
}

// applySetattr applies the requested fields, enforcing that only the
// owner (or a privileged caller) may change mode/uid/gid, per
// spec.md's setattr permission rules.
func (f *File) applySetattr(cred posix.Cred, sa *vfsapi.SetattrMutation) error {
	isOwner := cred.Privileged || cred.UID == f.meta.Attr.UID
	if (sa.SetMode || sa.SetUID || sa.SetGID) && !isOwner {
		return posix.New(posix.Perm, "only owner may change mode/uid/gid")
	}
	if sa.SetMode {
		f.meta.Attr.Mode = sa.Mode & posix.ModePerm
	}
	if sa.SetUID {
		f.meta.Attr.UID = sa.UID
	}
	if sa.SetGID {
		f.meta.Attr.GID = sa.GID
	}
	if sa.SetSize {
		f.meta.Attr.Size = sa.Size
	}
	if sa.SetMtimeNow {
		f.meta.Attr.Mtime = f.fs.clock()
	} else if sa.SetMtime {
		f.meta.Attr.Mtime = unixNanoToTime(sa.Mtime)
	}
	if sa.SetAtimeNow {
		f.meta.Attr.Atime = f.fs.clock()
	} else if sa.SetAtime {
		f.meta.Attr.Atime = unixNanoToTime(sa.Atime)
	}
	return nil
}

func (f *File) Lookup(ctx context.Context, cred posix.Cred, name string) (vfsapi.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkAccessLocked(cred, posix.AccessExecute); err != nil {
		return nil, err
	}
	return f.lookupInternal(name)
}

// lookupInternal resolves name within this directory. Caller holds
// f.mu. Grounded on ObjFile::lookupInternal.
func (f *File) lookupInternal(name string) (*File, error) {
	if len(name) > objfsNameMax {
		return nil, posix.New(posix.NameTooLong, "name too long")
	}
	if f.meta.Attr.Type != posix.TypeDirectory {
		return nil, posix.New(posix.NotDir, "not a directory")
	}
	val, err := f.fs.dirNS.Get(dirKey(f.meta.FileId, name))
	if err != nil {
		return nil, posix.Wrap(posix.NotFound, err, "no such file or directory")
	}
	id, err := decodeDirEntry(val)
	if err != nil {
		return nil, err
	}
	return f.fs.find(id)
}

func (f *File) Open(ctx context.Context, cred posix.Cred, name string, flags posix.OpenFlags, mutate vfsapi.Mutator) (vfsapi.OpenFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkAccessLocked(cred, posix.AccessExecute); err != nil {
		return nil, err
	}

	var child *File
	var created bool
	if flags.Has(posix.OpenCreate) {
		c, err := f.lookupInternal(name)
		if err != nil {
			if posix.KindOf(err) != posix.NotFound {
				return nil, err
			}
			c, err = f.createNewFile(ctx, cred, posix.TypeFile, name, mutate, nil)
			if err != nil {
				return nil, err
			}
			created = true
		}
		child = c
		if flags.Has(posix.OpenExclusive) && !created {
			return nil, posix.New(posix.Exists, "file exists")
		}
	} else {
		c, err := f.lookupInternal(name)
		if err != nil {
			return nil, err
		}
		child = c
	}

	if !created {
		var accmode posix.AccessFlags
		if flags.Has(posix.OpenRead) {
			accmode |= posix.AccessRead
		}
		if flags.Has(posix.OpenWrite) {
			accmode |= posix.AccessWrite
		}
		f.lockOther(child)
		err := child.checkAccessLocked(cred, accmode)
		f.unlockOther(child)
		if err != nil {
			return nil, err
		}
	}

	if !created && flags.Has(posix.OpenTruncate) {
		f.lockOther(child)
		if child.meta.Attr.Size > 0 {
			txn := f.fs.store.BeginTransaction()
			if err := child.truncateLocked(txn, child.meta.Attr.Size, 0); err != nil {
				f.unlockOther(child)
				return nil, err
			}
			child.meta.Attr.Size = 0
			child.meta.Attr.Ctime = f.fs.clock()
			if err := child.writeMeta(txn); err != nil {
				f.unlockOther(child)
				return nil, err
			}
			if err := f.fs.store.Commit(ctx, txn); err != nil {
				f.unlockOther(child)
				return nil, err
			}
		}
		f.unlockOther(child)
	}

	f.lockOther(child)
	child.refCount++
	f.unlockOther(child)
	return newOpenFile(cred, child, flags), nil
}

// lockOther locks other's mutex unless it is this same inode (e.g.
// looking up "." or ".."), since File's mutex is not reentrant.
func (f *File) lockOther(other *File) {
	if other != f {
		other.mu.Lock()
	}
}

func (f *File) unlockOther(other *File) {
	if other != f {
		other.mu.Unlock()
	}
}

func (f *File) OpenSelf(ctx context.Context, cred posix.Cred, flags posix.OpenFlags) (vfsapi.OpenFile, error) {
	var accmode posix.AccessFlags
	if flags.Has(posix.OpenRead) {
		accmode |= posix.AccessRead
	}
	if flags.Has(posix.OpenWrite) {
		accmode |= posix.AccessWrite
	}
	f.mu.Lock()
	err := f.checkAccessLocked(cred, accmode)
	if err == nil {
		f.refCount++
	}
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return newOpenFile(cred, f, flags), nil
}

func (f *File) Readlink(ctx context.Context, cred posix.Cred) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.meta.Attr.Type != posix.TypeSymlink {
		return "", posix.New(posix.Invalid, "not a symlink")
	}
	if err := f.checkAccessLocked(cred, posix.AccessRead); err != nil {
		return "", err
	}
	f.meta.Attr.Atime = f.fs.clock()
	if err := f.writeMetaStandalone(ctx); err != nil {
		return "", err
	}
	return string(f.meta.Extra), nil
}

func (f *File) Mkdir(ctx context.Context, cred posix.Cred, name string, mutate vfsapi.Mutator) (vfsapi.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createNewFile(ctx, cred, posix.TypeDirectory, name, mutate, func(txn kv.Transaction, nf *File) error {
		nf.linkEntry(txn, ".", nf)
		nf.linkEntry(txn, "..", f)
		return nil
	})
}

func (f *File) Symlink(ctx context.Context, cred posix.Cred, name, target string, mutate vfsapi.Mutator) (vfsapi.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createNewFile(ctx, cred, posix.TypeSymlink, name, mutate, func(txn kv.Transaction, nf *File) error {
		nf.meta.Attr.Size = uint64(len(target))
		nf.meta.Extra = []byte(target)
		return nil
	})
}

func (f *File) Mkfifo(ctx context.Context, cred posix.Cred, name string, mutate vfsapi.Mutator) (vfsapi.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createNewFile(ctx, cred, posix.TypeFifo, name, mutate, nil)
}

func (f *File) Remove(ctx context.Context, cred posix.Cred, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkAccessLocked(cred, posix.AccessWrite|posix.AccessExecute); err != nil {
		return err
	}
	child, err := f.lookupInternal(name)
	if err != nil {
		return err
	}
	f.lockOther(child)
	if child.meta.Attr.Type == posix.TypeDirectory {
		f.unlockOther(child)
		return posix.New(posix.IsDir, "is a directory")
	}
	f.unlockOther(child)
	if err := f.checkSticky(cred, child); err != nil {
		return err
	}

	txn := f.fs.store.BeginTransaction()
	if err := f.unlinkEntry(txn, name, child, true); err != nil {
		return err
	}
	return f.fs.store.Commit(ctx, txn)
}

func (f *File) Rmdir(ctx context.Context, cred posix.Cred, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkAccessLocked(cred, posix.AccessWrite|posix.AccessExecute); err != nil {
		return err
	}
	child, err := f.lookupInternal(name)
	if err != nil {
		return err
	}
	f.lockOther(child)
	isDir := child.meta.Attr.Type == posix.TypeDirectory
	f.unlockOther(child)
	if !isDir {
		return posix.New(posix.NotDir, "not a directory")
	}
	if err := f.checkSticky(cred, child); err != nil {
		return err
	}

	txn := f.fs.store.BeginTransaction()
	if err := f.unlinkEntry(txn, name, child, true); err != nil {
		return err
	}
	return f.fs.store.Commit(ctx, txn)
}

func (f *File) Link(ctx context.Context, cred posix.Cred, name string, target vfsapi.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.lookupInternal(name); err == nil {
		return posix.New(posix.Exists, "file exists")
	} else if posix.KindOf(err) != posix.NotFound {
		return err
	}
	if err := f.checkAccessLocked(cred, posix.AccessWrite|posix.AccessExecute); err != nil {
		return err
	}

	tf, ok := target.(*File)
	if !ok {
		return posix.New(posix.Invalid, "cross-filesystem link")
	}
	f.lockOther(tf)
	isDir := tf.meta.Attr.Type == posix.TypeDirectory
	f.unlockOther(tf)
	if isDir {
		return posix.New(posix.IsDir, "is a directory")
	}

	txn := f.fs.store.BeginTransaction()
	f.linkEntry(txn, name, tf)
	if err := f.writeMeta(txn); err != nil {
		return err
	}
	if err := tf.writeMeta(txn); err != nil {
		return err
	}
	return f.fs.store.Commit(ctx, txn)
}

func (f *File) Readdir(ctx context.Context, cred posix.Cred, seek uint64) (vfsapi.DirectoryIterator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.meta.Attr.Type != posix.TypeDirectory {
		return nil, posix.New(posix.NotDir, "not a directory")
	}
	if err := f.checkAccessLocked(cred, posix.AccessRead); err != nil {
		return nil, err
	}
	f.meta.Attr.Atime = f.fs.clock()
	if err := f.writeMetaStandalone(ctx); err != nil {
		return nil, err
	}
	return newDirectoryIterator(f.fs, f.meta.FileId, seek)
}

func (f *File) Fsstat(ctx context.Context, cred posix.Cred) (vfsapi.Fsattr, error) {
	f.mu.Lock()
	err := f.checkAccessLocked(cred, posix.AccessRead)
	f.mu.Unlock()
	if err != nil {
		return vfsapi.Fsattr{}, err
	}
	return f.fs.Fsstat(ctx)
}

// writeMeta stages a write of this inode's metadata record within
// txn. Caller holds f.mu.
func (f *File) writeMeta(txn kv.Transaction) error {
	data, err := encodeMeta(f.meta)
	if err != nil {
		return err
	}
	txn.Put(f.fs.metaNS, metaKey(f.meta.FileId), data)
	return nil
}

// writeMetaStandalone commits just this inode's metadata in its own
// transaction, used by read-only operations (lookup/readdir/readlink)
// that still update atime. Caller holds f.mu.
func (f *File) writeMetaStandalone(ctx context.Context) error {
	txn := f.fs.store.BeginTransaction()
	if err := f.writeMeta(txn); err != nil {
		return err
	}
	return f.fs.store.Commit(ctx, txn)
}

// linkEntry adds a directory entry for name pointing at child within
// this directory, bumping this directory's entry count and child's
// link count. Caller holds f.mu (and, if child != f, child.mu is not
// required since only plain counters are touched under f.mu by
// convention established at each call site).
func (f *File) linkEntry(txn kv.Transaction, name string, child *File) {
	f.meta.Attr.Size++ // directory size == entry count, per objfile.cpp
	child.meta.Attr.Nlink++
	txn.Put(f.fs.dirNS, dirKey(f.meta.FileId, name), encodeDirEntry(child.meta.FileId))
	now := f.fs.clock()
	f.meta.Attr.Ctime, f.meta.Attr.Mtime = now, now
}

// unlinkEntry removes name from this directory and adjusts/purges
// child accordingly. Grounded on ObjFile::unlink.
func (f *File) unlinkEntry(txn kv.Transaction, name string, child *File, saveMeta bool) error {
	f.lockOther(child)
	defer f.unlockOther(child)

	if child.meta.Attr.Type == posix.TypeDirectory {
		if child.meta.Attr.Size != 2 {
			return posix.New(posix.NotEmpty, "directory not empty")
		}
		txn.Remove(f.fs.dirNS, dirKey(child.meta.FileId, "."))
		txn.Remove(f.fs.dirNS, dirKey(child.meta.FileId, ".."))
		f.purgeOrZombie(txn, child)
		f.meta.Attr.Nlink--
	} else {
		child.meta.Attr.Nlink--
		if child.meta.Attr.Nlink > 0 {
			if err := child.writeMeta(txn); err != nil {
				return err
			}
		} else {
			f.purgeOrZombie(txn, child)
		}
	}
	txn.Remove(f.fs.dirNS, dirKey(f.meta.FileId, name))

	f.meta.Attr.Size--
	now := f.fs.clock()
	f.meta.Attr.Ctime, f.meta.Attr.Mtime = now, now
	if saveMeta {
		return f.writeMeta(txn)
	}
	return nil
}

// purgeOrZombie deletes child's data and metadata once its last link
// is gone, unless it still has open handles: then it is marked zombie
// and purged later by the last Close (spec.md's unlink-while-open
// rule, resolved per DESIGN.md's Open Question decision).
func (f *File) purgeOrZombie(txn kv.Transaction, child *File) {
	if child.refCount > 0 {
		child.zombie = true
		return
	}
	child.purgeLocked(txn)
}

// purgeLocked removes child's data blocks and metadata record and
// forgets it from the filesystem's inode cache. Caller holds
// child.mu.
func (child *File) purgeLocked(txn kv.Transaction) {
	if child.meta.Attr.Type != posix.TypeDirectory {
		child.truncateDataLocked(txn, 0)
	}
	txn.Remove(child.fs.metaNS, metaKey(child.meta.FileId))
	child.fs.forget(child.meta.FileId)
	child.fs.fileDestroyed()
}

// createNewFile allocates a new inode of type typ named name within
// this directory, applies attrCb, lets extra stage type-specific
// fields, links it into the directory and commits one transaction.
// Caller holds f.mu. Grounded on ObjFile::createNewFile.
func (f *File) createNewFile(ctx context.Context, cred posix.Cred, typ posix.FileType, name string, mutate vfsapi.Mutator, extra func(kv.Transaction, *File) error) (*File, error) {
	if len(name) > objfsNameMax {
		return nil, posix.New(posix.NameTooLong, "name too long")
	}
	if err := f.checkAccessLocked(cred, posix.AccessWrite|posix.AccessExecute); err != nil {
		return nil, err
	}
	if _, err := f.lookupInternal(name); err == nil {
		return nil, posix.New(posix.Exists, "file exists")
	} else if posix.KindOf(err) != posix.NotFound {
		return nil, err
	}

	now := f.fs.clock()
	id := f.fs.nextFileId()
	meta := fileMeta{
		Vers:      metaVersion,
		FileId:    id,
		BlockSize: f.meta.BlockSize,
		Attr: posix.PosixAttr{
			Type:      typ,
			UID:       cred.UID,
			Atime:     now,
			Mtime:     now,
			Ctime:     now,
			Birthtime: now,
		},
	}
	if f.meta.Attr.Mode&posix.ModeSetGID != 0 {
		meta.Attr.GID = f.meta.Attr.GID
	} else {
		meta.Attr.GID = cred.GID
	}

	nf := f.fs.newFile(meta)

	if mutate != nil {
		sa := &vfsapi.SetattrMutation{}
		mutate(sa)
		if sa.SetMode {
			nf.meta.Attr.Mode = sa.Mode & posix.ModePerm
		}
	}
	if f.meta.Attr.Mode&posix.ModeSetGID != 0 && typ == posix.TypeDirectory {
		nf.meta.Attr.Mode |= posix.ModeSetGID
	}

	f.fs.addToCache(nf)

	txn := f.fs.store.BeginTransaction()
	if extra != nil {
		if err := extra(txn, nf); err != nil {
			return nil, err
		}
	}
	if err := f.fs.writeSuperblock(txn); err != nil {
		return nil, err
	}
	f.linkEntry(txn, name, nf)
	if err := nf.writeMeta(txn); err != nil {
		return nil, err
	}
	if err := f.writeMeta(txn); err != nil {
		return nil, err
	}
	if err := f.fs.store.Commit(ctx, txn); err != nil {
		return nil, err
	}
	f.fs.fileCreated()
	return nf, nil
}
