package objfs

import (
	"context"

	"github.com/objfsd/objfsd/internal/kv"
	"github.com/objfsd/objfsd/internal/posix"
	"github.com/objfsd/objfsd/internal/vfsapi"
)

// Rename moves fromName in fromDir to toName in this directory,
// atomically replacing any existing toName entry. Grounded on
// ObjFile::rename: ancestor-of-self is checked by walking ".." back to
// the root using a privileged credential, so a directory can never be
// moved into its own subtree.
func (f *File) Rename(ctx context.Context, cred posix.Cred, toName string, fromDir vfsapi.File, fromName string) error {
	from, ok := fromDir.(*File)
	if !ok {
		return posix.New(posix.Invalid, "cross-filesystem rename")
	}

	sameDir := from == f
	if sameDir && fromName == toName {
		return nil
	}

	// Lock the two directories in ascending FileId order, not in
	// whichever order the caller named them: a rename and its mirror
	// image (B.Rename(..., A, ...) running concurrently with
	// A.Rename(..., B, ...)) would otherwise each hold their own first
	// lock while waiting on the other's, deadlocking.
	lockRename(f, from, sameDir)

	var existing *File
	if e, err := f.lookupInternal(toName); err == nil {
		existing = e
	} else if posix.KindOf(err) != posix.NotFound {
		unlockRename(f, from, sameDir)
		return err
	}

	if err := f.checkAccessLocked(cred, posix.AccessWrite|posix.AccessExecute); err != nil {
		unlockRename(f, from, sameDir)
		return err
	}
	if err := from.checkAccessLocked(cred, posix.AccessWrite|posix.AccessExecute); err != nil {
		unlockRename(f, from, sameDir)
		return err
	}

	moving, err := from.lookupInternal(fromName)
	if err != nil {
		unlockRename(f, from, sameDir)
		return err
	}

	if !sameDir {
		// Verify f is not a descendant of moving, walking ".." up to the
		// root with a privileged credential. Must release locks first
		// since Lookup takes them again.
		root, rerr := f.fs.Root(ctx)
		unlockRename(f, from, sameDir)
		if rerr != nil {
			return rerr
		}
		privcred := posix.Cred{Privileged: true}
		var dir vfsapi.File = f
		for dir != root {
			if dir == vfsapi.File(moving) {
				return posix.New(posix.Invalid, "cannot move directory into itself")
			}
			parent, err := dir.Lookup(ctx, privcred, "..")
			if err != nil {
				return err
			}
			dir = parent
		}
		lockRename(f, from, sameDir)
	}

	if err := from.checkSticky(cred, moving); err != nil {
		unlockRename(f, from, sameDir)
		return err
	}

	txn := f.fs.store.BeginTransaction()
	if existing != nil {
		if err := f.checkSticky(cred, existing); err != nil {
			unlockRename(f, from, sameDir)
			return err
		}
		if err := f.unlinkEntry(txn, toName, existing, false); err != nil {
			unlockRename(f, from, sameDir)
			return err
		}
	}

	movingDistinct := moving != f && moving != from
	if movingDistinct {
		moving.mu.Lock()
	}
	f.linkEntry(txn, toName, moving)
	moving.meta.Attr.Nlink--
	from.meta.Attr.Size--
	now := f.fs.clock()
	from.meta.Attr.Ctime, from.meta.Attr.Mtime = now, now
	txn.Remove(f.fs.dirNS, dirKey(from.meta.FileId, fromName))

	if moving.meta.Attr.Type == posix.TypeDirectory && !sameDir {
		from.meta.Attr.Nlink--
		f.meta.Attr.Nlink++
		moving.writeDotDot(txn, f.meta.FileId)
		moving.meta.Attr.Ctime, moving.meta.Attr.Mtime = now, now
		if err := moving.writeMeta(txn); err != nil {
			if movingDistinct {
				moving.mu.Unlock()
			}
			unlockRename(f, from, sameDir)
			return err
		}
	}
	if movingDistinct {
		moving.mu.Unlock()
	}

	if err := from.writeMeta(txn); err != nil {
		unlockRename(f, from, sameDir)
		return err
	}
	if err := f.writeMeta(txn); err != nil {
		unlockRename(f, from, sameDir)
		return err
	}

	err = f.fs.store.Commit(ctx, txn)
	unlockRename(f, from, sameDir)
	return err
}

// lockRename locks f and (if !sameDir) from in ascending FileId order, so
// that a rename and its mirror image running concurrently on the same
// two directories always agree on which one to lock first.
func lockRename(f, from *File, sameDir bool) {
	if sameDir {
		f.mu.Lock()
		return
	}
	first, second := f, from
	if second.fileId() < first.fileId() {
		first, second = second, first
	}
	first.mu.Lock()
	second.mu.Lock()
}

func unlockRename(f, from *File, sameDir bool) {
	// Release order has no bearing on deadlock avoidance, only acquisition
	// order does, so this doesn't need to mirror lockRename's ordering
	// (which also avoids calling fileId() here, since it would re-lock an
	// already-held f.mu/from.mu).
	if !sameDir {
		from.mu.Unlock()
	}
	f.mu.Unlock()
}

// writeDotDot rewrites this directory's ".." entry to point at
// newParent. Caller holds moving.mu.
func (moving *File) writeDotDot(txn kv.Transaction, newParent vfsapi.FileId) {
	txn.Put(moving.fs.dirNS, dirKey(moving.meta.FileId, ".."), encodeDirEntry(newParent))
}
