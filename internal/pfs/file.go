package pfs

import (
	"context"
	"sort"
	"time"

	"github.com/objfsd/objfsd/internal/posix"
	"github.com/objfsd/objfsd/internal/vfsapi"
)

// File is a pseudo-directory node: fixed attributes (mode 0555, root
// owned), a static child map, and an optional mounted Filesystem node
// that every operation delegates to once present. Mirrors PfsFile.
type File struct {
	fs     *Filesystem
	fileid uint64
	ctime  time.Time

	parent  *File
	entries map[string]*File
	mount   vfsapi.File
}

var _ vfsapi.File = (*File)(nil)

// checkMount returns the mounted File if one is present, else the
// pseudo-directory itself, per PfsFile::checkMount.
func (f *File) checkMount() vfsapi.File {
	if f.mount != nil {
		return f.mount
	}
	return f
}

func (f *File) Filesystem() vfsapi.Filesystem { return f.fs }

func (f *File) Handle() vfsapi.FileHandle {
	if f.mount != nil {
		return f.mount.Handle()
	}
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(f.fileid >> (8 * i))
	}
	return vfsapi.FileHandle{Version: 1, Bytes: b}
}

func (f *File) Access(ctx context.Context, cred posix.Cred, mode posix.AccessFlags) bool {
	if f.mount != nil {
		return f.mount.Access(ctx, cred, mode)
	}
	return mode&posix.AccessWrite == 0
}

func (f *File) Getattr(ctx context.Context) (posix.PosixAttr, error) {
	if f.mount != nil {
		return f.mount.Getattr(ctx)
	}
	return posix.PosixAttr{
		Type:  posix.TypeDirectory,
		Mode:  0o555,
		Nlink: 1,
		UID:   0,
		GID:   0,
		Size:  0,
		Atime: f.ctime,
		Mtime: f.ctime,
		Ctime: f.ctime,
	}, nil
}

func (f *File) Setattr(ctx context.Context, cred posix.Cred, mutate vfsapi.Mutator) error {
	if f.mount != nil {
		return f.mount.Setattr(ctx, cred, mutate)
	}
	return posix.New(posix.Perm, "pseudo-directory attributes are fixed")
}

func (f *File) Lookup(ctx context.Context, cred posix.Cred, name string) (vfsapi.File, error) {
	if f.mount != nil {
		return f.mount.Lookup(ctx, cred, name)
	}
	if name == "." {
		return f, nil
	}
	if name == ".." {
		if f.parent != nil {
			return f.parent, nil
		}
		return f, nil
	}
	child, ok := f.entries[name]
	if !ok {
		return nil, posix.New(posix.NotFound, "no such file or directory")
	}
	return child, nil
}

func (f *File) Open(ctx context.Context, cred posix.Cred, name string, flags posix.OpenFlags, mutate vfsapi.Mutator) (vfsapi.OpenFile, error) {
	if f.mount != nil {
		return f.mount.Open(ctx, cred, name, flags, mutate)
	}
	return nil, posix.New(posix.Perm, "cannot create files in a pseudo-directory")
}

func (f *File) OpenSelf(ctx context.Context, cred posix.Cred, flags posix.OpenFlags) (vfsapi.OpenFile, error) {
	if f.mount != nil {
		return f.mount.OpenSelf(ctx, cred, flags)
	}
	return nil, posix.New(posix.IsDir, "is a directory")
}

func (f *File) Readlink(ctx context.Context, cred posix.Cred) (string, error) {
	if f.mount != nil {
		return f.mount.Readlink(ctx, cred)
	}
	return "", posix.New(posix.Invalid, "not a symlink")
}

func (f *File) Mkdir(ctx context.Context, cred posix.Cred, name string, mutate vfsapi.Mutator) (vfsapi.File, error) {
	if f.mount != nil {
		return f.mount.Mkdir(ctx, cred, name, mutate)
	}
	return nil, posix.New(posix.Perm, "cannot create directories in a pseudo-directory")
}

func (f *File) Symlink(ctx context.Context, cred posix.Cred, name, target string, mutate vfsapi.Mutator) (vfsapi.File, error) {
	if f.mount != nil {
		return f.mount.Symlink(ctx, cred, name, target, mutate)
	}
	return nil, posix.New(posix.Perm, "cannot create symlinks in a pseudo-directory")
}

func (f *File) Mkfifo(ctx context.Context, cred posix.Cred, name string, mutate vfsapi.Mutator) (vfsapi.File, error) {
	if f.mount != nil {
		return f.mount.Mkfifo(ctx, cred, name, mutate)
	}
	return nil, posix.New(posix.Perm, "cannot create fifos in a pseudo-directory")
}

func (f *File) Remove(ctx context.Context, cred posix.Cred, name string) error {
	if f.mount != nil {
		return f.mount.Remove(ctx, cred, name)
	}
	return posix.New(posix.Perm, "cannot remove entries from a pseudo-directory")
}

func (f *File) Rmdir(ctx context.Context, cred posix.Cred, name string) error {
	if f.mount != nil {
		return f.mount.Rmdir(ctx, cred, name)
	}
	return posix.New(posix.Perm, "cannot remove entries from a pseudo-directory")
}

func (f *File) Rename(ctx context.Context, cred posix.Cred, toName string, fromDir vfsapi.File, fromName string) error {
	if f.mount != nil {
		return f.mount.Rename(ctx, cred, toName, fromDir, fromName)
	}
	return posix.New(posix.Perm, "cannot rename into a pseudo-directory")
}

func (f *File) Link(ctx context.Context, cred posix.Cred, name string, target vfsapi.File) error {
	if f.mount != nil {
		return f.mount.Link(ctx, cred, name, target)
	}
	return posix.New(posix.Perm, "cannot link into a pseudo-directory")
}

func (f *File) Readdir(ctx context.Context, cred posix.Cred, seek uint64) (vfsapi.DirectoryIterator, error) {
	if f.mount != nil {
		return f.mount.Readdir(ctx, cred, seek)
	}
	names := make([]string, 0, len(f.entries))
	for name := range f.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	if seek > uint64(len(names)) {
		seek = uint64(len(names))
	}
	return &DirectoryIterator{dir: f, names: names, pos: int(seek)}, nil
}

func (f *File) Fsstat(ctx context.Context, cred posix.Cred) (vfsapi.Fsattr, error) {
	if f.mount != nil {
		return f.mount.Fsstat(ctx, cred)
	}
	return vfsapi.Fsattr{NameMax: nameMax}, nil
}
