// Package pfs implements PFS, the pseudo-filesystem that stitches
// multiple mounted filesystems (ObjFS, NfsFS) into a single namespace
// exposed at the root, grounded on original_source's filesys/pfs
// (PfsFilesystem/PfsFile/PfsDirectoryIterator).
package pfs

import (
	"context"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/objfsd/objfsd/internal/posix"
	"github.com/objfsd/objfsd/internal/vfsapi"
)

const nameMax = 128

// Filesystem is the pseudo-filesystem root: a static read-only
// directory tree whose leaves can have a real Filesystem mounted onto
// them. Mirrors PfsFilesystem.
type Filesystem struct {
	mu      sync.Mutex
	root    *File
	nextID  uint64
	clock   func() time.Time
}

var _ vfsapi.Filesystem = (*Filesystem)(nil)

// New creates an empty pseudo-filesystem with just a root directory.
func New() *Filesystem {
	fs := &Filesystem{clock: time.Now, nextID: 2}
	fs.root = &File{fs: fs, fileid: 1, ctime: fs.clock(), entries: map[string]*File{}}
	return fs
}

func (fs *Filesystem) Root(ctx context.Context) (vfsapi.File, error) {
	return fs.root, nil
}

// Add mounts sub onto the (possibly multi-component) path, creating
// intermediate pseudo-directories as needed, per PfsFilesystem::add.
func (fs *Filesystem) Add(p string, sub vfsapi.Filesystem) error {
	ctx := context.Background()
	root, err := sub.Root(ctx)
	if err != nil {
		return err
	}
	return fs.AddFile(p, root)
}

// AddFile mounts a single File (rather than a whole Filesystem root)
// onto the path.
func (fs *Filesystem) AddFile(p string, mount vfsapi.File) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parts := splitPath(p)
	if len(parts) == 0 {
		return posix.New(posix.Invalid, "cannot mount onto pfs root")
	}
	dir := fs.root
	for _, name := range parts[:len(parts)-1] {
		child, ok := dir.entries[name]
		if !ok {
			child = fs.newDirLocked()
			dir.entries[name] = child
			child.parent = dir
		}
		dir = child
	}
	leaf := parts[len(parts)-1]
	child, ok := dir.entries[leaf]
	if !ok {
		child = fs.newDirLocked()
		dir.entries[leaf] = child
		child.parent = dir
	}
	child.mount = mount
	return nil
}

// Remove unmounts the path, dropping its pseudo-directory entry.
func (fs *Filesystem) Remove(p string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	parts := splitPath(p)
	if len(parts) == 0 {
		return
	}
	dir := fs.root
	for _, name := range parts[:len(parts)-1] {
		child, ok := dir.entries[name]
		if !ok {
			return
		}
		dir = child
	}
	delete(dir.entries, parts[len(parts)-1])
}

func (fs *Filesystem) newDirLocked() *File {
	fs.nextID++
	return &File{fs: fs, fileid: fs.nextID, ctime: fs.clock(), entries: map[string]*File{}}
}

func splitPath(p string) []string {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "" || p == "." {
		return nil
	}
	return strings.Split(p, "/")
}
