package nfsfs

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/sirupsen/logrus"

	"github.com/objfsd/objfsd/internal/nfs3"
	"github.com/objfsd/objfsd/internal/vfsapi"
)

const defaultCacheSize = 4096

// cacheCeiling bounds simplelru's own backing map so it cannot grow
// without limit when every resident handle is busy; cacheTarget (the
// real, evictUnbusy-enforced limit) stays far below it in practice.
const cacheCeiling = 1 << 20

// Clock abstracts time.Now for attribute-cache TTL tests.
type Clock func() time.Time

// Filesystem is one mounted NFSv3 export, grounded on
// original_source's NfsFilesystem.
type Filesystem struct {
	prog   *nfs3.Program3
	rootFH nfs3.FH3
	clock  Clock
	log    *logrus.Entry

	mu      sync.Mutex
	root    *File
	fsinfo  nfs3.FsinfoResult
	gotInfo bool

	// cache is guarded by mu like everything else on Filesystem (see
	// findLocked); simplelru keeps no lock of its own, which lets
	// evictUnbusy remove entries explicitly instead of through
	// simplelru's own capacity-triggered eviction, so a busy handle is
	// never evicted out from under a concurrent holder (spec.md §4.3).
	cache       *simplelru.LRU[string, *File]
	cacheTarget int
}

// Option configures a Filesystem.
type Option func(*Filesystem)

func WithClock(c Clock) Option { return func(fs *Filesystem) { fs.clock = c } }
func WithLogger(log *logrus.Entry) Option {
	return func(fs *Filesystem) { fs.log = log }
}
func WithCacheSize(n int) Option {
	return func(fs *Filesystem) { fs.cacheTarget = n }
}

// New wraps an already-mounted NFSv3 program and root file handle (as
// returned by the MOUNT protocol) into a Filesystem.
func New(prog *nfs3.Program3, rootFH nfs3.FH3, opts ...Option) (*Filesystem, error) {
	cache, err := simplelru.NewLRU[string, *File](cacheCeiling, nil)
	if err != nil {
		return nil, err
	}
	fs := &Filesystem{
		prog:        prog,
		rootFH:      rootFH,
		clock:       time.Now,
		log:         logrus.NewEntry(logrus.StandardLogger()),
		cache:       cache,
		cacheTarget: defaultCacheSize,
	}
	for _, opt := range opts {
		opt(fs)
	}
	return fs, nil
}

var _ vfsapi.Filesystem = (*Filesystem)(nil)

// Root returns the filesystem root, fetching FSINFO on first access to
// bound read/write/readdir transfer sizes, per original_source's
// NfsFilesystem::root.
func (fs *Filesystem) Root(ctx context.Context) (vfsapi.File, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.root != nil {
		return fs.root, nil
	}
	res, err := fs.prog.Fsinfo(fs.rootFH)
	if err != nil {
		return nil, err
	}
	if res.Status != nfs3.NFS3OK {
		return nil, mapStatus(res.Status)
	}
	fs.fsinfo = res
	fs.gotInfo = true

	gres, err := fs.prog.Getattr(fs.rootFH)
	if err != nil {
		return nil, err
	}
	if gres.Status != nfs3.NFS3OK {
		return nil, mapStatus(gres.Status)
	}
	fs.root = fs.findLocked(fs.rootFH, gres.Attr)
	return fs.root, nil
}

// find resolves (or creates) the File cached under fh, refreshing its
// attributes if attr is provided.
func (fs *Filesystem) find(fh nfs3.FH3, attr *nfs3.Fattr3) *File {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if attr != nil {
		return fs.findLocked(fh, *attr)
	}
	return fs.findLocked(fh, nfs3.Fattr3{})
}

func (fs *Filesystem) findLocked(fh nfs3.FH3, attr nfs3.Fattr3) *File {
	key := string(fh)
	if f, ok := fs.cache.Get(key); ok {
		f.update(attr, fs.clock())
		return f
	}
	f := &File{fs: fs, fh: fh, attr: attr, attrTime: fs.clock()}
	fs.cache.Add(key, f)
	fs.evictUnbusy()
	return f
}

// evictUnbusy trims the cache back down to cacheTarget, skipping any
// handle with a live OpenFile against it; see the cache field comment.
// Caller holds fs.mu.
func (fs *Filesystem) evictUnbusy() {
	for fs.cache.Len() > fs.cacheTarget {
		evicted := false
		for _, key := range fs.cache.Keys() {
			f, ok := fs.cache.Peek(key)
			if !ok {
				continue
			}
			f.mu.Lock()
			busy := f.refCount > 0
			f.mu.Unlock()
			if busy {
				continue
			}
			fs.cache.Remove(key)
			evicted = true
			break
		}
		if !evicted {
			return
		}
	}
}

// findByHandle resolves a File purely from its handle, issuing GETATTR
// since no attributes were returned inline (e.g. a create-type RPC
// whose handle_follows was false).
func (fs *Filesystem) findByHandle(fh nfs3.FH3) (*File, error) {
	res, err := fs.prog.Getattr(fh)
	if err != nil {
		return nil, err
	}
	if res.Status != nfs3.NFS3OK {
		return nil, mapStatus(res.Status)
	}
	return fs.find(fh, &res.Attr), nil
}

func (fs *Filesystem) rtpref() uint32 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.gotInfo && fs.fsinfo.Rtpref > 0 {
		return fs.fsinfo.Rtpref
	}
	return 32 * 1024
}

func (fs *Filesystem) wtpref() uint32 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.gotInfo && fs.fsinfo.Wtpref > 0 {
		return fs.fsinfo.Wtpref
	}
	return 32 * 1024
}

func (fs *Filesystem) dtpref() uint32 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.gotInfo && fs.fsinfo.Dtpref > 0 {
		return fs.fsinfo.Dtpref
	}
	return 8 * 1024
}

func statusErr(stat nfs3.Status) error {
	if stat == nfs3.NFS3OK {
		return nil
	}
	return mapStatus(stat)
}
