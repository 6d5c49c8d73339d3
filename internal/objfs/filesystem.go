// Package objfs implements ObjFS, a POSIX-semantic filesystem layered
// over a key/value store (spec.md §4.2), grounded on
// original_source/filesys/objfs (objfs.h/.cpp, objfile.cpp, objdir.cpp,
// objattr.cpp). Inode metadata, directory entries and file data each
// live in their own kv.Namespace; every mutation is committed as one
// kv.Transaction so directory-entry writes and the metadata they
// imply (link counts, sizes, timestamps) are never observed
// half-applied.
package objfs

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/sirupsen/logrus"

	"github.com/objfsd/objfsd/internal/kv"
	"github.com/objfsd/objfsd/internal/posix"
	"github.com/objfsd/objfsd/internal/vfsapi"
)

const defaultBlockSize = 4096
const defaultCacheSize = 4096

// cacheCeiling bounds simplelru's own backing map so it cannot grow
// without limit when every resident inode is busy; it is far above
// defaultCacheSize, which evictUnbusy enforces under normal load.
const cacheCeiling = 1 << 20

// Clock abstracts time.Now so tests can control timestamps.
type Clock func() time.Time

// Filesystem is one mounted ObjFS instance.
type Filesystem struct {
	store  kv.Store
	metaNS kv.Namespace
	dirNS  kv.Namespace
	dataNS kv.Namespace

	clock     Clock
	blockSize uint32
	log       *logrus.Entry

	mu     sync.Mutex
	nextId uint64
	fsid   [16]byte
	root   *File

	// cacheMu guards cache. simplelru.LRU (unlike the golang-lru/v2 Cache
	// wrapper) keeps no lock of its own, which lets evictUnbusy walk and
	// remove entries explicitly instead of through simplelru's own
	// capacity-triggered eviction, so a busy inode is never evicted out
	// from under a concurrent holder (spec.md §4.2/§5).
	cacheMu sync.Mutex
	cache   *simplelru.LRU[vfsapi.FileId, *File]

	fileCount int64
}

// Option configures a New Filesystem.
type Option func(*Filesystem)

// WithClock overrides the default wall clock, for deterministic tests.
func WithClock(c Clock) Option { return func(f *Filesystem) { f.clock = c } }

// WithBlockSize overrides the default 4096-byte data block size.
func WithBlockSize(n uint32) Option { return func(f *Filesystem) { f.blockSize = n } }

// WithLogger attaches a structured logger; a disabled logger is used
// if omitted.
func WithLogger(log *logrus.Entry) Option { return func(f *Filesystem) { f.log = log } }

// New opens (or formats, if empty) an ObjFS filesystem backed by
// store. Grounded on ObjFilesystem's constructor in objfs.cpp: reads
// the superblock record at FileId(0), formatting a fresh one if
// absent.
func New(store kv.Store, opts ...Option) (*Filesystem, error) {
	metaNS, err := store.Namespace(metaNamespace)
	if err != nil {
		return nil, err
	}
	dirNS, err := store.Namespace(dirNamespace)
	if err != nil {
		return nil, err
	}
	dataNS, err := store.Namespace(dataNamespace)
	if err != nil {
		return nil, err
	}
	fs := &Filesystem{
		store:     store,
		metaNS:    metaNS,
		dirNS:     dirNS,
		dataNS:    dataNS,
		clock:     time.Now,
		blockSize: defaultBlockSize,
		log:       logrus.NewEntry(logrus.StandardLogger()),
	}
	// simplelru is given no capacity-triggered eviction of its own
	// (cacheCeiling is an internal safety valve, not the real target);
	// evictUnbusy enforces defaultCacheSize explicitly after every
	// insert, skipping any inode that is still busy.
	cache, err := simplelru.NewLRU[vfsapi.FileId, *File](cacheCeiling, nil)
	if err != nil {
		return nil, err
	}
	fs.cache = cache
	for _, opt := range opts {
		opt(fs)
	}

	if err := fs.loadOrFormatSuperblock(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *Filesystem) loadOrFormatSuperblock() error {
	buf, err := fs.metaNS.Get(metaKey(vfsapi.SuperblockId))
	if err == nil {
		sb, derr := decodeSuperblock(buf)
		if derr != nil {
			return derr
		}
		if sb.Vers != metaVersion {
			return posix.New(posix.IO, "unexpected filesystem metadata version")
		}
		fs.nextId = sb.NextId
		putUint64(fs.fsid[0:8], sb.FsidHi)
		putUint64(fs.fsid[8:16], sb.FsidLo)
		return nil
	}

	// Format: a fresh random fsid, nextId starting past the root.
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return err
	}
	fs.fsid = raw
	fs.nextId = 2

	txn := fs.store.BeginTransaction()
	sb := superblockMeta{
		Vers:   metaVersion,
		FsidHi: getUint64(fs.fsid[0:8]),
		FsidLo: getUint64(fs.fsid[8:16]),
		NextId: fs.nextId,
	}
	data, err := encodeSuperblock(sb)
	if err != nil {
		return err
	}
	txn.Put(fs.metaNS, metaKey(vfsapi.SuperblockId), data)
	return fs.store.Commit(context.Background(), txn)
}

func putUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func getUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// Fsid is the stable 16-byte filesystem identifier embedded in every
// file handle this Filesystem issues.
func (fs *Filesystem) Fsid() [16]byte {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.fsid
}

func (fs *Filesystem) nextFileId() vfsapi.FileId {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	id := fs.nextId
	fs.nextId++
	return vfsapi.FileId(id)
}

// writeSuperblock persists the current nextId counter; called inside
// the same transaction as any operation that allocates a new file id,
// mirroring ObjFilesystem::writeMeta.
func (fs *Filesystem) writeSuperblock(txn kv.Transaction) error {
	fs.mu.Lock()
	sb := superblockMeta{
		Vers:   metaVersion,
		FsidHi: getUint64(fs.fsid[0:8]),
		FsidLo: getUint64(fs.fsid[8:16]),
		NextId: fs.nextId,
	}
	fs.mu.Unlock()
	data, err := encodeSuperblock(sb)
	if err != nil {
		return err
	}
	txn.Put(fs.metaNS, metaKey(vfsapi.SuperblockId), data)
	return nil
}

// Root implements vfsapi.Filesystem. The root directory is created
// lazily on first access, matching ObjFilesystem::root()'s
// try-then-format pattern.
func (fs *Filesystem) Root(ctx context.Context) (vfsapi.File, error) {
	fs.mu.Lock()
	if fs.root != nil {
		root := fs.root
		fs.mu.Unlock()
		return root, nil
	}
	fs.mu.Unlock()

	f, err := fs.find(vfsapi.RootId)
	if err == nil {
		fs.mu.Lock()
		fs.root = f
		fs.mu.Unlock()
		return f, nil
	}

	now := fs.clock()
	meta := fileMeta{
		Vers:      metaVersion,
		FileId:    vfsapi.RootId,
		BlockSize: fs.blockSize,
		Attr: posix.PosixAttr{
			Type:      posix.TypeDirectory,
			Mode:      0o755,
			Nlink:     0,
			Size:      0,
			Atime:     now,
			Mtime:     now,
			Ctime:     now,
			Birthtime: now,
		},
	}
	root := fs.newFile(meta)
	fs.addToCache(root)

	txn := fs.store.BeginTransaction()
	root.linkEntry(txn, ".", root)
	root.linkEntry(txn, "..", root)
	if err := root.writeMeta(txn); err != nil {
		return nil, err
	}
	if err := fs.store.Commit(ctx, txn); err != nil {
		return nil, err
	}

	fs.mu.Lock()
	fs.root = root
	fs.mu.Unlock()
	return root, nil
}

// Find resolves a FileHandle's FileId component to a File, used by
// NFSv4/RPC dispatch layers that hold a handle without a parent
// directory reference. Grounded on ObjFilesystem::find(FileHandle).
func (fs *Filesystem) Find(handle vfsapi.FileHandle) (vfsapi.File, error) {
	if len(handle.Bytes) < 8 {
		return nil, posix.New(posix.Stale, "truncated file handle")
	}
	id := getUint64(handle.Bytes[len(handle.Bytes)-8:])
	f, err := fs.find(vfsapi.FileId(id))
	if err != nil {
		return nil, posix.Wrap(posix.Stale, err, "stale file handle")
	}
	return f, nil
}

func (fs *Filesystem) find(id vfsapi.FileId) (*File, error) {
	fs.cacheMu.Lock()
	f, ok := fs.cache.Get(id)
	fs.cacheMu.Unlock()
	if ok {
		return f, nil
	}
	buf, err := fs.metaNS.Get(metaKey(id))
	if err != nil {
		return nil, posix.Wrap(posix.NotFound, err, "file not found")
	}
	meta, err := decodeMeta(buf)
	if err != nil {
		return nil, err
	}
	f = fs.newFile(meta)
	fs.addToCache(f)
	return f, nil
}

func (fs *Filesystem) newFile(meta fileMeta) *File {
	return &File{fs: fs, meta: meta}
}

func (fs *Filesystem) addToCache(f *File) {
	fs.cacheMu.Lock()
	fs.cache.Add(f.meta.FileId, f)
	fs.evictUnbusy()
	fs.cacheMu.Unlock()
}

// evictUnbusy trims the cache back down to defaultCacheSize, never
// evicting an inode with outstanding references: a cached *File is the
// single point of serialization for its per-inode lock and the only
// record of in-flight zombie state (file.go's purgeOrZombie), so
// losing it to eviction while busy would let find() fabricate a second
// *File for the same id (spec.md §4.2/§5). If every resident entry is
// busy the cache is simply allowed to grow past defaultCacheSize.
// Caller holds cacheMu.
func (fs *Filesystem) evictUnbusy() {
	for fs.cache.Len() > defaultCacheSize {
		evicted := false
		for _, id := range fs.cache.Keys() {
			f, ok := fs.cache.Peek(id)
			if !ok {
				continue
			}
			f.mu.Lock()
			busy := f.refCount > 0
			f.mu.Unlock()
			if busy {
				continue
			}
			fs.cache.Remove(id)
			evicted = true
			break
		}
		if !evicted {
			return
		}
	}
}

// forget removes a purged inode from the cache; called once its last
// link and last open handle are both gone.
func (fs *Filesystem) forget(id vfsapi.FileId) {
	fs.cacheMu.Lock()
	fs.cache.Remove(id)
	fs.cacheMu.Unlock()
}

func (fs *Filesystem) fileCreated() { fs.mu.Lock(); fs.fileCount++; fs.mu.Unlock() }
func (fs *Filesystem) fileDestroyed() { fs.mu.Lock(); fs.fileCount--; fs.mu.Unlock() }

// Fsstat implements the filesystem-wide statistics used by
// File.Fsstat and the `df` CLI command (spec.md §12).
func (fs *Filesystem) Fsstat(ctx context.Context) (vfsapi.Fsattr, error) {
	fs.mu.Lock()
	count := fs.fileCount
	fs.mu.Unlock()

	used, _ := fs.dataNS.SpaceUsed(nil, nil)
	metaUsed, _ := fs.metaNS.SpaceUsed(nil, nil)
	dirUsed, _ := fs.dirNS.SpaceUsed(nil, nil)

	var repairQueue uint32
	if s, ok := fs.store.(interface{ RepairQueueSize() int }); ok {
		repairQueue = uint32(s.RepairQueueSize())
	}

	const totalBytes = 1 << 40 // ObjFS has no fixed backing device; report a generous nominal capacity
	usedBytes := used + metaUsed + dirUsed

	return vfsapi.Fsattr{
		TotalBytes:      totalBytes,
		FreeBytes:       totalBytes - usedBytes,
		AvailBytes:      totalBytes - usedBytes,
		TotalFiles:      1 << 32,
		FreeFiles:       (1 << 32) - uint64(count),
		AvailFiles:      (1 << 32) - uint64(count),
		LinkMax:         1 << 20,
		NameMax:         objfsNameMax,
		RepairQueueSize: repairQueue,
	}, nil
}
