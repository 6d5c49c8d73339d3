// Package boltstore is the local, non-replicated kv.Store implementation,
// backed by go.etcd.io/bbolt: one bucket per namespace, one bolt.Tx per
// kv.Transaction commit. This plays the role original_source/keyval's
// RocksDB-backed make_rocksdb() store played, with bbolt as the pack's
// actual embedded-KV dependency.
package boltstore

import (
	"context"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/objfsd/objfsd/internal/kv"
)

// Store is a single-process embedded kv.Store.
type Store struct {
	db *bolt.DB

	mu          sync.Mutex
	masterCbs   []func(bool)
}

// Open creates or opens the bbolt file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Namespace(name string) (kv.Namespace, error) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: create namespace %s: %w", name, err)
	}
	return &namespace{store: s, name: name}, nil
}

func (s *Store) BeginTransaction() kv.Transaction {
	return &txn{}
}

func (s *Store) Commit(ctx context.Context, t kv.Transaction) error {
	mt, ok := t.(*txn)
	if !ok {
		return fmt.Errorf("boltstore: foreign transaction type %T", t)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, op := range mt.ops {
			b, err := tx.CreateBucketIfNotExists([]byte(op.ns))
			if err != nil {
				return err
			}
			if op.remove {
				if err := b.Delete(op.key); err != nil {
					return err
				}
				continue
			}
			if err := b.Put(op.key, op.val); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Flush(ctx context.Context) error {
	return s.db.Sync()
}

// IsReplicated, IsMaster: boltstore is always a single, authoritative
// instance of its data.
func (s *Store) IsReplicated() bool { return false }
func (s *Store) IsMaster() bool     { return true }

func (s *Store) OnMasterChange(cb func(bool)) {
	s.mu.Lock()
	s.masterCbs = append(s.masterCbs, cb)
	s.mu.Unlock()
}

func (s *Store) GetReplicas() []kv.ReplicaInfo { return nil }

func (s *Store) Close() error { return s.db.Close() }

type op struct {
	ns     string
	key    []byte
	val    []byte
	remove bool
}

type txn struct {
	ops []op
}

func (t *txn) Put(ns kv.Namespace, key, val []byte) {
	t.ops = append(t.ops, op{ns: ns.Name(), key: cloneBytes(key), val: cloneBytes(val)})
}

func (t *txn) Remove(ns kv.Namespace, key []byte) {
	t.ops = append(t.ops, op{ns: ns.Name(), key: cloneBytes(key), remove: true})
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

type namespace struct {
	store *Store
	name  string
}

func (n *namespace) Name() string { return n.name }

func (n *namespace) Get(key []byte) ([]byte, error) {
	var val []byte
	err := n.store.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(n.name))
		if b == nil {
			return kv.ErrNotFound
		}
		v := b.Get(key)
		if v == nil {
			return kv.ErrNotFound
		}
		val = cloneBytes(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (n *namespace) SpaceUsed(start, end []byte) (uint64, error) {
	var total uint64
	err := n.store.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(n.name))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(start); k != nil && bytesLess(k, end); k, v = c.Next() {
			total += uint64(len(k) + len(v))
		}
		return nil
	})
	return total, err
}

func bytesLess(a, b []byte) bool {
	if b == nil {
		return true
	}
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func (n *namespace) Iterator() (kv.Iterator, error) {
	return n.Range(nil, nil)
}

func (n *namespace) Range(start, end []byte) (kv.Iterator, error) {
	tx, err := n.store.db.Begin(false)
	if err != nil {
		return nil, err
	}
	b := tx.Bucket([]byte(n.name))
	it := &iterator{tx: tx, start: start, end: end}
	if b != nil {
		it.cursor = b.Cursor()
	}
	return it, nil
}

type iterator struct {
	tx     *bolt.Tx
	cursor *bolt.Cursor
	start  []byte
	end    []byte
	key    []byte
	val    []byte
	valid  bool
}

func (it *iterator) checkBounds() {
	if !it.valid {
		return
	}
	if it.end != nil && !bytesLess(it.key, it.end) {
		it.valid = false
	}
}

func (it *iterator) Seek(key []byte) {
	if it.cursor == nil {
		it.valid = false
		return
	}
	if it.start != nil && bytesLess(key, it.start) {
		key = it.start
	}
	k, v := it.cursor.Seek(key)
	it.key, it.val, it.valid = k, v, k != nil
	it.checkBounds()
}

func (it *iterator) SeekToFirst() {
	if it.cursor == nil {
		it.valid = false
		return
	}
	var k, v []byte
	if it.start != nil {
		k, v = it.cursor.Seek(it.start)
	} else {
		k, v = it.cursor.First()
	}
	it.key, it.val, it.valid = k, v, k != nil
	it.checkBounds()
}

func (it *iterator) SeekToLast() {
	if it.cursor == nil {
		it.valid = false
		return
	}
	k, v := it.cursor.Last()
	for k != nil && it.end != nil && !bytesLess(k, it.end) {
		k, v = it.cursor.Prev()
	}
	it.key, it.val, it.valid = k, v, k != nil
	if it.valid && it.start != nil && bytesLess(k, it.start) {
		it.valid = false
	}
}

func (it *iterator) Next() {
	if it.cursor == nil {
		it.valid = false
		return
	}
	k, v := it.cursor.Next()
	it.key, it.val, it.valid = k, v, k != nil
	it.checkBounds()
}

func (it *iterator) Prev() {
	if it.cursor == nil {
		it.valid = false
		return
	}
	k, v := it.cursor.Prev()
	it.key, it.val, it.valid = k, v, k != nil
	if it.valid && it.start != nil && bytesLess(k, it.start) {
		it.valid = false
	}
}

func (it *iterator) Valid() bool  { return it.valid }
func (it *iterator) Key() []byte  { return it.key }
func (it *iterator) Value() []byte { return it.val }
func (it *iterator) Close() error { return it.tx.Rollback() }
