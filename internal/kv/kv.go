// Package kv defines the ordered key/value store contract consumed by
// ObjFS and implemented both by a local embedded store (boltstore) and by
// the Paxos-replicated log (replica), per spec.md §6.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Namespace.Get when the key is absent.
var ErrNotFound = errors.New("kv: key not found")

// ReplicaState classifies a peer's health, per spec.md §4.4.
type ReplicaState int

const (
	ReplicaDead ReplicaState = iota
	ReplicaHealthy
	ReplicaRecovering
	ReplicaUnknown
)

// ReplicaInfo describes one member of a replicated Store's peer set.
type ReplicaInfo struct {
	UUID    string
	State   ReplicaState
	AppData []byte
}

// Iterator walks key/value pairs in a Namespace in key order.
type Iterator interface {
	Seek(key []byte)
	SeekToFirst()
	SeekToLast()
	Next()
	Prev()
	Valid() bool
	Key() []byte
	Value() []byte
	Close() error
}

// Namespace is one ordered key/value collection within a Store.
type Namespace interface {
	Name() string
	Iterator() (Iterator, error)
	Range(start, end []byte) (Iterator, error)
	Get(key []byte) ([]byte, error)
	SpaceUsed(start, end []byte) (uint64, error)
}

// Transaction batches a set of writes to be applied atomically by
// Store.Commit.
type Transaction interface {
	Put(ns Namespace, key, val []byte)
	Remove(ns Namespace, key []byte)
}

// Store is the top-level key/value database handle.
type Store interface {
	Namespace(name string) (Namespace, error)
	BeginTransaction() Transaction
	Commit(ctx context.Context, txn Transaction) error
	Flush(ctx context.Context) error

	IsReplicated() bool
	IsMaster() bool
	OnMasterChange(cb func(isMaster bool))
	GetReplicas() []ReplicaInfo

	Close() error
}
