package replica

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/objfsd/objfsd/internal/kv"
)

// opKind tags one mutation within a replicated command batch.
type opKind byte

const (
	opPut opKind = iota
	opRemove
)

// encodeBatch serializes a sequence of (namespace, key, value) writes
// into the opaque command bytes Propose replicates. Grounded on
// kvreplica.cpp's KVTransaction::commit, which flattens its buffered
// writes into one Paxos command before proposing it.
func encodeBatch(ops []batchOp) []byte {
	var buf bytes.Buffer
	var lenbuf [4]byte
	putUint32 := func(n int) {
		binary.BigEndian.PutUint32(lenbuf[:], uint32(n))
		buf.Write(lenbuf[:])
	}
	putUint32(len(ops))
	for _, op := range ops {
		buf.WriteByte(byte(op.kind))
		putUint32(len(op.ns))
		buf.WriteString(op.ns)
		putUint32(len(op.key))
		buf.Write(op.key)
		putUint32(len(op.val))
		buf.Write(op.val)
	}
	return buf.Bytes()
}

func decodeBatch(data []byte) ([]batchOp, error) {
	r := bytes.NewReader(data)
	readUint32 := func() (uint32, error) {
		var b [4]byte
		if _, err := r.Read(b[:]); err != nil {
			return 0, err
		}
		return binary.BigEndian.Uint32(b[:]), nil
	}
	n, err := readUint32()
	if err != nil {
		return nil, fmt.Errorf("kvreplica: decode batch count: %w", err)
	}
	ops := make([]batchOp, 0, n)
	for i := uint32(0); i < n; i++ {
		kindByte, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("kvreplica: decode op kind: %w", err)
		}
		nsLen, err := readUint32()
		if err != nil {
			return nil, err
		}
		nsBuf := make([]byte, nsLen)
		if _, err := r.Read(nsBuf); err != nil {
			return nil, err
		}
		keyLen, err := readUint32()
		if err != nil {
			return nil, err
		}
		keyBuf := make([]byte, keyLen)
		if _, err := r.Read(keyBuf); err != nil {
			return nil, err
		}
		valLen, err := readUint32()
		if err != nil {
			return nil, err
		}
		valBuf := make([]byte, valLen)
		if valLen > 0 {
			if _, err := r.Read(valBuf); err != nil {
				return nil, err
			}
		}
		ops = append(ops, batchOp{kind: opKind(kindByte), ns: string(nsBuf), key: keyBuf, val: valBuf})
	}
	return ops, nil
}

type batchOp struct {
	kind opKind
	ns   string
	key  []byte
	val  []byte
}

// KVReplica adapts a Paxos Replica into a kv.Store: every committed
// Transaction becomes one proposed command, and apply() materializes
// each learned command into a local boltstore-backed namespace set so
// that reads never have to wait on consensus. Grounded on
// kvreplica.cpp's KVReplica/KVNamespace/KVTransaction trio.
type KVReplica struct {
	replica *Replica
	local   kv.Store // materialized view of applied commands
	log     *logrus.Entry

	mu        sync.Mutex
	masterCbs []func(bool)
}

// NewKVReplica constructs the underlying Replica and wires it to
// local, a private kv.Store (typically a boltstore.Store) used only to
// materialize applied commands; local must not be shared with any
// other caller. replicaCfg.Apply and replicaCfg.LeaderChanged are set
// here and must be left zero by the caller.
func NewKVReplica(replicaCfg Config, local kv.Store, log *logrus.Entry) *KVReplica {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	kr := &KVReplica{local: local, log: log}
	replicaCfg.Store = local
	replicaCfg.Apply = kr.Apply
	replicaCfg.LeaderChanged = kr.LeaderChanged
	kr.replica = New(replicaCfg)
	return kr
}

// Apply is passed as Config.Apply when constructing the underlying
// Replica; it decodes and materializes one learned command.
func (kr *KVReplica) Apply(instance int64, command []byte) {
	ops, err := decodeBatch(command)
	if err != nil {
		kr.log.WithError(err).WithField("instance", instance).Error("kvreplica: corrupt command, skipping")
		return
	}
	txn := kr.local.BeginTransaction()
	for _, op := range ops {
		ns, err := kr.local.Namespace(op.ns)
		if err != nil {
			kr.log.WithError(err).WithField("namespace", op.ns).Error("kvreplica: open namespace failed")
			return
		}
		if op.kind == opRemove {
			txn.Remove(ns, op.key)
		} else {
			txn.Put(ns, op.key, op.val)
		}
	}
	if err := kr.local.Commit(context.Background(), txn); err != nil {
		kr.log.WithError(err).WithField("instance", instance).Error("kvreplica: materialize failed")
	}
}

// LeaderChanged is passed as Config.LeaderChanged; it fans out to
// kv.Store's OnMasterChange subscribers.
func (kr *KVReplica) LeaderChanged(isLeader bool) {
	kr.mu.Lock()
	cbs := append([]func(bool){}, kr.masterCbs...)
	kr.mu.Unlock()
	for _, cb := range cbs {
		cb(isLeader)
	}
}

func (kr *KVReplica) Namespace(name string) (kv.Namespace, error) {
	return kr.local.Namespace(name)
}

func (kr *KVReplica) BeginTransaction() kv.Transaction {
	return &replicatedTxn{}
}

// Commit proposes the transaction's writes as a single Paxos command
// and blocks until that instance is learned and applied to the local
// materialized store.
func (kr *KVReplica) Commit(ctx context.Context, t kv.Transaction) error {
	rt, ok := t.(*replicatedTxn)
	if !ok {
		return fmt.Errorf("kvreplica: foreign transaction type %T", t)
	}
	if len(rt.ops) == 0 {
		return nil
	}
	pt := kr.replica.Propose(encodeBatch(rt.ops))
	done := make(chan error, 1)
	go func() { done <- pt.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (kr *KVReplica) Flush(ctx context.Context) error {
	return kr.local.Flush(ctx)
}

func (kr *KVReplica) IsReplicated() bool { return true }

func (kr *KVReplica) IsMaster() bool { return kr.replica.IsLeader() }

func (kr *KVReplica) OnMasterChange(cb func(bool)) {
	kr.mu.Lock()
	kr.masterCbs = append(kr.masterCbs, cb)
	kr.mu.Unlock()
}

func (kr *KVReplica) GetReplicas() []kv.ReplicaInfo {
	return kr.replica.GetReplicas()
}

func (kr *KVReplica) Close() error {
	if err := kr.replica.Close(); err != nil {
		return err
	}
	return kr.local.Close()
}

// UUID exposes the underlying replica's identity, e.g. for the `fsid`
// command and RC status endpoint (spec.md §12).
func (kr *KVReplica) UUID() uuid.UUID { return kr.replica.UUID }

// Replica exposes the underlying Paxos Replica so callers (internal/rc's
// REST monitoring) can reach GetStatus/GetReplicas directly.
func (kr *KVReplica) Replica() *Replica { return kr.replica }

type replicatedTxn struct {
	ops []batchOp
}

func (t *replicatedTxn) Put(ns kv.Namespace, key, val []byte) {
	t.ops = append(t.ops, batchOp{kind: opPut, ns: ns.Name(), key: cloneForTxn(key), val: cloneForTxn(val)})
}

func (t *replicatedTxn) Remove(ns kv.Namespace, key []byte) {
	t.ops = append(t.ops, batchOp{kind: opRemove, ns: ns.Name(), key: cloneForTxn(key)})
}

func cloneForTxn(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
