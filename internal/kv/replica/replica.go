// Package replica implements multi-decree Paxos over an append-only log
// of instances (spec.md §4.4), grounded on original_source/keyval/paxos
// (paxos.h, replica.cpp, kvreplica.cpp). Each instance runs an
// independent prepare/promise/accept/accepted round; a stable leader
// short-circuits PREPARE once elected, and gaps in the learned log
// trigger recovery by copying state from whichever peer is furthest
// ahead.
package replica

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/objfsd/objfsd/internal/kv"
)

const (
	proposerIdle = iota
	proposerPreparing
	proposerAccepting
)

// PendingTransaction lets a caller block until the command it submitted
// has been learned and applied, or until the replica gives up on it
// (e.g. a competing proposer won the instance). Grounded on
// kvreplica.cpp's std::promise-based completion signal.
type PendingTransaction struct {
	mu   sync.Mutex
	cond *sync.Cond
	done bool
	err  error
}

func newPendingTransaction() *PendingTransaction {
	pt := &PendingTransaction{}
	pt.cond = sync.NewCond(&pt.mu)
	return pt
}

// Wait blocks until Complete is called.
func (pt *PendingTransaction) Wait() error {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	for !pt.done {
		pt.cond.Wait()
	}
	return pt.err
}

// Complete unblocks Wait. Safe to call multiple times; only the first
// call has effect.
func (pt *PendingTransaction) Complete(err error) {
	pt.mu.Lock()
	if !pt.done {
		pt.done = true
		pt.err = err
	}
	pt.mu.Unlock()
	pt.cond.Broadcast()
}

// proposerState tracks one instance's proposer role: the round it is
// currently trying, the value it would propose, and who has promised.
type proposerState struct {
	state       int
	crnd        Round
	cval        []byte
	largestVrnd Round
	promisers   map[uuid.UUID]bool
	nackCount   int
	transaction *PendingTransaction
}

// acceptorState is the durable per-instance acceptor record: highest
// round seen (rnd), and the highest-round value accepted so far
// (vrnd/vval). Persisted to logNS so a restarted replica never
// re-accepts below a round it already promised.
type acceptorState struct {
	Rnd  Round
	Vrnd Round
	Vval []byte
}

// learnerState tallies ACCEPTED messages for one instance until a
// quorum agrees on the same value.
type learnerState struct {
	acceptedBy map[uuid.UUID]Round
	tally      map[string]int // serialized value -> count
	values     map[string][]byte
	applied    bool
}

type peerState struct {
	uuid   uuid.UUID
	status kv.ReplicaState
}

// Replica runs one node of a Paxos-replicated log. Commands are opaque
// byte slices; apply is invoked, in instance order, once a command is
// learned. leaderChanged fires whenever this replica gains or loses
// the leadership role, which KVReplica uses to implement kv.Store's
// OnMasterChange.
type Replica struct {
	UUID      uuid.UUID
	transport Transport
	metaNS    kv.Namespace
	logNS     kv.Namespace
	store     kv.Store

	apply         func(instance int64, command []byte)
	leaderChanged func(isLeader bool)

	log *logrus.Entry

	minimumQuorum int
	rtt           time.Duration

	mu sync.Mutex

	peers map[uuid.UUID]*peerState

	status kv.ReplicaState
	appData []byte

	// Leader election.
	leader          uuid.UUID
	isLeader        bool
	newLeader       bool
	leaderElections uint64

	maxInstance     int64 // highest instance this replica has ever proposed/learned
	appliedInstance int64 // highest instance applied to the state machine

	proposers map[int64]*proposerState
	acceptors map[int64]*acceptorState
	learners  map[int64]*learnerState

	identityTimer *time.Timer
	leaderTimer   *time.Timer
	leaseTimer    *time.Timer

	applyCh chan applyItem

	closed bool
}

type applyItem struct {
	instance int64
	command  []byte
}

// Config bundles Replica construction parameters.
type Config struct {
	UUID          uuid.UUID
	Transport     Transport
	Store         kv.Store
	MetaNamespace kv.Namespace
	LogNamespace  kv.Namespace
	MinimumQuorum int
	RTT           time.Duration // retry interval; 0 uses LeaderWaitTime
	Apply         func(instance int64, command []byte)
	LeaderChanged func(isLeader bool)
	Log           *logrus.Entry
}

// New constructs a Replica and starts its background timers. Call
// Close to stop them.
func New(cfg Config) *Replica {
	rtt := cfg.RTT
	if rtt == 0 {
		rtt = LeaderWaitTime * time.Millisecond
	}
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	r := &Replica{
		UUID:          cfg.UUID,
		transport:     cfg.Transport,
		store:         cfg.Store,
		metaNS:        cfg.MetaNamespace,
		logNS:         cfg.LogNamespace,
		apply:         cfg.Apply,
		leaderChanged: cfg.LeaderChanged,
		log:           log.WithField("replica", cfg.UUID.String()),
		minimumQuorum: cfg.MinimumQuorum,
		rtt:           rtt,
		peers:         make(map[uuid.UUID]*peerState),
		status:        kv.ReplicaHealthy,
		proposers:     make(map[int64]*proposerState),
		acceptors:     make(map[int64]*acceptorState),
		learners:      make(map[int64]*learnerState),
		applyCh:       make(chan applyItem, 1024),
	}
	r.loadPersistedState()
	r.transport.SetHandler(r.handleMessage)
	r.identityTimer = time.AfterFunc(jitter(rtt/2), r.onIdentityTimer)
	r.leaderTimer = time.AfterFunc(rtt*2, r.onLeaderTimer)
	go r.applyLoop()
	return r
}

// applyLoop runs apply callbacks one at a time, in the order instances
// were learned, off the protocol goroutine so a slow or reentrant
// apply (e.g. KVReplica materializing a batch into boltstore) never
// blocks message handling.
func (r *Replica) applyLoop() {
	for item := range r.applyCh {
		if r.apply != nil {
			r.apply(item.instance, item.command)
		}
	}
}

func jitter(d time.Duration) time.Duration {
	// Spread initial identity broadcasts so a freshly started cluster
	// does not all announce in the same instant.
	return d + time.Duration(uint64(d)%997)
}

// Close stops timers and the transport. Does not affect persisted state.
func (r *Replica) Close() error {
	r.mu.Lock()
	r.closed = true
	r.identityTimer.Stop()
	r.leaderTimer.Stop()
	if r.leaseTimer != nil {
		r.leaseTimer.Stop()
	}
	r.mu.Unlock()
	close(r.applyCh)
	return r.transport.Close()
}

// AppData lets the owning subsystem (KVReplica) attach opaque
// diagnostic data that is broadcast with IDENTITY and visible via
// GetReplicas on peers.
func (r *Replica) SetAppData(data []byte) {
	r.mu.Lock()
	r.appData = data
	r.mu.Unlock()
}

// IsLeader reports whether this replica currently believes itself to
// be the elected leader.
func (r *Replica) IsLeader() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isLeader
}

// GetReplicas returns the known cluster membership and their last
// reported status, for REST monitoring (spec.md §12).
func (r *Replica) GetReplicas() []kv.ReplicaInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]kv.ReplicaInfo, 0, len(r.peers)+1)
	out = append(out, kv.ReplicaInfo{UUID: r.UUID.String(), State: r.status, AppData: r.appData})
	for _, p := range r.peers {
		out = append(out, kv.ReplicaInfo{UUID: p.uuid.String(), State: p.status})
	}
	return out
}

// Status summarizes a Replica's health for REST monitoring (spec.md §12),
// mirroring keyval/fac.cpp's Database::get(RestRequest) hook.
type Status struct {
	UUID            string
	IsLeader        bool
	Leader          string
	MaxInstance     int64
	AppliedInstance int64
	LeaderElections uint64
}

// GetStatus returns the current replica's own status summary.
func (r *Replica) GetStatus() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		UUID:            r.UUID.String(),
		IsLeader:        r.isLeader,
		Leader:          r.leader.String(),
		MaxInstance:     r.maxInstance,
		AppliedInstance: r.appliedInstance,
		LeaderElections: r.leaderElections,
	}
}

// Propose submits command for replication. It returns once the command
// has been assigned to an instance; the returned PendingTransaction's
// Wait() blocks until that instance is learned and applied. Grounded on
// kvreplica.cpp's KVTransaction::commit, which calls into
// Replica::proposeNewInstance.
func (r *Replica) Propose(command []byte) *PendingTransaction {
	r.mu.Lock()
	defer r.mu.Unlock()

	instance := r.maxInstance + 1
	r.maxInstance = instance

	pt := newPendingTransaction()
	ps := &proposerState{cval: command, transaction: pt}
	r.proposers[instance] = ps

	if r.isLeader && !r.newLeader {
		// Leader fast path: skip PREPARE, go straight to ACCEPT at the
		// round this replica already owns as leader.
		crnd := Round{Gen: r.leaderElections, ID: r.UUID}
		ps.crnd = crnd
		ps.state = proposerAccepting
		r.broadcastAccept(instance, crnd, command)
		return pt
	}

	r.startPrepare(instance, ps)
	return pt
}

func (r *Replica) startPrepare(instance int64, ps *proposerState) {
	ps.state = proposerPreparing
	ps.promisers = make(map[uuid.UUID]bool)
	ps.nackCount = 0
	ps.crnd = Round{Gen: ps.crnd.Gen + 1, ID: r.UUID}
	r.transport.Broadcast(Message{
		Type:     msgPrepare,
		UUID:     r.UUID,
		Instance: instance,
		Round:    ps.crnd,
	})
}

func (r *Replica) broadcastAccept(instance int64, crnd Round, value []byte) {
	r.transport.Broadcast(Message{
		Type:     msgAccept,
		UUID:     r.UUID,
		Instance: instance,
		Round:    crnd,
		Value:    value,
	})
}

// handleMessage is the single entry point for inbound wire messages,
// dispatched by msgType. Mirrors replica.cpp's onMessage switch.
func (r *Replica) handleMessage(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	switch msg.Type {
	case msgIdentity:
		r.onIdentity(msg)
	case msgPrepare:
		r.onPrepare(msg)
	case msgPromise:
		r.onPromise(msg)
	case msgAccept:
		r.onAccept(msg)
	case msgAccepted:
		r.onAccepted(msg)
	case msgNack:
		r.onNack(msg)
	}
}

func (r *Replica) onIdentity(msg Message) {
	p, ok := r.peers[msg.UUID]
	if !ok {
		p = &peerState{uuid: msg.UUID}
		r.peers[msg.UUID] = p
	}
	p.status = msg.Status
}

// onPrepare is the acceptor role's handling of a PREPARE: promise not
// to accept any round below msg.Round, and report back whatever it had
// already accepted (if anything), so the proposer can adopt it.
func (r *Replica) onPrepare(msg Message) {
	as := r.acceptorFor(msg.Instance)
	if msg.Round.Less(as.Rnd) {
		r.transport.Broadcast(Message{
			Type: msgNack, UUID: r.UUID, Instance: msg.Instance, Round: as.Rnd,
		})
		return
	}
	as.Rnd = msg.Round
	r.saveAcceptorState(msg.Instance, as)
	r.transport.Broadcast(Message{
		Type:     msgPromise,
		UUID:     r.UUID,
		Instance: msg.Instance,
		Round:    msg.Round,
		Vrnd:     as.Vrnd,
		Value:    as.Vval,
	})
}

// onPromise is the proposer role's handling of a PROMISE reply. Once a
// quorum of promises is in for the current round, it adopts the
// highest-vrnd value seen (or keeps its own if nobody had one yet) and
// moves to ACCEPT.
func (r *Replica) onPromise(msg Message) {
	ps, ok := r.proposers[msg.Instance]
	if !ok || ps.state != proposerPreparing || msg.Round != ps.crnd {
		return
	}
	ps.promisers[msg.UUID] = true
	if !msg.Vrnd.IsZero() && msg.Vrnd.Greater(ps.largestVrnd) {
		ps.largestVrnd = msg.Vrnd
		ps.cval = msg.Value
	}
	if len(ps.promisers) < r.quorumSize() {
		return
	}
	ps.state = proposerAccepting
	r.broadcastAccept(msg.Instance, ps.crnd, ps.cval)
}

// onAccept is the acceptor role's handling of an ACCEPT: accept the
// value if its round is still the highest this acceptor has promised.
func (r *Replica) onAccept(msg Message) {
	as := r.acceptorFor(msg.Instance)
	if msg.Round.Less(as.Rnd) {
		r.transport.Broadcast(Message{
			Type: msgNack, UUID: r.UUID, Instance: msg.Instance, Round: as.Rnd,
		})
		return
	}
	as.Rnd = msg.Round
	as.Vrnd = msg.Round
	as.Vval = msg.Value
	r.saveAcceptorState(msg.Instance, as)
	r.transport.Broadcast(Message{
		Type:     msgAccepted,
		UUID:     r.UUID,
		Instance: msg.Instance,
		Round:    msg.Round,
		Value:    msg.Value,
	})
}

// onAccepted is the learner role's handling of an ACCEPTED: tally votes
// per (instance, value) until a quorum agrees, then learn it.
func (r *Replica) onAccepted(msg Message) {
	ls, ok := r.learners[msg.Instance]
	if !ok {
		ls = &learnerState{
			acceptedBy: make(map[uuid.UUID]Round),
			tally:      make(map[string]int),
			values:     make(map[string][]byte),
		}
		r.learners[msg.Instance] = ls
	}
	if ls.applied {
		return
	}
	if prev, ok := ls.acceptedBy[msg.UUID]; ok && !msg.Round.Greater(prev) {
		return
	}
	ls.acceptedBy[msg.UUID] = msg.Round
	key := string(msg.Value)
	ls.tally[key]++
	ls.values[key] = msg.Value
	if ls.tally[key] < r.quorumSize() {
		return
	}
	ls.applied = true
	r.learn(msg.Instance, msg.Value)
}

// onNack is the proposer role's handling of a round rejection: start a
// new, higher round.
func (r *Replica) onNack(msg Message) {
	ps, ok := r.proposers[msg.Instance]
	if !ok {
		return
	}
	if msg.Round.LessEqual(ps.crnd) {
		return
	}
	ps.nackCount++
	ps.crnd = Round{Gen: msg.Round.Gen + 1, ID: r.UUID}
	r.startPrepare(msg.Instance, ps)
}

// learn records that value has been chosen for instance, then applies
// every contiguous learned instance starting at appliedInstance+1.
// Grounded on replica.cpp's applyCommands: a gap triggers RECOVERING
// status instead of applying out of order.
func (r *Replica) learn(instance int64, value []byte) {
	r.saveInstance(instance, value)
	if instance > r.maxInstance {
		r.maxInstance = instance
	}
	if ps, ok := r.proposers[instance]; ok && ps.transaction != nil {
		ps.transaction.Complete(nil)
	}
	delete(r.proposers, instance)

	if instance != r.appliedInstance+1 {
		if instance > r.appliedInstance+1 {
			r.status = kv.ReplicaRecovering
		}
		return
	}
	r.applyCommands()
}

// applyCommands drains every instance we have already learned,
// in order, starting at appliedInstance+1, and calls apply for each.
func (r *Replica) applyCommands() {
	for {
		next := r.appliedInstance + 1
		value, ok := r.loadInstance(next)
		if !ok {
			break
		}
		r.appliedInstance = next
		r.saveAppliedInstance(next)
		r.applyCh <- applyItem{instance: next, command: value}
	}
	if r.appliedInstance == r.maxInstance {
		r.status = kv.ReplicaHealthy
	}
}

func (r *Replica) quorumSize() int {
	n := len(r.peers) + 1
	q := n/2 + 1
	if q < r.minimumQuorum {
		return r.minimumQuorum
	}
	return q
}

func (r *Replica) acceptorFor(instance int64) *acceptorState {
	as, ok := r.acceptors[instance]
	if !ok {
		as = r.loadAcceptorState(instance)
		r.acceptors[instance] = as
	}
	return as
}

// --- timers ---

func (r *Replica) onIdentityTimer() {
	r.mu.Lock()
	status := r.status
	appData := r.appData
	r.mu.Unlock()
	r.transport.Broadcast(Message{
		Type: msgIdentity, UUID: r.UUID, Status: status, AppData: appData,
	})
	r.mu.Lock()
	if !r.closed {
		r.identityTimer.Reset(r.rtt/2 + jitter(r.rtt/4))
	}
	r.mu.Unlock()
}

// onLeaderTimer fires when no leader has been confirmed within
// LeaderWaitTime: this replica proposes itself via a new election
// round. A real leader's lease renewal (updateLeaseTimer) keeps
// resetting this timer so elections do not occur while healthy.
func (r *Replica) onLeaderTimer() {
	r.mu.Lock()
	if !r.closed && !r.isLeader {
		r.leaderElections++
		r.leader = r.UUID
		r.isLeader = true
		r.newLeader = true
		cb := r.leaderChanged
		r.leaderTimer.Reset(r.rtt)
		r.mu.Unlock()
		if cb != nil {
			cb(true)
		}
		// The fast path only applies once an ACCEPT round at this
		// leadership generation has actually gone through; clear
		// newLeader after one retry interval so Propose can fast-path.
		time.AfterFunc(r.rtt, func() {
			r.mu.Lock()
			r.newLeader = false
			r.mu.Unlock()
		})
		return
	}
	if !r.closed {
		r.leaderTimer.Reset(r.rtt)
	}
	r.mu.Unlock()
}

// --- persistence ---
//
// logNS holds two disjoint key families, distinguished by a one-byte
// tag ahead of the big-endian xdr(instance) key spec.md §4.4
// describes: keyTagValue for the learned command value (used to
// replay unapplied instances after a restart) and keyTagAcceptor for
// the durable {rnd, vrnd, vval} promise record. metaNS holds "uuid"
// (spec.md §4.4 Identity) and "instance" (the committed-instance
// watermark, updated as each instance is applied).
const (
	keyTagValue    byte = 'v'
	keyTagAcceptor byte = 'a'
)

var (
	metaKeyUUID     = []byte("uuid")
	metaKeyInstance = []byte("instance")
)

func (r *Replica) loadPersistedState() {
	if r.metaNS != nil {
		if v, err := r.metaNS.Get(metaKeyUUID); err == nil {
			if id, perr := uuid.ParseBytes(v); perr == nil {
				r.UUID = id
			}
		} else {
			if r.UUID == uuid.Nil {
				r.UUID = uuid.New()
			}
			r.persistUUID()
		}
		if v, err := r.metaNS.Get(metaKeyInstance); err == nil && len(v) == 8 {
			watermark := decodeInt64(v)
			r.appliedInstance = watermark
			r.maxInstance = watermark
		}
	}
	if r.logNS == nil {
		return
	}
	// Scan the value key family for the highest persisted instance, to
	// seed maxInstance past whatever the watermark already covers (an
	// instance can be learned, but not yet applied, at crash time).
	it, err := r.logNS.Range(instanceKey(keyTagValue, 0), instanceKey(keyTagValue+1, 0))
	if err != nil {
		return
	}
	defer it.Close()
	for it.SeekToLast(); it.Valid(); {
		instance := decodeInt64(it.Key()[1:])
		if instance > r.maxInstance {
			r.maxInstance = instance
		}
		break
	}
}

// persistUUID writes r.UUID to metaNS["uuid"] so a restarted process
// reloads the same identity instead of minting a new one, keeping
// (gen, uuid) round ordering stable across restarts (spec.md §4.4).
func (r *Replica) persistUUID() {
	if r.store == nil || r.metaNS == nil {
		return
	}
	txn := r.store.BeginTransaction()
	txn.Put(r.metaNS, metaKeyUUID, []byte(r.UUID.String()))
	if err := r.store.Commit(context.Background(), txn); err != nil {
		r.log.WithError(err).Error("replica: persist uuid failed")
	}
}

// saveAppliedInstance updates the committed-instance watermark used to
// resume applying from the right point after a restart.
func (r *Replica) saveAppliedInstance(instance int64) {
	if r.store == nil || r.metaNS == nil {
		return
	}
	txn := r.store.BeginTransaction()
	txn.Put(r.metaNS, metaKeyInstance, encodeInt64(instance))
	if err := r.store.Commit(context.Background(), txn); err != nil {
		r.log.WithError(err).WithField("instance", instance).Error("replica: persist applied watermark failed")
	}
}

func (r *Replica) saveAcceptorState(instance int64, as *acceptorState) {
	r.acceptors[instance] = as
	if r.store == nil || r.logNS == nil {
		return
	}
	data, err := json.Marshal(as)
	if err != nil {
		r.log.WithError(err).WithField("instance", instance).Error("replica: encode acceptor state failed")
		return
	}
	txn := r.store.BeginTransaction()
	txn.Put(r.logNS, instanceKey(keyTagAcceptor, instance), data)
	if err := r.store.Commit(context.Background(), txn); err != nil {
		r.log.WithError(err).WithField("instance", instance).Error("replica: persist acceptor state failed")
	}
}

func (r *Replica) saveInstance(instance int64, value []byte) {
	txn := r.store.BeginTransaction()
	txn.Put(r.logNS, instanceKey(keyTagValue, instance), value)
	_ = r.store.Commit(context.Background(), txn)
}

func (r *Replica) loadInstance(instance int64) ([]byte, bool) {
	v, err := r.logNS.Get(instanceKey(keyTagValue, instance))
	if err != nil {
		return nil, false
	}
	return v, true
}

// loadAcceptorState reloads a durably persisted promise/accept record
// so a restarted acceptor never re-accepts below a round it already
// promised (spec.md prop. 5 / prop. 10). Absent any record (an
// instance this acceptor has never seen), the zero value is correct:
// Round{} sorts before every real round.
func (r *Replica) loadAcceptorState(instance int64) *acceptorState {
	if r.logNS != nil {
		if v, err := r.logNS.Get(instanceKey(keyTagAcceptor, instance)); err == nil {
			var as acceptorState
			if err := json.Unmarshal(v, &as); err == nil {
				return &as
			}
			r.log.WithField("instance", instance).Error("replica: corrupt acceptor state, treating as absent")
		}
	}
	return &acceptorState{}
}

// instanceKey builds a logNS key: one tag byte followed by instance
// big-endian encoded, per spec.md §4.4's "xdr(instance)".
func instanceKey(tag byte, instance int64) []byte {
	b := make([]byte, 9)
	b[0] = tag
	copy(b[1:], encodeInt64(instance))
	return b
}

func encodeInt64(n int64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(n)
		n >>= 8
	}
	return b
}

func decodeInt64(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}
