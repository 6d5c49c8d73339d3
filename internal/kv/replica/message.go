package replica

import (
	"github.com/google/uuid"

	"github.com/objfsd/objfsd/internal/kv"
)

// LeaderWaitTime is the base Paxos timing constant (spec.md §4.4): the
// window after which a replica with no ACCEPT activity starts a new
// leader election, and the unit from which the identity, retry and
// lease timers are derived.
const LeaderWaitTime = 2 * 1000 // milliseconds; Config.RTT overrides this

// Round is a (generation, uuid) pair used to order proposal attempts
// within one Paxos instance. The zero Round sorts before every real
// round, matching spec.md's "Round(0, _) sorts before all real rounds".
type Round struct {
	Gen uint64
	ID  uuid.UUID
}

func (r Round) IsZero() bool { return r.Gen == 0 && r.ID == uuid.Nil }

// Less reports r < other: by generation first, then lexicographically by
// uuid.
func (r Round) Less(other Round) bool {
	if r.Gen != other.Gen {
		return r.Gen < other.Gen
	}
	return lessUUID(r.ID, other.ID)
}

func (r Round) LessEqual(other Round) bool {
	return r == other || r.Less(other)
}

func (r Round) Greater(other Round) bool { return other.Less(r) }

func (r Round) GreaterEqual(other Round) bool { return r == other || other.Less(r) }

func lessUUID(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// msgType tags the kind of a wire message. Every on-wire message in
// spec.md §6 (IDENTITY/PREPARE/PROMISE/ACCEPT/ACCEPTED/NACK) is
// represented by one Message value instead of six distinct wire types;
// this keeps the hand-rolled transport (no ONC-RPC/XDR library fits this
// traffic — it is JSON, not filesystem data) to one envelope shape.
type msgType int

const (
	msgIdentity msgType = iota
	msgPrepare
	msgPromise
	msgAccept
	msgAccepted
	msgNack
)

// Message is the on-wire envelope for every Paxos protocol message.
// Fields not meaningful for a given Type are left zero.
type Message struct {
	Type     msgType
	UUID     uuid.UUID // sender
	Instance int64
	Round    Round          // i / crnd / rnd depending on Type
	Vrnd     Round          // promise only
	Value    []byte         // vval (promise) / v (accept, accepted)
	Status   kv.ReplicaState // identity only
	AppData  []byte         // identity only
}
