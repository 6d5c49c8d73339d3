package replica

// Transport carries Paxos protocol messages between replicas. Delivery is
// fire-and-forget and unordered (spec.md §6): the protocol itself
// tolerates duplication, reordering and loss via its retry timers and
// idempotent message handling.
type Transport interface {
	// Broadcast sends msg to every other known peer. It must not block
	// on the receiver: Replica calls it while holding (and about to
	// release) its internal mutex.
	Broadcast(msg Message)

	// SetHandler installs the callback invoked for every inbound
	// message, exactly once per Replica lifetime.
	SetHandler(handler func(Message))

	Close() error
}
