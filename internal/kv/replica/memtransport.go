package replica

import "sync"

// MemCluster wires a fixed set of in-process replicas together for tests
// and single-binary demo deployments. It stands in for the UDP-datagram
// transport an operationally deployed replica set would use, letting
// tests exercise §8's Paxos properties (and spec.md's S6 scenario)
// without sockets.
type MemCluster struct {
	mu        sync.Mutex
	endpoints map[*MemTransport]struct{}
}

func NewMemCluster() *MemCluster {
	return &MemCluster{endpoints: make(map[*MemTransport]struct{})}
}

// MemTransport is one replica's endpoint within a MemCluster. Disable
// simulates a partitioned/crashed replica: messages to and from it are
// dropped until Enable is called again.
type MemTransport struct {
	cluster  *MemCluster
	mu       sync.Mutex
	handler  func(Message)
	disabled bool
}

// NewEndpoint creates and registers a new transport in the cluster.
func (c *MemCluster) NewEndpoint() *MemTransport {
	t := &MemTransport{cluster: c}
	c.mu.Lock()
	c.endpoints[t] = struct{}{}
	c.mu.Unlock()
	return t
}

func (t *MemTransport) SetHandler(h func(Message)) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

// Disable simulates the replica being unreachable: it stops receiving
// and stops sending.
func (t *MemTransport) Disable() {
	t.mu.Lock()
	t.disabled = true
	t.mu.Unlock()
}

func (t *MemTransport) Enable() {
	t.mu.Lock()
	t.disabled = false
	t.mu.Unlock()
}

func (t *MemTransport) Broadcast(msg Message) {
	t.mu.Lock()
	disabled := t.disabled
	t.mu.Unlock()
	if disabled {
		return
	}
	t.cluster.mu.Lock()
	peers := make([]*MemTransport, 0, len(t.cluster.endpoints))
	for p := range t.cluster.endpoints {
		if p != t {
			peers = append(peers, p)
		}
	}
	t.cluster.mu.Unlock()
	for _, p := range peers {
		p.deliver(msg)
	}
}

func (t *MemTransport) deliver(msg Message) {
	t.mu.Lock()
	disabled := t.disabled
	h := t.handler
	t.mu.Unlock()
	if disabled || h == nil {
		return
	}
	// Deliver asynchronously: a real datagram transport never lets the
	// sender's goroutine run the receiver's handler inline.
	go h(msg)
}

func (t *MemTransport) Close() error {
	t.cluster.mu.Lock()
	delete(t.cluster.endpoints, t)
	t.cluster.mu.Unlock()
	return nil
}
