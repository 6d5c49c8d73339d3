package replica

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// UDPTransport is the production Transport: one UDP socket per replica,
// messages JSON-encoded and sent to a static peer address list. UDP is
// the natural match for spec.md's "datagram-style, idempotent retries,
// no ordering guarantee" requirement.
type UDPTransport struct {
	conn  *net.UDPConn
	peers []*net.UDPAddr
	log   *logrus.Entry

	mu      sync.Mutex
	handler func(Message)
	closed  bool
}

// NewUDPTransport binds to listenAddr and will send to each of peerAddrs.
func NewUDPTransport(listenAddr string, peerAddrs []string, log *logrus.Entry) (*UDPTransport, error) {
	laddr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("replica: resolve listen addr %s: %w", listenAddr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("replica: listen %s: %w", listenAddr, err)
	}
	t := &UDPTransport{conn: conn, log: log}
	for _, a := range peerAddrs {
		pa, err := net.ResolveUDPAddr("udp", a)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("replica: resolve peer addr %s: %w", a, err)
		}
		t.peers = append(t.peers, pa)
	}
	go t.recvLoop()
	return t, nil
}

func (t *UDPTransport) SetHandler(h func(Message)) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

func (t *UDPTransport) Broadcast(msg Message) {
	buf, err := json.Marshal(&msg)
	if err != nil {
		t.log.WithError(err).Warn("replica: encode message failed")
		return
	}
	for _, p := range t.peers {
		if _, err := t.conn.WriteToUDP(buf, p); err != nil {
			t.log.WithError(err).WithField("peer", p.String()).Debug("replica: send failed")
		}
	}
}

func (t *UDPTransport) recvLoop() {
	buf := make([]byte, 65536)
	for {
		n, _, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			return // closed
		}
		var msg Message
		if err := json.Unmarshal(buf[:n], &msg); err != nil {
			t.log.WithError(err).Debug("replica: decode message failed")
			continue
		}
		t.mu.Lock()
		h := t.handler
		t.mu.Unlock()
		if h != nil {
			h(msg)
		}
	}
}

func (t *UDPTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return t.conn.Close()
}
