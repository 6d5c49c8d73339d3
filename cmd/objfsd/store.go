package main

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/objfsd/objfsd/internal/config"
	"github.com/objfsd/objfsd/internal/kv"
	"github.com/objfsd/objfsd/internal/kv/boltstore"
	"github.com/objfsd/objfsd/internal/kv/replica"
)

// openStore builds the kv.Store selected by the config's KV.Backend,
// either a bare local boltstore.Store or a replica.KVReplica fronting
// one (Paxos-replicated) per spec.md §4.4. Returns an io.Closer-style
// close func alongside the store.
func openStore(c *config.Config) (kv.Store, func() error, error) {
	local, err := boltstore.Open(c.KV.BoltPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open boltstore: %w", err)
	}
	if c.KV.Backend == config.KVBackendLocal {
		return local, local.Close, nil
	}

	transport, err := replica.NewUDPTransport(c.Listen.Replica, c.KV.Peers, log)
	if err != nil {
		return nil, nil, fmt.Errorf("replica transport: %w", err)
	}
	metaNS, err := local.Namespace("paxos_meta")
	if err != nil {
		return nil, nil, fmt.Errorf("open paxos meta namespace: %w", err)
	}
	logNS, err := local.Namespace("paxos_log")
	if err != nil {
		return nil, nil, fmt.Errorf("open paxos log namespace: %w", err)
	}
	kr := replica.NewKVReplica(replica.Config{
		// uuid.New() only seeds the identity on a bare store: Replica
		// persists it to paxos_meta on first run and reloads it on every
		// subsequent one, so a restart keeps the same (gen, uuid) identity.
		UUID:          uuid.New(),
		Transport:     transport,
		MetaNamespace: metaNS,
		LogNamespace:  logNS,
		MinimumQuorum: c.Paxos.MinimumQuorum,
		RTT:           0,
		Log:           log,
	}, local, log)
	return kr, kr.Close, nil
}
