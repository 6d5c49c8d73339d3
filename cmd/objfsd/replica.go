package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/objfsd/objfsd/internal/kv/replica"
)

// newReplicaCmd prints the local replica's status and peer table,
// grounded on original_source/keyval/fac.cpp's status dump (the same
// data internal/rc exposes over REST, here for direct CLI inspection).
func newReplicaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replica",
		Short: "inspect the Paxos replica",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "print this replica's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()
			kr, ok := store.(*replica.KVReplica)
			if !ok {
				return fmt.Errorf("replica status: kv.backend is %q, not replica", cfg.KV.Backend)
			}
			st := kr.Replica().GetStatus()
			fmt.Printf("uuid:             %s\n", st.UUID)
			fmt.Printf("leader:           %s (is_leader=%v)\n", st.Leader, st.IsLeader)
			fmt.Printf("max_instance:     %d\n", st.MaxInstance)
			fmt.Printf("applied_instance: %d\n", st.AppliedInstance)
			fmt.Printf("leader_elections: %d\n", st.LeaderElections)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "peers",
		Short: "list known replica peers",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()
			for _, p := range store.GetReplicas() {
				fmt.Printf("%s\tstate=%d\n", p.UUID, p.State)
			}
			return nil
		},
	})
	return cmd
}
