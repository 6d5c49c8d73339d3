package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/objfsd/objfsd/internal/kv/replica"
	"github.com/objfsd/objfsd/internal/objfs"
	"github.com/objfsd/objfsd/internal/pfs"
	"github.com/objfsd/objfsd/internal/rc"
)

// newServeCmd brings up an ObjFS filesystem (local or Paxos-replicated,
// per the config's kv.backend) behind the REST monitoring server. It
// plays the role of original_source's objfsd daemon entrypoint.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "serve ObjFS over the configured KV backend with REST monitoring",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			fs, err := objfs.New(store,
				objfs.WithBlockSize(cfg.Objfs.BlockSize),
				objfs.WithLogger(log),
			)
			if err != nil {
				return fmt.Errorf("open objfs: %w", err)
			}

			namespace := pfs.New()
			if err := namespace.Add("/objfs", fs); err != nil {
				return fmt.Errorf("mount objfs in namespace: %w", err)
			}

			server := rc.New(log)
			server.AddMount("objfs", fs)
			server.AddMount("pfs", namespace)
			if kr, ok := store.(*replica.KVReplica); ok {
				server.AddReplica("objfs", kr.Replica())
			}

			log.WithField("addr", cfg.Listen.RC).Info("REST monitoring listening")
			return http.ListenAndServe(cfg.Listen.RC, server.Handler())
		},
	}
}
