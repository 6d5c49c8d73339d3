package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/objfsd/objfsd/internal/cliapp"
	"github.com/objfsd/objfsd/internal/objfs"
)

// newShellCmd opens the local (or replicated) ObjFS store and drops
// into an interactive shell on its root, grounded on
// original_source/cli/fscli.cpp's standalone CLI entrypoint.
func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "open an interactive shell on the configured ObjFS store",
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

			ctx := context.Background()
			root, err := fs.Root(ctx)
			if err != nil {
				return fmt.Errorf("objfs root: %w", err)
			}
			session := cliapp.NewSession(root)
			return cliapp.RunShell(ctx, session, os.Stdin, os.Stdout, os.Stderr)
		},
	}
}
