package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/objfsd/objfsd/internal/cliapp"
	"github.com/objfsd/objfsd/internal/nfs3"
	"github.com/objfsd/objfsd/internal/nfsfs"
	"github.com/objfsd/objfsd/internal/urlparser"
)

// newMountCmd dials an NFSv3 export via the MOUNT protocol and drops
// into an interactive shell rooted at it, playing the role of the
// original source's standalone `mount` helper plus fscli combined.
func newMountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mount <nfs://host[:port]/path>",
		Short: "mount an NFSv3 export and start a shell on it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := urlparser.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parse mount url: %w", err)
			}
			if u.Scheme != "nfs" {
				return fmt.Errorf("mount: unsupported scheme %q, want nfs", u.Scheme)
			}
			addr := u.Host
			if u.Port != "" {
				addr += ":" + u.Port
			} else {
				addr += ":2049"
			}

			mountRPC, err := nfs3.Dial(addr, 10*time.Second, nfs3.AuthSys{Machinename: "objfsd"})
			if err != nil {
				return fmt.Errorf("dial mount port: %w", err)
			}
			dirpath := "/" + u.Path // u.Path never carries the leading slash that separated it from the host

			mountProg := nfs3.NewMountProgram3(mountRPC)
			mres, err := mountProg.Mnt(dirpath)
			if err != nil {
				return fmt.Errorf("mnt %s: %w", dirpath, err)
			}
			if mres.Status != nfs3.Mnt3OK {
				return fmt.Errorf("mnt %s: server returned status %d", dirpath, mres.Status)
			}

			nfsRPC, err := nfs3.Dial(addr, 10*time.Second, nfs3.AuthSys{Machinename: "objfsd"})
			if err != nil {
				return fmt.Errorf("dial nfs port: %w", err)
			}
			prog := nfs3.NewProgram3(nfsRPC)

			fs, err := nfsfs.New(prog, mres.FHandle, nfsfs.WithLogger(log))
			if err != nil {
				return fmt.Errorf("init nfsfs: %w", err)
			}

			ctx := cmd.Context()
			root, err := fs.Root(ctx)
			if err != nil {
				return fmt.Errorf("nfsfs root: %w", err)
			}
			session := cliapp.NewSession(root)
			return cliapp.RunShell(ctx, session, os.Stdin, os.Stdout, os.Stderr)
		},
	}
}
