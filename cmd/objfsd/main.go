// Command objfsd is the objfsd toolkit binary: it serves ObjFS over a
// local or Paxos-replicated KVStore, mounts remote NFSv3 exports as
// NfsFS, composes both into one PFS namespace exposed over NFSv3 and
// REST monitoring, and offers an interactive shell and KV inspection
// tool. Grounded on rclone's cmd/ convention of one cobra root command
// with a flat set of verb subcommands.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
