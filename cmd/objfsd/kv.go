package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
)

// newKVCmd exposes a raw namespace dump, the `kvtool`-style debugging
// aid supplemented per SPEC_FULL.md §12 (dropped from the distilled
// spec but present in original_source's keyval command-line tools).
func newKVCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kv",
		Short: "inspect the raw KV store",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "dump <namespace>",
		Short: "dump every key/value pair in a namespace, hex-encoded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			ns, err := store.Namespace(args[0])
			if err != nil {
				return fmt.Errorf("open namespace %s: %w", args[0], err)
			}
			it, err := ns.Iterator()
			if err != nil {
				return err
			}
			defer it.Close()
			for it.SeekToFirst(); it.Valid(); it.Next() {
				fmt.Printf("%s\t%s\n", hex.EncodeToString(it.Key()), hex.EncodeToString(it.Value()))
			}
			return nil
		},
	})
	return cmd
}
