package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/objfsd/objfsd/internal/config"
	"github.com/objfsd/objfsd/internal/logging"
)

var (
	cfgPath      string
	verboseCount int
	cfg          *config.Config
	log          *logrus.Entry
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "objfsd",
		Short:         "ObjFS/NfsFS/Replica filesystem toolkit",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(cfgPath, nil)
			if err != nil {
				return err
			}
			c.FinishFlags()
			if verboseCount > c.Verbose {
				c.Verbose = verboseCount
			}
			cfg = c
			logger := logging.New(c.Verbose)
			log = logging.For(logger, "objfsd")
			return nil
		},
	}
	defaultPath, _ := config.DefaultPath()
	root.PersistentFlags().StringVar(&cfgPath, "config", defaultPath, "path to config.yaml")
	root.PersistentFlags().CountVarP(&verboseCount, "verbose", "v", "increase log verbosity")

	root.AddCommand(newServeCmd())
	root.AddCommand(newMountCmd())
	root.AddCommand(newShellCmd())
	root.AddCommand(newReplicaCmd())
	root.AddCommand(newKVCmd())
	return root
}
