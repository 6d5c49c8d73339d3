// Package config loads objfsd's configuration: a YAML file under the
// user's home directory, overlaid with pflag command-line flags, per
// SPEC_FULL.md §10. Grounded on rclone's fs/config family (YAML-backed,
// home-directory-resolved default path) as represented in the teacher's
// go.mod (gopkg.in/yaml.v2, github.com/mitchellh/go-homedir).
package config

import (
	"os"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"
)

// KVBackend selects the storage substrate for internal/kv.
type KVBackend string

const (
	KVBackendLocal   KVBackend = "local"
	KVBackendReplica KVBackend = "replica"
)

// Config is the full objfsd configuration, covering KV backend
// selection, ObjFS/NfsFS tuning, Paxos timing, and listen addresses.
type Config struct {
	KV struct {
		Backend  KVBackend `yaml:"backend"`
		BoltPath string    `yaml:"bolt_path"`
		Peers    []string  `yaml:"peers"`
	} `yaml:"kv"`

	Objfs struct {
		BlockSize     uint32 `yaml:"block_size"`
		InodeCacheSize int   `yaml:"inode_cache_size"`
	} `yaml:"objfs"`

	Nfsfs struct {
		AttrTimeout  time.Duration `yaml:"attr_timeout"`
		InodeCacheSize int         `yaml:"inode_cache_size"`
	} `yaml:"nfsfs"`

	Paxos struct {
		LeaderWaitMillis int `yaml:"leader_wait_millis"`
		MinimumQuorum    int `yaml:"minimum_quorum"`
	} `yaml:"paxos"`

	Listen struct {
		RC      string `yaml:"rc"`
		NFS     string `yaml:"nfs"`
		Replica string `yaml:"replica"`
	} `yaml:"listen"`

	Verbose int `yaml:"-"`

	countHolder int // backs the -v/--verbose pflag.CountVar
}

// Default returns the built-in defaults, applied before any file or
// flag overrides.
func Default() *Config {
	c := &Config{}
	c.KV.Backend = KVBackendLocal
	c.KV.BoltPath = "objfsd.db"
	c.Objfs.BlockSize = 4096
	c.Objfs.InodeCacheSize = 4096
	c.Nfsfs.AttrTimeout = 5 * time.Second
	c.Nfsfs.InodeCacheSize = 4096
	c.Paxos.LeaderWaitMillis = 2000
	c.Paxos.MinimumQuorum = 1
	c.Listen.RC = "127.0.0.1:5572"
	c.Listen.NFS = "0.0.0.0:2049"
	c.Listen.Replica = "0.0.0.0:5573"
	return c
}

// DefaultPath resolves ~/.objfsd/config.yaml, matching rclone's
// home-directory-resolved config path.
func DefaultPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".objfsd", "config.yaml"), nil
}

// Load reads path (if it exists; a missing file is not an error) over
// the defaults, then registers flags on fs so a caller's cobra command
// can override any field. Call fs.Parse after Load to apply overrides.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	c := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, c); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if fs != nil {
		fs.StringVar((*string)(&c.KV.Backend), "kv-backend", string(c.KV.Backend), "KV backend: local or replica")
		fs.StringVar(&c.KV.BoltPath, "kv-bolt-path", c.KV.BoltPath, "local bbolt database path")
		fs.StringSliceVar(&c.KV.Peers, "kv-peers", c.KV.Peers, "replica peer addresses")
		fs.Uint32Var(&c.Objfs.BlockSize, "objfs-block-size", c.Objfs.BlockSize, "ObjFS file data block size")
		fs.IntVar(&c.Objfs.InodeCacheSize, "objfs-inode-cache-size", c.Objfs.InodeCacheSize, "ObjFS inode LRU cache size")
		fs.DurationVar(&c.Nfsfs.AttrTimeout, "nfsfs-attr-timeout", c.Nfsfs.AttrTimeout, "NfsFS attribute cache TTL")
		fs.IntVar(&c.Nfsfs.InodeCacheSize, "nfsfs-inode-cache-size", c.Nfsfs.InodeCacheSize, "NfsFS inode LRU cache size")
		fs.IntVar(&c.Paxos.LeaderWaitMillis, "paxos-leader-wait-millis", c.Paxos.LeaderWaitMillis, "Paxos leader-wait timing constant")
		fs.IntVar(&c.Paxos.MinimumQuorum, "paxos-minimum-quorum", c.Paxos.MinimumQuorum, "Paxos minimum acceptor quorum")
		fs.StringVar(&c.Listen.RC, "rc-addr", c.Listen.RC, "REST monitoring listen address")
		fs.StringVar(&c.Listen.NFS, "nfs-addr", c.Listen.NFS, "NFSv3 server listen address")
		fs.StringVar(&c.Listen.Replica, "replica-addr", c.Listen.Replica, "Paxos replica transport listen address")
		fs.CountVarP(&c.countHolder, "verbose", "v", "increase log verbosity")
	}

	return c, nil
}

// FinishFlags copies flag-derived fields (like -v's count) into Config
// after fs.Parse has run.
func (c *Config) FinishFlags() {
	c.Verbose = c.countHolder
}
