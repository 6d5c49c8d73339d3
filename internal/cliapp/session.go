// Package cliapp implements the interactive filesystem shell: a command
// registry plus per-session state (root, cwd, credential), grounded on
// original_source's cli/{command.h,state.cpp,fscli.cpp} and the
// cli/commands/*.cpp one-file-per-command layout. Restructured per
// SPEC_FULL.md §9 as an explicit Registry built at main() time rather
// than the C++ static-initializer CommandSet singleton.
package cliapp

import (
	"context"
	"strings"

	"github.com/objfsd/objfsd/internal/posix"
	"github.com/objfsd/objfsd/internal/vfsapi"
)

// Session is one shell's working state: root, current directory, and
// the credential every command runs as. Mirrors CommandState.
type Session struct {
	Cred posix.Cred
	root vfsapi.File
	cwd  vfsapi.File
}

// NewSession starts a session rooted (and initially positioned) at dir,
// running privileged by default the way the original CLI's
// CommandState(root) constructs a privileged credential.
func NewSession(dir vfsapi.File) *Session {
	return &Session{
		Cred: posix.Cred{Privileged: true},
		root: dir,
		cwd:  dir,
	}
}

func (s *Session) Root() vfsapi.File { return s.root }
func (s *Session) Cwd() vfsapi.File  { return s.cwd }
func (s *Session) Chdir(dir vfsapi.File) { s.cwd = dir }

func splitPath(name string) []string {
	var parts []string
	for _, p := range strings.Split(name, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// resolvepath walks every component but the last, following symlinks
// along the way, and returns the containing directory plus the leaf
// name. If follow is true and the leaf itself is a symlink, it is
// followed too. Mirrors CommandState::resolvepath.
func (s *Session) resolvepath(ctx context.Context, name string, follow bool) (vfsapi.File, string, error) {
	parts := splitPath(name)
	f := s.cwd
	if strings.HasPrefix(name, "/") {
		f = s.root
	}

restart:
	if len(parts) == 0 {
		return f, ".", nil
	}
	leaf := parts[len(parts)-1]
	rest := parts[:len(parts)-1]

	for len(rest) > 0 {
		entry := rest[0]
		rest = rest[1:]
		next, err := f.Lookup(ctx, s.Cred, entry)
		if err != nil {
			return nil, "", err
		}
		f = next
		attr, err := f.Getattr(ctx)
		if err != nil {
			return nil, "", err
		}
		if attr.Type == posix.TypeSymlink {
			dest, err := f.Readlink(ctx, s.Cred)
			if err != nil {
				return nil, "", err
			}
			newParts := splitPath(dest)
			if strings.HasPrefix(dest, "/") {
				f = s.root
			}
			parts = append(newParts, append(append([]string{}, rest...), leaf)...)
			goto restart
		}
	}

	if follow {
		if leafFile, err := f.Lookup(ctx, s.Cred, leaf); err == nil {
			if attr, err := leafFile.Getattr(ctx); err == nil && attr.Type == posix.TypeSymlink {
				dest, err := leafFile.Readlink(ctx, s.Cred)
				if err == nil {
					if strings.HasPrefix(dest, "/") {
						f = s.root
					}
					parts = splitPath(dest)
					goto restart
				}
			}
		}
	}
	return f, leaf, nil
}

// Lookup resolves name (relative to cwd, or absolute if it starts with
// '/') to a File.
func (s *Session) Lookup(ctx context.Context, name string) (vfsapi.File, error) {
	dir, leaf, err := s.resolvepath(ctx, name, true)
	if err != nil {
		return nil, err
	}
	return dir.Lookup(ctx, s.Cred, leaf)
}

func (s *Session) Open(ctx context.Context, name string, flags posix.OpenFlags, mode uint32) (vfsapi.OpenFile, error) {
	dir, leaf, err := s.resolvepath(ctx, name, true)
	if err != nil {
		return nil, err
	}
	return dir.Open(ctx, s.Cred, leaf, flags, func(sa *vfsapi.SetattrMutation) {
		sa.SetMode, sa.Mode = true, mode
	})
}

func (s *Session) Mkdir(ctx context.Context, name string, mode uint32) (vfsapi.File, error) {
	dir, leaf, err := s.resolvepath(ctx, name, true)
	if err != nil {
		return nil, err
	}
	return dir.Mkdir(ctx, s.Cred, leaf, func(sa *vfsapi.SetattrMutation) {
		sa.SetMode, sa.Mode = true, mode
	})
}

func (s *Session) Symlink(ctx context.Context, name, target string) (vfsapi.File, error) {
	dir, leaf, err := s.resolvepath(ctx, name, false)
	if err != nil {
		return nil, err
	}
	return dir.Symlink(ctx, s.Cred, leaf, target, func(sa *vfsapi.SetattrMutation) {
		sa.SetMode, sa.Mode = true, 0o777
	})
}

func (s *Session) Mkfifo(ctx context.Context, name string) (vfsapi.File, error) {
	dir, leaf, err := s.resolvepath(ctx, name, true)
	if err != nil {
		return nil, err
	}
	return dir.Mkfifo(ctx, s.Cred, leaf, func(sa *vfsapi.SetattrMutation) {
		sa.SetMode, sa.Mode = true, 0o666
	})
}

func (s *Session) Remove(ctx context.Context, name string) error {
	dir, leaf, err := s.resolvepath(ctx, name, false)
	if err != nil {
		return err
	}
	return dir.Remove(ctx, s.Cred, leaf)
}

func (s *Session) Rmdir(ctx context.Context, name string) error {
	dir, leaf, err := s.resolvepath(ctx, name, true)
	if err != nil {
		return err
	}
	return dir.Rmdir(ctx, s.Cred, leaf)
}

func (s *Session) Rename(ctx context.Context, from, to string) error {
	fromDir, fromLeaf, err := s.resolvepath(ctx, from, false)
	if err != nil {
		return err
	}
	toDir, toLeaf, err := s.resolvepath(ctx, to, false)
	if err != nil {
		return err
	}
	return toDir.Rename(ctx, s.Cred, toLeaf, fromDir, fromLeaf)
}

func (s *Session) Link(ctx context.Context, target, name string) error {
	targetFile, err := s.Lookup(ctx, target)
	if err != nil {
		return err
	}
	dir, leaf, err := s.resolvepath(ctx, name, false)
	if err != nil {
		return err
	}
	return dir.Link(ctx, s.Cred, leaf, targetFile)
}
