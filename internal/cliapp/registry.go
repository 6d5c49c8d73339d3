package cliapp

import (
	"context"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// Registry is the interactive shell's command table, built at main() time
// rather than via the original CLI's static CommandReg<CMD> registration
// trick (SPEC_FULL.md §9 Design Notes). Each builtin is a *cobra.Command
// so flag parsing, usage strings and help text come from the same
// machinery cmd/objfsd uses for its top-level subcommands.
type Registry struct {
	root    *cobra.Command
	session *Session
	out     io.Writer
}

// NewRegistry builds the full builtin command set bound to session,
// writing command output to out.
func NewRegistry(session *Session, out io.Writer) *Registry {
	r := &Registry{session: session, out: out}
	root := &cobra.Command{
		Use:           "shell",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		r.catCmd(), r.cdCmd(), r.chgrpCmd(), r.chmodCmd(), r.chownCmd(),
		r.cpCmd(), r.dfCmd(), r.fsidCmd(), r.helpCmd(), r.lhCmd(),
		r.lnCmd(), r.lsCmd(), r.mkdirCmd(), r.mkfifoCmd(), r.mvCmd(),
		r.quitCmd(), r.rmCmd(), r.rmdirCmd(), r.statCmd(),
	)
	r.root = root
	return r
}

// ErrQuit is returned by Execute when the "quit" builtin runs; callers
// loop until they see it.
var ErrQuit = quitSentinel{}

type quitSentinel struct{}

func (quitSentinel) Error() string { return "quit" }

// Execute splits line on whitespace and dispatches it through the
// registry, mirroring the original fscli.cpp's read-eval loop. Quoting
// and escaping are not supported, unlike a real shell lexer — a
// deliberate simplification, since the original CLI's own tokenizer is
// the same plain whitespace split.
func (r *Registry) Execute(ctx context.Context, line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	r.root.SetArgs(args)
	return r.root.ExecuteContext(ctx)
}

func (r *Registry) Usage() string {
	var b strings.Builder
	for _, c := range r.root.Commands() {
		b.WriteString(c.Use)
		b.WriteString("\t")
		b.WriteString(c.Short)
		b.WriteString("\n")
	}
	return b.String()
}
