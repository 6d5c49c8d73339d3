package cliapp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
)

// RunShell drives a read-eval-print loop over in, writing prompts and
// command output to out and errors to errOut. It returns when in is
// exhausted or the "quit" builtin runs. Mirrors the original fscli.cpp
// main loop: print prompt, read a line, dispatch, repeat.
func RunShell(ctx context.Context, session *Session, in io.Reader, out, errOut io.Writer) error {
	reg := NewRegistry(session, out)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "objfsd> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := scanner.Text()
		if err := reg.Execute(ctx, line); err != nil {
			if errors.Is(err, ErrQuit) {
				return nil
			}
			fmt.Fprintln(errOut, err)
		}
	}
}
