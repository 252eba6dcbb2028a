// File: cmd/vat/confirm.go
// Brief: Confirmation prompts for bump and unlink.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

type confirmMode string

const (
	confirmModeYes   confirmMode = "yes"
	confirmModeExact confirmMode = "exact"
)

var errAborted = errors.New("aborted")

type readResult struct {
	line string
	err  error
}

func confirmAction(ctx context.Context, in io.Reader, out io.Writer, dec approvalDecision, prompt string, mode confirmMode, expected string) error {
	if out == nil {
		return errors.New("confirmation output is nil")
	}
	if dec.Approved {
		return nil
	}
	if !dec.InteractiveTTY {
		return errors.New("refusing to proceed without confirmation; rerun with --yes")
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = "Confirm:"
	}
	fmt.Fprint(out, prompt+" ")

	results := make(chan readResult, 1)
	go func() {
		line, err := bufio.NewReader(in).ReadString('\n')
		results <- readResult{line: line, err: err}
	}()

	var res readResult
	select {
	case <-ctx.Done():
		// Closing the real stdin would break the parent shell.
		if rc, ok := in.(io.ReadCloser); ok {
			if f, isFile := in.(*os.File); !isFile || f != os.Stdin {
				_ = rc.Close()
			}
		}
		fmt.Fprintln(out)
		return ctx.Err()
	case res = <-results:
	}
	if res.err != nil && !errors.Is(res.err, io.EOF) {
		return res.err
	}
	reply := strings.TrimSpace(res.line)
	switch mode {
	case confirmModeYes:
		if !strings.EqualFold(reply, "yes") && !strings.EqualFold(reply, "y") {
			return errAborted
		}
		return nil
	case confirmModeExact:
		if strings.TrimSpace(expected) == "" {
			return errors.New("confirmation token missing")
		}
		if reply != expected {
			return errAborted
		}
		return nil
	default:
		return fmt.Errorf("unknown confirmation mode: %s", mode)
	}
}
