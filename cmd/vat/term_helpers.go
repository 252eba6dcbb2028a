package main

import (
	"io"

	"golang.org/x/term"
)

type fdHolder interface {
	Fd() uintptr
}

func isTerminalReader(r io.Reader) bool {
	f, ok := r.(fdHolder)
	return ok && term.IsTerminal(int(f.Fd()))
}

func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(fdHolder)
	return ok && term.IsTerminal(int(f.Fd()))
}
