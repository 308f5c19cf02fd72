package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
)

const version = "0.1.0"

func main() {
	root := newRootCmd()

	// Signals are handled per command, generate finishes its current step on
	// the first interrupt.
	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version),
	); err != nil {
		os.Exit(1)
	}
}
