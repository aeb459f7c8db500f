package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	os.Exit(run())
}

func run() int {
	err := newRootCommand().Execute()
	if err == nil {
		return 0
	}
	// Interrupting the daemon or a long-poll is a normal exit path.
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
	}
	return 1
}
