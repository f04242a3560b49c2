package commands

import (
	"context"
	"flag"
	"fmt"
	"os"
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

// fail reports err on stderr and returns the runtime failure exit code.
func fail(err error) int {
	fmt.Fprintln(os.Stderr, err)
	return 1
}

// usage reports a command line mistake and returns the usage exit code.
func usage(msg string) int {
	fmt.Fprintln(os.Stderr, msg)
	return 2
}

func background() context.Context {
	return context.Background()
}
