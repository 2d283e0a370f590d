// main package for piper-studio
package main

import (
	"fmt"
	"os"
)

var version = "dev"

func run(args []string) error {
	root := newRootCommand()
	root.SetArgs(args)

	err := root.Execute()
	if err != nil {
		return fmt.Errorf("piper-studio: %w", err)
	}

	return nil
}

func main() {
	err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
