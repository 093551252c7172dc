// cmd/project-creator/main.go
//
// This is the entry point for the project creator.
// When you run `project-creator`, this is what executes.
//
// Flow:
// 1. Load the config and the .env file in the working directory
// 2. Open the logbook
// 3. Connect to ShotGrid and show the form (or the line prompts with --plain)

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
