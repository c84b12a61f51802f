// Copyright (c) 2026, NVIDIA CORPORATION. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// vtjob is a command line tool to run variable-time jobs: computations whose
// total runtime exceeds any single scheduler allocation. It submits jobs with
// checkpoint/requeue directives, drives one slot from inside the allocation,
// queries job status and generates CTest/CDash dashboard files wrapping an
// arbitrary build system's tests.
package main

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/gvallee/go_vtjob/pkg/vtime"
)

// exitError carries the deterministic exit status attached to a failure
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func exitWith(code int, format string, a ...interface{}) error {
	return &exitError{code: code, err: fmt.Errorf(format, a...)}
}

func main() {
	// Any panic during setup is converted into a deterministic exit status
	// instead of the runtime's default
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n%s", r, debug.Stack())
			os.Exit(vtime.ExitSetupFailure)
		}
	}()

	err := rootCmd.Execute()
	if err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			fmt.Fprintf(os.Stderr, "ERROR: %s\n", ee.err)
			os.Exit(ee.code)
		}
		os.Exit(vtime.ExitSetupFailure)
	}
}
