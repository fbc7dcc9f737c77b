// Package main provides the entry point for the reap archive verifier CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jamesainslie/reap/pkg/reap/logging"
)

func main() {
	err := Execute()
	_ = logging.Close()

	if err == nil {
		return
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.msg != "" {
			fmt.Fprintf(os.Stderr, "Error: %s\n", ee.msg)
		}
		os.Exit(ee.code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// exitError carries a specific process exit code through cobra. The
// single-archive invocation distinguishes failure classes by exit code.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }
