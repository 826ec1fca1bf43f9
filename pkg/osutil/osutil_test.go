// Copyright 2026 crashtrace project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build freebsd || netbsd || openbsd || linux || darwin

package osutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	want := []byte("some data")
	if err := WriteFile(path, want); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(want) {
		t.Fatalf("read back %q, want %q", got, want)
	}
}

func TestRun(t *testing.T) {
	if out, err := Run(time.Minute, Command("true")); err != nil {
		t.Fatalf("true failed: %v (output: %s)", err, out)
	}
	_, err := Run(time.Minute, Command("false"))
	if err == nil {
		t.Fatalf("false succeeded")
	}
	var verbose *VerboseError
	if !errors.As(err, &verbose) {
		t.Fatalf("error is %T, want VerboseError", err)
	}
	if verbose.ExitCode != 1 {
		t.Fatalf("exit code %v, want 1", verbose.ExitCode)
	}
}

func TestRunTimeout(t *testing.T) {
	start := time.Now()
	_, err := Run(100*time.Millisecond, Command("sleep", "30"))
	if err == nil {
		t.Fatalf("sleep was not killed")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("timeout took %v", elapsed)
	}
}
