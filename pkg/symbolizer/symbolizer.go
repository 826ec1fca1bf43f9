// Copyright 2026 crashtrace project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package symbolizer resolves program counter addresses into function,
// file and line information. A Handle owns the resolution state for one
// target image: either the current process (resolved through the runtime)
// or an arbitrary ELF binary with DWARF debug info.
package symbolizer

import (
	"fmt"
	"sync"
)

// Frame is one logical entry of a call stack. PC is always set; Func and
// File may independently be empty and Line may be 0 when the target lacks
// symbol data for the address.
type Frame struct {
	PC     uint64
	Func   string
	File   string
	Line   int
	Inline bool
}

// VisitFunc receives resolved frames one at a time.
// Returning false stops the enclosing resolution or stack walk.
type VisitFunc func(Frame) bool

// Resolver maps one program counter to zero or more logical frames.
// Inlining can make a single address correspond to several frames,
// innermost first. Resolution failures degrade to a bare-PC frame,
// they never abort the caller.
type Resolver interface {
	// Resolve invokes visit for every logical frame at pc.
	// It returns false iff visit requested a stop.
	Resolve(pc uint64, visit VisitFunc) bool
}

// InitializationError means the symbolication backend could not open or
// parse the target image.
type InitializationError struct {
	Target string
	Err    error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("failed to initialize symbolizer for %q: %v", e.Target, e.Err)
}

func (e *InitializationError) Unwrap() error {
	return e.Err
}

// Handle owns symbolication state for one target image. Handles are
// immutable once created and have no release operation: resolution state
// lives for the remainder of the process.
type Handle struct {
	target   string
	threaded bool
	res      Resolver
}

// NewHandle creates a handle for the given target binary, or for the
// current process when target is empty. threaded promises that the handle
// will be used from multiple goroutines concurrently; resolvers may skip
// internal locking when it is false.
func NewHandle(target string, threaded bool) (*Handle, error) {
	if target == "" {
		return &Handle{threaded: threaded, res: runtimeResolver{}}, nil
	}
	res, err := newELFResolver(target, threaded)
	if err != nil {
		return nil, &InitializationError{Target: target, Err: err}
	}
	return &Handle{target: target, threaded: threaded, res: res}, nil
}

// Target returns the binary this handle resolves against,
// or "" for the current process.
func (h *Handle) Target() string {
	return h.target
}

// Threaded reports whether the handle is safe for concurrent use.
func (h *Handle) Threaded() bool {
	return h.threaded
}

// Resolve invokes visit for every logical frame at pc.
// It returns false iff visit requested a stop.
func (h *Handle) Resolve(pc uint64, visit VisitFunc) bool {
	return h.res.Resolve(pc, visit)
}

// Supported reports whether symbolication works on this platform. The
// runtime resolver makes the current process always resolvable; explicit
// binary targets additionally need a readable ELF image.
func Supported() bool {
	return true
}

var (
	selfOnce   sync.Once
	selfHandle *Handle
)

// Self returns the shared handle for the current process, creating it on
// first use. The handle is threaded and is the one the crash path uses,
// so it must exist before any crash handler can fire.
func Self() *Handle {
	selfOnce.Do(func() {
		// The runtime resolver cannot fail.
		selfHandle, _ = NewHandle("", true)
	})
	return selfHandle
}
