// Copyright 2026 crashtrace project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package stack walks the call stack of the current goroutine and resolves
// each address through a symbolizer handle, producing a bounded sequence
// of frames, most recent call first.
package stack

import (
	"runtime"

	"github.com/crashtrace/crashtrace/pkg/symbolizer"
)

// MaxFrames bounds every walk: at most this many physical addresses are
// collected and at most this many logical frames are kept.
const MaxFrames = 128

// Walk captures the current stack and invokes visit for up to max resolved
// frames, most recent call first. The first skip logical frames are
// discarded before any are kept; inline expansion can make one address
// count as several logical frames, both toward skip and toward max.
// The walk stops when max frames were kept, the stack is exhausted or
// visit returns false. Walk returns the number of frames kept.
//
// Each call performs a fresh walk starting at Walk's caller; there is no
// persistent cursor.
func Walk(h *symbolizer.Handle, skip, max int, visit symbolizer.VisitFunc) int {
	if h == nil || max <= 0 {
		return 0
	}
	if max > MaxFrames {
		max = MaxFrames
	}
	var pcs [MaxFrames]uintptr
	// 2 skips runtime.Callers and Walk itself.
	n := runtime.Callers(2, pcs[:])
	kept := 0
	for i := 0; i < n; i++ {
		cont := h.Resolve(uint64(pcs[i]), func(f symbolizer.Frame) bool {
			if skip > 0 {
				skip--
				return true
			}
			if kept == max {
				return false
			}
			kept++
			return visit(f)
		})
		if !cont || kept == max {
			break
		}
	}
	return kept
}

// Capture returns up to max frames of the caller's stack, skipping the
// first skip resolved frames. Frames missing symbol data come back with
// empty Func/File and zero Line rather than failing the capture.
func Capture(h *symbolizer.Handle, skip, max int) []symbolizer.Frame {
	var frames []symbolizer.Frame
	// One extra skipped frame hides Capture itself.
	Walk(h, skip+1, max, func(f symbolizer.Frame) bool {
		frames = append(frames, f)
		return true
	})
	return frames
}
