// Copyright 2026 crashtrace project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package symbolizer

import "runtime"

// runtimeResolver resolves addresses of the current process through the
// runtime's own pclntab. It needs no setup, never fails and is safe for
// concurrent use regardless of the handle's threaded flag.
type runtimeResolver struct{}

func (runtimeResolver) Resolve(pc uint64, visit VisitFunc) bool {
	// CallersFrames expands a single call PC into its full inline chain,
	// innermost call first. It also backs up return addresses to the CALL
	// instruction internally, so PCs from runtime.Callers can be fed in
	// one at a time.
	frames := runtime.CallersFrames([]uintptr{uintptr(pc)})
	visited := false
	for {
		fr, more := frames.Next()
		if fr.Function == "" && fr.File == "" && !visited {
			break
		}
		f := Frame{
			PC:     pc,
			Func:   fr.Function,
			File:   fr.File,
			Line:   fr.Line,
			Inline: visited,
		}
		visited = true
		if !visit(f) {
			return false
		}
		if !more {
			break
		}
	}
	if !visited {
		// Unknown address, degrade to a bare PC.
		return visit(Frame{PC: pc})
	}
	return true
}
