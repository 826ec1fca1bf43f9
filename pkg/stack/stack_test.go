// Copyright 2026 crashtrace project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stack_test

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/crashtrace/crashtrace/pkg/stack"
	"github.com/crashtrace/crashtrace/pkg/symbolizer"
	"github.com/crashtrace/crashtrace/pkg/testutil"
)

//go:noinline
func inner(h *symbolizer.Handle, skip, max int) []symbolizer.Frame {
	return stack.Capture(h, skip, max)
}

//go:noinline
func outer(h *symbolizer.Handle, skip, max int) []symbolizer.Frame {
	return inner(h, skip, max)
}

func TestCaptureScenario(t *testing.T) {
	frames := outer(symbolizer.Self(), 0, 10)
	if len(frames) == 0 || len(frames) > 10 {
		t.Fatalf("got %v frames, want 1..10", len(frames))
	}
	if !strings.Contains(frames[0].Func, "inner") {
		t.Fatalf("top frame is %q, want inner", frames[0].Func)
	}
	foundOuter := false
	seen := make(map[uint64]bool)
	for _, f := range frames {
		if strings.Contains(f.Func, "outer") {
			foundOuter = true
		}
		if !f.Inline {
			if seen[f.PC] {
				t.Fatalf("duplicate pc %#x in capture", f.PC)
			}
			seen[f.PC] = true
		}
	}
	if !foundOuter {
		t.Fatalf("outer missing from capture: %+v", frames)
	}
}

func TestCaptureSkip(t *testing.T) {
	h := symbolizer.Self()
	full := stack.Capture(h, 0, 16)
	skipped := stack.Capture(h, 1, 16)
	if len(full) < 2 {
		t.Fatalf("stack too shallow: %v frames", len(full))
	}
	// Skipping one frame removes the frame nearest the call site; the
	// rest of the stack is shared between the two captures.
	n := len(full) - 1
	if n > len(skipped) {
		n = len(skipped)
	}
	if diff := cmp.Diff(full[1:1+n], skipped[:n]); diff != "" {
		t.Fatalf("skip=1 did not shift the capture:\n%v", diff)
	}
}

func TestCaptureBounds(t *testing.T) {
	h := symbolizer.Self()
	rnd := rand.New(testutil.RandSource(t))
	for i := 0; i < testutil.IterCount()/10; i++ {
		skip := rnd.Intn(5)
		max := 1 + rnd.Intn(stack.MaxFrames)
		frames := stack.Capture(h, skip, max)
		if len(frames) > max {
			t.Fatalf("skip=%v max=%v: got %v frames", skip, max, len(frames))
		}
		if len(frames) == 0 {
			continue
		}
		top := strings.Contains(frames[0].Func, "TestCaptureBounds")
		if skip == 0 && !top {
			t.Fatalf("skip=0: top frame is %q", frames[0].Func)
		}
		if skip >= 1 && top {
			t.Fatalf("skip=%v: call-site frame still present", skip)
		}
	}
}

func TestWalkStop(t *testing.T) {
	visited := 0
	kept := stack.Walk(symbolizer.Self(), 0, 10, func(symbolizer.Frame) bool {
		visited++
		return visited < 2
	})
	if visited != 2 || kept != 2 {
		t.Fatalf("visited %v frames, walk kept %v, want 2", visited, kept)
	}
}

func TestWalkDegenerate(t *testing.T) {
	if kept := stack.Walk(nil, 0, 10, nil); kept != 0 {
		t.Fatalf("nil handle kept %v frames", kept)
	}
	if frames := stack.Capture(symbolizer.Self(), 0, 0); len(frames) != 0 {
		t.Fatalf("max=0 returned %v frames", len(frames))
	}
	if frames := stack.Capture(symbolizer.Self(), 1000, 10); len(frames) != 0 {
		t.Fatalf("huge skip returned %v frames", len(frames))
	}
}
