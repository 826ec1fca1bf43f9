// Copyright 2026 crashtrace project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package symbolizer

import "testing"

func TestFrameCache(t *testing.T) {
	for _, threaded := range []bool{false, true} {
		c := frameCache{threaded: threaded}
		if _, ok := c.get(0x100); ok {
			t.Fatalf("empty cache reported a hit")
		}
		want := []Frame{{PC: 0x100, Func: "foo"}}
		c.put(0x100, want)
		got, ok := c.get(0x100)
		if !ok || len(got) != 1 || got[0] != want[0] {
			t.Fatalf("threaded=%v: got %+v, want %+v", threaded, got, want)
		}
		if _, ok := c.get(0x200); ok {
			t.Fatalf("cache invented an entry")
		}
	}
}
