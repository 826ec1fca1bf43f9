// Copyright 2026 crashtrace project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package symbolizer

import (
	"strings"
	"sync"
)

// frameCache caches symbolization results per PC. When threaded is false
// the cache skips locking entirely, matching the handle's single-goroutine
// contract.
type frameCache struct {
	threaded bool
	mu       sync.RWMutex
	frames   map[uint64][]Frame
}

func (c *frameCache) get(pc uint64) ([]Frame, bool) {
	if c.threaded {
		c.mu.RLock()
		defer c.mu.RUnlock()
	}
	frames, ok := c.frames[pc]
	return frames, ok
}

func (c *frameCache) put(pc uint64, frames []Frame) {
	if c.threaded {
		c.mu.Lock()
		defer c.mu.Unlock()
	}
	if c.frames == nil {
		c.frames = make(map[uint64][]Frame)
	}
	c.frames[pc] = frames
}

// Interner deduplicates strings. Do semantically returns its argument, but
// physically points at an existing string with the same contents if one
// was interned before. Interned strings are cloned, so they do not pin
// whatever larger buffer the argument may have been carved from.
type Interner struct {
	m sync.Map
}

func (in *Interner) Do(s string) string {
	if s == "" {
		return ""
	}
	if interned, ok := in.m.Load(s); ok {
		return interned.(string)
	}
	s = strings.Clone(s)
	in.m.Store(s, s)
	return s
}
