// Copyright 2026 crashtrace project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package symbolizer

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/ianlancetaylor/demangle"
)

// elfResolver resolves addresses of an arbitrary ELF binary using its
// DWARF debug info, falling back to the symbol table when DWARF does not
// cover an address. Line tables and subprogram lists are parsed lazily
// per compile unit and cached.
type elfResolver struct {
	path     string
	threaded bool
	ef       *elf.File
	dw       *dwarf.Data
	cuRanges []cuRange
	symbols  []elf.Symbol
	interner Interner
	frames   frameCache

	mu        sync.Mutex
	lineCache map[dwarf.Offset]*lineTable
	funcCache map[dwarf.Offset][]subprogram
}

type cuRange struct {
	low, high uint64
	entry     *dwarf.Entry
}

type subprogram struct {
	low, high uint64
	entry     *dwarf.Entry
}

type lineTable struct {
	entries []dwarf.LineEntry
	files   []*dwarf.LineFile
}

func newELFResolver(bin string, threaded bool) (Resolver, error) {
	ef, err := elf.Open(bin)
	if err != nil {
		return nil, err
	}
	dw, err := ef.DWARF()
	if err != nil {
		// Symbol-table-only resolution still works without DWARF.
		dw = nil
	}

	symbols, _ := ef.Symbols()
	funcs := symbols[:0]
	for _, sym := range symbols {
		if elf.ST_TYPE(sym.Info) == elf.STT_FUNC {
			funcs = append(funcs, sym)
		}
	}
	sort.Slice(funcs, func(i, j int) bool {
		return funcs[i].Value < funcs[j].Value
	})

	es := &elfResolver{
		path:      bin,
		threaded:  threaded,
		ef:        ef,
		dw:        dw,
		symbols:   funcs,
		frames:    frameCache{threaded: threaded},
		lineCache: make(map[dwarf.Offset]*lineTable),
		funcCache: make(map[dwarf.Offset][]subprogram),
	}
	if dw != nil {
		if err := es.indexUnits(); err != nil {
			ef.Close()
			return nil, fmt.Errorf("failed to index DWARF: %w", err)
		}
	}
	if dw == nil && len(funcs) == 0 {
		ef.Close()
		return nil, fmt.Errorf("%v contains neither debug info nor a symbol table", bin)
	}
	return es, nil
}

func (es *elfResolver) Resolve(pc uint64, visit VisitFunc) bool {
	frames, ok := es.frames.get(pc)
	if !ok {
		frames = es.symbolizePC(pc)
		for i := range frames {
			frames[i].Func = es.interner.Do(frames[i].Func)
			frames[i].File = es.interner.Do(frames[i].File)
		}
		es.frames.put(pc, frames)
	}
	for _, f := range frames {
		if !visit(f) {
			return false
		}
	}
	return true
}

// indexUnits builds a sorted index of compile unit address ranges so that
// the unit covering a PC can be found with binary search.
func (es *elfResolver) indexUnits() error {
	r := es.dw.Reader()
	for {
		entry, err := r.Next()
		if err != nil {
			return err
		}
		if entry == nil {
			break
		}
		if entry.Tag != dwarf.TagCompileUnit {
			r.SkipChildren()
			continue
		}
		ranges, err := es.dw.Ranges(entry)
		if err != nil {
			continue
		}
		for _, rng := range ranges {
			es.cuRanges = append(es.cuRanges, cuRange{low: rng[0], high: rng[1], entry: entry})
		}
	}
	sort.Slice(es.cuRanges, func(i, j int) bool {
		return es.cuRanges[i].low < es.cuRanges[j].low
	})
	return nil
}

func (es *elfResolver) findUnit(pc uint64) *dwarf.Entry {
	idx := sort.Search(len(es.cuRanges), func(i int) bool {
		return es.cuRanges[i].high > pc
	})
	if idx < len(es.cuRanges) && es.cuRanges[idx].low <= pc {
		return es.cuRanges[idx].entry
	}
	return nil
}

func (es *elfResolver) lock() {
	if es.threaded {
		es.mu.Lock()
	}
}

func (es *elfResolver) unlock() {
	if es.threaded {
		es.mu.Unlock()
	}
}

func (es *elfResolver) lineTableFor(cu *dwarf.Entry) (*lineTable, error) {
	es.lock()
	cached := es.lineCache[cu.Offset]
	es.unlock()
	if cached != nil {
		return cached, nil
	}

	lr, err := es.dw.LineReader(cu)
	if err != nil {
		return nil, err
	}
	if lr == nil {
		return nil, fmt.Errorf("compile unit has no line table")
	}
	var entries []dwarf.LineEntry
	var entry dwarf.LineEntry
	for {
		if err := lr.Next(&entry); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Address < entries[j].Address
	})

	lt := &lineTable{entries: entries, files: lr.Files()}
	es.lock()
	es.lineCache[cu.Offset] = lt
	es.unlock()
	return lt, nil
}

// lookup returns the line table entry covering pc, or nil.
func (lt *lineTable) lookup(pc uint64) *dwarf.LineEntry {
	idx := sort.Search(len(lt.entries), func(i int) bool {
		return lt.entries[i].Address > pc
	})
	if idx == 0 {
		return nil
	}
	candidate := &lt.entries[idx-1]
	// An EndSequence entry marks the end of a code sequence, exclusive,
	// so it does not cover pc.
	if candidate.EndSequence {
		return nil
	}
	return candidate
}

func (es *elfResolver) functionFor(cu *dwarf.Entry, pc uint64) *dwarf.Entry {
	es.lock()
	subs, ok := es.funcCache[cu.Offset]
	es.unlock()
	if !ok {
		subs = es.parseSubprograms(cu)
		es.lock()
		es.funcCache[cu.Offset] = subs
		es.unlock()
	}
	idx := sort.Search(len(subs), func(i int) bool {
		return subs[i].high > pc
	})
	if idx < len(subs) && subs[idx].low <= pc {
		return subs[idx].entry
	}
	return nil
}

func (es *elfResolver) parseSubprograms(cu *dwarf.Entry) []subprogram {
	var subs []subprogram
	r := es.dw.Reader()
	r.Seek(cu.Offset)
	r.Next() // the CU entry itself
	for {
		entry, err := r.Next()
		if err != nil || entry == nil || entry.Tag == 0 {
			break
		}
		if entry.Tag == dwarf.TagSubprogram {
			if ranges, err := es.dw.Ranges(entry); err == nil {
				for _, rng := range ranges {
					subs = append(subs, subprogram{low: rng[0], high: rng[1], entry: entry})
				}
			}
		}
		if entry.Children {
			r.SkipChildren()
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].low < subs[j].low
	})
	return subs
}

// symbolizePC produces the logical frames for one address. A PC inside
// inlined code yields one frame per inlined call plus the physical frame,
// innermost first. Missing data degrades field by field, never to an error.
func (es *elfResolver) symbolizePC(pc uint64) []Frame {
	if es.dw == nil {
		return []Frame{es.symtabFrame(pc)}
	}
	cu := es.findUnit(pc)
	if cu == nil {
		return []Frame{es.symtabFrame(pc)}
	}
	lt, err := es.lineTableFor(cu)
	if err != nil {
		return []Frame{es.symtabFrame(pc)}
	}
	line := lt.lookup(pc)

	var frames []Frame
	if funcEntry := es.functionFor(cu, pc); funcEntry != nil {
		frames = es.expandInlines(funcEntry, pc, line, lt.files)
	}
	if len(frames) == 0 {
		f := es.symtabFrame(pc)
		if line != nil && line.Line != 0 && line.File != nil {
			f.File = line.File.Name
			f.Line = line.Line
		}
		frames = []Frame{f}
	}
	return frames
}

// symtabFrame resolves pc against the ELF symbol table only.
func (es *elfResolver) symtabFrame(pc uint64) Frame {
	idx := sort.Search(len(es.symbols), func(i int) bool {
		return es.symbols[i].Value > pc
	})
	if idx == 0 {
		return Frame{PC: pc}
	}
	sym := es.symbols[idx-1]
	limit := sym.Value + sym.Size
	if sym.Size == 0 {
		// Sizeless symbols extend to the next symbol.
		if idx < len(es.symbols) {
			limit = es.symbols[idx].Value
		} else {
			limit = sym.Value + 4096
		}
	}
	if pc >= limit {
		return Frame{PC: pc}
	}
	return Frame{PC: pc, Func: demangleName(sym.Name)}
}

// expandInlines walks the DIE tree below funcEntry collecting the chain of
// inlined subroutines covering pc, innermost first, ending with the
// physical function.
func (es *elfResolver) expandInlines(funcEntry *dwarf.Entry, pc uint64,
	line *dwarf.LineEntry, files []*dwarf.LineFile) []Frame {
	var chain []*dwarf.Entry
	if funcEntry.Children {
		r := es.dw.Reader()
		r.Seek(funcEntry.Offset)
		r.Next()
		es.collectInlined(r, pc, &chain)
	}
	chain = append(chain, funcEntry)

	frames := make([]Frame, 0, len(chain))
	for i, die := range chain {
		origin := es.abstractOrigin(die)
		// Every logical frame carries the address it was resolved from,
		// inlined or not.
		f := Frame{
			PC:     pc,
			Inline: i > 0,
			Func:   dieName(die, origin),
		}
		if i == 0 {
			// The innermost frame gets the precise line table location,
			// or the function's declaration file as a fallback.
			if line != nil && line.Line != 0 && line.File != nil {
				f.File = line.File.Name
				f.Line = line.Line
			} else {
				f.File = declFile(die, origin, files)
			}
		} else {
			// Outer frames get the call site of the next inner frame.
			inner := chain[i-1]
			if fileIdx, ok := inner.Val(dwarf.AttrCallFile).(int64); ok &&
				fileIdx > 0 && int(fileIdx) < len(files) && files[fileIdx] != nil {
				f.File = files[fileIdx].Name
			}
			callLine, _ := inner.Val(dwarf.AttrCallLine).(int64)
			f.Line = int(callLine)
		}
		frames = append(frames, f)
	}
	return frames
}

// collectInlined appends to chain the inlined subroutines covering pc,
// innermost first. It reports whether the subtree at the reader's position
// contained a covering inlined subroutine.
func (es *elfResolver) collectInlined(r *dwarf.Reader, pc uint64, chain *[]*dwarf.Entry) bool {
	for {
		entry, err := r.Next()
		if err != nil || entry == nil || entry.Tag == 0 {
			return false
		}
		covers := false
		if ranges, err := es.dw.Ranges(entry); err == nil {
			for _, rng := range ranges {
				if pc >= rng[0] && pc < rng[1] {
					covers = true
					break
				}
			}
		}
		if !covers {
			if entry.Children {
				r.SkipChildren()
			}
			continue
		}
		if entry.Tag == dwarf.TagInlinedSubroutine {
			if entry.Children {
				es.collectInlined(r, pc, chain)
			}
			*chain = append(*chain, entry)
			return true
		}
		// Lexical blocks and similar containers: descend.
		if entry.Children {
			if es.collectInlined(r, pc, chain) {
				return true
			}
		}
	}
}

func (es *elfResolver) abstractOrigin(die *dwarf.Entry) *dwarf.Entry {
	ref, ok := die.Val(dwarf.AttrAbstractOrigin).(dwarf.Offset)
	if !ok {
		return nil
	}
	r := es.dw.Reader()
	r.Seek(ref)
	entry, err := r.Next()
	if err != nil {
		return nil
	}
	return entry
}

func dieName(die, origin *dwarf.Entry) string {
	for _, e := range []*dwarf.Entry{die, origin} {
		if e == nil {
			continue
		}
		if name, ok := e.Val(dwarf.AttrLinkageName).(string); ok {
			return demangleName(name)
		}
		if name, ok := e.Val(dwarf.AttrName).(string); ok {
			return name
		}
	}
	return ""
}

func declFile(die, origin *dwarf.Entry, files []*dwarf.LineFile) string {
	target := die
	if origin != nil {
		target = origin
	}
	if idx, ok := target.Val(dwarf.AttrDeclFile).(int64); ok &&
		idx > 0 && int(idx) < len(files) && files[idx] != nil {
		return files[idx].Name
	}
	return ""
}

func demangleName(name string) string {
	if d, err := demangle.ToString(name); err == nil {
		return d
	}
	return name
}
