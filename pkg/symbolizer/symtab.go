// Copyright 2026 crashtrace project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package symbolizer

import (
	"debug/elf"
	"fmt"
	"sort"
)

// Symbol is one entry of a binary's text symbol table.
type Symbol struct {
	Addr uint64
	Size int
}

// ReadTextSymbols returns the function symbols of the binary bin, keyed by
// (demangled) name. A name can map to several symbols, e.g. for local
// functions defined in multiple translation units.
func ReadTextSymbols(bin string) (map[string][]Symbol, error) {
	file, err := elf.Open(bin)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file %v: %w", bin, err)
	}
	defer file.Close()
	all, err := file.Symbols()
	if err != nil {
		return nil, fmt.Errorf("failed to read ELF symbols: %w", err)
	}
	var text []elf.Symbol
	for _, sym := range all {
		if sym.Size == 0 || sym.Section < 0 || int(sym.Section) >= len(file.Sections) {
			continue
		}
		sect := file.Sections[sym.Section]
		if sect.Type != elf.SHT_PROGBITS || sect.Flags&elf.SHF_ALLOC == 0 ||
			sect.Flags&elf.SHF_EXECINSTR == 0 {
			continue
		}
		text = append(text, sym)
	}
	sort.Slice(text, func(i, j int) bool {
		return text[i].Value < text[j].Value
	})
	symbols := make(map[string][]Symbol)
	for _, sym := range text {
		name := demangleName(sym.Name)
		symbols[name] = append(symbols[name], Symbol{Addr: sym.Value, Size: int(sym.Size)})
	}
	return symbols, nil
}
