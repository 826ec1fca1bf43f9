// Copyright 2026 crashtrace project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package symbolizer

import (
	"debug/elf"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/crashtrace/crashtrace/pkg/osutil"
)

//go:noinline
func elfProbe() int {
	return 42
}

// testExecutable returns the test binary if it is a non-PIE ELF, where
// function pointers equal the static addresses recorded in the file.
func testExecutable(t *testing.T) string {
	if runtime.GOOS != "linux" {
		t.Skip("requires an ELF executable")
	}
	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	ef, err := elf.Open(exe)
	if err != nil {
		t.Fatalf("test binary is not ELF: %v", err)
	}
	defer ef.Close()
	if ef.Type != elf.ET_EXEC {
		t.Skip("test binary is position-independent, static addresses don't apply")
	}
	return exe
}

func TestELFResolve(t *testing.T) {
	exe := testExecutable(t)
	h, err := NewHandle(exe, true)
	if err != nil {
		t.Fatalf("failed to create handle: %v", err)
	}
	pc := uint64(reflect.ValueOf(elfProbe).Pointer())
	var frames []Frame
	h.Resolve(pc, func(f Frame) bool {
		frames = append(frames, f)
		return true
	})
	if len(frames) == 0 {
		t.Fatalf("got no frames for pc %#x", pc)
	}
	if !strings.Contains(frames[0].Func, "elfProbe") {
		t.Fatalf("pc %#x resolved to %q, want elfProbe", pc, frames[0].Func)
	}
	if frames[0].PC != pc {
		t.Fatalf("frame pc %#x, want %#x", frames[0].PC, pc)
	}

	// The second resolution is served from the cache and must agree.
	var again []Frame
	h.Resolve(pc, func(f Frame) bool {
		again = append(again, f)
		return true
	})
	if !reflect.DeepEqual(frames, again) {
		t.Fatalf("cached resolution differs:\nfirst: %+v\nagain: %+v", frames, again)
	}
}

func TestELFResolveUnknown(t *testing.T) {
	exe := testExecutable(t)
	h, err := NewHandle(exe, false)
	if err != nil {
		t.Fatalf("failed to create handle: %v", err)
	}
	var frames []Frame
	h.Resolve(1, func(f Frame) bool {
		frames = append(frames, f)
		return true
	})
	if len(frames) != 1 || frames[0].PC != 1 {
		t.Fatalf("bogus pc did not degrade to a bare frame: %+v", frames)
	}
}

// buildCProgram compiles a small C program whose helper is force-inlined.
// Resolution happens against file addresses, so the default PIE linking
// does not matter.
func buildCProgram(t *testing.T, cflags ...string) string {
	if runtime.GOOS != "linux" {
		t.Skip("requires an ELF executable")
	}
	gcc, err := exec.LookPath("gcc")
	if err != nil {
		t.Skip("gcc is not installed")
	}
	dir := t.TempDir()
	src := filepath.Join(dir, "test.c")
	if err := osutil.WriteFile(src, []byte(cProgram)); err != nil {
		t.Fatal(err)
	}
	bin := filepath.Join(dir, "test")
	args := append([]string{"-O2"}, cflags...)
	args = append(args, "-o", bin, src)
	if out, err := osutil.Run(time.Minute, osutil.Command(gcc, args...)); err != nil {
		t.Fatalf("gcc failed: %v\n%s", err, out)
	}
	return bin
}

const cProgram = `
static inline __attribute__((always_inline)) int add(int x) {
	return x * x + 1;
}
__attribute__((noinline)) int mid(int x) {
	return add(x) + add(x + 1);
}
int main(int argc, char** argv) {
	return mid(argc);
}
`

func textSymbol(t *testing.T, bin, name string) (uint64, uint64) {
	symbols, err := ReadTextSymbols(bin)
	if err != nil {
		t.Fatal(err)
	}
	syms := symbols[name]
	if len(syms) != 1 {
		t.Fatalf("got %v symbols named %v, want 1", len(syms), name)
	}
	return syms[0].Addr, uint64(syms[0].Size)
}

func TestELFResolveInline(t *testing.T) {
	bin := buildCProgram(t, "-g")
	h, err := NewHandle(bin, false)
	if err != nil {
		t.Fatalf("failed to create handle: %v", err)
	}
	addr, size := textSymbol(t, bin, "mid")
	inlined := 0
	for pc := addr; pc < addr+size; pc++ {
		h.Resolve(pc, func(f Frame) bool {
			// Inline expansion yields several logical frames for one
			// address; each of them must carry that address.
			if f.PC != pc {
				t.Fatalf("frame %q at pc %#x has pc %#x", f.Func, pc, f.PC)
			}
			if f.Inline {
				inlined++
			}
			return true
		})
	}
	if inlined == 0 {
		t.Fatalf("no inlined frames inside mid")
	}
}

func TestELFSymtabOnly(t *testing.T) {
	bin := buildCProgram(t, "-g0")
	h, err := NewHandle(bin, false)
	if err != nil {
		t.Fatalf("failed to create handle: %v", err)
	}
	addr, _ := textSymbol(t, bin, "mid")
	var frames []Frame
	h.Resolve(addr, func(f Frame) bool {
		frames = append(frames, f)
		return true
	})
	if len(frames) != 1 {
		t.Fatalf("got %v frames, want 1", len(frames))
	}
	f := frames[0]
	if f.PC != addr || !strings.Contains(f.Func, "mid") {
		t.Fatalf("symbol table fallback gave %+v", f)
	}
	if f.File != "" || f.Line != 0 {
		t.Fatalf("got file/line without debug info: %+v", f)
	}
}

func TestReadTextSymbols(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("requires an ELF executable")
	}
	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	symbols, err := ReadTextSymbols(exe)
	if err != nil {
		t.Fatalf("failed to read symbols: %v", err)
	}
	if len(symbols) == 0 {
		t.Fatalf("got no text symbols")
	}
	if len(symbols["runtime.main"]) == 0 {
		t.Fatalf("runtime.main not among %v symbols", len(symbols))
	}
	for name, syms := range symbols {
		for _, sym := range syms {
			if sym.Size <= 0 {
				t.Fatalf("symbol %v has size %v", name, sym.Size)
			}
		}
	}
}
