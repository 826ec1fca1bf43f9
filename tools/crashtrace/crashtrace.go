// Copyright 2026 crashtrace project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// crashtrace is a diagnostic tool around the crashtrace library.
// Without flags it prints the native stack of the current process.
// With -bin/-pcs it symbolizes addresses in an arbitrary binary,
// with -funcs it lists a binary's text symbols, and with -demo it
// enables the crash reporter and raises a fatal signal.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/crashtrace/crashtrace/pkg/crash"
	"github.com/crashtrace/crashtrace/pkg/log"
	"github.com/crashtrace/crashtrace/pkg/osutil"
	"github.com/crashtrace/crashtrace/pkg/stack"
	"github.com/crashtrace/crashtrace/pkg/symbolizer"
	"github.com/crashtrace/crashtrace/pkg/tool"
)

var (
	flagBin     = flag.String("bin", "", "binary to symbolize (default: current process)")
	flagPCs     = flag.String("pcs", "", "comma-separated addresses to symbolize in -bin")
	flagFuncs   = flag.Bool("funcs", false, "list text symbols of -bin")
	flagDemo    = flag.String("demo", "", "enable crash reporting and raise the given signal")
	flagReport  = flag.String("report", "", "crash report file path (used with -demo)")
	flagSignals = flag.String("signals", "", "comma-separated signals to intercept (used with -demo)")
	flagMax     = flag.Int("max", stack.MaxFrames, "max frames to capture")
	flagOut     = flag.String("out", "", "write output to this file instead of stdout")
)

func main() {
	defer tool.Init()()
	switch {
	case *flagDemo != "":
		demo()
	case *flagFuncs:
		listFuncs()
	case *flagPCs != "":
		symbolizePCs()
	default:
		printStack()
	}
}

func demo() {
	sig, ok := demoSignals[*flagDemo]
	if !ok {
		tool.Failf("don't know how to raise %v", *flagDemo)
	}
	var signals []string
	if *flagSignals != "" {
		signals = strings.Split(*flagSignals, ",")
	}
	if err := crash.Enable(signals, *flagReport); err != nil {
		tool.Fail(err)
	}
	log.Logf(0, "raising %v", *flagDemo)
	unix.Kill(unix.Getpid(), sig)
	// The report is written by the crash handler; give it time to run.
	time.Sleep(3 * time.Second)
	tool.Failf("signal %v was not delivered", *flagDemo)
}

var demoSignals = map[string]syscall.Signal{
	"SIGSEGV": unix.SIGSEGV,
	"SIGABRT": unix.SIGABRT,
	"SIGFPE":  unix.SIGFPE,
	"SIGBUS":  unix.SIGBUS,
	"SIGILL":  unix.SIGILL,
	"SIGTRAP": unix.SIGTRAP,
	"SIGSYS":  unix.SIGSYS,
}

func printStack() {
	handle, err := makeHandle()
	if err != nil {
		tool.Fail(err)
	}
	frames := stack.Capture(handle, 0, *flagMax)
	buf := new(bytes.Buffer)
	for _, f := range frames {
		writeFrame(buf, f)
	}
	emit(buf.Bytes())
}

func symbolizePCs() {
	handle, err := makeHandle()
	if err != nil {
		tool.Fail(err)
	}
	buf := new(bytes.Buffer)
	for _, str := range strings.Split(*flagPCs, ",") {
		pc, err := strconv.ParseUint(strings.TrimPrefix(str, "0x"), 16, 64)
		if err != nil {
			log.Errorf("skipping bad address %q: %v", str, err)
			continue
		}
		handle.Resolve(pc, func(f symbolizer.Frame) bool {
			writeFrame(buf, f)
			return true
		})
	}
	emit(buf.Bytes())
}

func listFuncs() {
	if *flagBin == "" {
		tool.Failf("-funcs requires -bin")
	}
	symbols, err := symbolizer.ReadTextSymbols(*flagBin)
	if err != nil {
		tool.Fail(err)
	}
	log.Logf(1, "read %v symbols from %v", len(symbols), *flagBin)
	names := make([]string, 0, len(symbols))
	for name := range symbols {
		names = append(names, name)
	}
	sort.Strings(names)
	buf := new(bytes.Buffer)
	for _, name := range names {
		for _, sym := range symbols[name] {
			fmt.Fprintf(buf, "%#x\t%v\t%v\n", sym.Addr, sym.Size, name)
		}
	}
	emit(buf.Bytes())
}

func makeHandle() (*symbolizer.Handle, error) {
	if *flagBin == "" {
		return symbolizer.Self(), nil
	}
	return symbolizer.NewHandle(*flagBin, false)
}

func writeFrame(buf *bytes.Buffer, f symbolizer.Frame) {
	fn := f.Func
	if fn == "" {
		fn = "???"
	}
	fmt.Fprintf(buf, "#%#x %v", f.PC, fn)
	if f.File != "" {
		fmt.Fprintf(buf, " at %v:%v", f.File, f.Line)
	}
	if f.Inline {
		buf.WriteString(" [inline]")
	}
	buf.WriteByte('\n')
}

func emit(data []byte) {
	if *flagOut != "" {
		if err := osutil.WriteFile(*flagOut, data); err != nil {
			tool.Fail(err)
		}
		return
	}
	os.Stdout.Write(data)
}
