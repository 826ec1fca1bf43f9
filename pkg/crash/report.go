// Copyright 2026 crashtrace project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build freebsd || netbsd || openbsd || linux || darwin

package crash

import (
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/crashtrace/crashtrace/pkg/stack"
	"github.com/crashtrace/crashtrace/pkg/symbolizer"
)

const (
	stderrFD = 2

	// handlerSkip hides the reporting machinery's own frames
	// (writeReport and handleSignal) from the trace.
	handlerSkip = 2

	// lineBufSize bounds one formatted frame line. Longer function or
	// file names are truncated, not reallocated.
	lineBufSize = 512
)

// All fixed report text is pre-converted to bytes so the handler never
// allocates for it.
var (
	reportBanner = []byte("\n================================================================\n" +
		"                NATIVE CRASH REPORT (crashtrace)\n" +
		"================================================================\n\n")
	traceHeader = []byte("Native Stack Trace:\n" +
		"------------------------------------------------------------\n")
	reportFooter = []byte("\n------------------------------------------------------------\n" +
		"Tip: set GOTRACEBACK=crash to get runtime goroutine dumps and core files\n" +
		"================================================================\n\n")
	noHandleLine = []byte("  (symbolication handle not initialized)\n")
	savedPrefix  = []byte("Crash report saved to: ")
	newline      = []byte("\n")
)

// handleSignal is the handler body: report to stderr, optionally to the
// report file, then make the signal one-shot by restoring its default
// disposition and re-raising it. The process dies on this path. Failures
// are swallowed: the one thing the handler must not do is fault while
// reporting a fault.
//
// Both writeReport calls happen at the same stack depth so that the frame
// lines written to stderr and to the file are identical.
func handleSignal(cfg *config, sig syscall.Signal) {
	writeReport(stderrFD, sig, cfg.handle)
	if cfg.reportPath != "" {
		fd, err := unix.Open(cfg.reportPath, unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC, 0644)
		if err == nil {
			writeReport(fd, sig, cfg.handle)
			unix.Close(fd)
			rawWrite(stderrFD, savedPrefix)
			rawWrite(stderrFD, cfg.pathBytes)
			rawWrite(stderrFD, newline)
		}
	}
	signal.Reset(sig)
	unix.Kill(unix.Getpid(), sig)
}

func writeReport(fd int, sig syscall.Signal, h *symbolizer.Handle) {
	writeHeader(fd, sig)
	if h != nil {
		w := frameWriter{fd: fd}
		stack.Walk(h, handlerSkip, stack.MaxFrames, w.visit)
	} else {
		rawWrite(fd, noHandleLine)
	}
	rawWrite(fd, reportFooter)
}

func writeHeader(fd int, sig syscall.Signal) {
	rawWrite(fd, reportBanner)
	var buf [64]byte
	b := buf[:0]
	b = appendStr(b, "Signal: ")
	b = appendDec(b, uint64(sig))
	b = appendStr(b, " (")
	b = appendStr(b, signalName(sig))
	b = appendStr(b, ")\n")
	rawWrite(fd, b)
	b = buf[:0]
	b = appendStr(b, "PID: ")
	b = appendDec(b, uint64(unix.Getpid()))
	b = appendStr(b, "\n\n")
	rawWrite(fd, b)
	rawWrite(fd, traceHeader)
}

// frameWriter formats frames into its fixed buffer and writes each line
// immediately. Lines degrade with the available symbol data:
//
//	#0x4005d1 main at main.c:7
//	#0x4005d1 main
//	#0x4005d1 ??? at main.c:7
//	#0x4005d1 ???
type frameWriter struct {
	fd  int
	buf [lineBufSize]byte
}

func (w *frameWriter) visit(f symbolizer.Frame) bool {
	b := w.buf[:0]
	b = appendStr(b, "  #0x")
	b = appendHex(b, f.PC)
	b = appendStr(b, " ")
	if f.Func != "" {
		b = appendStr(b, f.Func)
	} else {
		b = appendStr(b, "???")
	}
	if f.File != "" {
		b = appendStr(b, " at ")
		b = appendStr(b, f.File)
		b = appendStr(b, ":")
		b = appendDec(b, uint64(f.Line))
	}
	b = endLine(b)
	rawWrite(w.fd, b)
	return true
}

// rawWrite emits b with the write syscall, retrying short writes and
// EINTR. Errors are ignored.
func rawWrite(fd int, b []byte) {
	for len(b) > 0 {
		n, err := unix.Write(fd, b)
		if err == unix.EINTR {
			continue
		}
		if err != nil || n <= 0 {
			return
		}
		b = b[n:]
	}
}

// appendStr appends s to b without ever growing past b's capacity.
func appendStr(b []byte, s string) []byte {
	if n := cap(b) - len(b); len(s) > n {
		s = s[:n]
	}
	return append(b, s...)
}

func appendRaw(b, s []byte) []byte {
	if n := cap(b) - len(b); len(s) > n {
		s = s[:n]
	}
	return append(b, s...)
}

// appendDec appends the decimal form of v. Reentrant, no allocation.
func appendDec(b []byte, v uint64) []byte {
	var tmp [20]byte
	pos := len(tmp)
	for {
		pos--
		tmp[pos] = byte('0' + v%10)
		v /= 10
		if v == 0 {
			break
		}
	}
	return appendRaw(b, tmp[pos:])
}

// appendHex appends the lowercase hex form of v. Reentrant, no allocation.
func appendHex(b []byte, v uint64) []byte {
	const digits = "0123456789abcdef"
	var tmp [16]byte
	pos := len(tmp)
	for {
		pos--
		tmp[pos] = digits[v&0xf]
		v >>= 4
		if v == 0 {
			break
		}
	}
	return appendRaw(b, tmp[pos:])
}

// endLine terminates the line, sacrificing the last byte if the buffer is
// full.
func endLine(b []byte) []byte {
	if len(b) == cap(b) {
		b[len(b)-1] = '\n'
		return b
	}
	return append(b, '\n')
}
