// Copyright 2026 crashtrace project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build freebsd || netbsd || openbsd || linux || darwin

package crash

import (
	"syscall"

	"golang.org/x/sys/unix"
)

type signalInfo struct {
	name string
	sig  syscall.Signal
}

// knownSignals is the fixed table of fatal signals the reporter can
// intercept. Order matters: SupportedSignals reports exactly this order.
var knownSignals = []signalInfo{
	{"SIGSEGV", unix.SIGSEGV},
	{"SIGABRT", unix.SIGABRT},
	{"SIGFPE", unix.SIGFPE},
	{"SIGBUS", unix.SIGBUS},
	{"SIGILL", unix.SIGILL},
	{"SIGTRAP", unix.SIGTRAP},
	{"SIGSYS", unix.SIGSYS},
}

var defaultSignalNames = []string{"SIGSEGV", "SIGABRT", "SIGFPE", "SIGBUS"}

// SupportedSignals returns the names of all signals the reporter knows,
// in stable order.
func SupportedSignals() []string {
	names := make([]string, len(knownSignals))
	for i, info := range knownSignals {
		names[i] = info.name
	}
	return names
}

// DefaultSignals returns the subset installed when Enable receives no
// explicit signal list.
func DefaultSignals() []string {
	return append([]string{}, defaultSignalNames...)
}

func signalByName(name string) (syscall.Signal, bool) {
	for _, info := range knownSignals {
		if info.name == name {
			return info.sig, true
		}
	}
	return 0, false
}

// signalName is the handler-side name lookup. It is a fixed switch so that
// it stays reentrant: no map access, no allocation.
func signalName(sig syscall.Signal) string {
	switch sig {
	case unix.SIGSEGV:
		return "SIGSEGV"
	case unix.SIGABRT:
		return "SIGABRT"
	case unix.SIGFPE:
		return "SIGFPE"
	case unix.SIGBUS:
		return "SIGBUS"
	case unix.SIGILL:
		return "SIGILL"
	case unix.SIGTRAP:
		return "SIGTRAP"
	case unix.SIGSYS:
		return "SIGSYS"
	default:
		return "UNKNOWN"
	}
}
