// Copyright 2026 crashtrace project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build freebsd || netbsd || openbsd || linux || darwin

// Package crash installs handlers for fatal signals and writes a
// best-effort native stack trace when one is delivered, before letting the
// process die the way the signal implied.
//
// The report writer does not depend on the process being in a healthy
// state: it formats into fixed-size buffers and emits them with raw write
// syscalls. Symbolication state is created during Enable, never inside the
// handler. As in other garbage-collected runtimes, full async-signal-safety
// is best effort: resolving an address reads runtime metadata, which in
// practice works because the shared handle exists before any handler fires.
//
// Enable and Disable mutate shared state and must not be called
// concurrently with each other. The handler itself touches only the
// read-only configuration captured at Enable time.
package crash

import (
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/crashtrace/crashtrace/pkg/log"
	"github.com/crashtrace/crashtrace/pkg/symbolizer"
)

// maxReportPath bounds the report path so the handler-side copy fits a
// fixed buffer together with the confirmation line around it.
const maxReportPath = 480

// config is the state the handler reads. It is captured per Enable call
// and never mutated afterwards.
type config struct {
	signals    []syscall.Signal
	reportPath string
	pathBytes  []byte // reportPath as bytes, prepared for raw writes
	handle     *symbolizer.Handle
}

var (
	mu      sync.Mutex
	enabled bool
	current *config
	sigCh   chan os.Signal
	quit    chan struct{}
)

// Enable installs one-shot handlers for the given signal names, or for
// DefaultSignals when signals is nil. A non-empty reportPath makes the
// handler also write the report to a freshly created file at that path.
// Calling Enable while enabled reconfigures: previous handlers are
// uninstalled first. Validation is all-or-nothing: an unknown signal name
// or a bad path fails the call before any OS state is touched.
func Enable(signals []string, reportPath string) error {
	mu.Lock()
	defer mu.Unlock()

	names := signals
	if names == nil {
		names = defaultSignalNames
	}
	sigs := make([]syscall.Signal, 0, len(names))
	for _, name := range names {
		sig, ok := signalByName(name)
		if !ok {
			return &ConfigurationError{Signal: name}
		}
		sigs = append(sigs, sig)
	}
	if strings.ContainsRune(reportPath, 0) || len(reportPath) > maxReportPath {
		return &ConfigurationError{Path: reportPath}
	}

	disableLocked()

	// The handler must never allocate, so the shared handle has to exist
	// before any signal can fire. It is created once and never released.
	cfg := &config{
		signals: sigs,
		handle:  symbolizer.Self(),
	}
	if reportPath != "" {
		cfg.reportPath = reportPath
		cfg.pathBytes = []byte(reportPath)
	}

	if len(sigs) > 0 {
		notify := make([]os.Signal, len(sigs))
		for i, sig := range sigs {
			notify[i] = sig
		}
		sigCh = make(chan os.Signal, len(sigs)+1)
		quit = make(chan struct{})
		signal.Notify(sigCh, notify...)
		go reportLoop(cfg, sigCh, quit)
	}

	current = cfg
	enabled = true
	log.Logf(1, "crash reporting enabled for %v", names)
	return nil
}

// Disable restores the default disposition of every intercepted signal and
// clears the report path. It always succeeds and is idempotent.
func Disable() {
	mu.Lock()
	defer mu.Unlock()
	disableLocked()
}

func disableLocked() {
	if sigCh != nil {
		signal.Stop(sigCh)
		close(quit)
		sigCh = nil
		quit = nil
	}
	if current != nil {
		for _, sig := range current.signals {
			signal.Reset(sig)
		}
		current = nil
	}
	if enabled {
		log.Logf(1, "crash reporting disabled")
	}
	enabled = false
}

// IsEnabled reports whether crash reporting is currently installed.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// reportLoop waits for an intercepted signal and runs the handler body for
// the first one delivered. cfg is read-only here; the loop shares no other
// state with the control path.
func reportLoop(cfg *config, ch chan os.Signal, quit chan struct{}) {
	for {
		select {
		case s := <-ch:
			sig, ok := s.(syscall.Signal)
			if !ok {
				continue
			}
			handleSignal(cfg, sig)
		case <-quit:
			return
		}
	}
}
