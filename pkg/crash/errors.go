// Copyright 2026 crashtrace project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package crash

import "fmt"

// ConfigurationError means Enable was called with an unknown signal name
// or an unusable report path. Nothing was installed.
type ConfigurationError struct {
	Signal string
	Path   string
}

func (e *ConfigurationError) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("unknown signal %q", e.Signal)
	}
	return fmt.Sprintf("invalid report path %q", e.Path)
}

// PlatformError means OS-level signal installation failed, with any
// signals installed by the same Enable call rolled back. Installation
// goes through os/signal, which cannot fail on the platforms this package
// builds for, so only ports with fallible installation return it.
type PlatformError struct {
	Signal string
	Err    error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("failed to install handler for %v: %v", e.Signal, e.Err)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}
