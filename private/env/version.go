// Copyright 2025 The pki-server Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package env contains the build information shared by the pki-server
// commands.
package env

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Startup* variables are set during link time.
var (
	StartupBuildDate string = "local builds have no build time"
	StartupVersion   string
)

// Version returns the version of the binary. Without a link time version the
// module version from the build information is used.
func Version() string {
	if StartupVersion != "" {
		return StartupVersion
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "(devel)"
}

// VersionInfo returns build version information (build date, version, build chain).
func VersionInfo() string {
	return fmt.Sprintf("  %s\n  %s\n  %s\n",
		fmt.Sprintf("Build date:    %s", StartupBuildDate),
		fmt.Sprintf("PKI version:   %s", Version()),
		fmt.Sprintf("Build chain:   %s", runtime.Version()),
	)
}
