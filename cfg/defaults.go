// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cfg

import "time"

// GetDefaultLoggingConfig returns the default configuration that is to be used
// during application startup, before any provided configuration is parsed.
func GetDefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Severity: InfoLogSeverity,
		Format:   "text",
	}
}

// GetDefaultSandboxConfig returns the resource ceilings applied when no
// config file or flag overrides them.
func GetDefaultSandboxConfig() SandboxConfig {
	return SandboxConfig{
		MaxWallClock:     30 * time.Second,
		MaxFiles:         4096,
		MaxBytes:         64 << 20,
		MaxProcesses:     64,
		FileMode:         0644,
		Uid:              0,
		WritablePrefixes: []string{"/tmp"},
	}
}
