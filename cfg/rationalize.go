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

import (
	"path"
	"strings"
)

// Rationalize updates config fields based on the values of other fields,
// after flags/config-file decoding and before ValidateConfig runs.
func Rationalize(c *Config) error {
	if c.Debug.LogMutex || c.Debug.ExitOnInvariantViolation {
		c.Logging.Severity = TraceLogSeverity
	}

	for i, p := range c.Sandbox.WritablePrefixes {
		c.Sandbox.WritablePrefixes[i] = path.Clean(p)
	}

	for i, h := range c.Network.AllowedHosts {
		c.Network.AllowedHosts[i] = strings.ToLower(h)
	}
	for i, h := range c.Registry.AllowedSourceHosts {
		c.Registry.AllowedSourceHosts[i] = strings.ToLower(h)
	}

	// curl/wget have no allowlist-checked source to install from, so the
	// network gateway implicitly needs to be on for the registry to be
	// reachable from inside a script; the reverse isn't true.
	if len(c.Registry.AllowedSourceHosts) > 0 {
		c.Network.Enabled = true
	}

	return nil
}
