// Copyright 2024 Google LLC
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

import "runtime"

// DefaultMaxProcesses scales a process fan-out ceiling with the host's
// core count. The flag and GetDefaultSandboxConfig default to a fixed 64
// and do not call it.
func DefaultMaxProcesses() int {
	return max(16, 2*runtime.NumCPU())
}

// IsWritable reports whether path falls under one of the configured
// writable prefixes.
func IsWritable(s *SandboxConfig, path string) bool {
	for _, prefix := range s.WritablePrefixes {
		if path == prefix || (len(path) > len(prefix) && path[:len(prefix)] == prefix && path[len(prefix)] == '/') {
			return true
		}
	}
	return false
}
