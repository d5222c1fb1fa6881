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

import "fmt"

func isValidSandboxConfig(s *SandboxConfig) error {
	if s.MaxWallClock <= 0 {
		return fmt.Errorf("max-wall-clock must be positive")
	}
	if s.MaxFiles <= 0 {
		return fmt.Errorf("max-files must be positive")
	}
	if s.MaxBytes <= 0 {
		return fmt.Errorf("max-bytes must be positive")
	}
	if s.MaxProcesses <= 0 {
		return fmt.Errorf("max-processes must be positive")
	}
	if len(s.WritablePrefixes) == 0 {
		return fmt.Errorf("at least one writable-prefix is required")
	}
	for _, p := range s.WritablePrefixes {
		if len(p) == 0 || p[0] != '/' {
			return fmt.Errorf("writable-prefix %q must be an absolute path", p)
		}
	}
	return nil
}

func isValidNetworkConfig(n *NetworkConfig) error {
	if n.Enabled && len(n.AllowedHosts) == 0 {
		return fmt.Errorf("network.enabled requires at least one entry in allowed-hosts")
	}
	return nil
}

// ValidateConfig returns a non-nil error if the config is invalid.
func ValidateConfig(config *Config) error {
	if _, ok := severityRanking[config.Logging.Severity]; !ok {
		return fmt.Errorf("invalid logging severity: %s", config.Logging.Severity)
	}

	if err := isValidSandboxConfig(&config.Sandbox); err != nil {
		return fmt.Errorf("error parsing sandbox config: %w", err)
	}

	if err := isValidNetworkConfig(&config.Network); err != nil {
		return fmt.Errorf("error parsing network config: %w", err)
	}

	return nil
}
