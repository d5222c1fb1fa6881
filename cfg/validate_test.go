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

package cfg_test

import (
	"testing"

	"github.com/googlecloudplatform/wasmsand/cfg"
	"github.com/stretchr/testify/assert"
)

func defaultConfig() *cfg.Config {
	return &cfg.Config{
		Logging: cfg.GetDefaultLoggingConfig(),
		Sandbox: cfg.GetDefaultSandboxConfig(),
	}
}

func TestValidateConfig_DefaultsAreValid(t *testing.T) {
	assert.NoError(t, cfg.ValidateConfig(defaultConfig()))
}

func TestValidateConfig_RejectsZeroWallClock(t *testing.T) {
	c := defaultConfig()
	c.Sandbox.MaxWallClock = 0

	err := cfg.ValidateConfig(c)

	assert.Error(t, err)
}

func TestValidateConfig_RejectsNoWritablePrefix(t *testing.T) {
	c := defaultConfig()
	c.Sandbox.WritablePrefixes = nil

	err := cfg.ValidateConfig(c)

	assert.Error(t, err)
}

func TestValidateConfig_RejectsRelativeWritablePrefix(t *testing.T) {
	c := defaultConfig()
	c.Sandbox.WritablePrefixes = []string{"tmp"}

	err := cfg.ValidateConfig(c)

	assert.Error(t, err)
}

func TestValidateConfig_NetworkEnabledRequiresAllowlist(t *testing.T) {
	c := defaultConfig()
	c.Network.Enabled = true

	err := cfg.ValidateConfig(c)

	assert.Error(t, err)
}

func TestValidateConfig_RejectsUnknownSeverity(t *testing.T) {
	c := defaultConfig()
	c.Logging.Severity = "LOUD"

	err := cfg.ValidateConfig(c)

	assert.Error(t, err)
}

func TestRationalize_DebugFlagsForceTraceSeverity(t *testing.T) {
	c := defaultConfig()
	c.Debug.LogMutex = true

	require := assert.New(t)
	require.NoError(cfg.Rationalize(c))
	require.Equal(cfg.TraceLogSeverity, c.Logging.Severity)
}

func TestRationalize_RegistrySourceHostsEnableNetwork(t *testing.T) {
	c := defaultConfig()
	c.Registry.AllowedSourceHosts = cfg.HostList{"Example.COM"}

	assert.NoError(t, cfg.Rationalize(c))
	assert.True(t, c.Network.Enabled)
	assert.Equal(t, "example.com", c.Registry.AllowedSourceHosts[0])
}
