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
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the full set of knobs for one sandboxed run: resource
// limits, filesystem mount policy, and the two host collaborators
// (network gateway, tool registry) a script may reach out to.
type Config struct {
	AppName string `yaml:"app-name"`

	Debug DebugConfig `yaml:"debug"`

	Logging LoggingConfig `yaml:"logging"`

	Sandbox SandboxConfig `yaml:"sandbox"`

	Network NetworkConfig `yaml:"network"`

	Registry RegistryConfig `yaml:"registry"`
}

type DebugConfig struct {
	ExitOnInvariantViolation bool `yaml:"exit-on-invariant-violation"`

	LogMutex bool `yaml:"log-mutex"`
}

type LoggingConfig struct {
	Severity LogSeverity `yaml:"severity"`

	Format string `yaml:"format"`
}

// SandboxConfig bounds one run's blast radius: wall clock, VFS inode
// and byte ceilings, process fan-out, default inode ownership, and the
// prefixes a script is allowed to write under.
type SandboxConfig struct {
	MaxWallClock time.Duration `yaml:"max-wall-clock"`

	MaxFiles int64 `yaml:"max-files"`

	MaxBytes int64 `yaml:"max-bytes"`

	MaxProcesses int `yaml:"max-processes"`

	FileMode Octal `yaml:"file-mode"`

	Uid int `yaml:"uid"`

	WritablePrefixes []string `yaml:"writable-prefixes"`
}

// NetworkConfig gates the curl/wget builtins and any guest module that
// reaches the network gateway collaborator.
type NetworkConfig struct {
	Enabled bool `yaml:"enabled"`

	AllowedHosts HostList `yaml:"allowed-hosts"`
}

// RegistryConfig gates installs into the tool registry collaborator.
type RegistryConfig struct {
	ModuleSizeCapBytes int64 `yaml:"module-size-cap-bytes"`

	AllowedSourceHosts HostList `yaml:"allowed-source-hosts"`
}

func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	flagSet.StringP("app-name", "", "wasmsand", "The application name reported in logs.")
	if err = viper.BindPFlag("app-name", flagSet.Lookup("app-name")); err != nil {
		return err
	}

	flagSet.BoolP("debug_invariants", "", false, "Exit when internal invariants are violated.")
	if err = viper.BindPFlag("debug.exit-on-invariant-violation", flagSet.Lookup("debug_invariants")); err != nil {
		return err
	}

	flagSet.BoolP("debug_mutex", "", false, "Print debug messages when a mutex is held too long.")
	if err = viper.BindPFlag("debug.log-mutex", flagSet.Lookup("debug_mutex")); err != nil {
		return err
	}

	flagSet.StringP("log-severity", "", "INFO", "Logging severity: TRACE, DEBUG, INFO, WARNING, ERROR, OFF.")
	if err = viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	flagSet.StringP("log-format", "", "text", "Logging output format: text or json.")
	if err = viper.BindPFlag("logging.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	flagSet.Duration("max-wall-clock", 30*time.Second, "Maximum wall-clock duration for one run.")
	if err = viper.BindPFlag("sandbox.max-wall-clock", flagSet.Lookup("max-wall-clock")); err != nil {
		return err
	}

	flagSet.Int64("max-files", 4096, "Maximum inode count the virtual filesystem may hold.")
	if err = viper.BindPFlag("sandbox.max-files", flagSet.Lookup("max-files")); err != nil {
		return err
	}

	flagSet.Int64("max-bytes", 64<<20, "Maximum total byte footprint of the virtual filesystem.")
	if err = viper.BindPFlag("sandbox.max-bytes", flagSet.Lookup("max-bytes")); err != nil {
		return err
	}

	flagSet.Int("max-processes", 64, "Process fan-out ceiling; must be positive. The kernel does not enforce it.")
	if err = viper.BindPFlag("sandbox.max-processes", flagSet.Lookup("max-processes")); err != nil {
		return err
	}

	flagSet.IntP("file-mode", "", 0644, "Permission bits, in octal. Stored in the config; created files do not use it.")
	if err = viper.BindPFlag("sandbox.file-mode", flagSet.Lookup("file-mode")); err != nil {
		return err
	}

	flagSet.IntP("uid", "", 0, "UID setting. Stored in the config; inodes do not report it.")
	if err = viper.BindPFlag("sandbox.uid", flagSet.Lookup("uid")); err != nil {
		return err
	}

	flagSet.StringSlice("writable-prefix", []string{"/tmp"}, "Path prefix under which writes are allowed; repeatable.")
	if err = viper.BindPFlag("sandbox.writable-prefixes", flagSet.Lookup("writable-prefix")); err != nil {
		return err
	}

	flagSet.Bool("network", false, "Allow the curl/wget builtins and guest network calls.")
	if err = viper.BindPFlag("network.enabled", flagSet.Lookup("network")); err != nil {
		return err
	}

	flagSet.StringSlice("allow-host", nil, "Hostname reachable through the network gateway; repeatable.")
	if err = viper.BindPFlag("network.allowed-hosts", flagSet.Lookup("allow-host")); err != nil {
		return err
	}

	flagSet.Int64("registry-size-cap", 8<<20, "Maximum byte size of one installed tool-registry module.")
	if err = viper.BindPFlag("registry.module-size-cap-bytes", flagSet.Lookup("registry-size-cap")); err != nil {
		return err
	}

	flagSet.StringSlice("allow-source-host", nil, "Hostname the tool registry may install modules from; repeatable.")
	if err = viper.BindPFlag("registry.allowed-source-hosts", flagSet.Lookup("allow-source-host")); err != nil {
		return err
	}

	return nil
}
