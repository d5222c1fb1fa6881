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

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/googlecloudplatform/wasmsand/cfg"
)

// crashFileEnv names the file a guest trap or internal panic's stack
// trace is appended to, when set; otherwise panics surface on stderr
// as usual.
const crashFileEnv = "WASMSAND_CRASH_FILE"

var (
	cfgFile       string
	bindErr       error
	configFileErr error
	unmarshalErr  error
	RunConfig     cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "wasmsand",
	Short: "Run a POSIX shell script inside a sandboxed WebAssembly runtime",
	Long: `wasmsand executes a shell command or script against an in-memory
virtual filesystem and WASI Preview 1 guest modules, with no access to
the host filesystem, network, or process table beyond what the
configured sandbox policy explicitly allows.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}
		if unmarshalErr != nil {
			return unmarshalErr
		}
		if err := cfg.Rationalize(&RunConfig); err != nil {
			return err
		}
		return cfg.ValidateConfig(&RunConfig)
	},
}

func Execute() {
	if crashFile := os.Getenv(crashFileEnv); crashFile != "" {
		defer recoverToCrashFile(crashFile)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// recoverToCrashFile appends a recovered panic's message and stack
// trace to fileName and re-panics, so a guest trap that somehow
// escapes the WASI host boundary still leaves a record behind instead
// of only ever being visible on a stderr that may not be captured.
func recoverToCrashFile(fileName string) {
	if r := recover(); r != nil {
		w := &CrashWriter{fileName: fileName}
		fmt.Fprintf(w, "panic: %v\n%s\n", r, debug.Stack())
		panic(r)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file.")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(runCmd)
}

func initConfig() {
	if cfgFile == "" {
		unmarshalErr = viper.Unmarshal(&RunConfig, viper.DecodeHook(cfg.DecodeHook()))
		return
	}

	resolved, err := filepath.Abs(cfgFile)
	if err != nil {
		configFileErr = fmt.Errorf("error while resolving config file path: %w", err)
		return
	}
	viper.SetConfigFile(resolved)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		configFileErr = fmt.Errorf("error while reading config file: %w", err)
		return
	}
	unmarshalErr = viper.Unmarshal(&RunConfig, viper.DecodeHook(cfg.DecodeHook()))
}
