// Copyright 2025 Tom Barlow
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

// Package shared holds the state and helpers every mcporch command uses:
// global flags, exit codes, output styles and the runtime that wires
// configuration into clients, the oracle and the engine.
package shared

import (
	"strings"

	"github.com/tombee/mcporch/internal/config"
)

// Flags are the persistent flags every command accepts.
type Flags struct {
	Config      *string
	JSON        *bool
	LogLevel    *string
	LogFormat   *string
	MetricsAddr *string
}

type globalFlags struct {
	config      string
	json        bool
	logLevel    string
	logFormat   string
	metricsAddr string
}

var (
	global globalFlags

	build = struct{ version, commit, date string }{"dev", "unknown", "unknown"}
)

// RegisterFlagPointers returns the storage the root command binds its
// persistent flags to.
func RegisterFlagPointers() Flags {
	return Flags{
		Config:      &global.config,
		JSON:        &global.json,
		LogLevel:    &global.logLevel,
		LogFormat:   &global.logFormat,
		MetricsAddr: &global.metricsAddr,
	}
}

// overlay applies flags that were set on top of the loaded config.
func (g globalFlags) overlay(cfg *config.Config) {
	if g.logLevel != "" {
		cfg.Log.Level = strings.ToLower(g.logLevel)
	}
	if g.logFormat != "" {
		cfg.Log.Format = strings.ToLower(g.logFormat)
	}
	if g.metricsAddr != "" {
		cfg.Metrics.Addr = g.metricsAddr
	}
}

// GetJSON reports whether --json was given.
func GetJSON() bool {
	return global.json
}

// GetConfigPath returns the --config value.
func GetConfigPath() string {
	return global.config
}

// ResetFlagsForTest clears every global flag.
func ResetFlagsForTest() {
	global = globalFlags{}
}

// SetVersion records build information; main calls it with ldflags values.
func SetVersion(v, c, b string) {
	build.version, build.commit, build.date = v, c, b
}

// GetVersion returns the version, commit and build date.
func GetVersion() (string, string, string) {
	return build.version, build.commit, build.date
}
