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

// Package config holds the small set of typed knobs the engine's core
// components are constructed from: workspace layout, clone and timeout
// budgets, the validation command, and the git remote/mainline names.
// Reading a config file, running an interactive wizard, and parsing CLI
// flags into this struct are the job of the command layer; this package
// only defines the struct and a thin YAML loader.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete set of tunables the engine's components accept
// as a constructor argument.
type Config struct {
	// WorkspaceRoot is the directory under which per-workstream clones
	// and integration directories are created.
	WorkspaceRoot string `yaml:"workspace_root"`

	// MaxClones bounds how many workstream clones may exist concurrently.
	MaxClones int `yaml:"max_clones"`

	// ProviderTimeout bounds a single coder/reviewer/coordinator invocation.
	ProviderTimeout time.Duration `yaml:"provider_timeout"`

	// MergeLockTimeout bounds how long a runner may hold the merge lock
	// before its lease is considered lost.
	MergeLockTimeout time.Duration `yaml:"merge_lock_timeout"`

	// HeartbeatInterval is how often a runner refreshes its lease/heartbeat.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// ValidationCommand is run against the integration branch before a
	// merged workstream is considered clean. Empty disables the gate.
	ValidationCommand []string `yaml:"validation_command,omitempty"`

	// RemoteName is the git remote workstream branches push to and
	// prune from.
	RemoteName string `yaml:"remote_name"`

	// MainlineBranch is the branch workstreams are partitioned from and
	// merged back into.
	MainlineBranch string `yaml:"mainline_branch"`
}

// Default returns a Config populated with the engine's documented
// defaults: 3 concurrent clones, a 900s provider timeout, a 120 minute
// merge lock timeout, a 30s heartbeat interval, remote "origin", and
// mainline branch "main".
func Default() *Config {
	return &Config{
		MaxClones:         3,
		ProviderTimeout:   900 * time.Second,
		MergeLockTimeout:  120 * time.Minute,
		HeartbeatInterval: 30 * time.Second,
		RemoteName:        "origin",
		MainlineBranch:    "main",
	}
}

// Load reads a YAML config file at path and overlays it onto Default().
// Fields absent from the file keep their default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
