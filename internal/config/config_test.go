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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 3, cfg.MaxClones)
	assert.Equal(t, 900*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 120*time.Minute, cfg.MergeLockTimeout)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, "origin", cfg.RemoteName)
	assert.Equal(t, "main", cfg.MainlineBranch)
	assert.Empty(t, cfg.WorkspaceRoot)
	assert.Empty(t, cfg.ValidationCommand)
}

func TestLoad_OverlaysOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
workspace_root: /tmp/workspaces
max_clones: 5
validation_command: ["go", "test", "./..."]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/workspaces", cfg.WorkspaceRoot)
	assert.Equal(t, 5, cfg.MaxClones)
	assert.Equal(t, []string{"go", "test", "./..."}, cfg.ValidationCommand)

	// fields absent from the file keep their default
	assert.Equal(t, 900*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, "origin", cfg.RemoteName)
	assert.Equal(t, "main", cfg.MainlineBranch)
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAMLReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid: yaml"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
