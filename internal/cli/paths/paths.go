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

// Package paths centralizes the filesystem layout every command needs to
// agree on: the per-project task store lives at
// "<project>/.steroids/steroids.db", the host-wide control plane at
// "~/.steroids/steroids.db".
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// ProjectDir returns "<project>/.steroids", creating it if absent.
func ProjectDir(project string) (string, error) {
	dir := filepath.Join(project, ".steroids")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create project directory: %w", err)
	}
	return dir, nil
}

// ProjectDBPath returns the path to a project's task store.
func ProjectDBPath(project string) (string, error) {
	dir, err := ProjectDir(project)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "steroids.db"), nil
}

// ProjectLogDir returns "<project>/.steroids/logs", creating it if absent.
func ProjectLogDir(project string) (string, error) {
	dir := filepath.Join(project, ".steroids", "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create project log directory: %w", err)
	}
	return dir, nil
}

// GlobalDir returns "~/.steroids", creating it if absent.
func GlobalDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".steroids")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create global directory: %w", err)
	}
	return dir, nil
}

// GlobalDBPath returns the path to the host-wide control plane.
func GlobalDBPath() (string, error) {
	dir, err := GlobalDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "steroids.db"), nil
}

// GlobalRunnerLogDir returns "~/.steroids/runners/logs", creating it if
// absent.
func GlobalRunnerLogDir() (string, error) {
	home, err := GlobalDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, "runners", "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create runner log directory: %w", err)
	}
	return dir, nil
}

// ResolveProject returns the absolute form of project if non-empty, else
// the current working directory.
func ResolveProject(project string) (string, error) {
	if project != "" {
		return filepath.Abs(project)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve project directory: %w", err)
	}
	return cwd, nil
}
