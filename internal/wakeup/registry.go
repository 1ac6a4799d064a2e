package wakeup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultProjectsFile is where the project registry lives when Options
// doesn't override it.
func DefaultProjectsFile() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".steroids", "projects.json"), nil
}

// LoadProjects reads the project registry, a JSON array of project paths.
// A missing file is treated as an empty registry, not an error: the
// registry starts out unpopulated on a fresh install.
func LoadProjects(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read project registry %s: %w", path, err)
	}
	var projects []string
	if err := json.Unmarshal(data, &projects); err != nil {
		return nil, fmt.Errorf("parse project registry %s: %w", path, err)
	}
	return projects, nil
}

// RegisterProject appends path to the registry at registryPath if not
// already present, creating the file and its parent directory if needed.
func RegisterProject(registryPath, path string) error {
	projects, err := LoadProjects(registryPath)
	if err != nil {
		return err
	}
	for _, p := range projects {
		if p == path {
			return nil
		}
	}
	projects = append(projects, path)
	return saveProjects(registryPath, projects)
}

func saveProjects(registryPath string, projects []string) error {
	if err := os.MkdirAll(filepath.Dir(registryPath), 0o700); err != nil {
		return fmt.Errorf("create project registry directory: %w", err)
	}
	data, err := json.MarshalIndent(projects, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal project registry: %w", err)
	}
	if err := os.WriteFile(registryPath, data, 0o600); err != nil {
		return fmt.Errorf("write project registry %s: %w", registryPath, err)
	}
	return nil
}
