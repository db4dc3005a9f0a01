package transform

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectFile is the dbt project descriptor inside the project directory.
const ProjectFile = "dbt_project.yml"

// Project is the subset of dbt_project.yml the runner reports.
type Project struct {
	Name          string   `yaml:"name"`
	Version       string   `yaml:"version"`
	Profile       string   `yaml:"profile"`
	ConfigVersion int      `yaml:"config-version"`
	ModelPaths    []string `yaml:"model-paths"`
	TestPaths     []string `yaml:"test-paths"`
}

// LoadProject reads dir/dbt_project.yml.
func LoadProject(dir string) (*Project, error) {
	b, err := os.ReadFile(filepath.Join(dir, ProjectFile))
	if err != nil {
		return nil, err
	}
	var p Project
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ProjectFile, err)
	}
	return &p, nil
}
