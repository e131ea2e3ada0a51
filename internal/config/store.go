package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"pdf-ocr-batch/internal/domain"
)

// Store defines persistence operations for pipeline configuration.
type Store interface {
	Load() (domain.PipelineConfig, error)
	Save(domain.PipelineConfig) error
}

// YAMLStore persists configuration in a single YAML file on disk.
type YAMLStore struct {
	path string
}

// NewYAMLStore creates a YAML-backed configuration store.
func NewYAMLStore(path string) *YAMLStore {
	return &YAMLStore{path: path}
}

// Load reads the file over the defaults. A missing file yields defaults;
// keys absent from the file keep their default value.
func (s *YAMLStore) Load() (domain.PipelineConfig, error) {
	cfg := DefaultConfig()
	if err := s.loadInto(&cfg); err != nil {
		return domain.PipelineConfig{}, err
	}
	return cfg, nil
}

func (s *YAMLStore) loadInto(cfg *domain.PipelineConfig) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}
	return nil
}

// Save writes the configuration as YAML and creates parent directories.
func (s *YAMLStore) Save(cfg domain.PipelineConfig) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0o644)
}
