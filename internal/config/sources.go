package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jonathan/workforce-signals/internal/types"
	"gopkg.in/yaml.v3"
)

//go:embed default_sources.yaml
var defaultSourcesYAML []byte

// ErrEmptyRegistry is returned when a registry defines no sources.
var ErrEmptyRegistry = errors.New("source registry is empty")

var sourceValidator = validator.New()

type registryFile struct {
	Sources []types.SourceDescriptor `yaml:"sources"`
}

// LoadSources reads a YAML source registry from path.
func LoadSources(path string) ([]types.SourceDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file %s: %w", path, err)
	}
	return ParseSources(data)
}

// DefaultSources returns the built-in registry.
func DefaultSources() []types.SourceDescriptor {
	sources, err := ParseSources(defaultSourcesYAML)
	if err != nil {
		panic(fmt.Sprintf("invalid built-in source registry: %v", err))
	}
	return sources
}

// ResolveSources loads the registry named by c, or the built-in one.
func (c *Config) ResolveSources() ([]types.SourceDescriptor, error) {
	if c.SourcesFile == "" {
		return DefaultSources(), nil
	}
	return LoadSources(c.SourcesFile)
}

// ParseSources decodes and validates a YAML registry. Order is preserved.
func ParseSources(data []byte) ([]types.SourceDescriptor, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sources YAML: %w", err)
	}
	if len(file.Sources) == 0 {
		return nil, ErrEmptyRegistry
	}

	seen := make(map[string]struct{}, len(file.Sources))
	for i := range file.Sources {
		s := &file.Sources[i]
		if s.Kind == "" {
			s.Kind = types.SourceKindPage
		}
		if err := sourceValidator.Struct(s); err != nil {
			return nil, fmt.Errorf("invalid source %d (%q): %w", i, s.Name, err)
		}
		if _, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("duplicate source name %q", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return file.Sources, nil
}
