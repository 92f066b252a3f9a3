package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FromFile loads a YAML (.yaml, .yml) or JSON (.json) file.
func FromFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FromYAML(raw)
	case ".json":
		return FromJSON(raw)
	default:
		return Config{}, fmt.Errorf("config %s: unsupported extension %q", path, ext)
	}
}

// FromReader decodes YAML from r. JSON documents are valid YAML and decode too.
func FromReader(r io.Reader) (Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return FromYAML(raw)
}

// FromYAML decodes a YAML document.
func FromYAML(raw []byte) (Config, error) {
	var values map[string]any
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return Config{}, fmt.Errorf("decode yaml config: %w", err)
	}
	return New(values), nil
}

// FromJSON decodes a JSON document.
func FromJSON(raw []byte) (Config, error) {
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return Config{}, fmt.Errorf("decode json config: %w", err)
	}
	return New(values), nil
}
