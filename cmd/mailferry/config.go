package main

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const configFileName = "config.yaml"

// fileConfig is the optional config.yaml in the config directory.
// Command-line flags override anything set here.
type fileConfig struct {
	Source     string  `yaml:"source"`
	Archive    string  `yaml:"archive"`
	Rate       float64 `yaml:"rate"`
	PageSize   int64   `yaml:"page_size"`
	MaxRetries int     `yaml:"max_retries"`
}

// loadConfig reads config.yaml from configDir. A missing file is not
// an error; a malformed one is.
func loadConfig(configDir string) (fileConfig, error) {
	var cfg fileConfig
	path := filepath.Join(configDir, configFileName)
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, errors.Wrapf(err, "reading %s", path)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing %s", path)
	}
	return cfg, nil
}
