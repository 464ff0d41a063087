// Copyright 2026 SnapFS Authors
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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// getConfigDir returns the config directory path.
// Uses SNAPFS_CONFIG_DIR env var if set, otherwise defaults to ~/.snapfs.
// Computed dynamically to support test isolation.
func getConfigDir() string {
	if dir := os.Getenv("SNAPFS_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".snapfs")
}

// ConfigDir returns the configuration directory path.
func ConfigDir() string {
	return getConfigDir()
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(getConfigDir(), "settings.yaml")
}

// TracePath returns the shell audit trace file path.
func TracePath() string {
	return filepath.Join(getConfigDir(), "shell_trace.log")
}

// TraceLockPath returns the lock file guarding the trace file.
func TraceLockPath() string {
	return filepath.Join(getConfigDir(), "shell_trace.lock")
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	return os.MkdirAll(getConfigDir(), 0700)
}

// Settings is the user configuration loaded from settings.yaml.
type Settings struct {
	Logging     string `yaml:"logging"`      // none, error, info, debug, trace
	Owner       string `yaml:"owner"`        // default owner of new inodes
	Group       string `yaml:"group"`        // default group of new inodes
	Replication uint16 `yaml:"replication"`  // default file replication
	BlockSize   int64  `yaml:"block-size"`   // preferred block size in bytes
}

// ApplyDefaults fills zero-value fields with their defaults.
func (s *Settings) ApplyDefaults() {
	if s.Logging == "" {
		s.Logging = "error"
	}
	if s.Owner == "" {
		s.Owner = "snapfs"
	}
	if s.Group == "" {
		s.Group = "supergroup"
	}
	if s.Replication == 0 {
		s.Replication = 3
	}
	if s.BlockSize == 0 {
		s.BlockSize = 64 * 1024 * 1024
	}
}

// Load reads settings.yaml, falling back to defaults when it is missing.
func Load() (*Settings, error) {
	s := &Settings{}
	data, err := os.ReadFile(SettingsPath())
	if err != nil {
		if os.IsNotExist(err) {
			s.ApplyDefaults()
			return s, nil
		}
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	s.ApplyDefaults()
	return s, nil
}

// Save writes the settings file.
func (s *Settings) Save() error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(SettingsPath(), data, 0600)
}

// ConfigureLogging applies the configured log level to logrus.
func ConfigureLogging(level string) {
	switch strings.ToLower(level) {
	case "none":
		log.SetLevel(log.PanicLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "trace":
		log.SetLevel(log.TraceLevel)
	default:
		log.SetLevel(log.ErrorLevel)
	}
}
