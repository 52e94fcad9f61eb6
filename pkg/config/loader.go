// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the server's YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// DefaultPath returns ~/.orrery/orrery.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".orrery", "orrery.yaml"), nil
}

// LoadFrom reads, parses, and validates the config at path. A missing
// file is created with defaults first.
func LoadFrom(path string) (OrreryConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Printf(" First run detected, creating the config at %s\n", path)
		if err := createDefault(path); err != nil {
			return OrreryConfig{}, err
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return OrreryConfig{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	var cfg OrreryConfig
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return OrreryConfig{}, fmt.Errorf("failed to parse the config file: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return OrreryConfig{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
