// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads path as YAML into Default(), overlays EXSTREAM_ environment
// variables, and validates the result. A missing or unparsable file is an
// ExitUnreadable error; a structurally valid but semantically invalid
// config is ExitInvalid.
func Load(path string) (AppConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, &ValidationError{Code: ExitUnreadable, Msgs: []string{fmt.Sprintf("reading %s: %v", path, err)}}
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ValidationError{Code: ExitUnreadable, Msgs: []string{fmt.Sprintf("parsing %s: %v", path, err)}}
	}

	cfg = ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
