// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Yaml is a [Source] holding a YAML document.
type Yaml []byte

// InvalidYamlError
type InvalidYamlError struct {
	Cause error
}

// Error implements the [error] interface.
func (e InvalidYamlError) Error() string {
	return fmt.Sprintf("invalid yaml: %s", e.Cause)
}

// Unwrap
func (e InvalidYamlError) Unwrap() error {
	return e.Cause
}

// Apply implements the [Source] interface.
func (y Yaml) Apply(store Store) error {
	m := make(map[string]any)
	err := yaml.Unmarshal(y, &m)
	if err != nil {
		return InvalidYamlError{Cause: err}
	}
	return Map(m).Apply(store)
}
