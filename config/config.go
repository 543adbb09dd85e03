// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Store receives the values of a [Source]. A path addresses a nested
// key, e.g. []string{"otel", "endpoint"}.
type Store interface {
	Set(path []string, v any) error
}

// Source writes config values into a [Store].
type Source interface {
	Apply(Store) error
}

// SourceFunc is a functional implementation of the [Source] interface.
type SourceFunc func(Store) error

// Apply implements the [Source] interface.
func (f SourceFunc) Apply(store Store) error {
	return f(store)
}

// SourceError reports which source failed to apply.
type SourceError struct {
	Index int
	Cause error
}

// Error implements the [error] interface.
func (e SourceError) Error() string {
	return fmt.Sprintf("failed to apply config source %d: %s", e.Index, e.Cause)
}

// Unwrap
func (e SourceError) Unwrap() error {
	return e.Cause
}

// DecodeError occurs when the merged values do not fit the config type.
type DecodeError struct {
	Cause error
}

// Error implements the [error] interface.
func (e DecodeError) Error() string {
	return fmt.Sprintf("failed to decode config: %s", e.Cause)
}

// Unwrap
func (e DecodeError) Unwrap() error {
	return e.Cause
}

// Load applies srcs in order to an empty [Map] and decodes the
// result into a T.
func Load[T any](srcs ...Source) (T, error) {
	var cfg T

	m := make(Map)
	for i, src := range srcs {
		err := src.Apply(m)
		if err != nil {
			return cfg, SourceError{Index: i, Cause: err}
		}
	}

	err := m.Decode(&cfg)
	if err != nil {
		return cfg, DecodeError{Cause: err}
	}
	return cfg, nil
}

// Decode decodes m into v, which must be a pointer. Strings are coerced
// into durations, comma separated slices and [encoding.TextUnmarshaler]s.
func (m Map) Decode(v any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "config",
		Result:           v,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.TextUnmarshallerHookFunc(),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(map[string]any(m))
}
