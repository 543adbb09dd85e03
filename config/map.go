// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"fmt"
	"slices"
	"strings"
)

// Map is a nested map[string]any which is both a [Source] and a [Store].
type Map map[string]any

// Apply implements the [Source] interface. Nested maps are walked so
// that only leaf values are set on store.
func (m Map) Apply(store Store) error {
	return walk(m, store, nil)
}

func walk(m map[string]any, store Store, path []string) error {
	for k, v := range m {
		next := append(slices.Clip(path), k)

		sub, ok := v.(map[string]any)
		if !ok {
			err := store.Set(next, v)
			if err != nil {
				return err
			}
			continue
		}

		err := walk(sub, store, next)
		if err != nil {
			return err
		}
	}
	return nil
}

// EmptyPathError
type EmptyPathError struct {
	Value any
}

// Error implements the [error] interface.
func (e EmptyPathError) Error() string {
	return fmt.Sprintf("attempted to set config value without a key: %v", e.Value)
}

// PathConflictError occurs when a nested key is set below a key which
// already holds a non map value.
type PathConflictError struct {
	Key string
}

// Error implements the [error] interface.
func (e PathConflictError) Error() string {
	return fmt.Sprintf("config key is not a map: %s", e.Key)
}

// Set implements the [Store] interface. Missing intermediate maps are created.
func (m Map) Set(path []string, v any) error {
	if len(path) == 0 {
		return EmptyPathError{Value: v}
	}

	cur := map[string]any(m)
	for i, k := range path[:len(path)-1] {
		next, ok := cur[k]
		if !ok {
			sub := make(map[string]any)
			cur[k] = sub
			cur = sub
			continue
		}

		sub, ok := next.(map[string]any)
		if !ok {
			return PathConflictError{Key: strings.Join(path[:i+1], ".")}
		}
		cur = sub
	}

	cur[path[len(path)-1]] = v
	return nil
}
