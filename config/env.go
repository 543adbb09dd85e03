// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"maps"
	"slices"
	"strings"
)

// LookupFunc looks up an environment variable, e.g. [os.LookupEnv].
type LookupFunc func(string) (string, bool)

// Env is a [Source] which maps environment variables onto dot
// separated config keys.
type Env struct {
	lookup   LookupFunc
	bindings map[string]string
}

// FromEnv binds each variable name in bindings to a config key.
// Unset and empty variables leave their key untouched.
func FromEnv(lookup LookupFunc, bindings map[string]string) Env {
	return Env{
		lookup:   lookup,
		bindings: bindings,
	}
}

// Apply implements the [Source] interface.
func (e Env) Apply(store Store) error {
	for _, name := range slices.Sorted(maps.Keys(e.bindings)) {
		v, ok := e.lookup(name)
		if !ok || v == "" {
			continue
		}

		err := store.Set(strings.Split(e.bindings[name], "."), v)
		if err != nil {
			return err
		}
	}
	return nil
}
