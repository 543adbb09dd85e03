// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"bytes"
	"fmt"
	"sync"
	"text/template"
)

// TemplateOption configures a [Template].
type TemplateOption func(*Template)

// TemplateFunc registers f under name for use in the template.
func TemplateFunc(name string, f any) TemplateOption {
	return func(t *Template) {
		t.funcs[name] = f
	}
}

// EnvFuncs registers the "env" and "default" template functions.
//
//	port: {{ env "PORT" | default "8080" }}
func EnvFuncs(getenv func(string) string) TemplateOption {
	return func(t *Template) {
		t.funcs["env"] = getenv
		t.funcs["default"] = func(def, v string) string {
			if v == "" {
				return def
			}
			return v
		}
	}
}

// TemplateParseError
type TemplateParseError struct {
	Cause error
}

// Error implements the [error] interface.
func (e TemplateParseError) Error() string {
	return fmt.Sprintf("failed to parse config template: %s", e.Cause)
}

// Unwrap
func (e TemplateParseError) Unwrap() error {
	return e.Cause
}

// TemplateExecError occurs when a template func fails.
type TemplateExecError struct {
	Cause error
}

// Error implements the [error] interface.
func (e TemplateExecError) Error() string {
	return fmt.Sprintf("failed to exec config template: %s", e.Cause)
}

// Unwrap
func (e TemplateExecError) Unwrap() error {
	return e.Cause
}

// Template is a [Source] holding a text/template which renders to YAML.
type Template struct {
	text  []byte
	funcs template.FuncMap

	once     sync.Once
	rendered []byte
	err      error
}

// FromTemplate returns a [Template] source for text.
func FromTemplate(text []byte, opts ...TemplateOption) *Template {
	t := &Template{
		text:  text,
		funcs: make(template.FuncMap),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Render executes the template once. Every call returns the same
// output or error.
func (t *Template) Render() ([]byte, error) {
	t.once.Do(func() {
		tmpl, err := template.New("config").Funcs(t.funcs).Parse(string(t.text))
		if err != nil {
			t.err = TemplateParseError{Cause: err}
			return
		}

		var buf bytes.Buffer
		err = tmpl.Execute(&buf, nil)
		if err != nil {
			t.err = TemplateExecError{Cause: err}
			return
		}
		t.rendered = buf.Bytes()
	})
	return t.rendered, t.err
}

// Apply implements the [Source] interface.
func (t *Template) Apply(store Store) error {
	b, err := t.Render()
	if err != nil {
		return err
	}
	return Yaml(b).Apply(store)
}
