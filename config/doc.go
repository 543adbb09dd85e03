// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package config loads the service configuration from layered sources.
//
// Every [Source] writes its values into a single [Map]. Later sources
// override earlier ones key by key, so the usual stack is embedded YAML
// defaults, an optional override file and finally the environment:
//
//	cfg, err := config.Load[Config](
//	    config.Yaml(defaults),
//	    config.FromTemplate(override, config.EnvFuncs(os.Getenv)),
//	    config.FromEnv(os.LookupEnv, map[string]string{"PORT": "http.port"}),
//	)
//
// The merged map is decoded into the config struct with mapstructure
// using the "config" struct tag.
package config
