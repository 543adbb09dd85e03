// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/z5labs/weather/cmd/weather-api/app"

	"github.com/spf13/cobra"
)

func main() {
	err := newCommand().ExecuteContext(context.Background())
	if err != nil {
		slog.Default().Error("failed to run", slog.Any("error", err))
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "weather-api",
		Short:         "Serve the weather forecast API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var override []byte
			if configPath != "" {
				b, err := os.ReadFile(configPath)
				if err != nil {
					return err
				}
				override = b
			}

			return app.Run(cmd.Context(), app.Sources(os.LookupEnv, override)...)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config template which overrides the defaults; environment variables still take precedence")

	return cmd
}
