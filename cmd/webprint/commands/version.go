// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vulntor/webprint/cmd/webprint/internal/format"
	"github.com/vulntor/webprint/pkg/version"
)

func newVersionCommand() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:     "version",
		Short:   "Print version information",
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkOutputMode(cmd); err != nil {
				return err
			}
			info := version.Get()
			formatter := format.FromCommand(cmd)
			if formatter.IsJSON() {
				return formatter.PrintJSON(info)
			}

			out := cmd.OutOrStdout()
			if short {
				_, err := fmt.Fprintln(out, info.Version)
				return err
			}
			_, _ = fmt.Fprintf(out, "%s version: %s\n", cliExecutable, info.Version)
			_, _ = fmt.Fprintf(out, "Commit: %s\n", info.Commit)
			_, _ = fmt.Fprintf(out, "Build Date: %s\n", info.BuildDate)
			_, _ = fmt.Fprintf(out, "Go Version: %s\n", info.GoVersion)
			_, err := fmt.Fprintf(out, "Platform: %s\n", info.Platform)
			return err
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only the version number")
	cmd.Flags().StringP("output", "o", string(format.ModeTable), "Output format (table, json)")

	return cmd
}
