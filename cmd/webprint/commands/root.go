// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/vulntor/webprint/cmd/webprint/internal/format"
	"github.com/vulntor/webprint/pkg/appctx"
	"github.com/vulntor/webprint/pkg/config"
	"github.com/vulntor/webprint/pkg/logging"
	"github.com/vulntor/webprint/pkg/paths"
	"github.com/vulntor/webprint/pkg/workspace"
)

const cliExecutable = "webprint"

// NewCommand constructs the top-level webprint CLI command, wiring global
// flags, configuration loading and workspace preparation.
func NewCommand() *cobra.Command {
	var (
		configFile        string
		workspaceDir      string
		workspaceDisabled bool
	)

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "webprint identifies web technologies from HTTP observations",
		Long: `webprint matches recorded HTTP responses (headers, body, cookies and TLS
certificate) against a catalog of signatures and reports the products and
versions it recognises.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path := configFile
			if path == "" {
				path = paths.DefaultConfigFile()
			}

			mgr := config.NewManager()
			if err := mgr.Load(cmd.Flags(), path); err != nil {
				return format.WithCode(fmt.Errorf("load configuration: %w", err), format.CodeInvalidArgument)
			}
			cfg := mgr.Get()
			if err := logging.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
				return format.WithCode(err, format.CodeInvalidArgument)
			}

			ctx := appctx.WithConfig(cmd.Context(), mgr)

			if !workspaceDisabled {
				prepared, err := workspace.Prepare(workspaceDir)
				if err != nil {
					return fmt.Errorf("prepare workspace: %w", err)
				}
				ctx = workspace.WithContext(ctx, prepared)
				log.Debug().Str("workspace", prepared).Msg("workspace ready")
			} else {
				log.Debug().Msg("workspace disabled for this run")
			}

			cmd.SetContext(ctx)
			if root := cmd.Root(); root != nil && root != cmd {
				root.SetContext(ctx)
			}
			return nil
		},
	}

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return format.WithCode(err, format.CodeInvalidArgument)
	})

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path (default "+paths.DefaultConfigFile()+")")
	cmd.PersistentFlags().StringVar(&workspaceDir, "workspace-dir", "", "Override workspace root directory")
	cmd.PersistentFlags().BoolVar(&workspaceDisabled, "no-workspace", false, "Disable the workspace (signature cache and telemetry defaults)")

	config.BindFlags(cmd.PersistentFlags())

	cmd.AddGroup(&cobra.Group{ID: "scan", Title: "Scan Commands"})
	cmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands"})

	cmd.AddCommand(newScanCommand())
	cmd.AddCommand(newCatalogCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// configFrom returns the configuration loaded by the root command, or the
// defaults when a subcommand runs on its own.
func configFrom(ctx context.Context) config.Config {
	if mgr, ok := appctx.Config(ctx); ok {
		return mgr.Get()
	}
	return config.DefaultConfig()
}

// addOutputFlags registers the flags read by format.FromCommand.
func addOutputFlags(flags *pflag.FlagSet) {
	flags.StringP("output", "o", string(format.ModeTable), "Output format (table, json)")
	flags.BoolP("quiet", "q", false, "Suppress summaries")
	flags.Bool("no-color", false, "Disable colored output")
}

// checkOutputMode rejects an unknown --output value.
func checkOutputMode(cmd *cobra.Command) error {
	mode, _ := cmd.Flags().GetString("output")
	if err := format.ValidateMode(mode); err != nil {
		return format.WithCode(err, format.CodeInvalidArgument)
	}
	return nil
}
