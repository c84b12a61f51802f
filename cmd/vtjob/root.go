// Copyright (c) 2026, NVIDIA CORPORATION. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gvallee/go_vtjob/internal/pkg/config"
	"github.com/gvallee/go_vtjob/internal/pkg/logger"
	"github.com/gvallee/go_vtjob/pkg/vtime"
)

var rootCmd = &cobra.Command{
	Use:           "vtjob",
	Short:         "Run variable-time jobs under a wall-clock-limited scheduler",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	manifestPath string
	verbose      bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&manifestPath, "manifest", "m", "job.yaml", "Path to the job manifest")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// loadManifest loads the manifest named on the command line and builds the
// logger it configures.
func loadManifest() (*config.Manifest, *zap.Logger, error) {
	m, err := config.Load(manifestPath)
	if err != nil {
		return nil, nil, exitWith(vtime.ExitSetupFailure, "unable to load manifest: %s", err)
	}

	level := m.Logging.Level
	if verbose {
		level = "debug"
	}
	log, err := logger.New(level, m.Logging.Format)
	if err != nil {
		return nil, nil, exitWith(vtime.ExitSetupFailure, "unable to build logger: %s", err)
	}

	return m, log, nil
}
