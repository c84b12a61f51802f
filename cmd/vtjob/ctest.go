// Copyright (c) 2026, NVIDIA CORPORATION. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gvallee/go_vtjob/pkg/dashboard"
	"github.com/gvallee/go_vtjob/pkg/vtime"
)

var ctestCmd = &cobra.Command{
	Use:   "ctest",
	Short: "Generate CTest/CDash files wrapping the manifest's tests",
	Long: `Ctest generates CTestTestfile.cmake, CTestConfig.cmake and a steering
script from the test objects listed in the manifest, so an arbitrary build
system's tests can run under ctest and report to a CDash dashboard.`,
	RunE: runCtest,
}

var (
	ctestOutputDir string
	ctestSubmit    bool
)

func init() {
	rootCmd.AddCommand(ctestCmd)
	ctestCmd.Flags().StringVarP(&ctestOutputDir, "output-dir", "o", ".", "Directory where to generate the CTest files")
	ctestCmd.Flags().BoolVar(&ctestSubmit, "submit", false, "Run the generated steering script and submit to the dashboard")
}

func runCtest(cmd *cobra.Command, args []string) error {
	m, log, err := loadManifest()
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg := m.DashboardConfig()
	err = cfg.WriteFiles(ctestOutputDir)
	if err != nil {
		return exitWith(vtime.ExitSetupFailure, "unable to generate CTest files: %s", err)
	}
	log.Info("CTest files generated",
		zap.String("dir", ctestOutputDir),
		zap.Int("tests", len(cfg.Tests)))

	if !ctestSubmit {
		return nil
	}

	res := dashboard.Submit(ctestOutputDir)
	if res.Err != nil {
		return exitWith(vtime.ExitWorkloadFailure, "dashboard submission failed: %s (stderr: %s)", res.Err, res.Stderr)
	}
	fmt.Println("Dashboard submission complete")
	return nil
}
