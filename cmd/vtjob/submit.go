// Copyright (c) 2026, NVIDIA CORPORATION. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gvallee/go_vtjob/pkg/jm"
	"github.com/gvallee/go_vtjob/pkg/launcher"
	"github.com/gvallee/go_vtjob/pkg/vtime"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a variable-time job to the scheduler",
	Long: `Submit generates a batch script carrying the variable-time directives
(--time, --time-min, --signal, --requeue, --open-mode=append) from the job
manifest and submits it through the detected job manager. The script body
starts 'vtjob run' with the same manifest so the checkpoint/requeue controller
drives the workload inside the allocation.`,
	RunE: runSubmit,
}

var submitNonBlocking bool

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().BoolVar(&submitNonBlocking, "non-blocking", false, "Return as soon as the scheduler accepted the job")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	m, log, err := loadManifest()
	if err != nil {
		return err
	}
	defer log.Sync()

	j, err := m.ToJob()
	if err != nil {
		return exitWith(vtime.ExitSetupFailure, "invalid manifest: %s", err)
	}
	j.NonBlocking = submitNonBlocking

	// The allocation runs the controller, not the raw workload: without it
	// nothing would trap the scheduler's signal, checkpoint or requeue. The
	// controller reads the workload description from the same manifest.
	selfPath, err := os.Executable()
	if err != nil {
		return exitWith(vtime.ExitSetupFailure, "unable to locate the vtjob binary: %s", err)
	}
	absManifest, err := filepath.Abs(manifestPath)
	if err != nil {
		return exitWith(vtime.ExitSetupFailure, "unable to resolve the manifest path: %s", err)
	}
	j.SlotCmd = []string{selfPath, "run", "--manifest", absManifest}

	sysCfg, jobmgr, err := launcher.Load()
	if err != nil {
		return exitWith(vtime.ExitSetupFailure, "unable to load the launcher: %s", err)
	}
	if jobmgr.ID == jm.NativeID {
		log.Warn("no batch scheduler detected, the job will run on the current node")
	}

	sysCfg.ScratchDir = m.ScratchDir
	if sysCfg.ScratchDir == "" {
		sysCfg.ScratchDir, err = os.MkdirTemp("", "vtjob-")
		if err != nil {
			return exitWith(vtime.ExitSetupFailure, "unable to create scratch directory: %s", err)
		}
	}
	j.BatchScript = filepath.Join(sysCfg.ScratchDir, j.Name+".sbatch")

	log.Info("submitting job",
		zap.String("job", j.Name),
		zap.String("jobmgr", jobmgr.ID),
		zap.String("scratch", sysCfg.ScratchDir))

	res, execRes := launcher.Run(j, &jobmgr, &sysCfg, args)
	if execRes.Err != nil || !res.Pass {
		return exitWith(vtime.ExitWorkloadFailure, "submission failed: %s", res.Note)
	}

	if j.ID > 0 {
		fmt.Printf("Submitted job %d\n", j.ID)
	}
	return nil
}
