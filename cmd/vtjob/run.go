// Copyright (c) 2026, NVIDIA CORPORATION. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package main

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gvallee/go_vtjob/pkg/launcher"
	"github.com/gvallee/go_vtjob/pkg/vtime"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one slot of a variable-time job under the checkpoint/requeue controller",
	Long: `Run starts the workload described in the manifest as a child process and
waits for either its completion or the scheduler's preemption signal. Upon
preemption it checkpoints, and requeues the job while allocation budget
remains. This command is meant to be the last line of the batch script, inside
the allocation.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	m, log, err := loadManifest()
	if err != nil {
		return err
	}
	defer log.Sync()

	j, err := m.ToJob()
	if err != nil {
		return exitWith(vtime.ExitSetupFailure, "invalid manifest: %s", err)
	}
	j.Args = append(j.Args, args...)

	// Inside an allocation the scheduler exposes the job id in the environment
	if idStr := os.Getenv("SLURM_JOB_ID"); idStr != "" {
		j.ID, err = strconv.Atoi(idStr)
		if err != nil {
			return exitWith(vtime.ExitSetupFailure, "invalid SLURM_JOB_ID: %s", idStr)
		}
	}

	policy := m.CkptPolicy()
	if policy.Dir == "" {
		policy.Dir = filepath.Join(m.ScratchDir, j.Name+"-ckpt")
	}

	maxLimit, err := m.MaxTimeLimit()
	if err != nil {
		return exitWith(vtime.ExitSetupFailure, "invalid max_timelimit: %s", err)
	}
	minLimit, err := m.MinTimeLimit()
	if err != nil {
		return exitWith(vtime.ExitSetupFailure, "invalid min_timelimit: %s", err)
	}
	budget, err := m.TotalBudget()
	if err != nil {
		return exitWith(vtime.ExitSetupFailure, "invalid total_budget: %s", err)
	}

	_, jobmgr, err := launcher.Load()
	if err != nil {
		return exitWith(vtime.ExitSetupFailure, "unable to load the launcher: %s", err)
	}

	log.Info("starting slot",
		zap.String("job", j.Name),
		zap.Int("job_id", j.ID),
		zap.Duration("max_limit", maxLimit),
		zap.Duration("budget", budget))

	code, err := launcher.RunSlot(j, &jobmgr, policy, maxLimit, minLimit, budget, log)
	if err != nil {
		return exitWith(code, "%s", err)
	}
	return nil
}
