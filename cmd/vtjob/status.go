// Copyright (c) 2026, NVIDIA CORPORATION. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package main

import (
	"fmt"
	"os/user"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gvallee/go_vtjob/pkg/jm"
	"github.com/gvallee/go_vtjob/pkg/vtime"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display the status of jobs",
	RunE:  runStatus,
}

var (
	statusJobIDs      string
	statusRunningJobs string
)

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusJobIDs, "job-status", "", "Display the status of various jobs; comma-separated list of job IDs")
	statusCmd.Flags().StringVar(&statusRunningJobs, "running-jobs", "", "Display how many jobs are already running on the target (e.g., a Slurm partition)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	jobmgr := jm.Detect()

	if statusJobIDs != "" {
		jobIDsStr := strings.Split(statusJobIDs, ",")
		var jobIDs []int
		for _, w := range jobIDsStr {
			jobID, err := strconv.Atoi(w)
			if err != nil {
				return exitWith(vtime.ExitSetupFailure, "invalid job ID: %s", w)
			}
			jobIDs = append(jobIDs, jobID)
		}

		statuses, err := jobmgr.JobStatus(jobIDs)
		if err != nil {
			return exitWith(vtime.ExitSetupFailure, "unable to retrieve job(s) status: %s", err)
		}
		for idx := range jobIDs {
			fmt.Printf("%d: %s\n", jobIDs[idx], statuses[idx].Str)
		}
	}

	if statusRunningJobs != "" {
		u, err := user.Current()
		if err != nil {
			return exitWith(vtime.ExitSetupFailure, "unable to retrieve the user ID: %s", err)
		}
		num, err := jobmgr.NumJobs(statusRunningJobs, u.Username)
		if err != nil {
			return exitWith(vtime.ExitSetupFailure, "unable to retrieve the number of running jobs: %s", err)
		}
		fmt.Printf("Number of running jobs: %d\n", num)
	}

	return nil
}
