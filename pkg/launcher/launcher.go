// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// Copyright (c) 2026, NVIDIA CORPORATION. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package launcher

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gvallee/go_exec/pkg/advexec"
	"github.com/gvallee/go_exec/pkg/results"
	"go.uber.org/zap"

	"github.com/gvallee/go_vtjob/internal/pkg/sys"
	"github.com/gvallee/go_vtjob/pkg/ckpt"
	"github.com/gvallee/go_vtjob/pkg/jm"
	"github.com/gvallee/go_vtjob/pkg/job"
	"github.com/gvallee/go_vtjob/pkg/vtime"
)

// Info gathers all the details to start a job
type Info struct {
	// Cmd represents the command to launch a job
	Cmd advexec.Advcmd
}

// Load gathers all the details to submit variable-time jobs on the system
func Load() (sys.Config, jm.JM, error) {
	var cfg sys.Config
	var jobmgr jm.JM

	var err error
	cfg.CurPath, err = os.Getwd()
	if err != nil {
		return cfg, jobmgr, fmt.Errorf("cannot detect current directory")
	}

	// Load the job manager component first
	jobmgr = jm.Detect()
	err = jobmgr.Load(&cfg)
	if err != nil {
		return cfg, jobmgr, fmt.Errorf("unable to load the job manager: %s", err)
	}

	return cfg, jobmgr, nil
}

// Run submits a job through the detected job manager.
// This is a blocking function by default, it returns when the job has completed
func Run(j *job.Job, jobmgr *jm.JM, sysCfg *sys.Config, args []string) (results.Result, advexec.Result) {
	var execRes advexec.Result
	var expRes results.Result
	expRes.Pass = true
	errorMsg := ""

	if len(args) > 0 {
		j.Args = append(j.Args, args...)
	}

	// We submit the job
	execRes = jobmgr.Submit(j, sysCfg)
	if execRes.Err != nil {
		// The command simply failed and the Go runtime caught it
		expRes.Pass = false
		errorMsg = fmt.Sprintf("[ERROR] Command failed - stdout: %s - stderr: %s - err: %s\n", execRes.Stdout, execRes.Stderr, execRes.Err)
		log.Printf("%s", errorMsg)
	}

	if !expRes.Pass {
		expRes.Note = errorMsg
	}

	return expRes, execRes
}

// RunSlot executes one slot of a variable-time job on the current node: the
// workload runs under the checkpoint/requeue controller and, upon preemption,
// the job is resubmitted through the detected job manager. It returns the
// process exit status to use.
func RunSlot(j *job.Job, jobmgr *jm.JM, policy ckpt.Policy, maxLimit time.Duration, minLimit time.Duration, budget time.Duration, logger *zap.Logger) (int, error) {
	controller := vtime.Controller{
		Policy:       policy,
		MaxTimeLimit: maxLimit,
		MinTimeLimit: minLimit,
		TotalBudget:  budget,
		Requeue: func(j *job.Job, nextLimit time.Duration) error {
			return jobmgr.Requeue(j, nextLimit)
		},
		Log: logger,
	}

	return controller.Run(j)
}
