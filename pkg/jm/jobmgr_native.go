// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// Copyright (c) 2026, NVIDIA CORPORATION. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package jm

import (
	"fmt"
	"time"

	"github.com/gvallee/go_exec/pkg/advexec"

	"github.com/gvallee/go_vtjob/internal/pkg/sys"
	"github.com/gvallee/go_vtjob/pkg/job"
)

// NativeGetOutput retrieves the application's output after the completion of a job
func NativeGetOutput(j *job.Job, sysCfg *sys.Config) string {
	return j.OutBuffer.String()
}

// NativeGetError retrieves the error messages from an application after the completion of a job
func NativeGetError(j *job.Job, sysCfg *sys.Config) string {
	return j.ErrBuffer.String()
}

// nativeSubmit starts the application directly on the current node. This is
// what runs inside an allocation or on a system without any batch scheduler.
func nativeSubmit(j *job.Job, jobmgr *JM, sysCfg *sys.Config) advexec.Result {
	var cmd advexec.Advcmd
	var resExec advexec.Result

	if j == nil || (j.App.BinPath == "" && len(j.SlotCmd) == 0) {
		resExec.Err = fmt.Errorf("application binary is undefined")
		return resExec
	}

	// Same contract as the batch script body: a configured slot command wraps
	// the workload in its controller
	if len(j.SlotCmd) > 0 {
		cmd.BinPath = j.SlotCmd[0]
		cmd.CmdArgs = append(cmd.CmdArgs, j.SlotCmd[1:]...)
	} else {
		cmd.BinPath = j.App.BinPath
		cmd.CmdArgs = append(cmd.CmdArgs, j.App.BinArgs...)
	}
	cmd.CmdArgs = append(cmd.CmdArgs, j.Args...)
	if len(j.App.Env) > 0 {
		cmd.Env = append(cmd.Env, j.App.Env...)
	}

	j.SetOutputFn(NativeGetOutput)
	j.SetErrorFn(NativeGetError)

	res := cmd.Run()
	j.OutBuffer.WriteString(res.Stdout)
	j.ErrBuffer.WriteString(res.Stderr)
	return res
}

// nativeRequeue always fails: without a batch scheduler there is no queue to
// put the job back into, which the caller surfaces as a requeue denial.
func nativeRequeue(jobmgr *JM, j *job.Job, nextLimit time.Duration) error {
	return fmt.Errorf("the native job manager does not support requeueing")
}

// NativeDetect is the function used by our job management framework to figure
// out if the native job manager should be used. It is the default component so
// it is always usable.
func NativeDetect() (bool, JM) {
	var jm JM
	jm.ID = NativeID
	jm.submitJM = nativeSubmit
	jm.requeueJM = nativeRequeue

	return true, jm
}
