// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// Copyright (c) 2026, NVIDIA CORPORATION. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package job

import (
	"bytes"
	"time"

	"github.com/gvallee/go_vtjob/internal/pkg/sys"
	"github.com/gvallee/go_vtjob/pkg/app"
)

// CleanUpFn is a "function pointer" to call to clean up the system after the completion of a job
type CleanUpFn func(...interface{}) error

// GetOutputFn is a "function pointer" to call to gather the output of an application after completion of a job
type GetOutputFn func(*Job, *sys.Config) string

// GetErrorFn is a "function pointer" to call to gather stderr from an application after completion of a job
type GetErrorFn func(*Job, *sys.Config) string

// Job represents a job run, i.e., one scheduler submission of a potentially
// multi-slot computation
type Job struct {
	// Name is the name of the job
	Name string

	// ID is the identifier the scheduler assigned to the job at submission time
	ID int

	// NP is the number of tasks
	NP int

	// NNodes is the number of nodes
	NNodes int

	// Partition is the name of the partition to use with the jobmgr (optional)
	Partition string

	// TimeLimit is the wall-clock limit requested for one slot
	TimeLimit time.Duration

	// MinTimeLimit is the minimum wall-clock limit the scheduler may grant
	// instead of TimeLimit when backfilling (optional)
	MinTimeLimit time.Duration

	// SignalName is the name, without the SIG prefix, of the signal the
	// scheduler delivers before the slot's hard limit expires (optional)
	SignalName string

	// SignalLeadTime is how long before the hard limit the signal is delivered
	SignalLeadTime time.Duration

	// Requeueable indicates the job may be requeued to continue its work in a
	// new slot; output files are then opened in append mode
	Requeueable bool

	// CkptDir is the directory holding the checkpoint artifact and the
	// committed controller state
	CkptDir string

	// BatchScript is the path to the script required to start a job (optional)
	BatchScript string

	// App describes the application the job executes
	App app.Info

	// SlotCmd is the command line to run inside the allocation. When set it
	// replaces the application's command line in the batch script so a
	// controller can wrap the workload, trap the scheduler's signal and
	// requeue the job. Empty means the application runs unwrapped.
	SlotCmd []string

	// Args is a set of extra arguments to be used for launching the job
	Args []string

	// NonBlocking requests a submission that returns as soon as the scheduler
	// accepted the job instead of waiting for its completion
	NonBlocking bool

	// CleanUp is the function to call once the job is completed to clean the system
	CleanUp CleanUpFn

	// OutBuffer is a buffer with the output of the job
	OutBuffer bytes.Buffer

	// ErrBuffer is a buffer with the stderr of the job
	ErrBuffer bytes.Buffer

	// internalGetOutput is the function to call to gather the output of the application based on the use of a given job manager
	internalGetOutput GetOutputFn

	// internalGetError is the function to call to gather stderr of the application based on the use of a given job manager
	internalGetError GetErrorFn
}

// GetOutput is the function to call to gather the output (stdout) of the application after execution of the job
func (j *Job) GetOutput(sysCfg *sys.Config) string {
	return j.internalGetOutput(j, sysCfg)
}

// GetError is the function to call to gather stderr of the application after execution of the job
func (j *Job) GetError(sysCfg *sys.Config) string {
	return j.internalGetError(j, sysCfg)
}

// SetOutputFn sets the internal function specific to the job manager to get the output of a job
func (j *Job) SetOutputFn(fn GetOutputFn) {
	j.internalGetOutput = fn
}

// SetErrorFn sets the internal function specific to the job manager to get stderr of a job
func (j *Job) SetErrorFn(fn GetErrorFn) {
	j.internalGetError = fn
}
