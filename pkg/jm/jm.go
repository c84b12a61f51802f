// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// Copyright (c) 2026, NVIDIA CORPORATION. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package jm

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gvallee/go_exec/pkg/advexec"
	"github.com/gvallee/go_hpcjob/pkg/hpcjob"
	"github.com/gvallee/go_util/pkg/util"

	"github.com/gvallee/go_vtjob/internal/pkg/sys"
	"github.com/gvallee/go_vtjob/pkg/job"
)

const (
	// NativeID is the value set to JM.ID when the application shall be started directly
	NativeID = "native"

	// SlurmID is the value set to JM.ID when Slurm shall be used to submit a job
	SlurmID = "slurm"
)

// LoadFn loads a specific job manager once detected
type LoadFn func(*JM, *sys.Config) error

// SubmitFn is a "function pointer" that lets us submit a new job
type SubmitFn func(*job.Job, *JM, *sys.Config) advexec.Result

// RequeueFn is a "function pointer" that lets us resubmit a job so it
// continues its work in a new slot with the given wall-clock limit
type RequeueFn func(*JM, *job.Job, time.Duration) error

// JobStatusFn is a "function pointer" that lets us query the status of a set of jobs
type JobStatusFn func(*JM, []int) ([]hpcjob.Status, error)

// NumJobsFn is a "function pointer" that lets us query the number of running jobs
type NumJobsFn func(*JM, string, string) (int, error)

// JM is the structure representing a specific JM
type JM struct {
	// ID identifies which job manager has been detected on the system
	ID string

	// BinPath is the path to the binary used to submit jobs
	BinPath string

	// CtlPath is the path to the binary used to control queued jobs (optional)
	CtlPath string

	// CmdArgs is the set of arguments to pass to the submission command
	CmdArgs []string

	loadJM      LoadFn
	submitJM    SubmitFn
	requeueJM   RequeueFn
	jobStatusJM JobStatusFn
	numJobsJM   NumJobsFn
}

// Detect figures out which job manager must be used on the system and return a
// structure that gathers all the data necessary to interact with it
func Detect() JM {
	// Default job manager
	loaded, comp := NativeDetect()
	if !loaded {
		log.Fatalln("unable to find a default job manager")
	}

	// Now we check if we can find better
	loaded, slurmComp := SlurmDetect()
	if loaded {
		return slurmComp
	}

	return comp
}

// Load initializes the job manager after detection
func (jm *JM) Load(sysCfg *sys.Config) error {
	if jm.loadJM == nil {
		return nil
	}
	return jm.loadJM(jm, sysCfg)
}

// Submit submits a job through the current job manager
func (jm *JM) Submit(j *job.Job, sysCfg *sys.Config) advexec.Result {
	var res advexec.Result
	if jm.submitJM == nil {
		res.Err = fmt.Errorf("job manager %s has no submit function", jm.ID)
		return res
	}
	return jm.submitJM(j, jm, sysCfg)
}

// Requeue resubmits a job so it continues in a new slot whose wall-clock limit
// is nextLimit. A scheduler denial is returned as an error and is fatal for
// the caller; it is not retried here.
func (jm *JM) Requeue(j *job.Job, nextLimit time.Duration) error {
	if jm.requeueJM == nil {
		return fmt.Errorf("job manager %s does not support requeueing", jm.ID)
	}
	return jm.requeueJM(jm, j, nextLimit)
}

// JobStatus returns the status of the jobs associated to the identifiers passed in
func (jm *JM) JobStatus(jobIDs []int) ([]hpcjob.Status, error) {
	if jm.jobStatusJM == nil {
		return nil, fmt.Errorf("job manager %s has no job status function", jm.ID)
	}
	return jm.jobStatusJM(jm, jobIDs)
}

// NumJobs returns the number of jobs the user currently has on the target partition
func (jm *JM) NumJobs(partition string, user string) (int, error) {
	if jm.numJobsJM == nil {
		return 0, fmt.Errorf("job manager %s has no jobs count function", jm.ID)
	}
	return jm.numJobsJM(jm, partition, user)
}

// TempFile creates a temporary file that is used to store a batch script
func TempFile(j *job.Job, sysCfg *sys.Config) error {
	filePrefix := "sbash-" + j.Name
	path := ""
	if sysCfg.Persistent == "" {
		f, err := os.CreateTemp("", filePrefix+"-")
		if err != nil {
			return fmt.Errorf("failed to create temporary file: %s", err)
		}
		path = f.Name()
		f.Close()
		j.BatchScript = path
	} else {
		fileName := filePrefix + ".sh"
		path = filepath.Join(sysCfg.Persistent, fileName)
		j.BatchScript = path
		if util.PathExists(path) {
			return fmt.Errorf("file %s already exists", path)
		}
	}

	j.CleanUp = func(...interface{}) error {
		err := os.RemoveAll(path)
		if err != nil {
			return fmt.Errorf("unable to delete %s: %s", path, err)
		}
		return nil
	}

	return nil
}
