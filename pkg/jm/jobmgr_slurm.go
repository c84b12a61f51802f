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
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gvallee/go_exec/pkg/advexec"
	"github.com/gvallee/go_hpcjob/pkg/hpcjob"
	goslurm "github.com/gvallee/go_slurm/pkg/slurm"
	"github.com/gvallee/go_util/pkg/util"

	"github.com/gvallee/go_vtjob/internal/pkg/slurm"
	"github.com/gvallee/go_vtjob/internal/pkg/sys"
	"github.com/gvallee/go_vtjob/pkg/job"
)

// SlurmDetect is the function used by our job management framework to figure out if Slurm can be used and
// if so return a JM structure with all the "function pointers" to interact with Slurm through our generic
// API.
func SlurmDetect() (bool, JM) {
	var jm JM
	var err error

	jm.BinPath, err = exec.LookPath("sbatch")
	if err != nil {
		log.Println("* Slurm not detected")
		return false, jm
	}

	// scontrol is required to requeue a job and adjust its time limit; its
	// absence only disables requeueing, not submission
	jm.CtlPath, err = exec.LookPath("scontrol")
	if err != nil {
		log.Println("* scontrol not found, requeueing disabled")
	}

	jm.ID = SlurmID
	jm.submitJM = slurmSubmit
	jm.loadJM = slurmLoad
	jm.requeueJM = slurmRequeue
	jm.jobStatusJM = slurmGetJobStatus
	jm.numJobsJM = slurmGetNumJobs

	return true, jm
}

// slurmLoad is the function called when trying to load a JM module
func slurmLoad(jobmgr *JM, sysCfg *sys.Config) error {
	// jobmgr.BinPath has been set during Detect()
	return nil
}

func slurmGetJobStatus(jm *JM, jobIDs []int) ([]hpcjob.Status, error) {
	if jm == nil {
		return nil, fmt.Errorf("undefined job manager object")
	}

	return goslurm.JobStatus(jobIDs)
}

func slurmGetNumJobs(jm *JM, partitionName string, user string) (int, error) {
	if jm == nil {
		return 0, fmt.Errorf("undefined job manager object")
	}

	return goslurm.GetNumJobs(partitionName, user)
}

// slurmGetOutput reads the content of the Slurm output file that is associated to a job
func slurmGetOutput(j *job.Job, sysCfg *sys.Config) string {
	outputFile := getJobOutputFilePath(j, sysCfg)
	output, err := os.ReadFile(outputFile)
	if err != nil {
		return ""
	}

	return string(output)
}

// slurmGetError reads the content of the Slurm error file that is associated to a job
func slurmGetError(j *job.Job, sysCfg *sys.Config) string {
	errorFile := getJobErrorFilePath(j, sysCfg)
	errorTxt, err := os.ReadFile(errorFile)
	if err != nil {
		return ""
	}

	return string(errorTxt)
}

func getJobOutFilenamePrefix(j *job.Job) string {
	if j.Name != "" {
		return "job-" + j.Name
	}
	return "job"
}

func getJobOutputFilePath(j *job.Job, sysCfg *sys.Config) string {
	outputFilename := getJobOutFilenamePrefix(j) + ".out"
	return filepath.Join(sysCfg.ScratchDir, outputFilename)
}

func getJobErrorFilePath(j *job.Job, sysCfg *sys.Config) string {
	errorFilename := getJobOutFilenamePrefix(j) + ".err"
	return filepath.Join(sysCfg.ScratchDir, errorFilename)
}

func generateBatchScriptContent(j *job.Job, sysCfg *sys.Config) (string, error) {
	// TempFile is supposed to set the path to the batch script
	if j.BatchScript == "" {
		return "", fmt.Errorf("batch script path is undefined")
	}

	scriptText := "#!/bin/bash\n#\n"
	if j.Name != "" {
		scriptText += slurm.ScriptCmdPrefix + " --job-name=" + j.Name + "\n"
	}

	if j.Partition != "" {
		scriptText += slurm.ScriptCmdPrefix + " --partition=" + j.Partition + "\n"
	}

	if j.NNodes > 0 {
		scriptText += slurm.ScriptCmdPrefix + " --nodes=" + strconv.Itoa(j.NNodes) + "\n"
	}

	if j.NP > 0 {
		scriptText += slurm.ScriptCmdPrefix + " --ntasks=" + strconv.Itoa(j.NP) + "\n"
	}

	if j.TimeLimit > 0 {
		scriptText += slurm.ScriptCmdPrefix + " --time=" + slurm.FormatTimeLimit(j.TimeLimit) + "\n"
	}

	// A variable-time job tells the scheduler it may be granted less than the
	// full time limit, asks for a signal ahead of the hard limit so it can
	// checkpoint, and opens its output files in append mode so the slots of
	// one chain share them
	if j.MinTimeLimit > 0 {
		scriptText += slurm.ScriptCmdPrefix + " --time-min=" + slurm.FormatTimeLimit(j.MinTimeLimit) + "\n"
	}

	if j.SignalName != "" {
		leadTime := int(j.SignalLeadTime / time.Second)
		scriptText += slurm.ScriptCmdPrefix + " --signal=B:" + j.SignalName + "@" + strconv.Itoa(leadTime) + "\n"
	}

	if j.Requeueable {
		scriptText += slurm.ScriptCmdPrefix + " --requeue\n"
		scriptText += slurm.ScriptCmdPrefix + " --open-mode=append\n"
	}

	scriptText += slurm.ScriptCmdPrefix + " --error=" + getJobErrorFilePath(j, sysCfg) + "\n"
	scriptText += slurm.ScriptCmdPrefix + " --output=" + getJobOutputFilePath(j, sysCfg) + "\n"

	return scriptText, nil
}

func setupJob(j *job.Job, sysCfg *sys.Config) error {
	if j.BatchScript == "" {
		return fmt.Errorf("undefined job script path")
	}
	scriptText, err := generateBatchScriptContent(j, sysCfg)
	if err != nil {
		return err
	}

	for _, envVar := range j.App.Env {
		scriptText += "\nexport " + envVar
	}

	// A variable-time job runs its controller inside the allocation; the
	// controller starts the workload, traps the scheduler's signal and
	// requeues. Only a plain job runs the application directly.
	cmdLine := j.App.BinPath
	var args []string
	if len(j.SlotCmd) > 0 {
		cmdLine = j.SlotCmd[0]
		args = append(args, j.SlotCmd[1:]...)
	} else {
		args = append(args, j.App.BinArgs...)
	}
	args = append(args, j.Args...)
	if len(args) > 0 {
		cmdLine += " " + strings.Join(args, " ")
	}
	scriptText += "\n" + cmdLine + "\n"

	err = os.WriteFile(j.BatchScript, []byte(scriptText), 0644)
	if err != nil {
		return fmt.Errorf("unable to write to file %s: %s", j.BatchScript, err)
	}

	log.Printf("-> Job script successfully created: %s", j.BatchScript)

	return nil
}

func generateJobScript(j *job.Job, sysCfg *sys.Config) error {
	// Sanity checks
	if j == nil {
		return fmt.Errorf("undefined job")
	}

	if sysCfg.ScratchDir == "" {
		return fmt.Errorf("undefined scratch directory")
	}

	if j.App.BinPath == "" {
		return fmt.Errorf("application binary is undefined")
	}

	// Create the batch script
	if j.BatchScript == "" {
		err := TempFile(j, sysCfg)
		if err != nil {
			return fmt.Errorf("unable to create temporary file: %s", err)
		}
	}

	return setupJob(j, sysCfg)
}

// slurmSubmit prepares the batch script necessary to start a given job.
//
// Note that a script does not need any specific environment to be submitted
func slurmSubmit(j *job.Job, jobmgr *JM, sysCfg *sys.Config) advexec.Result {
	var cmd advexec.Advcmd
	var resExec advexec.Result

	// Sanity checks
	if j == nil || !util.FileExists(jobmgr.BinPath) {
		resExec.Err = fmt.Errorf("job is undefined")
		return resExec
	}

	err := generateJobScript(j, sysCfg)
	if err != nil {
		resExec.Err = fmt.Errorf("unable to generate Slurm script: %s", err)
		return resExec
	}
	if j.BatchScript == "" {
		resExec.Err = fmt.Errorf("undefined batch script path")
		return resExec
	}

	cmd.BinPath = jobmgr.BinPath
	// We want the default to be blocking sbatch but users can request non-blocking
	if !j.NonBlocking {
		cmd.CmdArgs = append(cmd.CmdArgs, "-W")
	}
	if len(jobmgr.CmdArgs) > 0 {
		cmd.CmdArgs = append(cmd.CmdArgs, jobmgr.CmdArgs...)
	}
	cmd.CmdArgs = append(cmd.CmdArgs, j.BatchScript)

	j.SetOutputFn(slurmGetOutput)
	j.SetErrorFn(slurmGetError)

	cmdRes := cmd.Run()
	if strings.HasPrefix(cmdRes.Stdout, slurm.JobIDPrefix) {
		jobIDStr := strings.TrimPrefix(cmdRes.Stdout, slurm.JobIDPrefix)
		jobIDStr = strings.TrimRight(jobIDStr, "\n")
		j.ID, err = strconv.Atoi(jobIDStr)
		if err != nil {
			resExec.Err = fmt.Errorf("unable to get job ID: %s", err)
			return resExec
		}
	}

	return cmdRes
}

// slurmRequeue puts the job back in the queue so it continues its work in a
// new slot, after adjusting the wall-clock limit of that slot. A non-zero
// scontrol exit status means the scheduler denied the resubmission.
func slurmRequeue(jobmgr *JM, j *job.Job, nextLimit time.Duration) error {
	if jobmgr.CtlPath == "" {
		return fmt.Errorf("scontrol is not available, unable to requeue")
	}
	if j.ID <= 0 {
		return fmt.Errorf("invalid job ID: %d", j.ID)
	}

	var updateCmd advexec.Advcmd
	updateCmd.BinPath = jobmgr.CtlPath
	updateCmd.CmdArgs = []string{"update", "JobId=" + strconv.Itoa(j.ID), "TimeLimit=" + slurm.FormatTimeLimit(nextLimit)}
	res := updateCmd.Run()
	if res.Err != nil {
		return fmt.Errorf("unable to update the job's time limit: %s (stderr: %s)", res.Err, res.Stderr)
	}

	var requeueCmd advexec.Advcmd
	requeueCmd.BinPath = jobmgr.CtlPath
	requeueCmd.CmdArgs = []string{"requeue", strconv.Itoa(j.ID)}
	res = requeueCmd.Run()
	if res.Err != nil {
		return fmt.Errorf("scheduler denied the requeue of job %d: %s (stderr: %s)", j.ID, res.Err, res.Stderr)
	}

	return nil
}
