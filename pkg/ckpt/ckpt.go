// Copyright (c) 2026, NVIDIA CORPORATION. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package ckpt manages application checkpoints and the controller state that
// must survive across job slots.
package ckpt

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gvallee/go_exec/pkg/advexec"
	"github.com/gvallee/go_util/pkg/util"
	"gopkg.in/yaml.v3"
)

const (
	// StateFilename is the name of the committed controller state file in the
	// checkpoint directory
	StateFilename = "vtjob-state.yaml"

	// DoneFilename is the name of the completion marker the workload (or its
	// checkpoint command) writes in the checkpoint directory once the overall
	// computation is finished
	DoneFilename = "done"
)

// Policy describes how a job checkpoints. It is built once at job start and
// stays constant for the lifetime of the job chain.
type Policy struct {
	// SignalName is the name, without the SIG prefix, of the signal delivered
	// by the scheduler before the slot's hard limit (e.g., "USR1")
	SignalName string

	// Overhead is the safety margin needed to checkpoint and exit cleanly
	// before the hard limit
	Overhead time.Duration

	// CkptCmd is the path to the external command invoked to perform a
	// checkpoint. An empty path means the application checkpoints itself in
	// response to the trapped signal.
	CkptCmd string

	// CkptArgs is the set of arguments to pass to CkptCmd
	CkptArgs []string

	// Dir is the directory holding the checkpoint artifact, the completion
	// marker and the committed controller state
	Dir string
}

// State is the controller state committed to disk at each checkpoint. A slot
// that fails before committing leaves the previous state in place, which is
// what makes requeueing idempotent: the next slot always resumes from the last
// successfully committed checkpoint.
type State struct {
	// JobName is the name of the job chain the state belongs to
	JobName string `yaml:"job_name"`

	// LastCkptID identifies the last checkpoint that completed successfully
	LastCkptID string `yaml:"last_ckpt_id"`

	// ConsumedSeconds is the portion of the total allocation budget already
	// spent by previous slots
	ConsumedSeconds int64 `yaml:"consumed_seconds"`

	// Slots is the number of slots the job chain has run so far
	Slots int `yaml:"slots"`

	// Done reports that the overall computation completed and no further slot
	// is needed
	Done bool `yaml:"done"`
}

// Signal translates a Policy signal name into the signal to register with the
// runtime. The supported names match what sbatch accepts in --signal.
func (p *Policy) Signal() (os.Signal, error) {
	switch p.SignalName {
	case "USR1":
		return syscall.SIGUSR1, nil
	case "USR2":
		return syscall.SIGUSR2, nil
	case "TERM":
		return syscall.SIGTERM, nil
	case "INT":
		return syscall.SIGINT, nil
	case "HUP":
		return syscall.SIGHUP, nil
	}
	return nil, fmt.Errorf("unsupported signal name: %s", p.SignalName)
}

// Run invokes the checkpoint command synchronously and, upon success, returns
// the identifier of the new checkpoint. The controller has no way to cancel an
// in-flight checkpoint; the command runs to completion or is killed with the
// rest of the slot when the hard limit expires.
func (p *Policy) Run() (string, error) {
	if p.CkptCmd == "" {
		// The application checkpoints itself when it receives the trapped
		// signal; nothing to execute but the checkpoint still gets an id
		return uuid.New().String(), nil
	}

	var cmd advexec.Advcmd
	cmd.BinPath = p.CkptCmd
	cmd.CmdArgs = append(cmd.CmdArgs, p.CkptArgs...)
	cmd.ExecDir = p.Dir
	res := cmd.Run()
	if res.Err != nil {
		return "", fmt.Errorf("checkpoint command failed: %s (stderr: %s)", res.Err, res.Stderr)
	}

	return uuid.New().String(), nil
}

// Done reports whether the completion marker is present in the checkpoint
// directory.
func (p *Policy) Done() bool {
	return util.FileExists(filepath.Join(p.Dir, DoneFilename))
}

// MarkDone writes the completion marker so that a requeued slot, should one
// race with completion, terminates immediately instead of redoing work.
func (p *Policy) MarkDone() error {
	path := filepath.Join(p.Dir, DoneFilename)
	err := os.WriteFile(path, []byte(time.Now().UTC().Format(time.RFC3339)+"\n"), 0644)
	if err != nil {
		return fmt.Errorf("unable to write completion marker %s: %s", path, err)
	}
	return nil
}

// LoadState reads the committed controller state from the checkpoint
// directory. A missing file is not an error: it means this is the first slot
// of the job chain.
func LoadState(dir string) (State, error) {
	var s State
	path := filepath.Join(dir, StateFilename)
	if !util.FileExists(path) {
		return s, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("unable to read state file %s: %s", path, err)
	}
	err = yaml.Unmarshal(content, &s)
	if err != nil {
		return s, fmt.Errorf("unable to parse state file %s: %s", path, err)
	}

	return s, nil
}

// Commit atomically replaces the committed state on disk. The write goes to a
// temporary file first so a slot killed mid-commit leaves the previous state
// intact.
func (s *State) Commit(dir string) error {
	content, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("unable to marshal state: %s", err)
	}

	f, err := os.CreateTemp(dir, StateFilename+"-")
	if err != nil {
		return fmt.Errorf("unable to create temporary state file: %s", err)
	}
	tmpPath := f.Name()
	_, err = f.Write(content)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("unable to write state: %s", err)
	}
	err = f.Close()
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("unable to close temporary state file: %s", err)
	}

	err = os.Rename(tmpPath, filepath.Join(dir, StateFilename))
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("unable to commit state file: %s", err)
	}

	return nil
}
