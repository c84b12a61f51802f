// Copyright (c) 2026, NVIDIA CORPORATION. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package vtime implements the checkpoint/requeue controller for variable-time
// jobs: computations whose total runtime may exceed any single scheduler
// allocation. The controller runs the workload as a child process, waits for
// either its completion or the scheduler's preemption signal, checkpoints
// before the slot expires and requeues the job while allocation budget
// remains.
package vtime

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/gvallee/go_vtjob/pkg/ckpt"
	"github.com/gvallee/go_vtjob/pkg/job"
)

// Exit codes of the controller. Fatal conditions are distinguishable from one
// another and from successful completion.
const (
	// ExitOK means the workload completed, or the job was checkpointed and
	// requeued for a new slot
	ExitOK = 0

	// ExitSetupFailure means the controller could not start the workload
	ExitSetupFailure = 1

	// ExitWorkloadFailure means the workload crashed during the slot
	ExitWorkloadFailure = 2

	// ExitRequeueDenied means the scheduler refused the resubmission
	ExitRequeueDenied = 3
)

// RequeueFn is a "function pointer" to call to resubmit the job for a new slot
// with the given wall-clock limit
type RequeueFn func(j *job.Job, nextLimit time.Duration) error

// Decision is the outcome of evaluating the requeue policy after a preemption
// signal
type Decision struct {
	// Resubmit reports whether a new slot must be requested
	Resubmit bool

	// NextTimeLimit is the wall-clock limit to request for the new slot
	NextTimeLimit time.Duration

	// Remaining is the allocation budget left after the current slot
	Remaining time.Duration
}

// Decide computes the requeue decision. The next slot's wall-clock limit never
// exceeds min(maxLimit, remaining budget) and a new slot is requested only
// while the remaining budget exceeds the minimum viable slot time.
func Decide(maxLimit time.Duration, minLimit time.Duration, budget time.Duration, consumed time.Duration, done bool) Decision {
	remaining := budget - consumed
	if remaining < 0 {
		remaining = 0
	}

	d := Decision{Remaining: remaining}
	if done || remaining <= minLimit {
		return d
	}

	d.Resubmit = true
	d.NextTimeLimit = maxLimit
	if remaining < maxLimit {
		d.NextTimeLimit = remaining
	}
	return d
}

// Controller drives one slot of a variable-time job
type Controller struct {
	// Policy describes how the job checkpoints
	Policy ckpt.Policy

	// MaxTimeLimit is the wall-clock limit requested per slot
	MaxTimeLimit time.Duration

	// MinTimeLimit is the minimum viable slot time; no slot shorter than this
	// is ever requested
	MinTimeLimit time.Duration

	// TotalBudget is the total allocation budget available to the job chain
	TotalBudget time.Duration

	// Requeue is the function to call to resubmit the job for a new slot
	Requeue RequeueFn

	// Preempt optionally overrides the preemption notification source. When
	// nil the controller subscribes to the policy's signal.
	Preempt <-chan os.Signal

	// Clock is the time source; defaults to the wall clock
	Clock clock.Clock

	// Log is the structured logger; defaults to a no-op logger
	Log *zap.Logger
}

// Run executes one slot: it starts the workload, waits for completion or
// preemption and, upon preemption, performs exactly one checkpoint and decides
// whether to requeue. The returned code is the process exit status to use.
func (c *Controller) Run(j *job.Job) (int, error) {
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Log == nil {
		c.Log = zap.NewNop()
	}

	if j == nil || j.App.BinPath == "" {
		return ExitSetupFailure, fmt.Errorf("workload binary is undefined")
	}
	if c.Policy.Dir == "" {
		return ExitSetupFailure, fmt.Errorf("checkpoint directory is undefined")
	}
	err := os.MkdirAll(c.Policy.Dir, 0755)
	if err != nil {
		return ExitSetupFailure, fmt.Errorf("unable to create checkpoint directory: %s", err)
	}

	state, err := ckpt.LoadState(c.Policy.Dir)
	if err != nil {
		return ExitSetupFailure, fmt.Errorf("unable to load controller state: %s", err)
	}

	// A requeued slot may race with completion; the committed state and the
	// completion marker are authoritative
	if state.Done || c.Policy.Done() {
		c.Log.Info("work already complete, nothing to do", zap.String("job", j.Name))
		return ExitOK, nil
	}

	sig, err := c.Policy.Signal()
	if err != nil {
		return ExitSetupFailure, err
	}

	var cmdArgs []string
	cmdArgs = append(cmdArgs, j.App.BinArgs...)
	cmdArgs = append(cmdArgs, j.Args...)
	cmd := exec.Command(j.App.BinPath, cmdArgs...)
	cmd.Env = append(os.Environ(), j.App.Env...)
	cmd.Stdout = io.MultiWriter(os.Stdout, &j.OutBuffer)
	cmd.Stderr = io.MultiWriter(os.Stderr, &j.ErrBuffer)

	err = cmd.Start()
	if err != nil {
		return ExitSetupFailure, fmt.Errorf("unable to start workload %s: %s", j.App.BinPath, err)
	}
	slotStart := c.Clock.Now()
	c.Log.Info("workload started",
		zap.String("job", j.Name),
		zap.String("bin", j.App.BinPath),
		zap.Int("pid", cmd.Process.Pid))

	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
	}()

	preempt := c.Preempt
	if preempt == nil {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, sig)
		defer signal.Stop(sigCh)
		preempt = sigCh
	}

	select {
	case err = <-waitCh:
		elapsed := c.Clock.Since(slotStart)
		if err != nil {
			// No checkpoint was taken this slot; the slot's progress is lost
			// and the failure is surfaced as a job failure
			c.Log.Error("workload failed",
				zap.String("job", j.Name),
				zap.Duration("elapsed", elapsed),
				zap.Error(err))
			return ExitWorkloadFailure, fmt.Errorf("workload failed: %s", err)
		}
		return c.complete(j, &state, elapsed)
	case <-preempt:
		return c.preempted(j, cmd, sig, waitCh, &state, slotStart)
	}
}

// complete handles normal workload termination: the computation is done, no
// requeue is issued.
func (c *Controller) complete(j *job.Job, state *ckpt.State, elapsed time.Duration) (int, error) {
	state.JobName = j.Name
	state.Done = true
	state.Slots++
	state.ConsumedSeconds += int64(elapsed / time.Second)
	err := state.Commit(c.Policy.Dir)
	if err != nil {
		c.Log.Warn("unable to commit final state", zap.Error(err))
	}
	err = c.Policy.MarkDone()
	if err != nil {
		c.Log.Warn("unable to write completion marker", zap.Error(err))
	}

	c.Log.Info("workload completed",
		zap.String("job", j.Name),
		zap.Duration("elapsed", elapsed),
		zap.Int("slots", state.Slots))
	return ExitOK, nil
}

// preempted runs the checkpoint/requeue sequence. It is entered exactly once
// per slot: the first preemption notification wins and later ones are ignored.
func (c *Controller) preempted(j *job.Job, cmd *exec.Cmd, sig os.Signal, waitCh chan error, state *ckpt.State, slotStart time.Time) (int, error) {
	c.Log.Info("preemption signal received",
		zap.String("job", j.Name),
		zap.String("signal", c.Policy.SignalName),
		zap.Duration("overhead", c.Policy.Overhead))

	workloadExited := false
	if c.Policy.CkptCmd == "" {
		// The application checkpoints itself in response to the trapped
		// signal; forward it and give the workload the overhead window to
		// commit its checkpoint and exit
		err := cmd.Process.Signal(sig)
		if err != nil {
			c.Log.Warn("unable to forward signal to workload", zap.Error(err))
		}
		workloadExited = c.waitWorkload(waitCh)
		id, _ := c.Policy.Run()
		state.LastCkptID = id
	} else {
		id, err := c.Policy.Run()
		if err != nil {
			// Losing one slot's progress is preferable to losing the whole
			// job chain: keep the last good checkpoint and requeue anyway
			c.Log.Error("checkpoint failed, falling back to last good checkpoint",
				zap.String("last_ckpt", state.LastCkptID),
				zap.Error(err))
		} else {
			state.LastCkptID = id
		}
	}

	// The workload may have finished while we were checkpointing
	if !workloadExited {
		select {
		case err := <-waitCh:
			workloadExited = true
			if err == nil {
				// Finished cleanly under the wire
				if markErr := c.Policy.MarkDone(); markErr != nil {
					c.Log.Warn("unable to write completion marker", zap.Error(markErr))
				}
			}
		default:
		}
	}
	done := c.Policy.Done()

	elapsed := c.Clock.Since(slotStart)
	state.JobName = j.Name
	state.Slots++
	state.ConsumedSeconds += int64(elapsed / time.Second)
	state.Done = done
	err := state.Commit(c.Policy.Dir)
	if err != nil {
		c.Log.Warn("unable to commit state", zap.Error(err))
	}

	consumed := time.Duration(state.ConsumedSeconds) * time.Second
	decision := Decide(c.MaxTimeLimit, c.MinTimeLimit, c.TotalBudget, consumed, done)
	c.Log.Info("requeue decision",
		zap.Bool("resubmit", decision.Resubmit),
		zap.Duration("remaining", decision.Remaining),
		zap.Duration("next_limit", decision.NextTimeLimit),
		zap.Bool("done", done))

	if !decision.Resubmit {
		c.stopWorkload(cmd, sig, waitCh, workloadExited)
		return ExitOK, nil
	}

	if c.Requeue == nil {
		c.stopWorkload(cmd, sig, waitCh, workloadExited)
		return ExitRequeueDenied, fmt.Errorf("no requeue function configured")
	}
	err = c.Requeue(j, decision.NextTimeLimit)
	if err != nil {
		// Fatal: the denial is surfaced to the operator, no internal retry
		c.stopWorkload(cmd, sig, waitCh, workloadExited)
		c.Log.Error("requeue denied", zap.Error(err))
		return ExitRequeueDenied, fmt.Errorf("requeue denied: %s", err)
	}

	c.Log.Info("job requeued",
		zap.String("job", j.Name),
		zap.Duration("next_limit", decision.NextTimeLimit))
	c.stopWorkload(cmd, sig, waitCh, workloadExited)
	return ExitOK, nil
}

// waitWorkload waits for the workload to exit, up to the checkpoint overhead
// window. It returns true when the workload exited within the window.
func (c *Controller) waitWorkload(waitCh chan error) bool {
	select {
	case <-waitCh:
		return true
	case <-c.Clock.After(c.Policy.Overhead):
		return false
	}
}

// stopWorkload terminates the workload at the end of a preempted slot. The
// scheduler enforces the hard limit regardless; this only makes the slot end
// promptly once the checkpoint/requeue sequence is over.
func (c *Controller) stopWorkload(cmd *exec.Cmd, sig os.Signal, waitCh chan error, alreadyExited bool) {
	if alreadyExited {
		return
	}
	err := cmd.Process.Signal(sig)
	if err == nil && c.waitWorkload(waitCh) {
		return
	}
	err = cmd.Process.Kill()
	if err != nil {
		c.Log.Warn("unable to kill workload", zap.Error(err))
		return
	}
	<-waitCh
}
