// Copyright (c) 2026, NVIDIA CORPORATION. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package vtime

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gvallee/go_vtjob/pkg/ckpt"
	"github.com/gvallee/go_vtjob/pkg/job"
)

// requeueRecorder stands in for the scheduler's resubmission interface
type requeueRecorder struct {
	mu      sync.Mutex
	calls   []time.Duration
	failure error
}

func (r *requeueRecorder) requeue(j *job.Job, nextLimit time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, nextLimit)
	return r.failure
}

func (r *requeueRecorder) limits() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration{}, r.calls...)
}

func TestDecideLimitNeverExceedsBounds(t *testing.T) {
	maxLimits := []time.Duration{30 * time.Minute, 4 * time.Hour, 48 * time.Hour}
	budgets := []time.Duration{time.Hour, 50 * time.Hour, 100 * time.Hour}
	consumedVals := []time.Duration{0, 30 * time.Minute, 48 * time.Hour, 99 * time.Hour, 120 * time.Hour}

	for _, maxLimit := range maxLimits {
		for _, budget := range budgets {
			for _, consumed := range consumedVals {
				d := Decide(maxLimit, 10*time.Minute, budget, consumed, false)
				if !d.Resubmit {
					continue
				}
				remaining := budget - consumed
				assert.LessOrEqual(t, d.NextTimeLimit, maxLimit,
					"max=%s budget=%s consumed=%s", maxLimit, budget, consumed)
				assert.LessOrEqual(t, d.NextTimeLimit, remaining,
					"max=%s budget=%s consumed=%s", maxLimit, budget, consumed)
			}
		}
	}
}

func TestDecideBudgetExhausted(t *testing.T) {
	// remaining == minLimit: no requeue
	d := Decide(48*time.Hour, time.Hour, 10*time.Hour, 9*time.Hour, false)
	assert.False(t, d.Resubmit)

	// remaining < minLimit: no requeue
	d = Decide(48*time.Hour, time.Hour, 10*time.Hour, 9*time.Hour+30*time.Minute, false)
	assert.False(t, d.Resubmit)

	// consumed beyond budget: remaining clamps to zero
	d = Decide(48*time.Hour, time.Hour, 10*time.Hour, 12*time.Hour, false)
	assert.False(t, d.Resubmit)
	assert.Equal(t, time.Duration(0), d.Remaining)

	// just above the minimum: requeue with the remainder
	d = Decide(48*time.Hour, time.Hour, 10*time.Hour, 8*time.Hour, false)
	assert.True(t, d.Resubmit)
	assert.Equal(t, 2*time.Hour, d.NextTimeLimit)
}

func TestDecideDone(t *testing.T) {
	d := Decide(48*time.Hour, time.Hour, 100*time.Hour, time.Hour, true)
	assert.False(t, d.Resubmit)
}

func newTestController(t *testing.T, rec *requeueRecorder) *Controller {
	t.Helper()
	return &Controller{
		Policy: ckpt.Policy{
			SignalName: "USR1",
			Overhead:   2 * time.Second,
			Dir:        t.TempDir(),
		},
		MaxTimeLimit: 48 * time.Hour,
		MinTimeLimit: time.Hour,
		TotalBudget:  100 * time.Hour,
		Requeue:      rec.requeue,
	}
}

func TestWorkloadCompletesNormally(t *testing.T) {
	rec := &requeueRecorder{}
	c := newTestController(t, rec)
	preempt := make(chan os.Signal, 1)
	c.Preempt = preempt

	var j job.Job
	j.Name = "normal-completion"
	j.App.BinPath = "/bin/sh"
	j.App.BinArgs = []string{"-c", "exit 0"}

	code, err := c.Run(&j)
	require.NoError(t, err)
	assert.Equal(t, ExitOK, code)
	assert.Empty(t, rec.limits(), "no requeue expected on normal completion")

	state, err := ckpt.LoadState(c.Policy.Dir)
	require.NoError(t, err)
	assert.True(t, state.Done)
	assert.Equal(t, 1, state.Slots)
	assert.True(t, c.Policy.Done())
}

func TestWorkloadCrashIsFatal(t *testing.T) {
	rec := &requeueRecorder{}
	c := newTestController(t, rec)
	c.Preempt = make(chan os.Signal, 1)

	var j job.Job
	j.Name = "crash"
	j.App.BinPath = "/bin/sh"
	j.App.BinArgs = []string{"-c", "exit 3"}

	code, err := c.Run(&j)
	assert.Error(t, err)
	assert.Equal(t, ExitWorkloadFailure, code)
	assert.Empty(t, rec.limits())
}

func TestUndefinedWorkloadIsSetupFailure(t *testing.T) {
	rec := &requeueRecorder{}
	c := newTestController(t, rec)

	var j job.Job
	code, err := c.Run(&j)
	assert.Error(t, err)
	assert.Equal(t, ExitSetupFailure, code)
}

func TestPreemptionCheckpointsExactlyOnce(t *testing.T) {
	rec := &requeueRecorder{}
	c := newTestController(t, rec)
	countFile := filepath.Join(c.Policy.Dir, "ckpt-count")
	c.Policy.CkptCmd = "/bin/sh"
	c.Policy.CkptArgs = []string{"-c", fmt.Sprintf("echo x >> %s", countFile)}
	preempt := make(chan os.Signal, 1)
	c.Preempt = preempt

	var j job.Job
	j.Name = "preempted"
	j.App.BinPath = "/bin/sleep"
	j.App.BinArgs = []string{"30"}

	done := make(chan struct{})
	var code int
	var runErr error
	go func() {
		code, runErr = c.Run(&j)
		close(done)
	}()

	time.Sleep(200 * time.Millisecond)
	preempt <- os.Interrupt
	// A second notification must not trigger a second checkpoint
	preempt <- os.Interrupt

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("controller did not return after preemption")
	}

	require.NoError(t, runErr)
	assert.Equal(t, ExitOK, code)

	content, err := os.ReadFile(countFile)
	require.NoError(t, err)
	assert.Equal(t, "x\n", string(content), "checkpoint command must run exactly once")

	limits := rec.limits()
	require.Len(t, limits, 1)
	// Nothing consumed yet: next limit is capped by MaxTimeLimit
	assert.Equal(t, 48*time.Hour, limits[0])

	state, err := ckpt.LoadState(c.Policy.Dir)
	require.NoError(t, err)
	assert.False(t, state.Done)
	assert.Equal(t, 1, state.Slots)
	assert.NotEmpty(t, state.LastCkptID)
}

func TestCheckpointFailureStillRequeues(t *testing.T) {
	rec := &requeueRecorder{}
	c := newTestController(t, rec)
	c.Policy.CkptCmd = "/bin/false"
	preempt := make(chan os.Signal, 1)
	c.Preempt = preempt

	// A previous slot committed a good checkpoint
	prev := ckpt.State{JobName: "ckpt-fail", LastCkptID: "last-good", ConsumedSeconds: 3600, Slots: 1}
	require.NoError(t, prev.Commit(c.Policy.Dir))

	var j job.Job
	j.Name = "ckpt-fail"
	j.App.BinPath = "/bin/sleep"
	j.App.BinArgs = []string{"30"}

	done := make(chan struct{})
	var code int
	var runErr error
	go func() {
		code, runErr = c.Run(&j)
		close(done)
	}()

	time.Sleep(200 * time.Millisecond)
	preempt <- os.Interrupt

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("controller did not return after preemption")
	}

	require.NoError(t, runErr)
	assert.Equal(t, ExitOK, code)
	require.Len(t, rec.limits(), 1, "a failed checkpoint must still lead to a requeue")

	state, err := ckpt.LoadState(c.Policy.Dir)
	require.NoError(t, err)
	assert.Equal(t, "last-good", state.LastCkptID, "fall back to the last good checkpoint")
	assert.Equal(t, 2, state.Slots)
}

func TestRequeueDeniedIsFatal(t *testing.T) {
	rec := &requeueRecorder{failure: fmt.Errorf("job quota exhausted")}
	c := newTestController(t, rec)
	c.Policy.CkptCmd = "/bin/true"
	preempt := make(chan os.Signal, 1)
	c.Preempt = preempt

	var j job.Job
	j.Name = "denied"
	j.App.BinPath = "/bin/sleep"
	j.App.BinArgs = []string{"30"}

	done := make(chan struct{})
	var code int
	var runErr error
	go func() {
		code, runErr = c.Run(&j)
		close(done)
	}()

	time.Sleep(200 * time.Millisecond)
	preempt <- os.Interrupt

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("controller did not return after preemption")
	}

	assert.Error(t, runErr)
	assert.Equal(t, ExitRequeueDenied, code)
	assert.Len(t, rec.limits(), 1, "exactly one resubmission attempt, no internal retry")
}

func TestBudgetExhaustedNoRequeue(t *testing.T) {
	rec := &requeueRecorder{}
	c := newTestController(t, rec)
	c.Policy.CkptCmd = "/bin/true"
	preempt := make(chan os.Signal, 1)
	c.Preempt = preempt

	// 99h30m of the 100h budget already consumed; MinTimeLimit is 1h
	prev := ckpt.State{JobName: "exhausted", LastCkptID: "last-good", ConsumedSeconds: int64((99*time.Hour + 30*time.Minute) / time.Second), Slots: 2}
	require.NoError(t, prev.Commit(c.Policy.Dir))

	var j job.Job
	j.Name = "exhausted"
	j.App.BinPath = "/bin/sleep"
	j.App.BinArgs = []string{"30"}

	done := make(chan struct{})
	var code int
	var runErr error
	go func() {
		code, runErr = c.Run(&j)
		close(done)
	}()

	time.Sleep(200 * time.Millisecond)
	preempt <- os.Interrupt

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("controller did not return after preemption")
	}

	require.NoError(t, runErr)
	assert.Equal(t, ExitOK, code)
	assert.Empty(t, rec.limits(), "no requeue when remaining budget is below the minimum slot time")
}

// TestVariableTimeScenario walks the documented 100-hour computation through
// two 48-hour slots: the first slot is preempted at 47h59m and requeued for
// min(48h, ~52h) = 48h; the second slot finishes and no further slot is
// requested.
func TestVariableTimeScenario(t *testing.T) {
	rec := &requeueRecorder{}
	mock := clock.NewMock()
	c := newTestController(t, rec)
	c.Clock = mock
	c.Policy.Overhead = time.Minute
	c.Policy.CkptCmd = "/bin/true"
	preempt := make(chan os.Signal, 1)
	c.Preempt = preempt

	var j job.Job
	j.Name = "tomo-recon"
	j.App.BinPath = "/bin/sleep"
	j.App.BinArgs = []string{"60"}

	// Slot 1: preempted one minute before the 48h hard limit
	done := make(chan struct{})
	var code int
	var runErr error
	go func() {
		code, runErr = c.Run(&j)
		close(done)
	}()

	time.Sleep(200 * time.Millisecond)
	mock.Add(48*time.Hour - time.Minute)
	preempt <- os.Interrupt

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("slot 1 did not return")
	}
	require.NoError(t, runErr)
	assert.Equal(t, ExitOK, code)

	limits := rec.limits()
	require.Len(t, limits, 1)
	assert.Equal(t, 48*time.Hour, limits[0], "remaining ~52h exceeds the 48h per-slot cap")

	state, err := ckpt.LoadState(c.Policy.Dir)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Slots)
	assert.False(t, state.Done)

	// Slot 2: the remaining work completes before any signal
	c2 := &Controller{
		Policy:       c.Policy,
		MaxTimeLimit: c.MaxTimeLimit,
		MinTimeLimit: c.MinTimeLimit,
		TotalBudget:  c.TotalBudget,
		Requeue:      rec.requeue,
		Preempt:      preempt,
		Clock:        mock,
	}
	var j2 job.Job
	j2.Name = "tomo-recon"
	j2.App.BinPath = "/bin/sh"
	j2.App.BinArgs = []string{"-c", "exit 0"}

	code, err = c2.Run(&j2)
	require.NoError(t, err)
	assert.Equal(t, ExitOK, code)
	assert.Len(t, rec.limits(), 1, "no further requeue after completion")

	state, err = ckpt.LoadState(c.Policy.Dir)
	require.NoError(t, err)
	assert.True(t, state.Done)
	assert.Equal(t, 2, state.Slots)

	// A slot racing with completion terminates immediately
	code, err = c2.Run(&j2)
	require.NoError(t, err)
	assert.Equal(t, ExitOK, code)
}
