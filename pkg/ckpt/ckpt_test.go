// Copyright (c) 2026, NVIDIA CORPORATION. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package ckpt

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadStateMissingFile(t *testing.T) {
	s, err := LoadState(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, State{}, s)
}

func TestStateCommitAndReload(t *testing.T) {
	dir := t.TempDir()
	s := State{
		JobName:         "tomo-recon",
		LastCkptID:      "4f1c2b9a",
		ConsumedSeconds: 172800,
		Slots:           1,
	}
	require.NoError(t, s.Commit(dir))

	reloaded, err := LoadState(dir)
	require.NoError(t, err)
	assert.Equal(t, s, reloaded)

	// A second commit replaces, not appends
	s.Slots = 2
	s.ConsumedSeconds = 360000
	require.NoError(t, s.Commit(dir))
	reloaded, err = LoadState(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Slots)
	assert.Equal(t, int64(360000), reloaded.ConsumedSeconds)
}

func TestStateCommitLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := State{JobName: "x"}
	require.NoError(t, s.Commit(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StateFilename, entries[0].Name())
}

func TestPolicySignal(t *testing.T) {
	p := Policy{SignalName: "USR1"}
	sig, err := p.Signal()
	require.NoError(t, err)
	assert.Equal(t, syscall.SIGUSR1, sig)

	p.SignalName = "TERM"
	sig, err = p.Signal()
	require.NoError(t, err)
	assert.Equal(t, syscall.SIGTERM, sig)

	p.SignalName = "KILL"
	_, err = p.Signal()
	assert.Error(t, err)
}

func TestPolicyRunNoCommand(t *testing.T) {
	p := Policy{Dir: t.TempDir()}
	id, err := p.Run()
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestPolicyRunCommandFailure(t *testing.T) {
	p := Policy{
		CkptCmd: "/bin/false",
		Dir:     t.TempDir(),
	}
	_, err := p.Run()
	assert.Error(t, err)
}

func TestPolicyRunCommandSuccess(t *testing.T) {
	p := Policy{
		CkptCmd: "/bin/true",
		Dir:     t.TempDir(),
	}
	id, err := p.Run()
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestDoneMarker(t *testing.T) {
	p := Policy{SignalName: "USR1", Overhead: time.Minute, Dir: t.TempDir()}
	assert.False(t, p.Done())

	require.NoError(t, p.MarkDone())
	assert.True(t, p.Done())

	content, err := os.ReadFile(filepath.Join(p.Dir, DoneFilename))
	require.NoError(t, err)
	assert.NotEmpty(t, content)
}
