// Copyright (c) 2026, NVIDIA CORPORATION. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package config loads the YAML manifest describing a variable-time job: the
// application to run, the checkpoint policy, the scheduler options and the
// optional dashboard test list.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/gvallee/go_vtjob/internal/pkg/slurm"
	"github.com/gvallee/go_vtjob/pkg/ckpt"
	"github.com/gvallee/go_vtjob/pkg/dashboard"
	"github.com/gvallee/go_vtjob/pkg/job"
)

// JobSection describes the scheduler-facing job settings
type JobSection struct {
	Name      string `mapstructure:"name"`
	Partition string `mapstructure:"partition"`
	Nodes     int    `mapstructure:"nodes"`
	Tasks     int    `mapstructure:"tasks"`
}

// AppSection describes the workload
type AppSection struct {
	BinPath string   `mapstructure:"bin_path"`
	Args    []string `mapstructure:"args"`
	Env     []string `mapstructure:"env"`
}

// PolicySection describes the checkpoint/requeue policy. Time limits use the
// Slurm [days-]hours:minutes:seconds notation.
type PolicySection struct {
	MaxTimeLimit string   `mapstructure:"max_timelimit"`
	MinTimeLimit string   `mapstructure:"min_timelimit"`
	CkptOverhead int      `mapstructure:"ckpt_overhead"`
	CkptCommand  string   `mapstructure:"ckpt_command"`
	CkptArgs     []string `mapstructure:"ckpt_args"`
	CkptDir      string   `mapstructure:"ckpt_dir"`
	Signal       string   `mapstructure:"signal"`
	TotalBudget  string   `mapstructure:"total_budget"`
}

// TestSection describes one dashboard test object
type TestSection struct {
	Name           string   `mapstructure:"name"`
	Cmd            []string `mapstructure:"cmd"`
	WorkDir        string   `mapstructure:"work_dir"`
	Env            []string `mapstructure:"env"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	RunSerial      bool     `mapstructure:"run_serial"`
}

// DashboardSection describes the CDash drop site and the tests to wrap
type DashboardSection struct {
	Project      string        `mapstructure:"project"`
	Site         string        `mapstructure:"site"`
	BuildName    string        `mapstructure:"build_name"`
	DropMethod   string        `mapstructure:"drop_method"`
	DropSite     string        `mapstructure:"drop_site"`
	DropLocation string        `mapstructure:"drop_location"`
	Tests        []TestSection `mapstructure:"tests"`
}

// LoggingSection describes the logger settings
type LoggingSection struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Manifest is the top-level configuration object
type Manifest struct {
	Job        JobSection       `mapstructure:"job"`
	App        AppSection       `mapstructure:"app"`
	Policy     PolicySection    `mapstructure:"policy"`
	Dashboard  DashboardSection `mapstructure:"dashboard"`
	Logging    LoggingSection   `mapstructure:"logging"`
	ScratchDir string           `mapstructure:"scratch_dir"`
}

// Load reads and validates a manifest file. Every key can be overridden with a
// VTJOB_ environment variable, e.g. VTJOB_POLICY_CKPT_OVERHEAD.
func Load(path string) (*Manifest, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("VTJOB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("policy.max_timelimit", "48:00:00")
	v.SetDefault("policy.min_timelimit", "02:00:00")
	v.SetDefault("policy.ckpt_overhead", 60)
	v.SetDefault("policy.signal", "USR1")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	err := v.ReadInConfig()
	if err != nil {
		return nil, fmt.Errorf("unable to read manifest %s: %s", path, err)
	}

	var m Manifest
	err = v.Unmarshal(&m)
	if err != nil {
		return nil, fmt.Errorf("unable to parse manifest %s: %s", path, err)
	}

	if m.Job.Name == "" {
		return nil, fmt.Errorf("manifest %s: job name is undefined", path)
	}
	if m.App.BinPath == "" {
		return nil, fmt.Errorf("manifest %s: application binary is undefined", path)
	}

	return &m, nil
}

// MaxTimeLimit returns the per-slot wall-clock limit
func (m *Manifest) MaxTimeLimit() (time.Duration, error) {
	return slurm.ParseTimeLimit(m.Policy.MaxTimeLimit)
}

// MinTimeLimit returns the minimum viable slot time
func (m *Manifest) MinTimeLimit() (time.Duration, error) {
	return slurm.ParseTimeLimit(m.Policy.MinTimeLimit)
}

// TotalBudget returns the total allocation budget for the job chain. A missing
// budget means a single slot: the budget equals the per-slot limit.
func (m *Manifest) TotalBudget() (time.Duration, error) {
	if m.Policy.TotalBudget == "" {
		return m.MaxTimeLimit()
	}
	return slurm.ParseTimeLimit(m.Policy.TotalBudget)
}

// CkptPolicy builds the checkpoint policy the controller consumes
func (m *Manifest) CkptPolicy() ckpt.Policy {
	return ckpt.Policy{
		SignalName: m.Policy.Signal,
		Overhead:   time.Duration(m.Policy.CkptOverhead) * time.Second,
		CkptCmd:    m.Policy.CkptCommand,
		CkptArgs:   m.Policy.CkptArgs,
		Dir:        m.Policy.CkptDir,
	}
}

// ToJob builds the job run record for submission
func (m *Manifest) ToJob() (*job.Job, error) {
	maxLimit, err := m.MaxTimeLimit()
	if err != nil {
		return nil, fmt.Errorf("invalid max_timelimit: %s", err)
	}
	minLimit, err := m.MinTimeLimit()
	if err != nil {
		return nil, fmt.Errorf("invalid min_timelimit: %s", err)
	}

	var j job.Job
	j.Name = m.Job.Name
	j.Partition = m.Job.Partition
	j.NNodes = m.Job.Nodes
	j.NP = m.Job.Tasks
	j.TimeLimit = maxLimit
	j.MinTimeLimit = minLimit
	j.SignalName = m.Policy.Signal
	j.SignalLeadTime = time.Duration(m.Policy.CkptOverhead) * time.Second
	j.Requeueable = true
	j.CkptDir = m.Policy.CkptDir
	j.App.Name = m.Job.Name
	j.App.BinPath = m.App.BinPath
	j.App.BinArgs = m.App.Args
	j.App.Env = m.App.Env
	return &j, nil
}

// DashboardConfig builds the dashboard generation config
func (m *Manifest) DashboardConfig() *dashboard.Config {
	cfg := dashboard.Config{
		Project:      m.Dashboard.Project,
		Site:         m.Dashboard.Site,
		BuildName:    m.Dashboard.BuildName,
		DropMethod:   m.Dashboard.DropMethod,
		DropSite:     m.Dashboard.DropSite,
		DropLocation: m.Dashboard.DropLocation,
	}
	for _, t := range m.Dashboard.Tests {
		cfg.Tests = append(cfg.Tests, dashboard.Test{
			Name:           t.Name,
			Cmd:            t.Cmd,
			WorkDir:        t.WorkDir,
			Env:            t.Env,
			TimeoutSeconds: t.TimeoutSeconds,
			RunSerial:      t.RunSerial,
		})
	}
	return &cfg
}
