// Copyright (c) 2026, NVIDIA CORPORATION. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package dashboard turns a declarative list of test objects into the CTest
// configuration files needed to run an arbitrary build system's tests and
// submit the results to a CDash dashboard.
package dashboard

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/gvallee/go_exec/pkg/advexec"
)

const (
	// TestfileName is the name of the generated CTest test definition file
	TestfileName = "CTestTestfile.cmake"

	// ConfigName is the name of the generated CTest dashboard configuration file
	ConfigName = "CTestConfig.cmake"

	// SteerName is the name of the generated CTest steering script
	SteerName = "vtjob_steer.cmake"
)

// Test describes one named test object
type Test struct {
	// Name is the name of the test as reported on the dashboard
	Name string

	// Cmd is the command argument vector, binary first
	Cmd []string

	// WorkDir is the directory the test runs in (optional)
	WorkDir string

	// Env is the set of environment variables, in KEY=VALUE format, the test needs (optional)
	Env []string

	// TimeoutSeconds is the per-test timeout (optional)
	TimeoutSeconds int

	// RunSerial prevents the test from running concurrently with any other test
	RunSerial bool
}

// Config gathers the dashboard settings and the tests to wrap
type Config struct {
	// Project is the dashboard project name
	Project string

	// Site is the name the submitting machine reports
	Site string

	// BuildName identifies the configuration being tested
	BuildName string

	// DropMethod is the protocol used to reach the dashboard (default https)
	DropMethod string

	// DropSite is the host name of the dashboard
	DropSite string

	// DropLocation is the submission path on the dashboard host
	DropLocation string

	// NightlyStartTime is when the nightly track starts (default midnight UTC)
	NightlyStartTime string

	// Tests is the list of test objects to generate definitions for
	Tests []Test
}

var testfileTemplate = template.Must(template.New(TestfileName).Funcs(template.FuncMap{
	"quoteList": quoteList,
	"quote":     quote,
	"envList":   envList,
}).Parse(`# Generated by go_vtjob, do not edit.
{{range .Tests -}}
add_test({{.Name}} {{quoteList .Cmd}})
{{- if or .WorkDir .Env .TimeoutSeconds .RunSerial}}
set_tests_properties({{.Name}} PROPERTIES
{{- if .WorkDir}} WORKING_DIRECTORY {{quote .WorkDir}}{{end}}
{{- if .Env}} ENVIRONMENT {{envList .Env}}{{end}}
{{- if .TimeoutSeconds}} TIMEOUT {{.TimeoutSeconds}}{{end}}
{{- if .RunSerial}} RUN_SERIAL TRUE{{end}})
{{- end}}
{{end}}`))

var configTemplate = template.Must(template.New(ConfigName).Funcs(template.FuncMap{
	"quote": quote,
}).Parse(`# Generated by go_vtjob, do not edit.
set(CTEST_PROJECT_NAME {{quote .Project}})
set(CTEST_NIGHTLY_START_TIME {{quote .NightlyStartTime}})
set(CTEST_DROP_METHOD {{quote .DropMethod}})
set(CTEST_DROP_SITE {{quote .DropSite}})
set(CTEST_DROP_LOCATION {{quote .DropLocation}})
set(CTEST_DROP_SITE_CDASH TRUE)
`))

var steerTemplate = template.Must(template.New(SteerName).Funcs(template.FuncMap{
	"quote": quote,
}).Parse(`# Generated by go_vtjob, do not edit.
set(CTEST_SITE {{quote .Site}})
set(CTEST_BUILD_NAME {{quote .BuildName}})
set(CTEST_SOURCE_DIRECTORY {{quote .Dir}})
set(CTEST_BINARY_DIRECTORY {{quote .Dir}})
ctest_start(Experimental)
ctest_test()
{{if .Submit -}}
ctest_submit()
{{end -}}
`))

// quote renders a string as a quoted CMake argument
func quote(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	return "\"" + s + "\""
}

func quoteList(items []string) string {
	var quoted []string
	for _, item := range items {
		quoted = append(quoted, quote(item))
	}
	return strings.Join(quoted, " ")
}

// envList renders KEY=VALUE pairs as a single semicolon-separated CMake list
func envList(env []string) string {
	return quote(strings.Join(env, ";"))
}

func (c *Config) validate() error {
	if c.Project == "" {
		return fmt.Errorf("undefined project name")
	}
	if len(c.Tests) == 0 {
		return fmt.Errorf("no tests defined")
	}
	seen := map[string]bool{}
	for _, t := range c.Tests {
		if t.Name == "" {
			return fmt.Errorf("test with an undefined name")
		}
		if len(t.Cmd) == 0 {
			return fmt.Errorf("test %s has no command", t.Name)
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate test name: %s", t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.DropMethod == "" {
		c.DropMethod = "https"
	}
	if c.NightlyStartTime == "" {
		c.NightlyStartTime = "00:00:00 UTC"
	}
	if c.Site == "" {
		c.Site, _ = os.Hostname()
	}
}

// WriteFiles generates the CTest configuration artifacts in the given
// directory: the test definitions, the dashboard configuration and a steering
// script that runs the tests and submits the results.
func (c *Config) WriteFiles(dir string) error {
	err := c.validate()
	if err != nil {
		return err
	}
	c.applyDefaults()

	err = renderTo(filepath.Join(dir, TestfileName), testfileTemplate, c)
	if err != nil {
		return err
	}

	err = renderTo(filepath.Join(dir, ConfigName), configTemplate, c)
	if err != nil {
		return err
	}

	steerData := struct {
		Site      string
		BuildName string
		Dir       string
		Submit    bool
	}{
		Site:      c.Site,
		BuildName: c.BuildName,
		Dir:       dir,
		Submit:    c.DropSite != "",
	}
	return renderTo(filepath.Join(dir, SteerName), steerTemplate, &steerData)
}

func renderTo(path string, tmpl *template.Template, data interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create %s: %s", path, err)
	}
	defer f.Close()

	err = tmpl.Execute(f, data)
	if err != nil {
		return fmt.Errorf("unable to render %s: %s", path, err)
	}
	return nil
}

// Submit runs the generated steering script through ctest so the test results
// reach the dashboard.
func Submit(dir string) advexec.Result {
	var res advexec.Result

	ctestPath, err := exec.LookPath("ctest")
	if err != nil {
		res.Err = fmt.Errorf("ctest not found: %s", err)
		return res
	}

	var cmd advexec.Advcmd
	cmd.BinPath = ctestPath
	cmd.ExecDir = dir
	cmd.CmdArgs = []string{"-S", filepath.Join(dir, SteerName), "-V"}
	return cmd.Run()
}
