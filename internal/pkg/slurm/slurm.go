// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// Copyright (c) 2026, NVIDIA CORPORATION. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package slurm

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// ScriptCmdPrefix is the prefix to add to a batch script directive
	ScriptCmdPrefix = "#SBATCH"

	// JobIDPrefix is the prefix of the sbatch output line reporting the job ID
	JobIDPrefix = "Submitted batch job "
)

// FormatTimeLimit converts a duration into the [days-]hours:minutes:seconds
// representation that sbatch and scontrol expect. Durations are rounded up to
// the next full second so a limit is never shortened by formatting.
func FormatTimeLimit(d time.Duration) string {
	if d <= 0 {
		return "00:00:00"
	}
	secs := int64((d + time.Second - 1) / time.Second)
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// ParseTimeLimit parses a Slurm time value into a duration. The accepted
// forms follow sbatch: "minutes", "minutes:seconds", "hours:minutes:seconds",
// "days-hours", "days-hours:minutes" and "days-hours:minutes:seconds".
func ParseTimeLimit(str string) (time.Duration, error) {
	str = strings.TrimSpace(str)
	if str == "" {
		return 0, fmt.Errorf("empty time limit")
	}

	var days int64
	var err error
	if idx := strings.Index(str, "-"); idx >= 0 {
		days, err = strconv.ParseInt(str[:idx], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number of days in %s: %s", str, err)
		}
		str = str[idx+1:]
	}

	tokens := strings.Split(str, ":")
	if len(tokens) > 3 {
		return 0, fmt.Errorf("invalid time limit: %s", str)
	}

	var parts [3]int64
	for i, tok := range tokens {
		parts[i], err = strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid time limit: %s", str)
		}
	}

	d := time.Duration(days) * 24 * time.Hour
	switch len(tokens) {
	case 3:
		d += time.Duration(parts[0])*time.Hour + time.Duration(parts[1])*time.Minute + time.Duration(parts[2])*time.Second
	case 2:
		if days > 0 {
			// days-hours:minutes
			d += time.Duration(parts[0])*time.Hour + time.Duration(parts[1])*time.Minute
		} else {
			// minutes:seconds
			d += time.Duration(parts[0])*time.Minute + time.Duration(parts[1])*time.Second
		}
	case 1:
		if days > 0 {
			// days-hours
			d += time.Duration(parts[0]) * time.Hour
		} else {
			// minutes
			d += time.Duration(parts[0]) * time.Minute
		}
	}
	return d, nil
}
