/**
 * Copyright (c) 2024 Peking University and Peking University
 * Changsha Institute for Computing and Digital Economy
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

// Package queue hands job scripts to a batch system through its command
// line submission tool.
package queue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	logrus "github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "Queue")

type System string

const (
	PBS   System = "pbs"
	Slurm System = "slurm"
	Crane System = "crane"
	Local System = "local"
)

var ErrUnknownSystem = errors.New("unknown queue system")

func ParseSystem(s string) (System, error) {
	switch System(strings.ToLower(strings.TrimSpace(s))) {
	case PBS:
		return PBS, nil
	case Slurm:
		return Slurm, nil
	case Crane:
		return Crane, nil
	case Local:
		return Local, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSystem, s)
}

// DefaultCommand is the submission tool used when none is configured.
func (s System) DefaultCommand() string {
	switch s {
	case PBS:
		return "qsub"
	case Slurm:
		return "sbatch"
	case Crane:
		return "cbatch"
	case Local:
		return "/bin/sh"
	}
	return ""
}

var jobIdPatterns = map[System]*regexp.Regexp{
	// 123456.pbs-server
	PBS: regexp.MustCompile(`^(\d+(?:\[\])?(?:\.\S+)?)`),
	// Submitted batch job 49229449
	Slurm: regexp.MustCompile(`Submitted batch job (\d+)`),
	// Job id allocated: 1234.
	Crane: regexp.MustCompile(`Job id allocated: (\d+)`),
}

type Submission struct {
	System      System
	JobID       string
	Script      string
	SubmittedAt time.Time
	Output      string
}

type Submitter interface {
	Submit(ctx context.Context, scriptPath string) (*Submission, error)
}

// CommandSubmitter runs "<Command> <script>" from the script's directory.
type CommandSubmitter struct {
	System  System
	Command string
	Args    []string
}

func NewSubmitter(system System, command string) (*CommandSubmitter, error) {
	if _, err := ParseSystem(string(system)); err != nil {
		return nil, err
	}
	if command == "" {
		command = system.DefaultCommand()
	}
	fields := strings.Fields(command)
	return &CommandSubmitter{System: system, Command: fields[0], Args: fields[1:]}, nil
}

func (s *CommandSubmitter) Submit(ctx context.Context, scriptPath string) (*Submission, error) {
	abs, err := filepath.Abs(scriptPath)
	if err != nil {
		return nil, err
	}

	args := append(append([]string{}, s.Args...), filepath.Base(abs))
	cmd := exec.CommandContext(ctx, s.Command, args...)
	cmd.Dir = filepath.Dir(abs)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Infof("Submitting %s with %s", abs, s.Command)
	start := time.Now()
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		if msg != "" {
			return nil, fmt.Errorf("%s %s failed: %w: %s", s.Command, filepath.Base(abs), err, msg)
		}
		return nil, fmt.Errorf("%s %s failed: %w", s.Command, filepath.Base(abs), err)
	}

	out := strings.TrimSpace(stdout.String())
	sub := &Submission{
		System:      s.System,
		Script:      abs,
		SubmittedAt: start,
		Output:      out,
		JobID:       s.parseJobID(out),
	}
	log.Infof("Job %s submitted to %s", sub.JobID, s.System)
	return sub, nil
}

func (s *CommandSubmitter) parseJobID(out string) string {
	if s.System == Local {
		return "local"
	}
	if re, ok := jobIdPatterns[s.System]; ok {
		if m := re.FindStringSubmatch(out); m != nil {
			return m[1]
		}
	}
	log.Warnf("Could not find a job id in the output of %s: %q", s.Command, out)
	return out
}
