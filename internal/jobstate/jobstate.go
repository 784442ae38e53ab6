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

// Package jobstate keeps track of what a run directory contains: which
// inputs were written, whether a job was submitted and how it ended.
package jobstate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	logrus "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var log = logrus.WithField("component", "JobState")

// Stage names the files one external binary reads and writes in its run
// directory.
type Stage struct {
	Name    string
	Inputs  []string
	Script  string
	Record  string
	Log     string
	Started string
	Done    string
	Exit    string
}

var HaloFinder = Stage{
	Name:    "HaloFinder",
	Inputs:  []string{"inputfiles_HaloMaker.dat", "input_HaloMaker.dat"},
	Script:  "job.sh",
	Record:  "job.json",
	Log:     "HaloFinder.log",
	Started: ".started",
	Done:    ".done",
	Exit:    ".exitcode",
}

var TreeMaker = Stage{
	Name:    "TreeMaker",
	Inputs:  []string{"input_TreeMaker.dat"},
	Script:  "job_TreeMaker.sh",
	Record:  "job_TreeMaker.json",
	Log:     "TreeMaker.log",
	Started: ".started_TreeMaker",
	Done:    ".done_TreeMaker",
	Exit:    ".exitcode_TreeMaker",
}

func StageByName(name string) (Stage, error) {
	switch strings.ToLower(name) {
	case "halo", "halofinder":
		return HaloFinder, nil
	case "tree", "treemaker":
		return TreeMaker, nil
	}
	return Stage{}, fmt.Errorf("unknown stage %q, expected halo or tree", name)
}

type Record struct {
	Stage       string
	System      string
	JobID       string
	Script      string
	SubmittedAt time.Time
}

func WriteRecord(runDir string, stage Stage, rec Record) error {
	doc := "{}"
	var err error
	for _, kv := range []struct {
		path  string
		value any
	}{
		{"stage", rec.Stage},
		{"system", rec.System},
		{"job_id", rec.JobID},
		{"script", rec.Script},
		{"submitted_at", rec.SubmittedAt.UTC().Format(time.RFC3339)},
	} {
		if doc, err = sjson.Set(doc, kv.path, kv.value); err != nil {
			return fmt.Errorf("failed to encode job record: %w", err)
		}
	}
	path := filepath.Join(runDir, stage.Record)
	if err := os.WriteFile(path, []byte(doc+"\n"), 0644); err != nil {
		return err
	}
	log.Debugf("Wrote job record %s", path)
	return nil
}

func ReadRecord(runDir string, stage Stage) (*Record, error) {
	content, err := os.ReadFile(filepath.Join(runDir, stage.Record))
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(content) {
		return nil, fmt.Errorf("%s is not valid JSON", stage.Record)
	}
	fields := gjson.GetManyBytes(content, "stage", "system", "job_id", "script", "submitted_at")
	rec := &Record{
		Stage:  fields[0].String(),
		System: fields[1].String(),
		JobID:  fields[2].String(),
		Script: fields[3].String(),
	}
	if ts := fields[4].String(); ts != "" {
		if rec.SubmittedAt, err = time.Parse(time.RFC3339, ts); err != nil {
			return nil, fmt.Errorf("%s: bad submitted_at: %w", stage.Record, err)
		}
	}
	return rec, nil
}

type State string

const (
	Unprepared State = "unprepared"
	Prepared   State = "prepared"
	Submitted  State = "submitted"
	Running    State = "running"
	Done       State = "done"
	Failed     State = "failed"
)

type Status struct {
	RunDir   string
	Stage    string
	State    State
	JobID    string
	System   string
	ExitCode *int
}

// Inspect derives the state of stage in runDir from the files found there.
// Markers win over the submission record, since a job can be run by hand.
func Inspect(runDir string, stage Stage) (*Status, error) {
	st, err := os.Stat(runDir)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", runDir)
	}

	status := &Status{RunDir: runDir, Stage: stage.Name, State: Unprepared}

	rec, err := ReadRecord(runDir, stage)
	switch {
	case err == nil:
		status.JobID = rec.JobID
		status.System = rec.System
	case errors.Is(err, os.ErrNotExist):
	default:
		log.Warnf("Ignoring unreadable job record in %s: %v", runDir, err)
	}

	exists := func(name string) bool {
		_, err := os.Stat(filepath.Join(runDir, name))
		return err == nil
	}

	prepared := exists(stage.Script)
	for _, in := range stage.Inputs {
		prepared = prepared && exists(in)
	}

	switch {
	case exists(stage.Done):
		status.State = Done
		if code, ok := readExitCode(filepath.Join(runDir, stage.Exit)); ok {
			status.ExitCode = &code
			if code != 0 {
				status.State = Failed
			}
		}
	case exists(stage.Started):
		status.State = Running
	case status.JobID != "":
		status.State = Submitted
	case prepared:
		status.State = Prepared
	}
	return status, nil
}

func readExitCode(path string) (int, bool) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	code, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil {
		return 0, false
	}
	return code, true
}
