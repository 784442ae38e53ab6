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

// Package pipeline holds the steps shared by every stage: building the job
// description from the configuration, writing inputs under a lock, and
// submitting.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	logrus "github.com/sirupsen/logrus"

	"HaloFrontEnd/internal/jobscript"
	"HaloFrontEnd/internal/jobstate"
	"HaloFrontEnd/internal/queue"
	"HaloFrontEnd/internal/util"
)

var log = logrus.WithField("component", "Pipeline")

// FileWriter produces one file of a run directory.
type FileWriter struct {
	Path  string
	Write func() error
}

// ResolvePpn returns the configured core count, or the physical cores of
// this host when the configuration leaves it at 0.
func ResolvePpn(q util.QueueConfig) (int, error) {
	if q.Ppn > 0 {
		return q.Ppn, nil
	}
	n, err := util.HostPhysicalCores()
	if err != nil {
		return 0, err
	}
	log.Infof("Ppn not configured, using the %d cores of this host", n)
	return n, nil
}

func JobSpec(stage jobstate.Stage, runDir, executable string, q util.QueueConfig) (*jobscript.Spec, error) {
	abs, err := filepath.Abs(runDir)
	if err != nil {
		return nil, err
	}
	ppn, err := ResolvePpn(q)
	if err != nil {
		return nil, err
	}
	walltime, err := util.ParseWalltime(q.Walltime)
	if err != nil {
		return nil, err
	}

	if err := util.IsExecutable(executable); err != nil {
		log.Warnf("%s executable may not run: %v", stage.Name, err)
	}

	return &jobscript.Spec{
		System:        q.System,
		Name:          stage.Name,
		RunDir:        abs,
		Executable:    executable,
		Nodes:         q.Nodes,
		Ppn:           ppn,
		Walltime:      walltime,
		Partition:     q.Partition,
		Account:       q.Account,
		LogFile:       stage.Log,
		StartedMarker: stage.Started,
		DoneMarker:    stage.Done,
		ExitCodeFile:  stage.Exit,
		ModuleCommand: q.ModuleCommand,
		Modules:       q.Modules,
	}, nil
}

// Prepare writes every file of the run directory while holding its lock.
func Prepare(runDir string, writers []FileWriter) error {
	lock, err := util.LockRunDir(runDir)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	return writeAll(writers, false)
}

func writeAll(writers []FileWriter, keepExisting bool) error {
	for _, w := range writers {
		if keepExisting && util.FileExists(w.Path) {
			log.Infof("Keeping existing %s", w.Path)
			continue
		}
		if err := w.Write(); err != nil {
			return fmt.Errorf("failed to write %s: %w", w.Path, err)
		}
	}
	return nil
}

// Submit writes the run directory (only missing files with keepExisting),
// hands the stage's job script to submitter and records the submission.
func Submit(ctx context.Context, runDir string, stage jobstate.Stage, writers []FileWriter,
	submitter queue.Submitter, keepExisting bool) (*queue.Submission, error) {
	lock, err := util.LockRunDir(runDir)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	if err := writeAll(writers, keepExisting); err != nil {
		return nil, err
	}

	log.Infof("Submitting %s job", stage.Name)
	sub, err := submitter.Submit(ctx, filepath.Join(runDir, stage.Script))
	if err != nil {
		return nil, err
	}

	rec := jobstate.Record{
		Stage:       stage.Name,
		System:      string(sub.System),
		JobID:       sub.JobID,
		Script:      sub.Script,
		SubmittedAt: sub.SubmittedAt,
	}
	if err := jobstate.WriteRecord(runDir, stage, rec); err != nil {
		// The job is already queued; losing the record only affects status.
		log.Errorf("Failed to record submission of job %s: %v", sub.JobID, err)
	}
	return sub, nil
}
