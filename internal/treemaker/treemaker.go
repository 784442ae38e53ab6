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

// Package treemaker prepares and submits TreeMaker runs over the brick files
// of a finished halo finder run.
package treemaker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	logrus "github.com/sirupsen/logrus"

	"HaloFrontEnd/internal/halofinder"
	"HaloFrontEnd/internal/jobscript"
	"HaloFrontEnd/internal/jobstate"
	"HaloFrontEnd/internal/pipeline"
	"HaloFrontEnd/internal/queue"
	"HaloFrontEnd/internal/snapshot"
	"HaloFrontEnd/internal/util"
)

const InputName = "input_TreeMaker.dat"

var log = logrus.WithField("component", "TreeMaker")

var ErrNoBricks = errors.New("no brick files found")

type Options struct {
	HaloRunDir string
	// Steps bounds the brick step numbers, not the output indices.
	Steps  snapshot.Range
	Prefix string
}

type Run struct {
	Prefix string
	Bricks []halofinder.Brick

	config *util.Config
}

func New(opts Options, config *util.Config) (*Run, error) {
	if config == nil {
		return nil, fmt.Errorf("tree maker needs a configuration")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "."
	}
	prefix, err := filepath.Abs(prefix)
	if err != nil {
		return nil, err
	}

	all, err := halofinder.DiscoverBricks(opts.HaloRunDir)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoBricks, opts.HaloRunDir)
	}

	first, last := all[0].Step, all[len(all)-1].Step
	if opts.Steps.First != nil {
		first = *opts.Steps.First
	}
	if opts.Steps.Last != nil {
		last = *opts.Steps.Last
	}
	if first > last {
		return nil, fmt.Errorf("%w: %d > %d", snapshot.ErrInvalidRange, first, last)
	}

	bricks := make([]halofinder.Brick, 0, len(all))
	for _, b := range all {
		if b.Step >= first && b.Step <= last {
			bricks = append(bricks, b)
		}
	}
	if len(bricks) == 0 {
		return nil, fmt.Errorf("%w in %s within %s", ErrNoBricks, opts.HaloRunDir, opts.Steps)
	}
	for i := 1; i < len(bricks); i++ {
		if bricks[i].Step != bricks[i-1].Step+1 {
			log.Warnf("Brick steps jump from %d to %d, trees will skip the gap",
				bricks[i-1].Step, bricks[i].Step)
		}
	}
	log.Infof("Using %d brick files from step %d to %d", len(bricks), bricks[0].Step, bricks[len(bricks)-1].Step)

	return &Run{Prefix: prefix, Bricks: bricks, config: config}, nil
}

func (r *Run) InputPath() string {
	return filepath.Join(r.Prefix, InputName)
}

func (r *Run) JobScriptPath() string {
	return filepath.Join(r.Prefix, jobstate.TreeMaker.Script)
}

// Input renders the step count followed by one quoted brick path per step.
func (r *Run) Input() string {
	lines := make([]string, 0, len(r.Bricks)+1)
	lines = append(lines, fmt.Sprintf("%d 1", len(r.Bricks)))
	for _, b := range r.Bricks {
		lines = append(lines, fmt.Sprintf("'%s'", b.Path))
	}
	return strings.Join(lines, "\n") + "\n"
}

func (r *Run) WriteInput() error {
	s := r.Input()
	log.Infof("Writing %s", InputName)
	log.Debug(s)
	return util.WriteFileAtomic(r.InputPath(), []byte(s), 0644)
}

func (r *Run) JobSpec() (*jobscript.Spec, error) {
	return pipeline.JobSpec(jobstate.TreeMaker, r.Prefix, r.config.TreeMaker.Executable, r.config.Queue)
}

func (r *Run) WriteJobScript() error {
	spec, err := r.JobSpec()
	if err != nil {
		return err
	}
	log.Infof("Writing %s", jobstate.TreeMaker.Script)
	return jobscript.Write(r.JobScriptPath(), spec)
}

func (r *Run) writers() []pipeline.FileWriter {
	return []pipeline.FileWriter{
		{Path: r.InputPath(), Write: r.WriteInput},
		{Path: r.JobScriptPath(), Write: r.WriteJobScript},
	}
}

func (r *Run) Prepare() error {
	return pipeline.Prepare(r.Prefix, r.writers())
}

func (r *Run) Submit(ctx context.Context, submitter queue.Submitter, keepExisting bool) (*queue.Submission, error) {
	return pipeline.Submit(ctx, r.Prefix, jobstate.TreeMaker, r.writers(), submitter, keepExisting)
}
