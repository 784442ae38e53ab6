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

// Package halofinder prepares and submits HaloMaker runs over a range of
// simulation outputs.
package halofinder

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	logrus "github.com/sirupsen/logrus"

	"HaloFrontEnd/internal/jobscript"
	"HaloFrontEnd/internal/jobstate"
	"HaloFrontEnd/internal/namelist"
	"HaloFrontEnd/internal/pipeline"
	"HaloFrontEnd/internal/queue"
	"HaloFrontEnd/internal/ramses"
	"HaloFrontEnd/internal/snapshot"
	"HaloFrontEnd/internal/util"
)

const (
	InputFilesName = "inputfiles_HaloMaker.dat"
	InputName      = "input_HaloMaker.dat"
)

var log = logrus.WithField("component", "HaloFinder")

type Options struct {
	Folder string
	Range  snapshot.Range
	Prefix string
}

type Run struct {
	Prefix  string
	Outputs []snapshot.Output
	Infos   []*ramses.Info

	config *util.Config
}

// New discovers the outputs of the simulation and loads their descriptors.
func New(opts Options, config *util.Config) (*Run, error) {
	if config == nil {
		return nil, fmt.Errorf("halo finder needs a configuration")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "."
	}
	prefix, err := filepath.Abs(prefix)
	if err != nil {
		return nil, err
	}

	outputs, err := snapshot.Discover(opts.Folder, opts.Range)
	if err != nil {
		return nil, err
	}
	infos, err := ramses.LoadSeries(snapshot.InfoPaths(outputs))
	if err != nil {
		return nil, err
	}
	log.Infof("Using %d outputs from %05d to %05d", len(outputs),
		outputs[0].Index, outputs[len(outputs)-1].Index)

	return &Run{Prefix: prefix, Outputs: outputs, Infos: infos, config: config}, nil
}

func (r *Run) InputFilesPath() string {
	return filepath.Join(r.Prefix, InputFilesName)
}

func (r *Run) InputPath() string {
	return filepath.Join(r.Prefix, InputName)
}

func (r *Run) JobScriptPath() string {
	return filepath.Join(r.Prefix, jobstate.HaloFinder.Script)
}

// InputFiles renders the list of snapshots HaloMaker loops over, one step
// per line in index order.
func (r *Run) InputFiles() string {
	lines := make([]string, 0, len(r.Outputs))
	for _, out := range r.Outputs {
		lines = append(lines, FormatInputFileLine(out.Dir, out.Index))
	}
	return strings.Join(lines, "\n") + "\n"
}

func (r *Run) WriteInputFiles() error {
	s := r.InputFiles()
	log.Infof("Writing %s", InputFilesName)
	log.Debug(s)
	return util.WriteFileAtomic(r.InputFilesPath(), []byte(s), 0644)
}

// Input builds the parameter file from the cosmology of the last output.
func (r *Run) Input() *namelist.Config {
	ds := r.Infos[len(r.Infos)-1]

	c := namelist.New()
	c.Set("af", 1/(ds.Redshift()+1))
	c.Set("lbox", ds.BoxSizeComovingMpc())
	c.Set("H_f", ds.HubbleParam())
	c.Set("omega_f", ds.OmegaM)
	c.Set("lambda_f", ds.OmegaL)
	c.Set("npart", 100)
	c.Set("method", "MSM")
	c.Set("cdm", false)
	c.Set("b", 0.2)
	c.Set("nvoisins", 20)
	c.Set("nhop", 20)
	c.Set("rhot", 80.)
	c.Set("fudge", 4.)
	c.Set("fudgepsilon", 0.001)
	c.Set("alphap", 1.0)
	c.Set("verbose", false)
	c.Set("megaverbose", false)
	c.Set("nsteps", len(r.Outputs))
	c.Set("FlagPeriod", 1)
	c.Set("DPMMC", false)
	c.Set("SC", true)
	c.Set("dcell_min", 0.005781)

	c.Merge(r.config.HaloFinder.Parameters)
	return c
}

func (r *Run) WriteInput() error {
	s := r.Input().String()
	log.Infof("Writing %s", InputName)
	log.Debug(s)
	return util.WriteFileAtomic(r.InputPath(), []byte(s+"\n"), 0644)
}

func (r *Run) JobSpec() (*jobscript.Spec, error) {
	return pipeline.JobSpec(jobstate.HaloFinder, r.Prefix, r.config.HaloFinder.Binary(), r.config.Queue)
}

func (r *Run) WriteJobScript() error {
	spec, err := r.JobSpec()
	if err != nil {
		return err
	}
	log.Infof("Writing %s", jobstate.HaloFinder.Script)
	return jobscript.Write(r.JobScriptPath(), spec)
}

func (r *Run) writers() []pipeline.FileWriter {
	return []pipeline.FileWriter{
		{Path: r.InputFilesPath(), Write: r.WriteInputFiles},
		{Path: r.InputPath(), Write: r.WriteInput},
		{Path: r.JobScriptPath(), Write: r.WriteJobScript},
	}
}

func (r *Run) Prepare() error {
	return pipeline.Prepare(r.Prefix, r.writers())
}

func (r *Run) Submit(ctx context.Context, submitter queue.Submitter, keepExisting bool) (*queue.Submission, error) {
	return pipeline.Submit(ctx, r.Prefix, jobstate.HaloFinder, r.writers(), submitter, keepExisting)
}

func FormatInputFileLine(dir string, index int) string {
	return fmt.Sprintf("'%s/'  Ra3  1  %05d", strings.TrimSuffix(dir, "/"), index)
}
