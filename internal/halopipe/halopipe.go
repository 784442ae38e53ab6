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

package halopipe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"HaloFrontEnd/internal/halofinder"
	"HaloFrontEnd/internal/jobscript"
	"HaloFrontEnd/internal/jobstate"
	"HaloFrontEnd/internal/linker"
	"HaloFrontEnd/internal/namelist"
	"HaloFrontEnd/internal/pipeline"
	"HaloFrontEnd/internal/queue"
	"HaloFrontEnd/internal/ramses"
	"HaloFrontEnd/internal/snapshot"
	"HaloFrontEnd/internal/treemaker"
	"HaloFrontEnd/internal/util"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// lowDiskBytes is the free space under which check warns about the run
// directory.
const lowDiskBytes = 1 << 30

// lookupErr classifies an error from discovering outputs or bricks and
// loading their descriptors.
func lookupErr(msg string, err error) error {
	switch {
	case errors.Is(err, snapshot.ErrNoOutputs),
		errors.Is(err, snapshot.ErrInvalidRange),
		errors.Is(err, treemaker.ErrNoBricks),
		errors.Is(err, os.ErrNotExist):
		return util.WrapHaloErr(util.ErrorDiscovery, msg, err)
	default:
		return util.WrapHaloErr(util.ErrorDataset, msg, err)
	}
}

func newSubmitter() (queue.Submitter, error) {
	system, err := queue.ParseSystem(config.Queue.System)
	if err != nil {
		return nil, util.WrapHaloErr(util.ErrorConfig, "", err)
	}
	s, err := queue.NewSubmitter(system, config.Queue.SubmitCommand)
	if err != nil {
		return nil, util.WrapHaloErr(util.ErrorConfig, "", err)
	}
	return s, nil
}

func Discover(w io.Writer, folder string, r snapshot.Range, load bool) error {
	outputs, err := snapshot.Discover(folder, r)
	if err != nil {
		return lookupErr("failed to discover outputs", err)
	}

	var infos []*ramses.Info
	if load {
		infos, err = ramses.LoadSeries(snapshot.InfoPaths(outputs))
		if err != nil {
			return lookupErr("failed to load output descriptors", err)
		}
	}

	if FlagJson {
		doc, err := outputsJSON(outputs, infos)
		return writeJSON(w, doc, err)
	}
	writeOutputsTable(w, outputs, infos)
	return nil
}

func HaloPrepare(w io.Writer, folder string, r snapshot.Range, prefix string) error {
	run, err := halofinder.New(halofinder.Options{Folder: folder, Range: r, Prefix: prefix}, config)
	if err != nil {
		return lookupErr("failed to set up halo finder run", err)
	}
	if err := run.Prepare(); err != nil {
		return util.WrapHaloErr(util.ErrorWrite, "failed to prepare halo finder run", err)
	}
	fmt.Fprintf(w, "Prepared %s for %d outputs.\n", run.Prefix, len(run.Outputs))
	return nil
}

func HaloSubmit(ctx context.Context, w io.Writer, folder string, r snapshot.Range, prefix string, keepExisting bool) error {
	submitter, err := newSubmitter()
	if err != nil {
		return err
	}
	run, err := halofinder.New(halofinder.Options{Folder: folder, Range: r, Prefix: prefix}, config)
	if err != nil {
		return lookupErr("failed to set up halo finder run", err)
	}
	sub, err := run.Submit(ctx, submitter, keepExisting)
	if err != nil {
		return util.WrapHaloErr(util.ErrorSubmit, "failed to submit halo finder job", err)
	}
	return writeSubmission(w, jobstate.HaloFinder, sub)
}

func Link(w io.Writer, runDir, dest, subdir string, dryRun bool) error {
	if dest == "" {
		return util.NewHaloErr(util.ErrorCmdArg, "a destination folder is required")
	}
	plan, err := linker.NewPlan(runDir, dest, subdir)
	if err != nil {
		return util.WrapHaloErr(util.ErrorLink, "failed to plan links", err)
	}
	res, err := plan.Apply(dryRun)
	if err != nil {
		return util.WrapHaloErr(util.ErrorLink, "failed to create links", err)
	}

	if FlagJson {
		doc, err := linkJSON(plan, res, dryRun)
		return writeJSON(w, doc, err)
	}
	if dryRun {
		fmt.Fprint(w, plan.Tree())
		fmt.Fprintf(w, "Would create %d, keep %d and replace %d links.\n", res.Created, res.Kept, res.Replaced)
		return nil
	}
	fmt.Fprintf(w, "Created %d, kept %d and replaced %d links under %s.\n", res.Created, res.Kept, res.Replaced, plan.Dest)
	return nil
}

func TreePrepare(w io.Writer, haloRunDir string, steps snapshot.Range, prefix string) error {
	run, err := treemaker.New(treemaker.Options{HaloRunDir: haloRunDir, Steps: steps, Prefix: prefix}, config)
	if err != nil {
		return lookupErr("failed to set up tree maker run", err)
	}
	if err := run.Prepare(); err != nil {
		return util.WrapHaloErr(util.ErrorWrite, "failed to prepare tree maker run", err)
	}
	fmt.Fprintf(w, "Prepared %s for %d brick files.\n", run.Prefix, len(run.Bricks))
	return nil
}

func TreeSubmit(ctx context.Context, w io.Writer, haloRunDir string, steps snapshot.Range, prefix string, keepExisting bool) error {
	submitter, err := newSubmitter()
	if err != nil {
		return err
	}
	run, err := treemaker.New(treemaker.Options{HaloRunDir: haloRunDir, Steps: steps, Prefix: prefix}, config)
	if err != nil {
		return lookupErr("failed to set up tree maker run", err)
	}
	sub, err := run.Submit(ctx, submitter, keepExisting)
	if err != nil {
		return util.WrapHaloErr(util.ErrorSubmit, "failed to submit tree maker job", err)
	}
	return writeSubmission(w, jobstate.TreeMaker, sub)
}

func stagesFor(name string) ([]jobstate.Stage, error) {
	if name == "" {
		return []jobstate.Stage{jobstate.HaloFinder, jobstate.TreeMaker}, nil
	}
	stage, err := jobstate.StageByName(name)
	if err != nil {
		return nil, util.WrapHaloErr(util.ErrorCmdArg, "", err)
	}
	return []jobstate.Stage{stage}, nil
}

// Status reports every stage of every run directory. Directories that
// cannot be inspected are logged and turn the exit code into ErrorStatus
// once the others are printed.
func Status(w io.Writer, runDirs []string, stageName string) error {
	stages, err := stagesFor(stageName)
	if err != nil {
		return err
	}

	statuses := make([]*jobstate.Status, 0, len(runDirs)*len(stages))
	failed := 0
	for _, dir := range runDirs {
		for _, stage := range stages {
			st, err := jobstate.Inspect(dir, stage)
			if err != nil {
				log.Errorf("Failed to inspect %s: %v", dir, err)
				failed++
				break
			}
			statuses = append(statuses, st)
		}
	}

	if FlagJson {
		doc, err := statusJSON(statuses)
		if err := writeJSON(w, doc, err); err != nil {
			return err
		}
	} else {
		writeStatusTable(w, statuses)
	}

	if failed > 0 {
		return util.NewHaloErr(util.ErrorStatus, fmt.Sprintf("%d of %d run directories could not be inspected", failed, len(runDirs)))
	}
	return nil
}

func Logs(ctx context.Context, w io.Writer, runDir, stageName string, follow bool) error {
	stage, err := jobstate.StageByName(stageName)
	if err != nil {
		return util.WrapHaloErr(util.ErrorCmdArg, "", err)
	}
	if err := jobstate.Follow(ctx, runDir, stage, w, follow); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return util.NewHaloErr(util.ErrorStatus, fmt.Sprintf("%s has no %s log yet", runDir, stage.Name))
		}
		return util.WrapHaloErr(util.ErrorStatus, "failed to read log", err)
	}
	return nil
}

// Inspect shows a HaloMaker parameter file, or the queue directives of a
// job script when the file starts with a shebang.
func Inspect(w io.Writer, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return util.WrapHaloErr(util.ErrorDataset, "", err)
	}

	if bytes.HasPrefix(content, []byte("#!")) {
		script, err := jobscript.ParseScript(bytes.NewReader(content))
		if err != nil {
			return util.WrapHaloErr(util.ErrorDataset, fmt.Sprintf("failed to parse %s", path), err)
		}
		if FlagJson {
			doc, err := scriptJSON(script)
			return writeJSON(w, doc, err)
		}
		writeScriptTable(w, script)
		return nil
	}

	nl, err := namelist.Parse(bytes.NewReader(content))
	if err != nil {
		return util.WrapHaloErr(util.ErrorDataset, fmt.Sprintf("failed to parse %s", path), err)
	}
	if FlagJson {
		doc, err := namelistJSON(nl)
		return writeJSON(w, doc, err)
	}
	writeNamelistTable(w, nl)
	return nil
}

type checkResult struct {
	Name   string
	Result string
	Detail string
}

const (
	checkOK   = "ok"
	checkWarn = "warn"
	checkFail = "fail"
)

// Check verifies the environment a submission depends on. Only failures
// change the exit code; warnings are informational.
func Check(w io.Writer, prefix string) error {
	results := []checkResult{
		checkExecutable("halo finder", config.HaloFinder.Binary()),
		checkExecutable("tree maker", config.TreeMaker.Executable),
		checkSubmitCommand(),
		checkCores(),
		checkDisk(prefix),
	}

	if FlagJson {
		doc, err := checkJSON(results)
		if err := writeJSON(w, doc, err); err != nil {
			return err
		}
	} else {
		writeCheckTable(w, results)
	}

	failed := 0
	for _, r := range results {
		if r.Result == checkFail {
			failed++
		}
	}
	if failed > 0 {
		return util.NewHaloErr(util.ErrorConfig, fmt.Sprintf("%d check(s) failed", failed))
	}
	return nil
}

func checkExecutable(name, path string) checkResult {
	if err := util.IsExecutable(path); err != nil {
		return checkResult{Name: name, Result: checkFail, Detail: err.Error()}
	}
	return checkResult{Name: name, Result: checkOK, Detail: path}
}

func checkSubmitCommand() checkResult {
	const name = "submit command"
	s, err := newSubmitter()
	if err != nil {
		return checkResult{Name: name, Result: checkFail, Detail: err.Error()}
	}
	cs, ok := s.(*queue.CommandSubmitter)
	if !ok {
		return checkResult{Name: name, Result: checkOK, Detail: config.Queue.System}
	}
	path, err := exec.LookPath(cs.Command)
	if err != nil {
		return checkResult{Name: name, Result: checkFail, Detail: err.Error()}
	}
	return checkResult{Name: name, Result: checkOK, Detail: path}
}

func checkCores() checkResult {
	const name = "cores per node"
	ppn, err := pipeline.ResolvePpn(config.Queue)
	if err != nil {
		return checkResult{Name: name, Result: checkFail, Detail: err.Error()}
	}
	return checkResult{Name: name, Result: checkOK, Detail: strconv.Itoa(ppn)}
}

func checkDisk(prefix string) checkResult {
	const name = "free disk"
	dir, err := filepath.Abs(prefix)
	if err != nil {
		return checkResult{Name: name, Result: checkFail, Detail: err.Error()}
	}
	// The run directory may not exist yet.
	for !util.FileExists(dir) && filepath.Dir(dir) != dir {
		dir = filepath.Dir(dir)
	}

	free, err := util.FreeDiskBytes(dir)
	if err != nil {
		return checkResult{Name: name, Result: checkFail, Detail: err.Error()}
	}
	detail := fmt.Sprintf("%s on %s", util.FormatBytes(free), dir)
	if free < lowDiskBytes {
		return checkResult{Name: name, Result: checkWarn, Detail: detail}
	}
	return checkResult{Name: name, Result: checkOK, Detail: detail}
}

func ShowConfig(w io.Writer) error {
	out, err := yaml.Marshal(config)
	if err != nil {
		return util.WrapHaloErr(util.ErrorConfig, "failed to encode configuration", err)
	}
	_, err = w.Write(out)
	return err
}
