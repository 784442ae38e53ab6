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

// Package linker arranges the outputs of a halo finder run into a tree that
// mirrors the simulation layout, using symlinks.
package linker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	logrus "github.com/sirupsen/logrus"
	"github.com/xlab/treeprint"

	"HaloFrontEnd/internal/halofinder"
	"HaloFrontEnd/internal/snapshot"
)

var log = logrus.WithField("component", "Linker")

var ErrNotSymlink = errors.New("path exists and is not a symlink")

type Link struct {
	Path   string
	Target string
}

type Plan struct {
	Dest  string
	Links []Link
}

type Result struct {
	Created  int
	Kept     int
	Replaced int
}

// NewPlan maps every brick file of runDir to
// <dest>/output_NNNNN/<subdir>/tree_bricksSSS, and links the output's info
// file next to it so consumers can read the cosmology of each step.
func NewPlan(runDir, dest, subdir string) (*Plan, error) {
	runDir, err := filepath.Abs(runDir)
	if err != nil {
		return nil, err
	}
	dest, err = filepath.Abs(dest)
	if err != nil {
		return nil, err
	}
	if strings.Contains(subdir, "..") || filepath.IsAbs(subdir) {
		return nil, fmt.Errorf("subdir %q must stay inside the output folder", subdir)
	}

	entries, err := halofinder.ReadInputFiles(filepath.Join(runDir, halofinder.InputFilesName))
	if err != nil {
		return nil, fmt.Errorf("failed to read the step list of %s: %w", runDir, err)
	}
	byStep := make(map[int]halofinder.InputFile, len(entries))
	for _, e := range entries {
		byStep[e.Step] = e
	}

	bricks, err := halofinder.DiscoverBricks(runDir)
	if err != nil {
		return nil, err
	}
	if len(bricks) == 0 {
		return nil, fmt.Errorf("no brick files in %s", runDir)
	}

	plan := &Plan{Dest: dest}
	for _, b := range bricks {
		e, ok := byStep[b.Step]
		if !ok {
			return nil, fmt.Errorf("%s has no entry in %s", filepath.Base(b.Path), halofinder.InputFilesName)
		}
		outDir := filepath.Join(dest, snapshot.OutputDirName(e.Index))
		plan.Links = append(plan.Links, Link{
			Path:   filepath.Join(outDir, subdir, filepath.Base(b.Path)),
			Target: b.Path,
		})

		info := filepath.Join(e.Dir, snapshot.InfoFileName(e.Index))
		if _, err := os.Stat(info); err == nil {
			plan.Links = append(plan.Links, Link{
				Path:   filepath.Join(outDir, snapshot.InfoFileName(e.Index)),
				Target: info,
			})
		} else {
			log.Debugf("No info file %s to link: %v", info, err)
		}
	}
	return plan, nil
}

// Apply creates the planned links. Correct links are left alone and stale
// symlinks replaced; any other file in the way is an error.
func (p *Plan) Apply(dryRun bool) (Result, error) {
	var res Result
	for _, l := range p.Links {
		current, err := os.Readlink(l.Path)
		switch {
		case err == nil && current == l.Target:
			res.Kept++
			continue
		case err == nil:
			log.Infof("Replacing %s -> %s (was %s)", l.Path, l.Target, current)
			if !dryRun {
				if err := os.Remove(l.Path); err != nil {
					return res, err
				}
			}
			res.Replaced++
		case errors.Is(err, os.ErrNotExist):
			res.Created++
		default:
			if _, statErr := os.Lstat(l.Path); statErr == nil {
				return res, fmt.Errorf("%w: %s", ErrNotSymlink, l.Path)
			}
			return res, err
		}

		if dryRun {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(l.Path), 0755); err != nil {
			return res, err
		}
		if err := os.Symlink(l.Target, l.Path); err != nil {
			return res, err
		}
		log.Debugf("Linked %s -> %s", l.Path, l.Target)
	}
	return res, nil
}

// Tree renders the planned layout rooted at the destination.
func (p *Plan) Tree() string {
	tree := treeprint.NewWithRoot(p.Dest)
	branches := map[string]treeprint.Tree{}

	links := append([]Link(nil), p.Links...)
	sort.Slice(links, func(i, j int) bool { return links[i].Path < links[j].Path })

	for _, l := range links {
		rel, err := filepath.Rel(p.Dest, l.Path)
		if err != nil {
			continue
		}
		parts := strings.Split(rel, string(filepath.Separator))
		parent := tree
		key := ""
		for _, dir := range parts[:len(parts)-1] {
			key = filepath.Join(key, dir)
			b, ok := branches[key]
			if !ok {
				b = parent.AddBranch(dir)
				branches[key] = b
			}
			parent = b
		}
		parent.AddNode(fmt.Sprintf("%s -> %s", parts[len(parts)-1], l.Target))
	}
	return tree.String()
}
