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

package halofinder

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// InputFile is one line of inputfiles_HaloMaker.dat. HaloMaker numbers its
// brick files by Step, the 1-based line number, not by the output index.
type InputFile struct {
	Step  int
	Dir   string
	Index int
}

var inputFileRe = regexp.MustCompile(`^\s*'(.*?)/?'\s+\S+\s+\d+\s+(\d+)\s*$`)

func ReadInputFiles(path string) ([]InputFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries := make([]InputFile, 0)
	scanner := bufio.NewScanner(f)
	num := 0
	for scanner.Scan() {
		num++
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		m := inputFileRe.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("%s:%d: malformed line %q", filepath.Base(path), num, line)
		}
		idx, err := strconv.Atoi(m[2])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", filepath.Base(path), num, err)
		}
		entries = append(entries, InputFile{Step: len(entries) + 1, Dir: m[1], Index: idx})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Brick is a tree_bricksNNN catalog written by HaloMaker for one step.
type Brick struct {
	Step int
	Path string
}

var brickRe = regexp.MustCompile(`^tree_bricks(\d{3,})$`)

func BrickFileName(step int) string {
	return fmt.Sprintf("tree_bricks%03d", step)
}

// DiscoverBricks lists the brick files of a run directory sorted by step.
func DiscoverBricks(runDir string) ([]Brick, error) {
	abs, err := filepath.Abs(runDir)
	if err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(filepath.Join(abs, "tree_bricks*"))
	if err != nil {
		return nil, err
	}

	bricks := make([]Brick, 0, len(matches))
	for _, m := range matches {
		sub := brickRe.FindStringSubmatch(filepath.Base(m))
		if sub == nil {
			continue
		}
		if st, err := os.Stat(m); err != nil || !st.Mode().IsRegular() {
			continue
		}
		step, err := strconv.Atoi(sub[1])
		if err != nil {
			continue
		}
		bricks = append(bricks, Brick{Step: step, Path: m})
	}
	sort.Slice(bricks, func(i, j int) bool { return bricks[i].Step < bricks[j].Step })
	log.Debugf("Found %d brick files in %s", len(bricks), abs)
	return bricks, nil
}
