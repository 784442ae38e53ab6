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

// Package snapshot discovers the numbered output folders of a simulation.
package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	logrus "github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "Snapshot")

var (
	ErrNoOutputs    = errors.New("no simulation outputs found")
	ErrInvalidRange = errors.New("first output index is after the last one")
)

var infoRe = regexp.MustCompile(`info_(\d{5})\.txt$`)

// Output is one output_NNNNN folder of a simulation.
type Output struct {
	Index    int
	Dir      string
	InfoPath string
}

// Range bounds the output indices to keep. A nil bound means the smallest
// (First) or largest (Last) index found on disk.
type Range struct {
	First *int
	Last  *int
}

func IntPtr(i int) *int {
	return &i
}

func (r Range) String() string {
	bound := func(p *int) string {
		if p == nil {
			return "*"
		}
		return strconv.Itoa(*p)
	}
	return fmt.Sprintf("[%s, %s]", bound(r.First), bound(r.Last))
}

// Discover lists the output folders of the simulation in folder whose index
// falls in r, sorted by index.
func Discover(folder string, r Range) ([]Output, error) {
	if !filepath.IsAbs(folder) {
		before := folder
		abs, err := filepath.Abs(folder)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", folder, err)
		}
		folder = abs
		log.Warnf("Changed folder from relative %s to absolute %s", before, folder)
	}

	matches, err := filepath.Glob(filepath.Join(folder, "output_?????"))
	if err != nil {
		return nil, err
	}

	candidates := make([]Output, 0, len(matches))
	for _, m := range matches {
		st, err := os.Stat(m)
		if err != nil || !st.IsDir() {
			continue
		}
		idx, err := outputIndex(m)
		if err != nil {
			log.Debugf("Skipping %s: %v", m, err)
			continue
		}
		candidates = append(candidates, Output{
			Index:    idx,
			Dir:      m,
			InfoPath: filepath.Join(m, InfoFileName(idx)),
		})
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoOutputs, folder)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Index < candidates[j].Index })

	first := candidates[0].Index
	last := candidates[len(candidates)-1].Index
	if r.First != nil {
		first = *r.First
	}
	if r.Last != nil {
		last = *r.Last
	}
	if first > last {
		return nil, fmt.Errorf("%w: %d > %d", ErrInvalidRange, first, last)
	}

	outputs := make([]Output, 0, len(candidates))
	for _, c := range candidates {
		if c.Index < first || c.Index > last {
			continue
		}
		if _, err := os.Stat(c.InfoPath); err != nil {
			log.Warnf("Skipping %s: no readable %s", c.Dir, filepath.Base(c.InfoPath))
			continue
		}
		outputs = append(outputs, c)
	}

	log.Debugf("Detected %d outputs", len(outputs))
	if len(outputs) == 0 {
		return nil, fmt.Errorf("%w in %s within %s", ErrNoOutputs, folder, r)
	}
	return outputs, nil
}

func InfoFileName(index int) string {
	return fmt.Sprintf("info_%05d.txt", index)
}

func OutputDirName(index int) string {
	return fmt.Sprintf("output_%05d", index)
}

// ParseInfoIndex extracts NNNNN from a path ending in info_NNNNN.txt.
func ParseInfoIndex(path string) (int, error) {
	m := infoRe.FindStringSubmatch(path)
	if m == nil {
		return 0, fmt.Errorf("%s is not an info_NNNNN.txt file", path)
	}
	return strconv.Atoi(m[1])
}

func outputIndex(dir string) (int, error) {
	base := filepath.Base(dir)
	return strconv.Atoi(base[strings.LastIndex(base, "_")+1:])
}

func InfoPaths(outputs []Output) []string {
	paths := make([]string, len(outputs))
	for i, o := range outputs {
		paths[i] = o.InfoPath
	}
	return paths
}
