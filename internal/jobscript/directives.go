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

package jobscript

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Directive is one queue option found in the header of a job script.
type Directive struct {
	System string
	Name   string
	Value  string
}

// Script is a job script split into its interpreter, queue directives and
// the remaining shell lines.
type Script struct {
	Interpreter string
	Directives  []Directive
	Body        []string
}

// Lookup returns the value of the last directive named like one of names.
func (s *Script) Lookup(names ...string) (string, bool) {
	for i := len(s.Directives) - 1; i >= 0; i-- {
		for _, name := range names {
			if s.Directives[i].Name == name {
				return s.Directives[i].Value, true
			}
		}
	}
	return "", false
}

type lineProcessor interface {
	Process(line string, s *Script) error
}

// For PBS args. Resource lists given with -l are split into one directive
// per resource.
type pbsLineProcessor struct{}

func (p *pbsLineProcessor) Process(line string, s *Script) error {
	split := strings.Fields(line)
	switch len(split) {
	case 3:
	case 2:
		s.Directives = append(s.Directives, Directive{System: "pbs", Name: split[1]})
		return nil
	default:
		return errors.New("fields out of bound")
	}

	if split[1] != "-l" {
		s.Directives = append(s.Directives, Directive{System: "pbs", Name: split[1], Value: split[2]})
		return nil
	}
	for _, res := range strings.Split(split[2], ",") {
		name, val, _ := strings.Cut(res, "=")
		s.Directives = append(s.Directives, Directive{System: "pbs", Name: name, Value: val})
	}
	return nil
}

// For Slurm args, both "--opt=val" and "--opt val".
type slurmLineProcessor struct{}

func (p *slurmLineProcessor) Process(line string, s *Script) error {
	split := strings.Fields(line)
	switch len(split) {
	case 3:
		s.Directives = append(s.Directives, Directive{System: "slurm", Name: split[1], Value: split[2]})
	case 2:
		name, val, _ := strings.Cut(split[1], "=")
		s.Directives = append(s.Directives, Directive{System: "slurm", Name: name, Value: val})
	default:
		return errors.New("fields out of bound")
	}
	return nil
}

// For Crane args
type craneLineProcessor struct{}

func (p *craneLineProcessor) Process(line string, s *Script) error {
	split := strings.Fields(line)
	switch len(split) {
	case 3:
		s.Directives = append(s.Directives, Directive{System: "crane", Name: split[1], Value: split[2]})
	case 2:
		s.Directives = append(s.Directives, Directive{System: "crane", Name: split[1]})
	default:
		return errors.New("fields out of bound")
	}
	return nil
}

type bodyLineProcessor struct{}

func (p *bodyLineProcessor) Process(line string, s *Script) error {
	s.Body = append(s.Body, line)
	return nil
}

func processorFor(line string) lineProcessor {
	switch {
	case strings.HasPrefix(line, "#PBS"):
		return &pbsLineProcessor{}
	case strings.HasPrefix(line, "#SBATCH"):
		return &slurmLineProcessor{}
	case strings.HasPrefix(line, "#CBATCH"):
		return &craneLineProcessor{}
	default:
		return &bodyLineProcessor{}
	}
}

// ParseScript reads a job script written by Write, or by hand in the same
// dialects.
func ParseScript(r io.Reader) (*Script, error) {
	s := &Script{}
	scanner := bufio.NewScanner(r)
	num := 0
	for scanner.Scan() {
		num++
		line := scanner.Text()

		if num == 1 && strings.HasPrefix(line, "#!") {
			s.Interpreter = strings.TrimSpace(strings.TrimPrefix(line, "#!"))
			continue
		}
		if err := processorFor(line).Process(line, s); err != nil {
			return nil, fmt.Errorf("parsing error at line %d: %w", num, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read the script file: %w", err)
	}
	return s, nil
}
