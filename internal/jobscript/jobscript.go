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

// Package jobscript renders the batch script that runs one external binary
// inside a run directory.
package jobscript

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"HaloFrontEnd/internal/util"
)

// Spec describes the job. RunDir must be absolute: the queue starts the
// script in the user's home directory, not where it was submitted from.
type Spec struct {
	System string

	Name       string
	RunDir     string
	Executable string
	Args       []string

	Nodes     int
	Ppn       int
	Walltime  time.Duration
	Partition string
	Account   string

	LogFile       string
	StartedMarker string
	DoneMarker    string
	ExitCodeFile  string

	ModuleCommand string
	Modules       []string
}

func (s *Spec) Validate() error {
	if s.Name == "" {
		return errors.New("job name is empty")
	}
	if !filepath.IsAbs(s.RunDir) {
		return fmt.Errorf("run directory %q is not absolute", s.RunDir)
	}
	if s.Executable == "" {
		return errors.New("executable is empty")
	}
	if s.Nodes < 1 {
		return fmt.Errorf("nodes must be at least 1, got %d", s.Nodes)
	}
	if s.Ppn < 1 {
		return fmt.Errorf("ppn must be at least 1, got %d", s.Ppn)
	}
	if s.Walltime <= 0 && s.System != "local" {
		return errors.New("walltime must be positive")
	}
	if s.LogFile == "" || s.StartedMarker == "" || s.DoneMarker == "" || s.ExitCodeFile == "" {
		return errors.New("log file and marker names are required")
	}
	if _, ok := directives[s.System]; !ok {
		return fmt.Errorf("unknown queue system %q", s.System)
	}
	return nil
}

var directives = map[string]string{
	"pbs": `#PBS -S /bin/sh
#PBS -N {{.Name}}
#PBS -j oe
#PBS -l nodes={{.Nodes}}:ppn={{.Ppn}},walltime={{walltime .Walltime false}}
{{- if .Partition}}
#PBS -q {{.Partition}}
{{- end}}
{{- if .Account}}
#PBS -A {{.Account}}
{{- end}}
`,
	"slurm": `#SBATCH --job-name={{.Name}}
#SBATCH --nodes={{.Nodes}}
#SBATCH --ntasks-per-node=1
#SBATCH --cpus-per-task={{.Ppn}}
#SBATCH --time={{walltime .Walltime true}}
#SBATCH --output={{.RunDir}}/{{.Name}}.o%j
{{- if .Partition}}
#SBATCH --partition={{.Partition}}
{{- end}}
{{- if .Account}}
#SBATCH --account={{.Account}}
{{- end}}
`,
	"crane": `#CBATCH --job-name {{.Name}}
#CBATCH --nodes {{.Nodes}}
#CBATCH --ntasks-per-node 1
#CBATCH --cpus-per-task {{.Ppn}}
#CBATCH --time {{walltime .Walltime true}}
#CBATCH --output {{.RunDir}}/{{.Name}}.o%j
{{- if .Partition}}
#CBATCH --partition {{.Partition}}
{{- end}}
{{- if .Account}}
#CBATCH --account {{.Account}}
{{- end}}
`,
	"local": "",
}

const body = `{{if .ModuleCommand}}
module () {
  eval $({{.ModuleCommand}} bash $*)
}
{{end}}
DIR={{quote .RunDir}}
mkdir -p "$DIR"
cd "$DIR" || exit 1

touch {{.StartedMarker}}
rm -f {{.DoneMarker}} {{.ExitCodeFile}}
export OMP_NUM_THREADS={{.Ppn}}
{{- if and .ModuleCommand .Modules}}
module purge
{{- range .Modules}}
module load {{.}}
{{- end}}
{{- end}}

{{quote .Executable}}{{range .Args}} {{quote .}}{{end}} > {{.LogFile}} 2>&1
status=$?
echo $status > {{.ExitCodeFile}}
touch {{.DoneMarker}}
rm -f {{.StartedMarker}}
exit $status
`

var funcs = template.FuncMap{
	"walltime": util.FormatWalltime,
	"quote":    shellQuote,
}

var templates = func() map[string]*template.Template {
	m := make(map[string]*template.Template, len(directives))
	for system, header := range directives {
		src := "#!/bin/sh\n" + header + body
		m[system] = template.Must(template.New(system).Funcs(funcs).Parse(src))
	}
	return m
}()

func Render(w io.Writer, spec *Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	return templates[spec.System].Execute(w, spec)
}

// Write renders spec to path with the executable bit set.
func Write(path string, spec *Spec) error {
	var buf bytes.Buffer
	if err := Render(&buf, spec); err != nil {
		return err
	}
	return util.WriteFileAtomic(path, buf.Bytes(), 0755)
}

// shellQuote leaves plain paths untouched and single-quotes anything else.
func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, needsQuoting) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuoting(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case strings.ContainsRune("/._-+=:,@%", r):
		return false
	}
	return true
}
