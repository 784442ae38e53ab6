package jobscript

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func haloSpec(system string) *Spec {
	return &Spec{
		System:        system,
		Name:          "HaloFinder",
		RunDir:        "/scratch/run",
		Executable:    "/opt/HaloMaker/f90/HaloFinder_BR",
		Nodes:         1,
		Ppn:           16,
		Walltime:      4 * time.Hour,
		LogFile:       "HaloFinder.log",
		StartedMarker: ".started",
		DoneMarker:    ".done",
		ExitCodeFile:  ".exitcode",
		ModuleCommand: "/usr/bin/modulecmd",
		Modules:       []string{"intel/15.0-python-3.5.1"},
	}
}

func render(t *testing.T, spec *Spec) string {
	t.Helper()
	var buf bytes.Buffer
	if err := Render(&buf, spec); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	return buf.String()
}

func TestRenderPBS(t *testing.T) {
	t.Parallel()

	want := `#!/bin/sh
#PBS -S /bin/sh
#PBS -N HaloFinder
#PBS -j oe
#PBS -l nodes=1:ppn=16,walltime=04:00:00

module () {
  eval $(/usr/bin/modulecmd bash $*)
}

DIR=/scratch/run
mkdir -p "$DIR"
cd "$DIR" || exit 1

touch .started
rm -f .done .exitcode
export OMP_NUM_THREADS=16
module purge
module load intel/15.0-python-3.5.1

/opt/HaloMaker/f90/HaloFinder_BR > HaloFinder.log 2>&1
status=$?
echo $status > .exitcode
touch .done
rm -f .started
exit $status
`
	if got := render(t, haloSpec("pbs")); got != want {
		t.Fatalf("Render(pbs) =\n%s\nwant\n%s", got, want)
	}
}

func TestRenderDirectives(t *testing.T) {
	t.Parallel()

	tests := []struct {
		system string
		want   []string
		absent []string
	}{
		{
			system: "slurm",
			want: []string{
				"#SBATCH --job-name=HaloFinder\n",
				"#SBATCH --cpus-per-task=16\n",
				"#SBATCH --time=1-02:00:00\n",
				"#SBATCH --partition=cosmo\n",
			},
			absent: []string{"#PBS", "#CBATCH", "--account"},
		},
		{
			system: "crane",
			want: []string{
				"#CBATCH --job-name HaloFinder\n",
				"#CBATCH --time 1-02:00:00\n",
				"#CBATCH --partition cosmo\n",
			},
			absent: []string{"#PBS", "#SBATCH"},
		},
		{
			system: "pbs",
			want: []string{
				"walltime=26:00:00\n",
				"#PBS -q cosmo\n",
			},
			absent: []string{"#SBATCH", "#CBATCH"},
		},
		{
			system: "local",
			want:   []string{"#!/bin/sh\n\nmodule () {"},
			absent: []string{"#PBS", "#SBATCH", "#CBATCH"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.system, func(t *testing.T) {
			t.Parallel()

			spec := haloSpec(tt.system)
			spec.Walltime = 26 * time.Hour
			spec.Partition = "cosmo"
			got := render(t, spec)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Fatalf("Render(%s) missing %q:\n%s", tt.system, w, got)
				}
			}
			for _, a := range tt.absent {
				if strings.Contains(got, a) {
					t.Fatalf("Render(%s) unexpectedly contains %q:\n%s", tt.system, a, got)
				}
			}
		})
	}
}

func TestRenderWithoutModules(t *testing.T) {
	t.Parallel()

	spec := haloSpec("pbs")
	spec.ModuleCommand = ""
	spec.Args = []string{"input file.dat"}
	got := render(t, spec)

	if strings.Contains(got, "module") {
		t.Fatalf("Render without module command mentions modules:\n%s", got)
	}
	if !strings.Contains(got, "export OMP_NUM_THREADS=16\n\n/opt/HaloMaker/f90/HaloFinder_BR 'input file.dat' > HaloFinder.log 2>&1\n") {
		t.Fatalf("Render did not quote arguments:\n%s", got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Spec)
	}{
		{name: "relative run dir", mutate: func(s *Spec) { s.RunDir = "run" }},
		{name: "no executable", mutate: func(s *Spec) { s.Executable = "" }},
		{name: "zero ppn", mutate: func(s *Spec) { s.Ppn = 0 }},
		{name: "zero nodes", mutate: func(s *Spec) { s.Nodes = 0 }},
		{name: "no walltime", mutate: func(s *Spec) { s.Walltime = 0 }},
		{name: "unknown system", mutate: func(s *Spec) { s.System = "lsf" }},
		{name: "no markers", mutate: func(s *Spec) { s.DoneMarker = "" }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			spec := haloSpec("pbs")
			tt.mutate(spec)
			if err := spec.Validate(); err == nil {
				t.Fatalf("Validate expected error")
			}
		})
	}
}

func TestWriteIsExecutable(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "job.sh")
	if err := Write(path, haloSpec("pbs")); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	st, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if st.Mode().Perm() != 0755 {
		t.Fatalf("job script mode = %v, want 0755", st.Mode().Perm())
	}
}

func TestShellQuote(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"/opt/bin/HaloFinder": "/opt/bin/HaloFinder",
		"with space":          "'with space'",
		"it's":                `'it'\''s'`,
		"":                    "''",
	}
	for in, want := range tests {
		if got := shellQuote(in); got != want {
			t.Fatalf("shellQuote(%q) = %q, want %q", in, got, want)
		}
	}
}
