package jobscript

import (
	"strings"
	"testing"
)

func TestParseScriptRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		system string
		want   map[string]string
	}{
		{"pbs", map[string]string{"-N": "HaloFinder", "walltime": "04:00:00", "nodes": "1:ppn=16", "-j": "oe"}},
		{"slurm", map[string]string{"--job-name": "HaloFinder", "--time": "04:00:00", "--cpus-per-task": "16"}},
		{"crane", map[string]string{"--job-name": "HaloFinder", "--time": "04:00:00", "--nodes": "1"}},
		{"local", map[string]string{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.system, func(t *testing.T) {
			t.Parallel()

			s, err := ParseScript(strings.NewReader(render(t, haloSpec(tt.system))))
			if err != nil {
				t.Fatalf("ParseScript returned error: %v", err)
			}
			if s.Interpreter != "/bin/sh" {
				t.Fatalf("Interpreter = %q, want /bin/sh", s.Interpreter)
			}
			if tt.system == "local" && len(s.Directives) != 0 {
				t.Fatalf("local script has directives: %+v", s.Directives)
			}
			for name, want := range tt.want {
				if got, ok := s.Lookup(name); !ok || got != want {
					t.Fatalf("Lookup(%q) = %q, %v, want %q", name, got, ok, want)
				}
			}
			for _, d := range s.Directives {
				if d.System != tt.system {
					t.Fatalf("directive %+v attributed to the wrong system", d)
				}
			}
			if !strings.Contains(strings.Join(s.Body, "\n"), "HaloFinder_BR > HaloFinder.log") {
				t.Fatalf("body lost the run line: %q", s.Body)
			}
		})
	}
}

func TestParseScriptLastDirectiveWins(t *testing.T) {
	t.Parallel()

	script := "#!/bin/bash\n#SBATCH -t 1:00:00\n#SBATCH --time=2:00:00\necho hi\n"
	s, err := ParseScript(strings.NewReader(script))
	if err != nil {
		t.Fatalf("ParseScript returned error: %v", err)
	}
	if got, _ := s.Lookup("-t", "--time"); got != "2:00:00" {
		t.Fatalf("Lookup(-t, --time) = %q, want 2:00:00", got)
	}
	if _, ok := s.Lookup("--partition"); ok {
		t.Fatalf("Lookup found a directive that is not there")
	}
}

func TestParseScriptRejectsMalformedDirective(t *testing.T) {
	t.Parallel()

	_, err := ParseScript(strings.NewReader("#!/bin/sh\n#CBATCH --time 1:00:00 extra\n"))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("ParseScript error = %v, want a parsing error at line 2", err)
	}
}
