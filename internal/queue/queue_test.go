package queue

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeExecutable(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseSystem(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]System{"PBS": PBS, " slurm ": Slurm, "crane": Crane, "local": Local} {
		got, err := ParseSystem(in)
		if err != nil || got != want {
			t.Fatalf("ParseSystem(%q) = %q, %v, want %q", in, got, err, want)
		}
	}
	if _, err := ParseSystem("lsf"); !errors.Is(err, ErrUnknownSystem) {
		t.Fatalf("ParseSystem(lsf) error = %v, want ErrUnknownSystem", err)
	}
}

func TestSubmitParsesJobID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		system System
		output string
		want   string
	}{
		{name: "qsub", system: PBS, output: "4242.pbs01.cluster", want: "4242.pbs01.cluster"},
		{name: "sbatch", system: Slurm, output: "Submitted batch job 49229449", want: "49229449"},
		{name: "cbatch", system: Crane, output: "Job id allocated: 17.", want: "17"},
		{name: "unparseable", system: PBS, output: "queue is full", want: "queue is full"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			fake := writeExecutable(t, dir, "submit", "#!/bin/sh\necho '"+tt.output+"'\n")
			script := writeExecutable(t, dir, "job.sh", "#!/bin/sh\n")

			s, err := NewSubmitter(tt.system, "/bin/sh "+fake)
			if err != nil {
				t.Fatalf("NewSubmitter returned error: %v", err)
			}
			sub, err := s.Submit(context.Background(), script)
			if err != nil {
				t.Fatalf("Submit returned error: %v", err)
			}
			if sub.JobID != tt.want {
				t.Fatalf("JobID = %q, want %q", sub.JobID, tt.want)
			}
			if sub.Script != script || sub.System != tt.system {
				t.Fatalf("unexpected submission %+v", sub)
			}
		})
	}
}

func TestSubmitRunsInScriptDirectory(t *testing.T) {
	t.Parallel()

	tools := t.TempDir()
	run := t.TempDir()
	record := filepath.Join(run, "called")
	fake := writeExecutable(t, tools, "qsub", "#!/bin/sh\necho \"$PWD $*\" > "+record+"\necho 1.server\n")
	script := writeExecutable(t, run, "job.sh", "#!/bin/sh\n")

	s, err := NewSubmitter(PBS, "/bin/sh "+fake+" -V")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Submit(context.Background(), script); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	got, err := os.ReadFile(record)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := filepath.EvalSymlinks(run)
	line := strings.TrimSpace(string(got))
	if !strings.HasSuffix(line, " -V job.sh") {
		t.Fatalf("submit command called with %q, want args \"-V job.sh\"", line)
	}
	dir := strings.TrimSuffix(line, " -V job.sh")
	if resolved, _ := filepath.EvalSymlinks(dir); resolved != want {
		t.Fatalf("submit command ran in %q, want %q", dir, want)
	}
}

func TestSubmitFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fake := writeExecutable(t, dir, "qsub", "#!/bin/sh\necho 'qsub: Unknown queue' >&2\nexit 3\n")
	script := writeExecutable(t, dir, "job.sh", "#!/bin/sh\n")

	s, _ := NewSubmitter(PBS, "/bin/sh "+fake)
	_, err := s.Submit(context.Background(), script)
	if err == nil {
		t.Fatalf("Submit expected error")
	}
	if !strings.Contains(err.Error(), "Unknown queue") {
		t.Fatalf("Submit error %q does not carry stderr", err)
	}
}

func TestLocalSubmitterRunsScript(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	script := writeExecutable(t, dir, "job.sh", "#!/bin/sh\ntouch ran\n")

	s, err := NewSubmitter(Local, "")
	if err != nil {
		t.Fatal(err)
	}
	sub, err := s.Submit(context.Background(), script)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if sub.JobID != "local" {
		t.Fatalf("JobID = %q, want local", sub.JobID)
	}
	if _, err := os.Stat(filepath.Join(dir, "ran")); err != nil {
		t.Fatalf("local script did not run in its directory: %v", err)
	}
}

func TestDefaultCommand(t *testing.T) {
	t.Parallel()

	s, err := NewSubmitter(Slurm, "")
	if err != nil {
		t.Fatal(err)
	}
	if s.Command != "sbatch" || len(s.Args) != 0 {
		t.Fatalf("NewSubmitter(slurm) = %+v, want sbatch", s)
	}
	if _, err := NewSubmitter("lsf", ""); err == nil {
		t.Fatalf("NewSubmitter(lsf) expected error")
	}
}
