package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"HaloFrontEnd/internal/jobstate"
	"HaloFrontEnd/internal/queue"
	"HaloFrontEnd/internal/util"
)

type fakeSubmitter struct {
	scripts []string
	err     error
}

func (f *fakeSubmitter) Submit(_ context.Context, script string) (*queue.Submission, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.scripts = append(f.scripts, script)
	return &queue.Submission{System: queue.PBS, JobID: "99.server", Script: script, SubmittedAt: time.Now()}, nil
}

func queueConfig() util.QueueConfig {
	return util.QueueConfig{System: "pbs", Nodes: 1, Ppn: 8, Walltime: "2:00:00"}
}

func countingWriter(path string, calls *int) FileWriter {
	return FileWriter{Path: path, Write: func() error {
		*calls++
		return os.WriteFile(path, []byte("x"), 0644)
	}}
}

func TestJobSpec(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	spec, err := JobSpec(jobstate.TreeMaker, dir, "/opt/TreeMaker/TreeMaker", queueConfig())
	if err != nil {
		t.Fatalf("JobSpec returned error: %v", err)
	}
	if spec.Name != "TreeMaker" || spec.Ppn != 8 || spec.Walltime != 2*time.Hour {
		t.Fatalf("unexpected spec %+v", spec)
	}
	if spec.LogFile != "TreeMaker.log" || spec.DoneMarker != ".done_TreeMaker" || spec.ExitCodeFile != ".exitcode_TreeMaker" {
		t.Fatalf("stage files not applied: %+v", spec)
	}
	if err := spec.Validate(); err != nil {
		t.Fatalf("JobSpec produced an invalid spec: %v", err)
	}
}

func TestResolvePpnFallsBackToHostCores(t *testing.T) {
	t.Parallel()

	q := queueConfig()
	q.Ppn = 0
	n, err := ResolvePpn(q)
	if err != nil {
		t.Fatalf("ResolvePpn returned error: %v", err)
	}
	if n < 1 {
		t.Fatalf("ResolvePpn = %d, want at least 1", n)
	}
}

func TestSubmitKeepsExistingFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var inputCalls, scriptCalls int
	input := filepath.Join(dir, "input_HaloMaker.dat")
	if err := os.WriteFile(input, []byte("edited by hand"), 0644); err != nil {
		t.Fatal(err)
	}
	writers := []FileWriter{
		countingWriter(input, &inputCalls),
		countingWriter(filepath.Join(dir, jobstate.HaloFinder.Script), &scriptCalls),
	}

	sub := &fakeSubmitter{}
	got, err := Submit(context.Background(), dir, jobstate.HaloFinder, writers, sub, true)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if inputCalls != 0 || scriptCalls != 1 {
		t.Fatalf("writers called %d/%d times, want 0/1", inputCalls, scriptCalls)
	}
	if got.JobID != "99.server" || len(sub.scripts) != 1 || sub.scripts[0] != filepath.Join(dir, "job.sh") {
		t.Fatalf("unexpected submission %+v, scripts %v", got, sub.scripts)
	}

	rec, err := jobstate.ReadRecord(dir, jobstate.HaloFinder)
	if err != nil {
		t.Fatalf("submission not recorded: %v", err)
	}
	if rec.JobID != "99.server" || rec.System != "pbs" {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestSubmitRewritesByDefault(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var calls int
	input := filepath.Join(dir, "input_HaloMaker.dat")
	if err := os.WriteFile(input, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Submit(context.Background(), dir, jobstate.HaloFinder,
		[]FileWriter{countingWriter(input, &calls)}, &fakeSubmitter{}, false)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("writer called %d times, want 1", calls)
	}
}

func TestSubmitFailureLeavesNoRecord(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := Submit(context.Background(), dir, jobstate.HaloFinder, nil, &fakeSubmitter{err: errors.New("qsub down")}, false)
	if err == nil {
		t.Fatalf("Submit expected error")
	}
	if _, err := os.Stat(filepath.Join(dir, jobstate.HaloFinder.Record)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("job record written for a failed submission: %v", err)
	}
}

func TestPrepareStopsOnWriterError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	boom := errors.New("disk full")
	err := Prepare(dir, []FileWriter{{Path: filepath.Join(dir, "a"), Write: func() error { return boom }}})
	if !errors.Is(err, boom) {
		t.Fatalf("Prepare error = %v, want %v", err, boom)
	}
}

func TestRunDirLockIsExclusive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	lock, err := util.LockRunDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Unlock()

	if err := Prepare(dir, nil); err == nil {
		t.Fatalf("Prepare succeeded on a locked run directory")
	}
}
