package jobstate

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRecordRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	want := Record{
		Stage:       "HaloFinder",
		System:      "pbs",
		JobID:       "4242.pbs01",
		Script:      filepath.Join(dir, "job.sh"),
		SubmittedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := WriteRecord(dir, HaloFinder, want); err != nil {
		t.Fatalf("WriteRecord returned error: %v", err)
	}
	got, err := ReadRecord(dir, HaloFinder)
	if err != nil {
		t.Fatalf("ReadRecord returned error: %v", err)
	}
	if !got.SubmittedAt.Equal(want.SubmittedAt) {
		t.Fatalf("SubmittedAt = %v, want %v", got.SubmittedAt, want.SubmittedAt)
	}
	got.SubmittedAt = want.SubmittedAt
	if *got != want {
		t.Fatalf("ReadRecord = %+v, want %+v", *got, want)
	}
}

func TestReadRecordRejectsGarbage(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, HaloFinder.Record), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadRecord(dir, HaloFinder); err == nil {
		t.Fatalf("ReadRecord expected error")
	}
}

func TestInspect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		files  []string
		exit   string
		record bool
		want   State
	}{
		{name: "empty", want: Unprepared},
		{name: "inputs only", files: []string{"inputfiles_HaloMaker.dat", "input_HaloMaker.dat"}, want: Unprepared},
		{name: "prepared", files: []string{"inputfiles_HaloMaker.dat", "input_HaloMaker.dat", "job.sh"}, want: Prepared},
		{name: "submitted", files: []string{"job.sh"}, record: true, want: Submitted},
		{name: "running", files: []string{".started"}, record: true, want: Running},
		{name: "done", files: []string{".done"}, exit: "0\n", want: Done},
		{name: "done without exit code", files: []string{".done"}, want: Done},
		{name: "failed", files: []string{".done"}, exit: "137\n", want: Failed},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			touch(t, dir, tt.files...)
			if tt.exit != "" {
				if err := os.WriteFile(filepath.Join(dir, HaloFinder.Exit), []byte(tt.exit), 0644); err != nil {
					t.Fatal(err)
				}
			}
			if tt.record {
				if err := WriteRecord(dir, HaloFinder, Record{Stage: "HaloFinder", System: "pbs", JobID: "1"}); err != nil {
					t.Fatal(err)
				}
			}

			got, err := Inspect(dir, HaloFinder)
			if err != nil {
				t.Fatalf("Inspect returned error: %v", err)
			}
			if got.State != tt.want {
				t.Fatalf("Inspect state = %s, want %s", got.State, tt.want)
			}
		})
	}
}

func TestInspectStagesAreIndependent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touch(t, dir, HaloFinder.Done, HaloFinder.Exit)

	got, err := Inspect(dir, TreeMaker)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != Unprepared {
		t.Fatalf("TreeMaker state = %s, want %s", got.State, Unprepared)
	}
}

func TestStageByName(t *testing.T) {
	t.Parallel()

	if s, err := StageByName("tree"); err != nil || s.Name != "TreeMaker" {
		t.Fatalf("StageByName(tree) = %v, %v", s.Name, err)
	}
	if _, err := StageByName("galaxy"); err == nil {
		t.Fatalf("StageByName(galaxy) expected error")
	}
}

func TestFollowWithoutFollowing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, HaloFinder.Log), []byte("step 1\nstep 2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := Follow(context.Background(), dir, HaloFinder, &buf, false); err != nil {
		t.Fatalf("Follow returned error: %v", err)
	}
	if buf.String() != "step 1\nstep 2\n" {
		t.Fatalf("Follow wrote %q", buf.String())
	}
}

func TestFollowStopsAtDoneMarker(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, HaloFinder.Log), []byte("finished\n"), 0644); err != nil {
		t.Fatal(err)
	}
	touch(t, dir, HaloFinder.Done)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	var buf bytes.Buffer
	if err := Follow(ctx, dir, HaloFinder, &buf, true); err != nil {
		t.Fatalf("Follow returned error: %v", err)
	}
	if ctx.Err() != nil {
		t.Fatalf("Follow did not return before the timeout")
	}
	if buf.String() != "finished\n" {
		t.Fatalf("Follow wrote %q", buf.String())
	}
}
