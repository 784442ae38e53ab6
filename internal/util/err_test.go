package util

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/spf13/cobra"
)

func TestHaloError(t *testing.T) {
	t.Parallel()

	base := fmt.Errorf("open input: %w", os.ErrNotExist)
	tests := []struct {
		err      error
		wantCode HaloCmdError
		wantMsg  string
	}{
		{nil, ErrorSuccess, ""},
		{errors.New("boom"), ErrorGeneric, "boom"},
		{NewHaloErr(ErrorCmdArg, "bad flag"), ErrorCmdArg, "bad flag"},
		{WrapHaloErr(ErrorDataset, "failed to load", base), ErrorDataset, "failed to load: open input: file does not exist"},
		{WrapHaloErr(ErrorLink, "", base), ErrorLink, "open input: file does not exist"},
		{fmt.Errorf("outer: %w", NewHaloErr(ErrorSubmit, "qsub failed")), ErrorSubmit, "outer: qsub failed"},
		{&HaloError{Code: ErrorStatus}, ErrorStatus, "exit code 9"},
	}

	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.wantCode {
			t.Fatalf("ExitCode(%v) = %d, want %d", tt.err, got, tt.wantCode)
		}
		if tt.err != nil && tt.err.Error() != tt.wantMsg {
			t.Fatalf("Error() = %q, want %q", tt.err.Error(), tt.wantMsg)
		}
	}

	if !errors.Is(WrapHaloErr(ErrorDataset, "x", base), os.ErrNotExist) {
		t.Fatalf("HaloError does not unwrap to its cause")
	}
}

func TestRunEWrapperForLeafCommand(t *testing.T) {
	t.Parallel()

	root := &cobra.Command{Use: "root"}
	group := &cobra.Command{Use: "group"}
	leaf := &cobra.Command{Use: "leaf", RunE: func(*cobra.Command, []string) error { return nil }}
	group.AddCommand(leaf)
	root.AddCommand(group)

	RunEWrapperForLeafCommand(root)
	if !root.SilenceErrors || !leaf.SilenceErrors || !leaf.SilenceUsage {
		t.Fatalf("leaf and root should be silenced")
	}
	if root.SilenceUsage {
		t.Fatalf("root usage should still be printed")
	}
}
