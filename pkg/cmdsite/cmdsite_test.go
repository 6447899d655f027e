package cmdsite

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCaptureStrings(t *testing.T) {
	tester := NewSequenceTester(map[CommandInput][]CommandOutput{
		NewInput("git", []string{"describe", "--abbrev=0"}, nil): {
			{Stdout: "v2.13.4\n"},
		},
		NewInput("gpg", []string{"--armor", "-b", "f"}, nil): {
			{Stderr: "no secret key", ExitCode: 2},
			{},
		},
	})

	site := New(RunCmd(tester.Run))

	stdout, _, err := site.CaptureStrings("git", []string{"describe", "--abbrev=0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stdout != "v2.13.4\n" {
		t.Errorf("unexpected stdout: expected=%q, got=%q", "v2.13.4\n", stdout)
	}

	_, stderr, err := site.CaptureStrings("gpg", []string{"--armor", "-b", "f"})
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("unexpected error: expected=ExitError, got=%v", err)
	}
	if exitErr.ExitCode != 2 || stderr != "no secret key" {
		t.Errorf("unexpected failure: code=%d, stderr=%q", exitErr.ExitCode, stderr)
	}
	if exitErr.Error() != "'gpg --armor -b f' returned 2: no secret key" {
		t.Errorf("unexpected message: %s", exitErr.Error())
	}

	if _, _, err := site.CaptureStrings("gpg", []string{"--armor", "-b", "f"}); err != nil {
		t.Errorf("unexpected error on retry: %v", err)
	}

	if _, _, err := site.CaptureStrings("rsync", nil); err == nil {
		t.Errorf("expected error for unexpected command")
	}

	expected := []CommandInput{
		{Name: "git", Args: "describe,--abbrev=0"},
		{Name: "gpg", Args: "--armor,-b,f"},
		{Name: "gpg", Args: "--armor,-b,f"},
		{Name: "rsync"},
	}
	if diff := cmp.Diff(expected, tester.Calls()); diff != "" {
		t.Errorf("unexpected calls: %s", diff)
	}
}
