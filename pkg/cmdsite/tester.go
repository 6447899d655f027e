package cmdsite

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

type CommandInput struct {
	Name string
	Args string
	Env  string
}

type CommandOutput struct {
	Stdout string
	Stderr string

	// ExitCode, when non-zero, makes the command fail with an ExitError.
	ExitCode int
}

func NewInput(name string, args []string, env map[string]string) CommandInput {
	envs := []string{}
	for k, v := range env {
		envs = append(envs, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(envs)
	input := CommandInput{
		Name: name,
		Args: strings.Join(args, ","),
		Env:  strings.Join(envs, ","),
	}
	return input
}

// Tester is a scripted RunCommand. Each expectation may be given several
// outputs, consumed in order; the last one repeats.
type Tester struct {
	mu           sync.Mutex
	expectations map[CommandInput][]CommandOutput
	calls        []CommandInput
}

func NewTester(expectations map[CommandInput]CommandOutput) RunCommand {
	return NewSequenceTester(nil).With(expectations).Run
}

func NewSequenceTester(expectations map[CommandInput][]CommandOutput) *Tester {
	t := &Tester{expectations: map[CommandInput][]CommandOutput{}}
	for k, v := range expectations {
		t.expectations[k] = append([]CommandOutput{}, v...)
	}
	return t
}

func (t *Tester) With(expectations map[CommandInput]CommandOutput) *Tester {
	for k, v := range expectations {
		t.expectations[k] = []CommandOutput{v}
	}
	return t
}

// Calls returns the inputs of every command run so far, in order.
func (t *Tester) Calls() []CommandInput {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]CommandInput{}, t.calls...)
}

func (t *Tester) Run(name string, args []string, stdout, stderr io.Writer, env map[string]string) error {
	input := NewInput(name, args, env)

	t.mu.Lock()
	t.calls = append(t.calls, input)
	outputs, ok := t.expectations[input]
	var output CommandOutput
	if ok && len(outputs) > 0 {
		output = outputs[0]
		if len(outputs) > 1 {
			t.expectations[input] = outputs[1:]
		}
	}
	t.mu.Unlock()

	if !ok {
		return fmt.Errorf("unexpected input: %v", input)
	}

	n, err := io.WriteString(stdout, output.Stdout)
	if err != nil {
		return err
	}

	if n != len(output.Stdout) {
		return fmt.Errorf("insufficient write stdout: wrote only %d of %d", n, len(output.Stdout))
	}

	n2, err := io.WriteString(stderr, output.Stderr)
	if err != nil {
		return err
	}

	if n2 != len(output.Stderr) {
		return fmt.Errorf("insufficient write to stderr: wrote only %d of %d", n2, len(output.Stderr))
	}

	if output.ExitCode != 0 {
		return &ExitError{Name: name, Args: args, ExitCode: output.ExitCode, Stderr: output.Stderr}
	}

	return nil
}
