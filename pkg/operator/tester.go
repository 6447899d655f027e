package operator

import (
	"fmt"
	"sync"
)

// Tester answers confirmations from a script and records every prompt it was given.
type Tester struct {
	mu      sync.Mutex
	answers []bool
	edit    func(string) string

	Prompts []string
	Edited  []string
}

var _ Operator = &Tester{}

func NewTester(answers ...bool) *Tester {
	return &Tester{answers: answers}
}

// WithEdit makes Edit return the result of f.
func (t *Tester) WithEdit(f func(string) string) *Tester {
	t.edit = f
	return t
}

func (t *Tester) Confirm(prompt string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Prompts = append(t.Prompts, prompt)

	if len(t.answers) == 0 {
		return false, fmt.Errorf("unexpected prompt: %s", prompt)
	}

	a := t.answers[0]
	t.answers = t.answers[1:]

	return a, nil
}

func (t *Tester) Edit(text string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Edited = append(t.Edited, text)

	if t.edit != nil {
		return t.edit(text), nil
	}
	return text, nil
}
