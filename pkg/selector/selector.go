// Package selector asks the operator to pick one value out of a list.
package selector

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/pterm/pterm"
	"golang.org/x/term"
)

// ErrNoSelection is returned when the operator made no choice.
var ErrNoSelection = errors.New("no selection made")

// ErrNotAnOption is returned when a fixed answer is not among the options.
var ErrNotAnOption = errors.New("not an available option")

// Selector returns a single choice out of options.
type Selector interface {
	Select(prompt string, options []string) (string, error)
}

// Choose asks s for one of options. A single option is returned without
// asking.
func Choose(s Selector, prompt string, options []string) (string, error) {
	switch len(options) {
	case 0:
		return "", fmt.Errorf("%s: nothing to choose from", prompt)
	case 1:
		return options[0], nil
	}

	choice, err := s.Select(prompt, options)
	if err != nil {
		return "", fmt.Errorf("%s: %w", prompt, err)
	}
	if choice == "" {
		return "", fmt.Errorf("%s: %w", prompt, ErrNoSelection)
	}
	return choice, nil
}

// ErrNotTerminal is returned when a prompt is needed but there is no
// terminal to show it on.
var ErrNotTerminal = errors.New("cannot prompt without a terminal, pass the choice as a flag")

// stdoutMu serializes prompts while os.Stdout is redirected.
var stdoutMu sync.Mutex

// Interactive prompts on the terminal. The menu is drawn on standard error
// so standard output only carries the command's result.
type Interactive struct {
	MaxHeight int
	// Input is checked for a terminal before prompting. Defaults to os.Stdin.
	Input *os.File
}

func (i Interactive) Select(prompt string, options []string) (string, error) {
	input := i.Input
	if input == nil {
		input = os.Stdin
	}
	if !term.IsTerminal(int(input.Fd())) {
		return "", fmt.Errorf("%s: %w", prompt, ErrNotTerminal)
	}

	printer := pterm.DefaultInteractiveSelect.
		WithOptions(options).
		WithDefaultText(prompt)
	if i.MaxHeight > 0 {
		printer = printer.WithMaxHeight(i.MaxHeight)
	}

	// The select area writes to os.Stdout directly.
	stdoutMu.Lock()
	defer stdoutMu.Unlock()
	stdout := os.Stdout
	os.Stdout = os.Stderr
	defer func() { os.Stdout = stdout }()

	choice, err := printer.Show()
	if err != nil {
		return "", fmt.Errorf("interactive selection failed: %w", err)
	}
	return choice, nil
}

// Static answers with a value known up front, e.g. from a command line flag.
type Static struct {
	Value string
}

func (s Static) Select(prompt string, options []string) (string, error) {
	if s.Value == "" {
		return "", ErrNoSelection
	}
	if !slices.Contains(options, s.Value) {
		return "", fmt.Errorf("%w: %q is not one of %v", ErrNotAnOption, s.Value, options)
	}
	return s.Value, nil
}
