// Package prompt asks the operator for input.
//
// Components never read stdin directly: they receive a Prompter, so scripted
// callers can answer the same questions without a terminal.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// Common prompt errors
var (
	ErrNoOptions      = errors.New("no options to choose from")
	ErrInvalidChoice  = errors.New("invalid selection")
	ErrNoMoreAnswers  = errors.New("no scripted answer available")
	ErrEmptyInput     = errors.New("input cannot be empty")
	ErrNonInteractive = errors.New("input required but prompting is disabled")
)

// Prompter asks the operator for input
type Prompter interface {
	// Choose presents options as a numbered menu and returns the zero-based index picked.
	Choose(label string, options []string) (int, error)
	// Input asks for a free-form value; def is returned for an empty answer.
	Input(label, def string) (string, error)
	// Secret asks for a value without echoing it.
	Secret(label string) (string, error)
}

// Terminal prompts on an interactive console
type Terminal struct {
	in       *bufio.Reader
	out      io.Writer
	fd       int
	maxTries int
}

// NewTerminalIO creates a prompter on arbitrary streams. fd is used to detect
// a terminal for Secret; pass -1 to always read secrets as plain lines.
func NewTerminalIO(in io.Reader, out io.Writer, fd int) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out, fd: fd, maxTries: 5}
}

// Choose re-prompts until the answer is an in-range integer
func (t *Terminal) Choose(label string, options []string) (int, error) {
	if len(options) == 0 {
		return 0, ErrNoOptions
	}

	for attempt := 0; attempt < t.maxTries; attempt++ {
		fmt.Fprintln(t.out, label)
		for i, opt := range options {
			fmt.Fprintf(t.out, "  %d) %s\n", i+1, opt)
		}
		fmt.Fprintf(t.out, "Select [1-%d]: ", len(options))

		line, err := t.readLine()
		if err != nil {
			return 0, err
		}
		idx, err := ParseChoice(line, len(options))
		if err == nil {
			return idx, nil
		}
		fmt.Fprintf(t.out, "%v\n", err)
	}
	return 0, fmt.Errorf("%w: too many attempts", ErrInvalidChoice)
}

// Input reads a single line
func (t *Terminal) Input(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(t.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(t.out, "%s: ", label)
	}
	line, err := t.readLine()
	if err != nil {
		return "", err
	}
	if line == "" {
		return def, nil
	}
	return line, nil
}

// Secret reads a value without echo when attached to a terminal
func (t *Terminal) Secret(label string) (string, error) {
	fmt.Fprintf(t.out, "%s: ", label)

	if t.fd >= 0 && term.IsTerminal(t.fd) {
		b, err := term.ReadPassword(t.fd)
		fmt.Fprintln(t.out) // New line after password input
		if err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}
		value := strings.TrimSpace(string(b))
		if value == "" {
			return "", ErrEmptyInput
		}
		return value, nil
	}

	line, err := t.readLine()
	if err != nil {
		return "", err
	}
	if line == "" {
		return "", ErrEmptyInput
	}
	return line, nil
}

func (t *Terminal) readLine() (string, error) {
	line, err := t.in.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		if err == io.EOF {
			return "", fmt.Errorf("reading input: %w", io.ErrUnexpectedEOF)
		}
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// ParseChoice converts a 1-based menu answer into a zero-based index
func ParseChoice(answer string, n int) (int, error) {
	i, err := strconv.Atoi(strings.TrimSpace(answer))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidChoice, answer)
	}
	if i < 1 || i > n {
		return 0, fmt.Errorf("%w: %d is out of range 1-%d", ErrInvalidChoice, i, n)
	}
	return i - 1, nil
}

// Scripted answers prompts from a fixed queue. Menu answers may be the
// 1-based number or the exact option text.
type Scripted struct {
	answers []string
	asked   []string
}

// NewScripted creates a prompter that replays answers in order
func NewScripted(answers ...string) *Scripted {
	return &Scripted{answers: answers}
}

// Asked returns the labels of every prompt issued so far
func (s *Scripted) Asked() []string {
	return s.asked
}

// Remaining returns the number of unused answers
func (s *Scripted) Remaining() int {
	return len(s.answers)
}

func (s *Scripted) next(label string) (string, error) {
	s.asked = append(s.asked, label)
	if len(s.answers) == 0 {
		return "", fmt.Errorf("%w for %q", ErrNoMoreAnswers, label)
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a, nil
}

// Choose consumes one answer
func (s *Scripted) Choose(label string, options []string) (int, error) {
	if len(options) == 0 {
		return 0, ErrNoOptions
	}
	a, err := s.next(label)
	if err != nil {
		return 0, err
	}
	for i, opt := range options {
		if opt == a {
			return i, nil
		}
	}
	return ParseChoice(a, len(options))
}

// Input consumes one answer; an empty answer selects def
func (s *Scripted) Input(label, def string) (string, error) {
	a, err := s.next(label)
	if err != nil {
		return "", err
	}
	if a == "" {
		return def, nil
	}
	return a, nil
}

// Secret consumes one answer
func (s *Scripted) Secret(label string) (string, error) {
	a, err := s.next(label)
	if err != nil {
		return "", err
	}
	if a == "" {
		return "", ErrEmptyInput
	}
	return a, nil
}
