package prompt

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// answersFile is the on-disk form of scripted answers:
//
//	answers:
//	  - "2"
//	  - https://example.org/app.zip
type answersFile struct {
	Answers []string `yaml:"answers"`
}

// LoadAnswers reads scripted answers from a YAML file
func LoadAnswers(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading answers file: %w", err)
	}

	var f answersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing answers file: %w", err)
	}
	return f.Answers, nil
}

// Chain answers from the scripted queue first and falls back to the
// terminal once it is exhausted.
type Chain struct {
	Scripted *Scripted
	Fallback Prompter
}

// Choose implements Prompter
func (c *Chain) Choose(label string, options []string) (int, error) {
	if c.Scripted.Remaining() > 0 {
		return c.Scripted.Choose(label, options)
	}
	return c.fallback().Choose(label, options)
}

// Input implements Prompter
func (c *Chain) Input(label, def string) (string, error) {
	if c.Scripted.Remaining() > 0 {
		return c.Scripted.Input(label, def)
	}
	return c.fallback().Input(label, def)
}

// Secret implements Prompter
func (c *Chain) Secret(label string) (string, error) {
	if c.Scripted.Remaining() > 0 {
		return c.Scripted.Secret(label)
	}
	return c.fallback().Secret(label)
}

func (c *Chain) fallback() Prompter {
	if c.Fallback == nil {
		return disabled{}
	}
	return c.Fallback
}

// disabled refuses every prompt
type disabled struct{}

func (disabled) Choose(label string, _ []string) (int, error) {
	return 0, fmt.Errorf("%w: %s", ErrNonInteractive, label)
}

func (disabled) Input(label, _ string) (string, error) {
	return "", fmt.Errorf("%w: %s", ErrNonInteractive, label)
}

func (disabled) Secret(label string) (string, error) {
	return "", fmt.Errorf("%w: %s", ErrNonInteractive, label)
}
