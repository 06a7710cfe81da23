// Package realprompt provides interactive credential prompts on the
// terminal.
package realprompt

import (
	"github.com/charmbracelet/huh"

	"github.com/acmattson3/mqtt-shell/internal/ports"
)

// Prompter implements ports.Prompter with huh forms.
type Prompter struct{}

// New returns a terminal prompter.
func New() *Prompter {
	return &Prompter{}
}

// Input asks for a single line of visible text.
func (p *Prompter) Input(title, description string) (string, error) {
	var value string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(title).
				Description(description).
				Value(&value),
		),
	)

	if err := form.Run(); err != nil {
		return "", err
	}
	return value, nil
}

// Password asks for a secret without echoing it.
func (p *Prompter) Password(title, description string) ([]byte, error) {
	var value string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(title).
				Description(description).
				EchoMode(huh.EchoModePassword).
				Value(&value),
		),
	)

	if err := form.Run(); err != nil {
		return nil, err
	}
	return []byte(value), nil
}

// Ensure Prompter implements ports.Prompter.
var _ ports.Prompter = (*Prompter)(nil)
