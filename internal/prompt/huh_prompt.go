package prompt

import (
	"errors"
	"strings"

	"github.com/charmbracelet/huh"
)

// ErrAborted is returned when the user cancels a prompt with ctrl+c or esc.
var ErrAborted = errors.New("prompt cancelled")

// HuhPrompter implements Prompter with charmbracelet/huh forms.
type HuhPrompter struct {
	theme *huh.Theme
}

// NewHuhPrompter creates a new huh-based prompter.
func NewHuhPrompter() *HuhPrompter {
	return &HuhPrompter{theme: huh.ThemeBase()}
}

func (p *HuhPrompter) Select(title string, options []Option) (string, error) {
	if len(options) == 0 {
		return "", errors.New("nothing to choose from")
	}

	choices := make([]huh.Option[string], 0, len(options))
	for _, opt := range options {
		choices = append(choices, huh.NewOption(opt.Label, opt.Value))
	}

	value := options[0].Value
	field := huh.NewSelect[string]().Title(title).Options(choices...).Value(&value)
	return value, p.run(field)
}

// Input asks for a value; blank answers are refused.
func (p *HuhPrompter) Input(title string, defaultValue string) (string, error) {
	value := defaultValue
	field := huh.NewInput().
		Title(title).
		Value(&value).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("a value is required")
			}
			return nil
		})
	if err := p.run(field); err != nil {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

func (p *HuhPrompter) Confirm(title string, defaultValue bool) (bool, error) {
	value := defaultValue
	field := huh.NewConfirm().Title(title).Value(&value)
	return value, p.run(field)
}

func (p *HuhPrompter) run(field huh.Field) error {
	err := huh.NewForm(huh.NewGroup(field)).WithTheme(p.theme).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrAborted
	}
	return err
}
