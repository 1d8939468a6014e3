package cli

import (
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/goliatone/go-errors"
)

// prompter asks for a missing value on the terminal
type prompter interface {
	Ask(title string, secret bool, value *string) error
}

type formPrompter struct{}

func (formPrompter) Ask(title string, secret bool, value *string) error {
	input := huh.NewInput().
		Title(title).
		Value(value).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New(title+" is required", errors.CategoryValidation)
			}
			return nil
		})
	if secret {
		input = input.EchoMode(huh.EchoModePassword)
	}

	if err := huh.NewForm(huh.NewGroup(input)).Run(); err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "prompt failed")
	}
	return nil
}

// askMissing prompts for each field whose value is still empty
func askMissing(p prompter, fields ...promptField) error {
	for _, f := range fields {
		if *f.value != "" {
			continue
		}
		if err := p.Ask(f.title, f.secret, f.value); err != nil {
			return err
		}
	}
	return nil
}

type promptField struct {
	title  string
	secret bool
	value  *string
}
