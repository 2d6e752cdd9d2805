package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	authclient "github.com/goliatone/go-auth-client"
)

// Prompter asks the user for the local form fields that were not given
// as flags.
type Prompter interface {
	Credentials(mode authclient.FormMode, form authclient.LocalForm) (authclient.LocalForm, error)
}

// FormPrompter prompts with huh forms.
type FormPrompter struct{}

func required(label string) func(string) error {
	return func(v string) error {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%s is required", label)
		}
		return nil
	}
}

// Credentials implements Prompter.
func (FormPrompter) Credentials(mode authclient.FormMode, form authclient.LocalForm) (authclient.LocalForm, error) {
	if !IsInteractive() {
		return form, nil
	}

	var fields []huh.Field

	if mode == authclient.ModeRegister && form.Name == "" {
		fields = append(fields, huh.NewInput().
			Title("Name").
			Value(&form.Name).
			Validate(required("name")))
	}

	if form.Email == "" {
		fields = append(fields, huh.NewInput().
			Title("Email").
			Placeholder("you@example.com").
			Value(&form.Email).
			Validate(required("email")))
	}

	if form.Password == "" {
		fields = append(fields, huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&form.Password).
			Validate(required("password")))
	}

	if len(fields) == 0 {
		return form, nil
	}

	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return form, fmt.Errorf("prompt failed: %w", err)
	}

	return form, nil
}

// IsInteractive returns true if stdin is a terminal (not piped)
func IsInteractive() bool {
	fileInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
