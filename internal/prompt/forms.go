package prompt

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fakeyudi/storyline/internal/config"
	"github.com/fakeyudi/storyline/internal/export"
)

// MinPasswordLength is the shortest password the register form accepts.
const MinPasswordLength = 6

var (
	ErrNameRequired      = errors.New("name is required")
	ErrEmailRequired     = errors.New("email is required")
	ErrPasswordRequired  = errors.New("password is required")
	ErrPasswordTooShort  = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrPasswordsMismatch = errors.New("passwords do not match")
)

// Registration is the register form.
type Registration struct {
	Name     string
	Email    string
	Password string
	Confirm  string
}

// Validate checks the form in field order and returns the first failure.
func (r Registration) Validate() error {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return ErrNameRequired
	case strings.TrimSpace(r.Email) == "":
		return ErrEmailRequired
	case r.Password == "":
		return ErrPasswordRequired
	case utf8.RuneCountInString(r.Password) < MinPasswordLength:
		return ErrPasswordTooShort
	case r.Password != r.Confirm:
		return ErrPasswordsMismatch
	}
	return nil
}

// Normalized returns the form with name and email trimmed.
func (r Registration) Normalized() Registration {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	return r
}

// AskRegistration fills the missing fields of r interactively.
func (p *Prompter) AskRegistration(r Registration) (Registration, error) {
	var err error
	if r.Name == "" {
		if r.Name, err = p.Ask("  Name", ""); err != nil {
			return r, err
		}
	}
	if r.Email == "" {
		if r.Email, err = p.Ask("  Email", ""); err != nil {
			return r, err
		}
	}
	if r.Password == "" {
		if r.Password, err = p.AskSecret("  Password"); err != nil {
			return r, err
		}
		if r.Confirm, err = p.AskSecret("  Confirm password"); err != nil {
			return r, err
		}
	}
	return r.Normalized(), nil
}

// AskLogin asks for whatever of email and password is missing.
func (p *Prompter) AskLogin(email, password string) (string, string, error) {
	var err error
	if email == "" {
		if email, err = p.Ask("  Email", ""); err != nil {
			return "", "", err
		}
	}
	if password == "" {
		if password, err = p.AskSecret("  Password"); err != nil {
			return "", "", err
		}
	}
	return strings.TrimSpace(email), password, nil
}

// RunSetup runs the interactive setup wizard. existing supplies the default
// for each prompt.
func (p *Prompter) RunSetup(existing config.Config) (config.Config, error) {
	cfg := existing

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "  ┌─────────────────────────────────┐")
	fmt.Fprintln(p.out, "  │     storyline setup             │")
	fmt.Fprintln(p.out, "  └─────────────────────────────────┘")
	fmt.Fprintln(p.out)

	var err error
	for {
		cfg.BackendURL, err = p.Ask("  Backend URL", cfg.BackendURL)
		if err != nil {
			return cfg, err
		}
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(p.out, "  ✗ %v\n", err)
			continue
		}
		break
	}

	useDerived := cfg.ChannelURL == ""
	useDerived, err = p.AskBool("  Use the backend address for the live channel", useDerived)
	if err != nil {
		return cfg, err
	}
	if useDerived {
		cfg.ChannelURL = ""
	} else if cfg.ChannelURL, err = p.Ask("  Live channel URL (ws:// or wss://)", cfg.ChannelURL); err != nil {
		return cfg, err
	}

	format, err := p.Ask("  Default export format (markdown/json)", cfg.DefaultFormat)
	if err != nil {
		return cfg, err
	}
	f, err := export.ParseFormat(format)
	if err != nil {
		f = export.FormatMarkdown
	}
	cfg.DefaultFormat = string(f)

	if cfg.OutputDir, err = p.Ask("  Default export directory", cfg.OutputDir); err != nil {
		return cfg, err
	}

	fmt.Fprintln(p.out)
	return cfg, nil
}
