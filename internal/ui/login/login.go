// Package login asks for a session token on first run.
package login

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/nhle/taskboard/internal/session"
)

// Prompt runs a one-field form collecting a bearer token for serverURL.
// The token is checked locally for a user id before it is accepted.
func Prompt(serverURL, reason string) (string, error) {
	var token string
	description := fmt.Sprintf("Paste the bearer token issued by %s", serverURL)
	if reason != "" {
		description = reason + "\n" + description
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Session token").
				Description(description).
				Placeholder("eyJhbGciOi...").
				EchoMode(huh.EchoModePassword).
				Value(&token).
				Validate(ValidateToken),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", session.ErrNoToken
		}
		return "", fmt.Errorf("reading token: %w", err)
	}
	return strings.TrimSpace(token), nil
}

// ValidateToken rejects tokens that carry no identity or have expired.
func ValidateToken(token string) error {
	s, err := session.New(token)
	if err != nil {
		return err
	}
	if s.Expired(time.Now()) {
		return errors.New("token has expired")
	}
	return nil
}
