package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Session is the cached identity under ~/.artislife. Tier is the membership
// tier as of the last server response that reported it; the ledger endpoint
// stays authoritative.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Email        string    `json:"email"`
	UserID       string    `json:"user_id"`
	Tier         string    `json:"tier,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
}

func baseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".artislife")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

func sessionPath() (string, error) {
	dir, err := baseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "session.json"), nil
}

func SaveSession(s Session) error {
	path, err := sessionPath()
	if err != nil {
		return err
	}
	s.SavedAt = time.Now().UTC()
	body, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, body, 0o600)
}

func LoadSession() (Session, error) {
	path, err := sessionPath()
	if err != nil {
		return Session{}, err
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(body, &s); err != nil {
		return Session{}, err
	}
	if strings.TrimSpace(s.AccessToken) == "" {
		return Session{}, errors.New("no access token found in session")
	}
	return s, nil
}

// RequireSession loads the cached session and turns any failure into the
// message every authenticated command shows.
func RequireSession() (Session, error) {
	s, err := LoadSession()
	if err != nil {
		return Session{}, fmt.Errorf("not logged in, run `artctl login`: %w", err)
	}
	return s, nil
}

// RememberTier updates the cached tier in place, keeping the rest of the
// session file untouched. Missing sessions are not an error; there is just
// nothing to update.
func RememberTier(tier string) error {
	s, err := LoadSession()
	if err != nil {
		return nil
	}
	s.Tier = tier
	return SaveSession(s)
}

func ClearSession() error {
	path, err := sessionPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return os.Remove(path)
}
