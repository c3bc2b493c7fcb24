package cli

import (
	"strings"
	"testing"
)

func TestSessionRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	in := Session{
		AccessToken:  "tok",
		RefreshToken: "refresh",
		Email:        "p@example.com",
		UserID:       "user-1",
		Tier:         "guest",
	}
	if err := SaveSession(in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := LoadSession()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out.AccessToken != in.AccessToken || out.UserID != in.UserID || out.Tier != "guest" {
		t.Fatalf("loaded session = %+v", out)
	}
	if out.SavedAt.IsZero() {
		t.Fatalf("save did not stamp the session")
	}
}

func TestRequireSessionWithoutLogin(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if _, err := RequireSession(); err == nil || !strings.Contains(err.Error(), "artctl login") {
		t.Fatalf("err = %v, want login hint", err)
	}
}

func TestRememberTier(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	// No session yet: nothing to update, not an error.
	if err := RememberTier("artist"); err != nil {
		t.Fatalf("remember without session: %v", err)
	}

	if err := SaveSession(Session{AccessToken: "tok", UserID: "user-1", Tier: "guest"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := RememberTier("artist"); err != nil {
		t.Fatalf("remember: %v", err)
	}
	out, err := LoadSession()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out.Tier != "artist" || out.AccessToken != "tok" {
		t.Fatalf("session after tier update = %+v", out)
	}
}

func TestClearSessionIdempotent(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := SaveSession(Session{AccessToken: "tok"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := ClearSession(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := LoadSession(); err == nil {
		t.Fatalf("session survived clear")
	}
	if err := ClearSession(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}
