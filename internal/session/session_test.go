package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/chromedp/cdproto/network"

	"github.com/pauljones0/x-parser/internal/xclient"
)

func TestSaveLoadCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	creds := xclient.Credentials{AuthToken: "auth", CSRFToken: "csrf"}

	if err := SaveCredentials(path, creds); err != nil {
		t.Fatalf("SaveCredentials() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file mode = %o, want 600", perm)
	}

	got, err := LoadCredentials(path)
	if err != nil {
		t.Fatalf("LoadCredentials() error = %v", err)
	}
	if got != creds {
		t.Errorf("LoadCredentials() = %+v, want %+v", got, creds)
	}

	if err := ClearCredentials(path); err != nil {
		t.Fatalf("ClearCredentials() error = %v", err)
	}
	if _, err := LoadCredentials(path); !errors.Is(err, ErrNoSession) {
		t.Errorf("after clear, err = %v, want ErrNoSession", err)
	}
	if err := ClearCredentials(path); err != nil {
		t.Errorf("clearing a missing file should succeed, got %v", err)
	}
}

func TestSaveCredentials_RejectsIncomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	err := SaveCredentials(path, xclient.Credentials{AuthToken: "only"})
	if !errors.Is(err, xclient.ErrNoCredentials) {
		t.Errorf("err = %v, want ErrNoCredentials", err)
	}
}

func TestLoadCredentials_Invalid(t *testing.T) {
	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage.json")
	os.WriteFile(garbage, []byte("{not json"), 0600)
	if _, err := LoadCredentials(garbage); err == nil {
		t.Error("expected parse error")
	}

	empty := filepath.Join(dir, "empty.json")
	os.WriteFile(empty, []byte(`{"auth_token":"a"}`), 0600)
	if _, err := LoadCredentials(empty); !errors.Is(err, xclient.ErrNoCredentials) {
		t.Errorf("err = %v, want ErrNoCredentials", err)
	}
}

func TestCredentialsFromCookies(t *testing.T) {
	cookies := []*network.Cookie{
		{Name: "auth_token", Value: "evil", Domain: ".example.com"},
		{Name: "auth_token", Value: "good", Domain: ".x.com"},
		{Name: "ct0", Value: "csrf", Domain: "x.com"},
		{Name: "guest_id", Value: "g", Domain: ".x.com"},
	}
	got := credentialsFromCookies(cookies)
	want := xclient.Credentials{AuthToken: "good", CSRFToken: "csrf"}
	if got != want {
		t.Errorf("credentialsFromCookies() = %+v, want %+v", got, want)
	}
}
