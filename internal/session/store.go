package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pauljones0/x-parser/internal/xclient"
)

// ErrNoSession is returned by LoadCredentials when nothing has been saved.
var ErrNoSession = errors.New("no saved session")

type storedSession struct {
	xclient.Credentials
	CapturedAt time.Time `json:"captured_at"`
}

// SaveCredentials writes creds to path as JSON readable only by the owner.
func SaveCredentials(path string, creds xclient.Credentials) error {
	if !creds.Valid() {
		return xclient.ErrNoCredentials
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}

	data, err := json.MarshalIndent(storedSession{Credentials: creds, CapturedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	return os.Chmod(path, 0600)
}

// LoadCredentials reads credentials saved by SaveCredentials.
func LoadCredentials(path string) (xclient.Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return xclient.Credentials{}, ErrNoSession
		}
		return xclient.Credentials{}, fmt.Errorf("failed to read session file: %w", err)
	}

	var stored storedSession
	if err := json.Unmarshal(data, &stored); err != nil {
		return xclient.Credentials{}, fmt.Errorf("failed to parse session file: %w", err)
	}
	if !stored.Valid() {
		return xclient.Credentials{}, fmt.Errorf("session file %s: %w", path, xclient.ErrNoCredentials)
	}
	return stored.Credentials, nil
}

// ClearCredentials removes the session file. A missing file is not an error.
func ClearCredentials(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
