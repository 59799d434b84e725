package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoSession is returned by Load when no session file exists on disk.
var ErrNoSession = errors.New("not logged in")

// SessionStore persists a Session between commands.
type SessionStore interface {
	Save(s *Session) error
	Load() (*Session, error) // returns ErrNoSession if none exists
	Delete() error
	Path() string
}

// tokenFile keeps the session in one JSON file. The file carries a live
// bearer token, so it is created 0600 inside a 0700 directory and tightened
// again on load if something loosened it.
type tokenFile struct {
	path string
}

// NewSessionStore returns the store at $XDG_DATA_HOME/storyline/session.json,
// falling back to ~/.local/share/storyline/session.json.
func NewSessionStore() (SessionStore, error) {
	dir, err := DataDir()
	if err != nil {
		return nil, fmt.Errorf("resolving data directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &tokenFile{path: filepath.Join(dir, "session.json")}, nil
}

// DataDir returns the storyline data directory.
func DataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "storyline"), nil
}

func (f *tokenFile) Path() string { return f.path }

// Save replaces the file in one rename so a concurrent reader in another
// terminal sees either the old session or the new one.
func (f *tokenFile) Save(s *Session) (err error) {
	data, err := json.Marshal(s)
	if err != nil {
		return saveErr(err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*")
	if err != nil {
		return saveErr(err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = tmp.Chmod(0o600); err != nil {
		return saveErr(err)
	}
	if _, err = tmp.Write(data); err != nil {
		return saveErr(err)
	}
	if err = tmp.Sync(); err != nil {
		return saveErr(err)
	}
	if err = tmp.Close(); err != nil {
		return saveErr(err)
	}
	if err = os.Rename(tmp.Name(), f.path); err != nil {
		return saveErr(err)
	}
	return nil
}

func saveErr(err error) error {
	return fmt.Errorf("saving session: %w", err)
}

// Load returns the saved session. A missing, empty or unreadable-as-JSON file
// means nobody is logged in: the corrupt file is removed and ErrNoSession
// returned, so the next login starts clean.
func (f *tokenFile) Load() (*Session, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}
	if err := f.tighten(); err != nil {
		return nil, err
	}

	var s Session
	if json.Unmarshal(data, &s) != nil || s.Token == "" {
		if err := f.Delete(); err != nil {
			return nil, err
		}
		return nil, ErrNoSession
	}
	return &s, nil
}

// tighten resets the file to owner-only if its mode was widened.
func (f *tokenFile) tighten() error {
	info, err := os.Stat(f.path)
	if err != nil {
		return fmt.Errorf("reading session: %w", err)
	}
	if info.Mode().Perm()&0o077 == 0 {
		return nil
	}
	if err := os.Chmod(f.path, 0o600); err != nil {
		return fmt.Errorf("restricting session file: %w", err)
	}
	return nil
}

// Delete removes the file. Deleting a missing file is not an error.
func (f *tokenFile) Delete() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}
