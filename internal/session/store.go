package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const SchemaVersion = 1

var ErrStateNotFound = errors.New("session state not found")

// State is the persisted session state.
type State struct {
	SchemaVersion int `json:"schema_version"`
	Credentials
}

// Store persists credentials across process restarts. The Manager is
// the only writer.
type Store interface {
	Load() (Credentials, error)
	Save(Credentials) error
	Clear() error
}

// FileStore keeps the session state in a single JSON file. Writes go
// through a temp file and rename so a crash mid-write never leaves a
// partially updated token pair behind.
type FileStore struct {
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("state path is required")
	}
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("state path must be absolute")
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Load() (Credentials, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Credentials{}, ErrStateNotFound
		}
		return Credentials{}, fmt.Errorf("read state: %w", err)
	}
	return DecodeState(data)
}

func (s *FileStore) Save(creds Credentials) error {
	data, err := EncodeState(creds)
	if err != nil {
		return err
	}
	if err := ensureParent(s.path); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit state: %w", err)
	}
	return nil
}

func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear state: %w", err)
	}
	return nil
}

func DecodeState(data []byte) (Credentials, error) {
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return Credentials{}, fmt.Errorf("decode state: %w", err)
	}
	if state.SchemaVersion != SchemaVersion {
		return Credentials{}, fmt.Errorf("unsupported schema_version: %d", state.SchemaVersion)
	}
	if state.RefreshToken == "" {
		return Credentials{}, fmt.Errorf("state missing refresh_token")
	}
	return state.Credentials, nil
}

func EncodeState(creds Credentials) ([]byte, error) {
	data, err := json.MarshalIndent(State{SchemaVersion: SchemaVersion, Credentials: creds}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return data, nil
}

func ensureParent(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir state dir: %w", err)
	}
	return nil
}
