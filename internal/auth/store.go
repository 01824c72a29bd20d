package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var ErrNoCredential = errors.New("no persisted credential")

type fileCredential struct {
	AccessToken string `json:"accessToken"`
	ExpireAt    int64  `json:"expireAt"` // ms epoch
}

// FileStore persists the credential as a small JSON document readable only
// by the owner.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore { return &FileStore{Path: path} }

func (s *FileStore) Load() (Credential, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Credential{}, ErrNoCredential
	}
	if err != nil {
		return Credential{}, fmt.Errorf("read %s: %w", s.Path, err)
	}
	var fc fileCredential
	if err := json.Unmarshal(data, &fc); err != nil {
		return Credential{}, fmt.Errorf("decode %s: %w", s.Path, err)
	}
	if fc.AccessToken == "" {
		return Credential{}, ErrNoCredential
	}
	return Credential{Token: fc.AccessToken, ExpiresAt: time.UnixMilli(fc.ExpireAt)}, nil
}

// Save writes to a temporary file in the same directory and renames it over
// the target, so readers never observe a partial document.
func (s *FileStore) Save(c Credential) error {
	data, err := json.Marshal(fileCredential{AccessToken: c.Token, ExpireAt: c.ExpiresAt.UnixMilli()})
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.Path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		return fmt.Errorf("rename %s: %w", tmpName, err)
	}
	return nil
}
