// Package file is the local development backend for credential storage: one
// JSON file holding every credential, written through on each change.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"showings/internal/domain"
	"showings/internal/store"
)

type CredentialStore struct {
	mu    sync.RWMutex
	path  string
	creds map[string]domain.Credential
}

type credentialFile struct {
	Credentials map[string]domain.Credential `json:"credentials"`
}

func NewCredentialStore(path string) (*CredentialStore, error) {
	s := &CredentialStore{
		path:  path,
		creds: make(map[string]domain.Credential),
	}
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return s, nil
}

func (s *CredentialStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var f credentialFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse credentials file %s: %w", s.path, err)
	}
	if f.Credentials != nil {
		s.creds = f.Credentials
	}
	return nil
}

// save writes the full file under the held write lock. Tokens are secrets, so
// the directory and file carry owner-only permissions.
func (s *CredentialStore) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	data, err := json.MarshalIndent(credentialFile{Credentials: s.creds}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	return nil
}

func (s *CredentialStore) Get(ctx context.Context, userID string) (domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.creds[userID]
	if !ok {
		return domain.Credential{}, store.ErrNotFound
	}
	return cred, nil
}

func (s *CredentialStore) Put(ctx context.Context, cred domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creds[cred.UserID] = cred
	return s.save()
}

func (s *CredentialStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.creds[userID]; !ok {
		return store.ErrNotFound
	}
	delete(s.creds, userID)
	return s.save()
}

func (s *CredentialStore) Path() string {
	return s.path
}
