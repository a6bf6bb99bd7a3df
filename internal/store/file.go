package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"salesforce-lead-backend/internal/types"
)

// TokenStore persists the Salesforce credential obtained by the OAuth callback.
// Read returns nil, nil when nothing is stored.
type TokenStore interface {
	Read(ctx context.Context) (*types.TokenSet, error)
	Write(ctx context.Context, tok *types.TokenSet) error
	// Clear forgets the stored credential; clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

// FileTokenStore persists a single Salesforce token set on disk.
type FileTokenStore struct {
	path string
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

func (f *FileTokenStore) Read(context.Context) (*types.TokenSet, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var t types.TokenSet
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, err
	}
	if t.AccessToken == "" {
		return nil, nil
	}
	return &t, nil
}

func (f *FileTokenStore) Write(_ context.Context, tok *types.TokenSet) error {
	if tok == nil || tok.AccessToken == "" {
		return fmt.Errorf("invalid token")
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	// Restrictive permissions for token file
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileTokenStore) Clear(context.Context) error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
