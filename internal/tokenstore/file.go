package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/IsaacDSC/gquery/internal/authn"
)

// File persists the credential pair as a JSON document readable only by the
// current user. Writes go to a temp file that is renamed over the target.
type File struct {
	mu   sync.Mutex
	path string
}

var _ authn.TokenStore = (*File)(nil)

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Tokens(_ context.Context) (authn.Tokens, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

func (f *File) SetTokens(_ context.Context, t authn.Tokens) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.write(t)
}

func (f *File) SetAccessToken(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, err := f.read()
	if err != nil {
		return err
	}
	t.AccessToken = token
	return f.write(t)
}

func (f *File) ClearTokens(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove credentials file: %w", err)
	}
	return nil
}

func (f *File) read() (authn.Tokens, error) {
	var t authn.Tokens

	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return t, fmt.Errorf("read credentials file: %w", err)
	}

	if err := json.Unmarshal(b, &t); err != nil {
		return authn.Tokens{}, fmt.Errorf("decode credentials file %s: %w", f.path, err)
	}
	return t, nil
}

func (f *File) write(t authn.Tokens) error {
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("rename credentials file: %w", err)
	}
	return nil
}
