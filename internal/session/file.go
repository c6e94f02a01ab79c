package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/xkilldash9x/burstline/internal/browser"
)

// FileStore writes one storageState JSON document per identity. The key is
// the file path.
type FileStore struct {
	logger *zap.Logger
}

// NewFileStore creates a file-backed store.
func NewFileStore(logger *zap.Logger) *FileStore {
	return &FileStore{logger: logger.Named("session.file")}
}

// Save writes state to key through a temporary file and a rename, so a
// reader never sees a partial document. The file is readable by the owner only.
func (f *FileStore) Save(ctx context.Context, key string, state *browser.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state.IsEmpty() {
		return fmt.Errorf("save %s: %w", key, browser.ErrEmptyState)
	}
	data, err := browser.EncodeState(state)
	if err != nil {
		return err
	}

	dir := filepath.Dir(key)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(key)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary session file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to restrict session file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to flush session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session file: %w", err)
	}
	if err := os.Rename(tmpName, key); err != nil {
		return fmt.Errorf("failed to move session file into place: %w", err)
	}
	tmpName = ""

	f.logger.Debug("Saved session state.", zap.String("path", key), zap.Int("cookies", len(state.Cookies)))
	return nil
}

// Load reads the document at key.
func (f *FileStore) Load(ctx context.Context, key string) (*browser.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	state, err := browser.DecodeState(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return state, nil
}
