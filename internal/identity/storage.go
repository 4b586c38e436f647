package identity

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/AdguardTeam/golibs/errors"
	renameio "github.com/google/renameio/v2"
)

// Storage persists the identity of the currently loaded hosts list between
// runs.
type Storage interface {
	// Load returns the persisted identity.  id is [Empty] if there is none.
	Load(ctx context.Context) (id Identity, err error)

	// Store persists id.
	Store(ctx context.Context, id Identity) (err error)
}

// type check
var _ Storage = (*MemoryStorage)(nil)

// MemoryStorage is an in-process [Storage].  It is mostly used in tests and
// for ephemeral runs.  The zero value is an empty storage ready to use.
type MemoryStorage struct {
	mu sync.Mutex
	id Identity
}

// NewMemoryStorage returns a new *MemoryStorage holding id.
func NewMemoryStorage(id Identity) (s *MemoryStorage) {
	return &MemoryStorage{
		id: id,
	}
}

// Load implements the [Storage] interface for *MemoryStorage.
func (s *MemoryStorage) Load(_ context.Context) (id Identity, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.id, nil
}

// Store implements the [Storage] interface for *MemoryStorage.
func (s *MemoryStorage) Store(_ context.Context, id Identity) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.id = id

	return nil
}

// type check
var _ Storage = (*FileStorage)(nil)

// FileStorage is a [Storage] that keeps the identity in a single file.  The
// file is replaced atomically on every store.
type FileStorage struct {
	path string
}

// NewFileStorage returns a new *FileStorage that uses the file at path.
func NewFileStorage(path string) (s *FileStorage) {
	return &FileStorage{
		path: path,
	}
}

// Load implements the [Storage] interface for *FileStorage.  A missing file
// means that there is no identity.
func (s *FileStorage) Load(_ context.Context) (id Identity, err error) {
	// #nosec G304 -- Trust the path given in the configuration.
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Empty, nil
	} else if err != nil {
		return Empty, fmt.Errorf("reading identity file: %w", err)
	}

	return Identity(strings.TrimSpace(string(b))), nil
}

// Store implements the [Storage] interface for *FileStorage.
func (s *FileStorage) Store(_ context.Context, id Identity) (err error) {
	err = os.MkdirAll(filepath.Dir(s.path), 0o700)
	if err != nil {
		return fmt.Errorf("creating identity dir: %w", err)
	}

	err = renameio.WriteFile(s.path, []byte(id+"\n"), 0o600)
	if err != nil {
		return fmt.Errorf("writing identity file: %w", err)
	}

	return nil
}
