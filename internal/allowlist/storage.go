package allowlist

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	renameio "github.com/google/renameio/v2"
	"github.com/hostsguard/hostsguard/internal/hostsfile"
)

// Storage persists the exempted hosts.
type Storage interface {
	// Load returns the persisted hosts.  hosts are normalized.
	Load(ctx context.Context) (hosts []string, err error)

	// Store replaces the persisted hosts with hosts.
	Store(ctx context.Context, hosts []string) (err error)
}

// type check
var _ Storage = (*FileStorage)(nil)

// FileStorage is a [Storage] that keeps one host per line in a file.  The file
// is replaced atomically on every store.
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
// means an empty list.
func (s *FileStorage) Load(_ context.Context) (hosts []string, err error) {
	// #nosec G304 -- Trust the path given in the configuration.
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("opening allowlist file: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, f.Close()) }()

	set, err := hostsfile.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("reading allowlist file: %w", err)
	}

	hosts = set.Values()
	slices.Sort(hosts)

	return hosts, nil
}

// Store implements the [Storage] interface for *FileStorage.
func (s *FileStorage) Store(_ context.Context, hosts []string) (err error) {
	err = os.MkdirAll(filepath.Dir(s.path), 0o700)
	if err != nil {
		return fmt.Errorf("creating allowlist dir: %w", err)
	}

	b := &strings.Builder{}
	for _, h := range hosts {
		b.WriteString(h)
		b.WriteByte('\n')
	}

	err = renameio.WriteFile(s.path, []byte(b.String()), 0o600)
	if err != nil {
		return fmt.Errorf("writing allowlist file: %w", err)
	}

	return nil
}
