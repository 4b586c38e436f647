package filterrepo

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	renameio "github.com/google/renameio/v2"
	"github.com/hostsguard/hostsguard/internal/bloomfilter"
	"github.com/hostsguard/hostsguard/internal/identity"
)

// writeSnapshot atomically replaces the file at path with the identity line
// followed by the serialized f.
func writeSnapshot(path string, f *bloomfilter.Filter, id identity.Identity) (err error) {
	err = os.MkdirAll(filepath.Dir(path), 0o700)
	if err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}

	tmpFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("creating temporary snapshot file: %w", err)
	}
	defer func() { err = withDeferredTmpCleanup(err, tmpFile) }()

	w := bufio.NewWriter(tmpFile)

	_, err = w.WriteString(string(id) + "\n")
	if err != nil {
		return fmt.Errorf("writing identity: %w", err)
	}

	_, err = f.WriteTo(w)
	if err != nil {
		return fmt.Errorf("writing filter: %w", err)
	}

	err = w.Flush()
	if err != nil {
		return fmt.Errorf("flushing snapshot: %w", err)
	}

	return nil
}

// withDeferredTmpCleanup is a helper that performs the necessary cleanups and
// finalizations of the temporary files based on the returned error.
func withDeferredTmpCleanup(returned error, tmpFile *renameio.PendingFile) (err error) {
	// Make sure that any error returned from here is marked as a deferred one.
	if returned != nil {
		return errors.WithDeferred(returned, tmpFile.Cleanup())
	}

	return errors.WithDeferred(nil, tmpFile.CloseAtomicallyReplace())
}

// readSnapshot reads the snapshot file at path.  If the file doesn't exist, f
// is nil and err is nil.
func readSnapshot(path string) (f *bloomfilter.Filter, id identity.Identity, err error) {
	// #nosec G304 -- Trust the path to the cache directory given in the
	// configuration.
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, identity.Empty, nil
	} else if err != nil {
		return nil, identity.Empty, fmt.Errorf("opening snapshot: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, file.Close()) }()

	br := bufio.NewReader(file)
	line, err := br.ReadString('\n')
	if err != nil {
		return nil, identity.Empty, fmt.Errorf("reading identity: %w", err)
	}

	f, err = bloomfilter.Read(br)
	if err != nil {
		return nil, identity.Empty, fmt.Errorf("reading filter: %w", err)
	}

	return f, identity.Identity(strings.TrimSpace(line)), nil
}
