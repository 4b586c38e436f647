package hostssource

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sync"

	"github.com/hostsguard/hostsguard/internal/identity"
)

// BundledPath is the path of the default hosts list within [DefaultAssets].
const BundledPath = "assets/hosts.txt"

//go:embed assets/hosts.txt
var assets embed.FS

// DefaultAssets returns the file system containing the hosts list bundled with
// the binary at [BundledPath].
func DefaultAssets() (fsys fs.FS) {
	return assets
}

// assetReader reads the bundled content once and returns the same result on
// every call.
type assetReader func() (c *Content, err error)

// newAssetReader returns an assetReader for the file at name in fsys.
func newAssetReader(fsys fs.FS, name string) (r assetReader) {
	return sync.OnceValues(func() (c *Content, err error) {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %q: %w", ErrBundledCorrupt, name, err)
		} else if len(data) == 0 {
			return nil, fmt.Errorf("%w: %q is empty", ErrBundledCorrupt, name)
		}

		return &Content{
			Data:     data,
			Identity: identity.Fingerprint(data),
		}, nil
	})
}

// Bundled is the [Source] of the hosts list shipped with the binary.  Its
// content and identity are computed at most once per reader.
type Bundled struct {
	read assetReader
}

// NewBundled returns a new *Bundled reading the file at name from fsys.
func NewBundled(fsys fs.FS, name string) (b *Bundled) {
	return &Bundled{
		read: newAssetReader(fsys, name),
	}
}

// type check
var _ Source = (*Bundled)(nil)

// Load implements the [Source] interface for *Bundled.  The content must not
// be modified.
func (b *Bundled) Load(_ context.Context) (c *Content, err error) {
	return b.read()
}

// Identifier implements the [Source] interface for *Bundled.  It is known
// before the first call to Load, unless the asset is corrupt.
func (b *Bundled) Identifier() (id identity.Identity) {
	c, err := b.read()
	if err != nil {
		return identity.Empty
	}

	return c.Identity
}

// isSource implements the [Source] interface for *Bundled.
func (*Bundled) isSource() {}
