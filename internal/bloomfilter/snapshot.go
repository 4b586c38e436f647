package bloomfilter

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/bits-and-blooms/bloom/v3"
)

// snapshotMagic is the first bytes of every serialized filter.  It changes
// together with the layout of [snapshotHeader].
const snapshotMagic uint32 = 0x48474232

// ErrBadSnapshot is returned by [Read] when the data isn't a serialized
// filter.
const ErrBadSnapshot errors.Error = "bad filter snapshot"

// snapshotHeader is the fixed-size header written before the bit set.
type snapshotHeader struct {
	Magic  uint32
	FPRate float64
	Len    uint64
}

// type check
var _ io.WriterTo = (*Filter)(nil)

// WriteTo implements the [io.WriterTo] interface for *Filter.  The result can
// be read back with [Read].
func (f *Filter) WriteTo(w io.Writer) (n int64, err error) {
	hdr := &snapshotHeader{
		Magic:  snapshotMagic,
		FPRate: f.fpRate,
		Len:    uint64(f.n),
	}

	err = binary.Write(w, binary.BigEndian, hdr)
	if err != nil {
		return 0, fmt.Errorf("writing header: %w", err)
	}

	n = int64(binary.Size(hdr))

	bn, err := f.bloom.WriteTo(w)
	n += bn
	if err != nil {
		return n, fmt.Errorf("writing bit set: %w", err)
	}

	return n, nil
}

// Read reads a filter written by [Filter.WriteTo] from r.
func Read(r io.Reader) (f *Filter, err error) {
	hdr := &snapshotHeader{}
	err = binary.Read(r, binary.BigEndian, hdr)
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	if hdr.Magic != snapshotMagic {
		return nil, fmt.Errorf("%w: magic %#x", ErrBadSnapshot, hdr.Magic)
	} else if !(hdr.FPRate > 0 && hdr.FPRate < 1) {
		return nil, fmt.Errorf("%w: false-positive rate %v", ErrBadSnapshot, hdr.FPRate)
	}

	// The parameters are replaced by the ones read from r.
	b := bloom.New(1, 1)
	_, err = b.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading bit set: %w", ErrBadSnapshot, err)
	}

	return &Filter{
		bloom:  b,
		fpRate: hdr.FPRate,
		n:      uint(hdr.Len),
	}, nil
}
