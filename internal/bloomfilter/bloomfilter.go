// Package bloomfilter contains the compact probabilistic membership filter
// built from a set of blocked domains.
package bloomfilter

import (
	"fmt"
	"math"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/netutil"
	"github.com/bits-and-blooms/bloom/v3"
	"github.com/hostsguard/hostsguard/internal/hostsfile"
	"golang.org/x/net/publicsuffix"
)

// DefaultFPRate is the default target false-positive probability.
const DefaultFPRate = 0.01

// Filter is an immutable Bloom filter over a set of normalized domains.  It
// never reports a false negative for a domain of the set it was built from,
// and its false-positive rate is bounded by the rate it was built with.
type Filter struct {
	bloom  *bloom.BloomFilter
	fpRate float64
	n      uint
}

// Params returns the optimal number of bits m and hash functions k for n
// elements at the false-positive probability p:
//
//	m = ceil(-n * ln(p) / ln(2)^2)
//	k = round(m / n * ln(2))
//
// Both are at least 1, and n is treated as 1 when it is zero.  p must be in
// (0, 1).
func Params(n uint, p float64) (m, k uint) {
	nf := float64(max(n, 1))

	mf := math.Ceil(-nf * math.Log(p) / (math.Ln2 * math.Ln2))
	m = max(uint(mf), 1)

	kf := math.Round(float64(m) / nf * math.Ln2)
	k = max(uint(kf), 1)

	return m, k
}

// Build returns a new filter containing every domain of set.  fpRate must be
// in the open interval (0, 1).  set may be empty, in which case the filter
// matches nothing but false positives.
func Build(set *hostsfile.DomainSet, fpRate float64) (f *Filter, err error) {
	if !(fpRate > 0 && fpRate < 1) {
		return nil, fmt.Errorf("false-positive rate: %w: must be in (0, 1), got %v", errors.ErrOutOfRange, fpRate)
	}

	n := uint(set.Len())
	m, k := Params(n, fpRate)

	b := bloom.New(m, k)
	set.Range(func(d string) (cont bool) {
		b.AddString(d)

		return true
	})

	return &Filter{
		bloom:  b,
		fpRate: fpRate,
		n:      n,
	}, nil
}

// Contains returns true if domain is possibly in the filter.  domain must be
// normalized.  There is no parent-domain walk.
func (f *Filter) Contains(domain string) (ok bool) {
	return f.bloom.TestString(domain)
}

// Matches returns true if host or any of its parent domains is possibly in
// the filter.  matched is the first matched domain, starting from host itself.
// Parents that are ICANN public suffixes, such as "com" or "co.uk", are never
// checked, so that a false positive can't block an entire top-level domain.
// host must be normalized.
func (f *Filter) Matches(host string) (matched string, ok bool) {
	for i, sub := range netutil.Subdomains(host) {
		if i > 0 && isPublicSuffix(sub) {
			break
		}

		if f.bloom.TestString(sub) {
			return sub, true
		}
	}

	return "", false
}

// isPublicSuffix returns true if domain is itself an ICANN public suffix.
func isPublicSuffix(domain string) (ok bool) {
	suf, icann := publicsuffix.PublicSuffix(domain)

	return icann && suf == domain
}

// Len returns the number of domains the filter was built from.
func (f *Filter) Len() (n uint) {
	return f.n
}

// FPRate returns the target false-positive rate the filter was built with.
func (f *Filter) FPRate() (p float64) {
	return f.fpRate
}

// Cap returns the size of the filter in bits.
func (f *Filter) Cap() (m uint) {
	return f.bloom.Cap()
}

// K returns the number of hash functions of the filter.
func (f *Filter) K() (k uint) {
	return f.bloom.K()
}
