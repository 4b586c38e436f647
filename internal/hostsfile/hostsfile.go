// Package hostsfile contains the parser of hosts-file formatted block lists
// and the normalization rules for the domain names within them.
package hostsfile

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/netutil"
	"golang.org/x/net/idna"
)

// Normalization errors.
const (
	// ErrIPLiteral is returned by [NormalizeHost] when the value is an IP
	// address and not a domain name.
	ErrIPLiteral errors.Error = "ip address literal"

	// ErrLocalName is returned by [NormalizeHost] when the value is one of
	// the names conventionally mapped to the local machine.
	ErrLocalName errors.Error = "local host name"
)

// localNames are the names that hosts files map to the local machine.  They
// are never blocked.
var localNames = container.NewMapSet(
	"broadcasthost",
	"ip6-allhosts",
	"ip6-allnodes",
	"ip6-allrouters",
	"ip6-localhost",
	"ip6-localnet",
	"ip6-loopback",
	"ip6-mcastprefix",
	"local",
	"localhost",
	"localhost.localdomain",
)

// idnaProfile converts internationalized names into their ASCII form.  Label
// checks are disabled, since real-world block lists contain names such as
// "r3---sn-abc.example" and "ad_server.example".
var idnaProfile = idna.New(
	idna.MapForLookup(),
	idna.ValidateLabels(false),
	idna.StrictDomainName(false),
	idna.Transitional(false),
)

// NormalizeHost returns the canonical form of a host name: the ASCII form of
// an IDN, lowercased, with one trailing dot removed.  The "www." prefix is
// kept.  err is not nil if s is not a valid domain name, is an IP address, or
// is a local host name.
func NormalizeHost(s string) (host string, err error) {
	host = strings.TrimSuffix(strings.TrimSpace(s), ".")
	if host == "" {
		return "", errors.ErrEmptyValue
	}

	if _, err = netip.ParseAddr(host); err == nil {
		return "", fmt.Errorf("%q: %w", host, ErrIPLiteral)
	}

	if isASCII(host) {
		host = strings.ToLower(host)
	} else {
		host, err = idnaProfile.ToASCII(host)
		if err != nil {
			return "", fmt.Errorf("converting %q to ascii: %w", s, err)
		}
	}

	err = validateHost(host)
	if err != nil {
		// Don't wrap the error, since it's informative enough as is.
		return "", err
	}

	if localNames.Has(host) {
		return "", fmt.Errorf("%q: %w", host, ErrLocalName)
	}

	return host, nil
}

// validateHost returns an error if host contains characters not allowed in
// domain names or has invalid label lengths.
func validateHost(host string) (err error) {
	err = netutil.ValidateDomainName(host)
	if err != nil {
		return fmt.Errorf("validating %q: %w", host, err)
	}

	for i, r := range host {
		if !isValidHostRune(r) {
			return fmt.Errorf("validating %q: bad rune %q at index %d", host, r, i)
		}
	}

	return nil
}

// isValidHostRune returns true if r is allowed in a normalized host name.
// Underscores are allowed, since they are common in block lists.
func isValidHostRune(r rune) (ok bool) {
	return r == '.' || r == '-' || r == '_' || netutil.IsValidHostOuterRune(r)
}

// isASCII returns true if s only contains ASCII characters.
func isASCII(s string) (ok bool) {
	for i := range len(s) {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}

	return true
}

// HostFromURL extracts and normalizes the host of rawURL.  rawURL may omit the
// scheme, in which case "http" is assumed, so "example.com/path" is accepted.
// The port, if any, is dropped.
func HostFromURL(rawURL string) (host string, err error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", errors.ErrEmptyValue
	}

	if !strings.Contains(rawURL, "://") {
		rawURL = "http://" + rawURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}

	return NormalizeHost(u.Hostname())
}

// DomainSet is an immutable set of normalized domain names.
type DomainSet struct {
	set *container.MapSet[string]
}

// NewDomainSet returns a set of the normalized forms of hosts.  Invalid hosts
// are skipped.
func NewDomainSet(hosts ...string) (s *DomainSet) {
	set := container.NewMapSet[string]()
	for _, h := range hosts {
		n, err := NormalizeHost(h)
		if err == nil {
			set.Add(n)
		}
	}

	return &DomainSet{
		set: set,
	}
}

// Has returns true if domain is in s.  domain must be normalized.  s may be
// nil.
func (s *DomainSet) Has(domain string) (ok bool) {
	return s != nil && s.set.Has(domain)
}

// Len returns the number of domains in s.  s may be nil.
func (s *DomainSet) Len() (n int) {
	if s == nil {
		return 0
	}

	return s.set.Len()
}

// Range calls f for each domain in s until f returns false.  The order is
// undefined.  s may be nil.
func (s *DomainSet) Range(f func(domain string) (cont bool)) {
	if s == nil {
		return
	}

	s.set.Range(f)
}

// Values returns a new slice of all domains in s.  The order is undefined.
func (s *DomainSet) Values() (domains []string) {
	if s == nil {
		return nil
	}

	return s.set.Values()
}
