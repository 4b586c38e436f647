package hostsfile

import (
	"bufio"
	"fmt"
	"io"
	"net/netip"
	"strings"

	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/errors"
)

// MaxLineLen is the maximum length of a single line of a hosts file in bytes.
// Longer lines are skipped.
const MaxLineLen = 64 * 1024

// readBufSize is the size of the read buffer.
const readBufSize = 16 * 1024

// Parse reads a hosts file or a plain list of domains from r and returns the
// set of normalized domains from it.  Comments start with '#' and last until
// the end of the line.
//
// A line with a single field is a bare domain.  A line with several fields is
// a classic hosts line: its first field must be a loopback or unspecified IP
// address, and all the following fields are domains.  Lines mapping hosts to
// other addresses, lines longer than [MaxLineLen], as well as invalid domains,
// are skipped, so malformed content never causes an error; only a read error
// from r does.
func Parse(r io.Reader) (set *DomainSet, err error) {
	br := bufio.NewReaderSize(r, readBufSize)
	domains := container.NewMapSet[string]()

	line := make([]byte, 0, readBufSize)
	tooLong := false
	for {
		frag, isPrefix, rerr := br.ReadLine()
		if errors.Is(rerr, io.EOF) {
			break
		} else if rerr != nil {
			return nil, fmt.Errorf("reading hosts: %w", rerr)
		}

		// frag is only valid until the next read, so copy it.
		if !tooLong && len(line)+len(frag) <= MaxLineLen {
			line = append(line, frag...)
		} else {
			tooLong = true
		}

		if isPrefix {
			continue
		}

		if !tooLong {
			addCandidates(domains, string(line))
		}

		line, tooLong = line[:0], false
	}

	return &DomainSet{
		set: domains,
	}, nil
}

// addCandidates adds the valid domain names from line to domains.
func addCandidates(domains *container.MapSet[string], line string) {
	for _, c := range candidates(line) {
		host, err := NormalizeHost(c)
		if err == nil {
			domains.Add(host)
		}
	}
}

// candidates returns the possible domain names from a single line.
func candidates(line string) (hosts []string) {
	line, _, _ = strings.Cut(line, "#")
	fields := strings.Fields(line)
	switch len(fields) {
	case 0:
		return nil
	case 1:
		return fields
	default:
		if !isRedirectAddr(fields[0]) {
			return nil
		}

		return fields[1:]
	}
}

// isRedirectAddr returns true if s is an IP address that hosts files use to
// block a name, which is any loopback or unspecified address.
func isRedirectAddr(s string) (ok bool) {
	ip, err := netip.ParseAddr(s)
	if err != nil {
		return false
	}

	return ip.IsUnspecified() || ip.IsLoopback()
}
