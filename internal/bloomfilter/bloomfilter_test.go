package bloomfilter_test

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/hostsguard/hostsguard/internal/bloomfilter"
	"github.com/hostsguard/hostsguard/internal/hostsfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testExactRate is a false-positive rate low enough for the tests with small
// sets to never see a false positive.
const testExactRate = 1e-9

// newDomains returns n domains with the given prefix.
func newDomains(prefix string, n int) (domains []string) {
	domains = make([]string, 0, n)
	for i := range n {
		domains = append(domains, fmt.Sprintf("%s-%d.example", prefix, i))
	}

	return domains
}

func TestParams(t *testing.T) {
	testCases := []struct {
		name  string
		p     float64
		n     uint
		wantM uint
		wantK uint
	}{{
		name:  "thousand",
		p:     0.01,
		n:     1000,
		wantM: 9586,
		wantK: 7,
	}, {
		name:  "zero_n",
		p:     0.01,
		n:     0,
		wantM: 10,
		wantK: 7,
	}, {
		name:  "one_half",
		p:     0.5,
		n:     1,
		wantM: 2,
		wantK: 1,
	}, {
		name:  "large",
		p:     0.001,
		n:     100_000,
		wantM: 1_437_759,
		wantK: 10,
	}, {
		name:  "min_k",
		p:     0.9,
		n:     10,
		wantM: 3,
		wantK: 1,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m, k := bloomfilter.Params(tc.n, tc.p)
			assert.Equal(t, tc.wantM, m)
			assert.Equal(t, tc.wantK, k)
		})
	}
}

func TestBuild_badRate(t *testing.T) {
	for _, p := range []float64{0, 1, -0.5, 1.5} {
		t.Run(fmt.Sprint(p), func(t *testing.T) {
			f, err := bloomfilter.Build(hostsfile.NewDomainSet("ads.example"), p)
			assert.ErrorIs(t, err, errors.ErrOutOfRange)
			assert.Nil(t, f)
		})
	}
}

func TestFilter_noFalseNegatives(t *testing.T) {
	domains := newDomains("member", 10_000)
	set := hostsfile.NewDomainSet(domains...)

	f, err := bloomfilter.Build(set, bloomfilter.DefaultFPRate)
	require.NoError(t, err)

	assert.Equal(t, uint(len(domains)), f.Len())

	m, k := bloomfilter.Params(uint(len(domains)), bloomfilter.DefaultFPRate)
	assert.Equal(t, m, f.Cap())
	assert.Equal(t, k, f.K())

	for _, d := range domains {
		require.Truef(t, f.Contains(d), "domain %q", d)
	}
}

func TestFilter_falsePositiveRate(t *testing.T) {
	const (
		members = 10_000
		lookups = 100_000
	)

	set := hostsfile.NewDomainSet(newDomains("member", members)...)
	f, err := bloomfilter.Build(set, bloomfilter.DefaultFPRate)
	require.NoError(t, err)

	fp := 0
	for _, d := range newDomains("absent", lookups) {
		if f.Contains(d) {
			fp++
		}
	}

	rate := float64(fp) / lookups
	assert.Less(t, rate, 2*bloomfilter.DefaultFPRate)
}

func TestFilter_Matches(t *testing.T) {
	set := hostsfile.NewDomainSet(
		"example.com",
		"ads.tracker.net",
		"com",
		"co.uk",
		"blocked.example.co.uk",
	)

	f, err := bloomfilter.Build(set, testExactRate)
	require.NoError(t, err)

	testCases := []struct {
		name        string
		host        string
		wantMatched string
		wantOK      bool
	}{{
		name:        "exact",
		host:        "example.com",
		wantMatched: "example.com",
		wantOK:      true,
	}, {
		name:        "www",
		host:        "www.example.com",
		wantMatched: "example.com",
		wantOK:      true,
	}, {
		name:        "deep",
		host:        "a.b.c.example.com",
		wantMatched: "example.com",
		wantOK:      true,
	}, {
		name:        "nearest_first",
		host:        "x.ads.tracker.net",
		wantMatched: "ads.tracker.net",
		wantOK:      true,
	}, {
		name:        "parent_not_blocked",
		host:        "tracker.net",
		wantMatched: "",
		wantOK:      false,
	}, {
		name:        "sibling_not_blocked",
		host:        "cdn.tracker.net",
		wantMatched: "",
		wantOK:      false,
	}, {
		name:        "suffix_lookalike",
		host:        "notexample.com",
		wantMatched: "",
		wantOK:      false,
	}, {
		name:        "tld_itself",
		host:        "com",
		wantMatched: "com",
		wantOK:      true,
	}, {
		name:        "tld_parent_skipped",
		host:        "other.com",
		wantMatched: "",
		wantOK:      false,
	}, {
		name:        "second_level_suffix_skipped",
		host:        "shop.co.uk",
		wantMatched: "",
		wantOK:      false,
	}, {
		name:        "under_second_level_suffix",
		host:        "www.blocked.example.co.uk",
		wantMatched: "blocked.example.co.uk",
		wantOK:      true,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			matched, ok := f.Matches(tc.host)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.wantMatched, matched)
		})
	}
}

func TestFilter_empty(t *testing.T) {
	f, err := bloomfilter.Build(hostsfile.NewDomainSet(), testExactRate)
	require.NoError(t, err)

	assert.Zero(t, f.Len())

	_, ok := f.Matches("ads.example")
	assert.False(t, ok)
}

func TestFilter_snapshot(t *testing.T) {
	domains := newDomains("member", 1000)
	f, err := bloomfilter.Build(hostsfile.NewDomainSet(domains...), bloomfilter.DefaultFPRate)
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	n, err := f.WriteTo(buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	got, err := bloomfilter.Read(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	assert.Equal(t, f.Len(), got.Len())
	assert.Equal(t, f.Cap(), got.Cap())
	assert.Equal(t, f.K(), got.K())
	assert.Equal(t, bloomfilter.DefaultFPRate, got.FPRate())

	for _, d := range domains {
		require.Truef(t, got.Contains(d), "domain %q", d)
	}

	for _, d := range newDomains("absent", 1000) {
		assert.Equal(t, f.Contains(d), got.Contains(d))
	}
}

func TestRead_bad(t *testing.T) {
	f, err := bloomfilter.Build(hostsfile.NewDomainSet("ads.example"), bloomfilter.DefaultFPRate)
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	_, err = f.WriteTo(buf)
	require.NoError(t, err)

	data := buf.Bytes()

	t.Run("bad_magic", func(t *testing.T) {
		bad := bytes.Clone(data)
		bad[0] ^= 0xff

		got, rerr := bloomfilter.Read(bytes.NewReader(bad))
		assert.ErrorIs(t, rerr, bloomfilter.ErrBadSnapshot)
		assert.Nil(t, got)
	})

	t.Run("bad_rate", func(t *testing.T) {
		bad := bytes.Clone(data)

		// Zero the false-positive rate that follows the magic.
		clear(bad[4:12])

		got, rerr := bloomfilter.Read(bytes.NewReader(bad))
		assert.ErrorIs(t, rerr, bloomfilter.ErrBadSnapshot)
		assert.Nil(t, got)
	})

	t.Run("truncated", func(t *testing.T) {
		got, rerr := bloomfilter.Read(bytes.NewReader(data[:len(data)-1]))
		assert.Error(t, rerr)
		assert.Nil(t, got)
	})

	t.Run("empty", func(t *testing.T) {
		got, rerr := bloomfilter.Read(bytes.NewReader(nil))
		assert.Error(t, rerr)
		assert.Nil(t, got)
	})
}
