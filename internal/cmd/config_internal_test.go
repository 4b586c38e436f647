package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/c2h5oh/datasize"
	"github.com/hostsguard/hostsguard/internal/hostssource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfigYAML is a valid configuration file.
const testConfigYAML = `
adblock:
    enabled: true
    source:
        type: remote
        url: https://lists.example/hosts.txt
    false_positive_rate: 0.001
    refresh_interval: 1h
    refresh_timeout: 1m
    max_size: 32MB
allowlist:
    persist: true
    initial:
      - news.example
      - https://www.shop.example/cart
`

// writeConfig writes data into a temporary configuration file and returns its
// path.
func writeConfig(tb testing.TB, data string) (path string) {
	tb.Helper()

	path = filepath.Join(tb.TempDir(), "config.yaml")
	require.NoError(tb, os.WriteFile(path, []byte(data), 0o600))

	return path
}

// newValidConfig returns a new valid configuration for tests.
func newValidConfig() (c *configuration) {
	return &configuration{
		AdBlock: &adBlockConfig{
			Source: &sourceConfig{
				Type: hostssource.KindDefault,
			},
			FalsePositiveRate: 0.01,
			RefreshTimeout:    timeutil.Duration(time.Minute),
			MaxSize:           datasize.MB,
			Enabled:           true,
		},
		AllowList: &allowListConfig{},
	}
}

func TestParseConfig(t *testing.T) {
	c, err := parseConfig(writeConfig(t, testConfigYAML))
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	ab := c.AdBlock
	assert.True(t, ab.Enabled)
	assert.Equal(t, 0.001, ab.FalsePositiveRate)
	assert.Equal(t, timeutil.Duration(time.Hour), ab.RefreshIvl)
	assert.Equal(t, timeutil.Duration(time.Minute), ab.RefreshTimeout)
	assert.Equal(t, 32*datasize.MB, ab.MaxSize)

	conf := ab.toInternal()
	assert.True(t, conf.Enabled)
	require.NotNil(t, conf.Source)
	assert.Equal(t, hostssource.KindRemote, conf.Source.Kind)
	assert.Equal(t, "https://lists.example/hosts.txt", conf.Source.URL.String())

	assert.True(t, c.AllowList.Persist)
	assert.Equal(t, []string{"news.example", "https://www.shop.example/cart"}, c.AllowList.Initial)
}

func TestParseConfig_errors(t *testing.T) {
	_, err := parseConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = parseConfig(writeConfig(t, "adblock: [1, 2"))
	assert.Error(t, err)
}

func TestConfiguration_Validate(t *testing.T) {
	require.NoError(t, newValidConfig().Validate())

	var nilConf *configuration
	assert.ErrorIs(t, nilConf.Validate(), errors.ErrNoValue)

	testCases := []struct {
		modify      func(c *configuration)
		name        string
		wantErrPart string
	}{{
		modify:      func(c *configuration) { c.AdBlock = nil },
		name:        "no_adblock",
		wantErrPart: "adblock",
	}, {
		modify:      func(c *configuration) { c.AllowList = nil },
		name:        "no_allowlist",
		wantErrPart: "allowlist",
	}, {
		modify:      func(c *configuration) { c.AdBlock.FalsePositiveRate = 0 },
		name:        "zero_rate",
		wantErrPart: "false_positive_rate",
	}, {
		modify:      func(c *configuration) { c.AdBlock.FalsePositiveRate = 1 },
		name:        "rate_one",
		wantErrPart: "false_positive_rate",
	}, {
		modify:      func(c *configuration) { c.AdBlock.RefreshTimeout = 0 },
		name:        "zero_timeout",
		wantErrPart: "refresh_timeout",
	}, {
		modify:      func(c *configuration) { c.AdBlock.MaxSize = 0 },
		name:        "zero_max_size",
		wantErrPart: "max_size",
	}, {
		modify:      func(c *configuration) { c.AdBlock.Source = nil },
		name:        "no_source",
		wantErrPart: "source",
	}, {
		modify:      func(c *configuration) { c.AdBlock.Source.Type = "ftp" },
		name:        "bad_source_type",
		wantErrPart: "kind",
	}, {
		modify: func(c *configuration) {
			c.AdBlock.Source = &sourceConfig{Type: hostssource.KindLocal}
		},
		name:        "local_no_path",
		wantErrPart: "path",
	}, {
		modify: func(c *configuration) {
			c.AdBlock.Source = &sourceConfig{Type: hostssource.KindRemote}
		},
		name:        "remote_no_url",
		wantErrPart: "url",
	}, {
		modify: func(c *configuration) {
			c.AdBlock.Source = &sourceConfig{
				Type: hostssource.KindRemote,
				URL:  "ftp://lists.example/hosts.txt",
			}
		},
		name:        "remote_bad_scheme",
		wantErrPart: "source",
	}, {
		modify: func(c *configuration) {
			c.AllowList.Initial = []string{"news.example", "127.0.0.1"}
		},
		name:        "bad_initial",
		wantErrPart: "initial: at index 1",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := newValidConfig()
			tc.modify(c)

			assert.ErrorContains(t, c.Validate(), tc.wantErrPart)
		})
	}
}
