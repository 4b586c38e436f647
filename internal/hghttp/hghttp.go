// Package hghttp contains common constants, functions, and types for working
// with HTTP.
package hghttp

import "github.com/hostsguard/hostsguard/internal/version"

// HTTP header value constants.
const (
	HdrValApplicationJSON = "application/json"
	HdrValTextPlain       = "text/plain"
)

// userAgent is the cached User-Agent string for HostsGuard.
var userAgent = version.UserAgent()

// UserAgent returns the ID of the service as a User-Agent string.  It can also
// be used as the value of the Server HTTP header.
func UserAgent() (ua string) {
	return userAgent
}
