// Package version contains HostsGuard version information.
package version

// These can be set by the linker.  Go has no immutable variables, so they are
// only exported through getters.
var (
	branch     string
	committime string
	revision   string
	version    string = "v0.0.0-dev"
)

// name is the name of the service used in logs and HTTP headers.
const name = "HostsGuard"

// Branch returns the compiled-in value of the Git branch.
func Branch() (b string) {
	return branch
}

// CommitTime returns the compiled-in value of the commit time as a string.
func CommitTime() (t string) {
	return committime
}

// Revision returns the compiled-in value of the Git revision.
func Revision() (r string) {
	return revision
}

// Version returns the compiled-in value of the HostsGuard version as a string.
func Version() (v string) {
	return version
}

// Name returns the name of the service.
func Name() (n string) {
	return name
}

// UserAgent returns the ID of the service as a User-Agent string.  It can also
// be used as the value of the Server HTTP header.
func UserAgent() (ua string) {
	return name + "/" + version
}
