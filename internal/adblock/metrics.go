package adblock

// Metrics is an interface that is used for the collection of the blocking
// statistics.
type Metrics interface {
	// IncrementLookups increments the number of lookups.  blocked is the
	// result of the lookup.
	IncrementLookups(blocked bool)
}

// EmptyMetrics is the implementation of the [Metrics] interface that does
// nothing.
type EmptyMetrics struct{}

// type check
var _ Metrics = EmptyMetrics{}

// IncrementLookups implements the [Metrics] interface for EmptyMetrics.
func (EmptyMetrics) IncrementLookups(_ bool) {}
