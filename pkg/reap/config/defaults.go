// Package config provides configuration management for the reap archive
// verifier.
package config

// Default configuration values for reap.
const (
	// DefaultWorkers is the number of parallel archive workers.
	// Extraction and hashing are disk-bound, so the default stays small.
	DefaultWorkers = 2

	// DefaultRetries is the number of retry rounds after the initial pass.
	DefaultRetries = 2

	// DefaultOrder is the batch processing order by archive size.
	DefaultOrder = "asc"

	// DefaultSpaceThresholdPercent pauses new work when free space on the
	// destination mount is at or below this percentage.
	DefaultSpaceThresholdPercent = 10.0

	// DefaultSpacePollInterval is how often the space guard re-checks, in
	// seconds.
	DefaultSpacePollInterval = 30

	// DefaultDedupMinSize is the minimum file size considered for
	// hard-link deduplication.
	DefaultDedupMinSize = "1GiB"

	// DefaultMismatchDetail is the number of differing paths reported on a
	// manifest mismatch.
	DefaultMismatchDetail = 10
)

// DefaultIncludes matches the archive container formats reap understands.
var DefaultIncludes = []string{
	"*.tar",
	"*.tar.gz",
	"*.tgz",
	"*.tar.zst",
	"*.tzst",
}
