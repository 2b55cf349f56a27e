package report

import (
	"context"
)

// ComputeFunc produces a payload on a cache miss or forced refresh
type ComputeFunc func(ctx context.Context) (*Payload, error)

// Cache is the read-through report cache. Entries are keyed purely by
// (type, params, version) and never by caller identity.
type Cache interface {
	// GetOrCompute returns the live entry for the key, or runs compute and
	// stores its result. forceRefresh always recomputes and overwrites.
	// A failed compute leaves any existing entry untouched.
	GetOrCompute(ctx context.Context, reportType ReportType, params Params, version string, forceRefresh bool, compute ComputeFunc) (*Payload, ReportKey, error)
}

// VersionSource provides the effective schema version per report type
type VersionSource interface {
	// Version returns the current version for the report type
	Version(ctx context.Context, reportType ReportType) (string, error)
	// Bump moves the report type to a new version, making every entry built
	// under the previous version unreachable
	Bump(ctx context.Context, reportType ReportType) (string, error)
}
