package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/orchard/backend/internal/domain/shared"
)

// KeyPrefix is the namespace tag in front of every report cache key
const KeyPrefix = "report_"

// ReportKey identifies one cached report. It is immutable once built.
type ReportKey struct {
	reportType ReportType
	params     Params
	version    string
	hash       string
}

// canonicalKey is the hash input. Field order is fixed by the struct and
// params are already sorted, so the encoding is deterministic.
type canonicalKey struct {
	Type    ReportType  `json:"type"`
	Params  [][3]string `json:"params"`
	Version string      `json:"version"`
}

// BuildKey derives the cache key for a report type, parameter set and schema
// version. The version is part of the hash input, so bumping it yields keys
// disjoint from every key built with the previous version.
func BuildKey(reportType ReportType, params Params, version string) (ReportKey, error) {
	if !reportType.IsValid() {
		return ReportKey{}, shared.InvalidParameterf("unknown report type %q", reportType)
	}
	if version == "" {
		return ReportKey{}, shared.InvalidParameterf("schema version must not be empty")
	}

	ck := canonicalKey{
		Type:    reportType,
		Params:  make([][3]string, 0, params.Len()),
		Version: version,
	}
	for _, p := range params.items {
		ck.Params = append(ck.Params, [3]string{p.Name, string(p.Kind), p.Value})
	}

	canonical, err := json.Marshal(ck)
	if err != nil {
		return ReportKey{}, shared.WrapDomainError(shared.CodeInvalidParameter, "failed to encode report key", err)
	}
	sum := sha256.Sum256(canonical)

	return ReportKey{
		reportType: reportType,
		params:     params,
		version:    version,
		hash:       hex.EncodeToString(sum[:]),
	}, nil
}

// BuildKeyFromMap canonicalizes a loosely typed mapping and builds the key
func BuildKeyFromMap(reportType ReportType, values map[string]any, version string) (ReportKey, error) {
	params, err := NewParams(values)
	if err != nil {
		return ReportKey{}, err
	}
	return BuildKey(reportType, params, version)
}

// String returns the namespaced key, e.g. report_3f1a...
func (k ReportKey) String() string {
	return KeyPrefix + k.hash
}

// Type returns the report type the key was built for
func (k ReportKey) Type() ReportType {
	return k.reportType
}

// Params returns the canonical parameter set
func (k ReportKey) Params() Params {
	return k.params
}

// Version returns the schema version the key was built with
func (k ReportKey) Version() string {
	return k.version
}

// IsZero returns true for a key that was never built
func (k ReportKey) IsZero() bool {
	return k.hash == ""
}

// GoString makes keys readable in test failure output
func (k ReportKey) GoString() string {
	return fmt.Sprintf("ReportKey(%s %s v=%s)", k.reportType, k.String(), k.version)
}
