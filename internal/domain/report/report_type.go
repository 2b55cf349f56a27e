package report

import (
	"strings"

	"github.com/orchard/backend/internal/domain/shared"
)

// ReportType identifies the scope a report is computed for
type ReportType string

const (
	ReportTypeHarvest ReportType = "harvest"
	ReportTypeSeason  ReportType = "season"
	ReportTypeOrchard ReportType = "orchard"
)

// AllReportTypes returns all available report types
func AllReportTypes() []ReportType {
	return []ReportType{
		ReportTypeHarvest,
		ReportTypeSeason,
		ReportTypeOrchard,
	}
}

// ParseReportType converts a path or config value into a ReportType
func ParseReportType(s string) (ReportType, error) {
	t := ReportType(strings.ToLower(strings.TrimSpace(s)))
	// accept plural path segments such as "harvests"
	t = ReportType(strings.TrimSuffix(string(t), "s"))
	if !t.IsValid() {
		return "", shared.InvalidParameterf("unknown report type %q", s)
	}
	return t, nil
}

// IsValid returns true if the type is a recognized report type
func (t ReportType) IsValid() bool {
	switch t {
	case ReportTypeHarvest, ReportTypeSeason, ReportTypeOrchard:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer
func (t ReportType) String() string {
	return string(t)
}
