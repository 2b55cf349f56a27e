package handler

import (
	"time"

	"github.com/orchard/backend/internal/domain/report"
	"github.com/orchard/backend/internal/domain/shared"
)

const dateLayout = "2006-01-02"

// parseDate parses an optional YYYY-MM-DD query value as a UTC calendar date
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return nil, shared.InvalidParameterf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return &t, nil
}

func invalidID(reportType report.ReportType, raw string) error {
	return shared.InvalidParameterf("invalid %s id %q", reportType, raw)
}
