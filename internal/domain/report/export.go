package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/orchard/backend/internal/domain/shared"
)

// Format is an export format
type Format string

const (
	FormatDocument    Format = "document"
	FormatSpreadsheet Format = "spreadsheet"
)

// AllFormats returns the recognized export formats
func AllFormats() []Format {
	return []Format{FormatDocument, FormatSpreadsheet}
}

// ParseFormat converts a request value into a Format
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if !f.IsValid() {
		return "", shared.NewDomainError(shared.CodeUnsupportedFormat, fmt.Sprintf("unsupported export format %q", s))
	}
	return f, nil
}

// IsValid returns true if the format is recognized
func (f Format) IsValid() bool {
	return f == FormatDocument || f == FormatSpreadsheet
}

// Artifact is a fully rendered export
type Artifact struct {
	Format      Format
	ContentType string
	Extension   string
	Data        []byte
	GeneratedAt time.Time
}

// Exporter renders an already computed payload. Implementations never read
// the farm data source.
type Exporter interface {
	Render(ctx context.Context, payload *Payload, format Format) (*Artifact, error)
}
