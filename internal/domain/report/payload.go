package report

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DateLayout is the only date representation allowed in a payload
	DateLayout = "2006-01-02"
	// CurrencyPlaces is the precision money is rounded to when placed in a payload
	CurrencyPlaces = 2
)

// Series chart types
const (
	SeriesTypeLine = "line"
	SeriesTypeBar  = "bar"
)

// KPI is a single named summary metric
type KPI struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Unit  string `json:"unit"`
}

// Table is a named tabular breakdown. Every cell is already formatted text.
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
	Totals  []string   `json:"totals"`
}

// Point is one series data point; X is a calendar date, Y a decimal string
type Point struct {
	X string `json:"x"`
	Y string `json:"y"`
}

// Series is an ordered chart series
type Series struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	Type  string  `json:"type"`
	Data  []Point `json:"data"`
}

// Payload is the computed report artifact served to the front-end and handed
// unchanged to exporters. A payload is shared between callers and must be
// treated as read-only once built.
type Payload struct {
	KPIs   []KPI            `json:"kpis"`
	Tables map[string]Table `json:"tables"`
	Series []Series         `json:"series"`
}

// NewPayload returns an empty payload whose collections encode as [] and {}
func NewPayload() *Payload {
	return &Payload{
		KPIs:   []KPI{},
		Tables: map[string]Table{},
		Series: []Series{},
	}
}

// KPI returns the KPI with the given label
func (p *Payload) KPI(label string) (KPI, bool) {
	for _, k := range p.KPIs {
		if k.Label == label {
			return k, true
		}
	}
	return KPI{}, false
}

// TableNames returns the table names in sorted order
func (p *Payload) TableNames() []string {
	names := make([]string, 0, len(p.Tables))
	for name := range p.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Encode serializes the payload. encoding/json sorts map keys, so equal
// payloads always encode to identical bytes.
func (p *Payload) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// DecodePayload parses a payload produced by Encode
func DecodePayload(data []byte) (*Payload, error) {
	p := NewPayload()
	if err := json.Unmarshal(data, p); err != nil {
		return nil, err
	}
	return p, nil
}

// NewTable returns a table with non-nil rows and totals
func NewTable(headers ...string) Table {
	return Table{
		Headers: headers,
		Rows:    [][]string{},
		Totals:  []string{},
	}
}

// FormatMoney rounds half away from zero to currency precision and renders a
// fixed-point string. This is the only place money is rounded.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(CurrencyPlaces)
}

// FormatQuantity renders a quantity with the same fixed precision as money
func FormatQuantity(d decimal.Decimal) string {
	return d.StringFixed(CurrencyPlaces)
}

// FormatDate renders the calendar date recorded in t without converting
// zones, so the same stored date renders identically on every server.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseMoney parses a payload money string back into a decimal
func ParseMoney(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}
