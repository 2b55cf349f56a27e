package export

import (
	"bytes"
	"encoding/csv"
	"time"

	"github.com/orchard/backend/internal/domain/report"
)

// renderSpreadsheet writes the payload as RFC 4180 CSV. Blocks are separated
// by blank lines and introduced by a "# kind,..." marker row.
func renderSpreadsheet(payload *report.Payload, generatedAt time.Time) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true

	write := func(record ...string) {
		// errors surface through w.Error after Flush
		_ = w.Write(record)
	}

	write("# generated_at", generatedAt.Format(time.RFC3339))
	write()

	write("KPI", "Value", "Unit")
	for _, k := range payload.KPIs {
		write(k.Label, k.Value, k.Unit)
	}

	for _, name := range payload.TableNames() {
		table := payload.Tables[name]
		write()
		write("# table", name)
		write(table.Headers...)
		for _, row := range table.Rows {
			write(row...)
		}
		if len(table.Totals) > 0 {
			write(table.Totals...)
		}
	}

	for _, s := range payload.Series {
		write()
		write("# series", s.ID, s.Label, s.Type)
		write("x", "y")
		for _, pt := range s.Data {
			write(pt.X, pt.Y)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
