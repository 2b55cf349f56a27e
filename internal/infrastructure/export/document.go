package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"

	"github.com/orchard/backend/internal/domain/report"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// documentTemplate lays out a report for print. Everything outside the
// generated header depends only on the payload and the title.
var documentTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"title": titleCase,
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>{{.Title}}</title>
<style>
body { font-family: "Helvetica Neue", Arial, sans-serif; font-size: 11pt; margin: 0; }
header.generated { color: #666; font-size: 9pt; text-align: right; }
h1 { font-size: 18pt; margin: 8pt 0; }
h2 { font-size: 13pt; margin: 12pt 0 6pt; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #bbb; padding: 3pt 6pt; }
td.num { text-align: right; }
tfoot td { font-weight: bold; }
section.table { page-break-before: always; }
.kpis dt { font-weight: bold; }
</style>
</head>
<body>
<header class="generated">Generated: {{.GeneratedAt}}</header>
<h1>{{.Title}}</h1>
<section class="kpis">
<h2>Summary</h2>
<dl>
{{- range .KPIs}}
<dt>{{.Label}}</dt><dd>{{.Value}}{{if .Unit}} {{.Unit}}{{end}}</dd>
{{- end}}
</dl>
</section>
{{- range .Tables}}
<section class="table" id="table-{{.Name}}">
<h2>{{title .Name}}</h2>
<table>
<thead><tr>{{range .Headers}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{- range .Rows}}
<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{- end}}
</tbody>
{{- if .Totals}}
<tfoot><tr>{{range .Totals}}<td>{{.}}</td>{{end}}</tr></tfoot>
{{- end}}
</table>
</section>
{{- end}}
{{- if .Series}}
<section class="series">
<h2>Series</h2>
{{- range .Series}}
<h3>{{.Label}} ({{.Type}})</h3>
<table>
<thead><tr><th>Date</th><th>Value</th></tr></thead>
<tbody>
{{- range .Data}}
<tr><td>{{.X}}</td><td class="num">{{.Y}}</td></tr>
{{- end}}
</tbody>
</table>
{{- end}}
</section>
{{- end}}
</body>
</html>
`))

type documentTable struct {
	Name string
	report.Table
}

type documentView struct {
	Title       string
	GeneratedAt string
	KPIs        []report.KPI
	Tables      []documentTable
	Series      []report.Series
}

func renderDocument(title string, payload *report.Payload, generatedAt time.Time) ([]byte, error) {
	view := documentView{
		Title:       title,
		GeneratedAt: generatedAt.Format(time.RFC3339),
		KPIs:        payload.KPIs,
		Series:      payload.Series,
	}
	for _, name := range payload.TableNames() {
		view.Tables = append(view.Tables, documentTable{Name: name, Table: payload.Tables[name]})
	}

	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, view); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// titleCase turns a table name such as "monthly_sales" into "Monthly Sales"
func titleCase(s string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(s, "_", " "))
}
