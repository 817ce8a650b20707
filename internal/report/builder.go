// Package report turns structured transaction data into a self-contained HTML
// document ready for PDF printing. Build is a pure function: no I/O, no
// network fetches, every asset inlined.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// All field values pass through html/template's contextual escaping, so
// tenant-supplied text can't inject markup into the rendered document.
const documentTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Helvetica, Arial, sans-serif; margin: 40px; color: #1a1a1a; }
h1 { font-size: 20px; border-bottom: 2px solid #1a1a1a; padding-bottom: 8px; }
.meta { font-size: 11px; color: #666; margin-bottom: 24px; }
table { width: 100%; border-collapse: collapse; font-size: 12px; }
th { text-align: left; border-bottom: 1px solid #999; padding: 6px 8px; }
td { border-bottom: 1px solid #e0e0e0; padding: 6px 8px; }
td.amount, th.amount { text-align: right; }
.totals { margin-top: 16px; width: 40%; margin-left: auto; font-size: 12px; }
.totals td { border: none; padding: 3px 8px; }
.totals tr.grand td { border-top: 1px solid #1a1a1a; font-weight: bold; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<div class="meta">{{.Tenant}} &middot; generated {{.Generated}}</div>
<table>
<thead>
<tr><th>Date</th><th>Description</th><th>Reference</th><th class="amount">Amount</th></tr>
</thead>
<tbody>
{{range .Rows}}<tr><td>{{.Date}}</td><td>{{.Description}}</td><td>{{.Reference}}</td><td class="amount">{{.Amount}}</td></tr>
{{end}}</tbody>
</table>
<table class="totals">
<tr><td>Subtotal</td><td class="amount">{{.Totals.Subtotal}} {{.Totals.Currency}}</td></tr>
{{if .Totals.Tax}}<tr><td>Tax</td><td class="amount">{{.Totals.Tax}} {{.Totals.Currency}}</td></tr>
{{end}}<tr class="grand"><td>Total</td><td class="amount">{{.Totals.Total}} {{.Totals.Currency}}</td></tr>
</table>
</body>
</html>
`

var documentTmpl = template.Must(template.New("report").Parse(documentTemplate))

// Build renders the document to HTML. Deterministic for a given input.
func Build(doc *Document) (string, error) {
	if doc == nil {
		return "", fmt.Errorf("document is required")
	}
	if doc.Title == "" {
		return "", fmt.Errorf("document title is required")
	}

	generated := doc.GeneratedAt
	if generated.IsZero() {
		generated = time.Now().UTC()
	}

	var buf bytes.Buffer
	err := documentTmpl.Execute(&buf, struct {
		*Document
		Generated string
	}{
		Document:  doc,
		Generated: generated.UTC().Format("2006-01-02 15:04 MST"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render report document: %w", err)
	}

	return buf.String(), nil
}
