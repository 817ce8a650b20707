package report

import "time"

// Row is one transaction line in a rendered report
type Row struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Reference   string `json:"reference,omitempty"`
	Amount      string `json:"amount"`
}

// Totals summarizes the report's transaction rows
type Totals struct {
	Subtotal string `json:"subtotal"`
	Tax      string `json:"tax,omitempty"`
	Total    string `json:"total"`
	Currency string `json:"currency"`
}

// Document is the structured input for one report render. It arrives as the
// opaque job payload and is treated as untrusted text end to end.
type Document struct {
	Title       string    `json:"title"`
	Tenant      string    `json:"tenant"`
	Rows        []Row     `json:"rows"`
	Totals      Totals    `json:"totals"`
	GeneratedAt time.Time `json:"generated_at"`
}
