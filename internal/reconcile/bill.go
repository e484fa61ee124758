package reconcile

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// LineItem is one validated row of a bill
type LineItem struct {
	Description     string          `json:"description"`
	Quantity        decimal.Decimal `json:"quantity"`
	Rate            decimal.Decimal `json:"rate"`
	Amount          decimal.Decimal `json:"amount"`
	PageIndex       int             `json:"page_index"`
	SourceSignature string          `json:"source_signature"`
}

// MarshalJSON writes numeric fields as JSON numbers rather than strings
func (l LineItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Description     string      `json:"description"`
		Quantity        json.Number `json:"quantity"`
		Rate            json.Number `json:"rate"`
		Amount          json.Number `json:"amount"`
		PageIndex       int         `json:"page_index"`
		SourceSignature string      `json:"source_signature"`
	}{
		Description:     l.Description,
		Quantity:        number(l.Quantity),
		Rate:            number(l.Rate),
		Amount:          money(l.Amount),
		PageIndex:       l.PageIndex,
		SourceSignature: l.SourceSignature,
	})
}

// PageItems holds the surviving line items of a single page
type PageItems struct {
	PageIndex int        `json:"page_index"`
	LineItems []LineItem `json:"line_items"`
	// Removed holds rows dropped as copies of the previous page; the page's
	// printed subtotal still counts them
	Removed []LineItem `json:"-"`
}

// Bill is the consolidated, validated output for one document
type Bill struct {
	PagewiseLineItems []PageItems       `json:"pagewise_line_items"`
	TotalItemCount    int               `json:"total_item_count"`
	Subtotal          *decimal.Decimal  `json:"subtotal,omitempty"`
	FinalTotal        decimal.Decimal   `json:"final_total"`
	Issues            []ValidationIssue `json:"issues"`
}

// MarshalJSON writes totals as JSON numbers and omits an undetermined subtotal
func (b Bill) MarshalJSON() ([]byte, error) {
	out := struct {
		PagewiseLineItems []PageItems       `json:"pagewise_line_items"`
		TotalItemCount    int               `json:"total_item_count"`
		Subtotal          *json.Number      `json:"subtotal,omitempty"`
		FinalTotal        json.Number       `json:"final_total"`
		Issues            []ValidationIssue `json:"issues"`
	}{
		PagewiseLineItems: b.PagewiseLineItems,
		TotalItemCount:    b.TotalItemCount,
		FinalTotal:        money(b.FinalTotal),
		Issues:            b.Issues,
	}
	if out.PagewiseLineItems == nil {
		out.PagewiseLineItems = []PageItems{}
	}
	if out.Issues == nil {
		out.Issues = []ValidationIssue{}
	}
	if b.Subtotal != nil {
		s := money(*b.Subtotal)
		out.Subtotal = &s
	}
	return json.Marshal(out)
}

// Items returns every surviving line item in page order
func (b *Bill) Items() []LineItem {
	items := make([]LineItem, 0, b.TotalItemCount)
	for _, p := range b.PagewiseLineItems {
		items = append(items, p.LineItems...)
	}
	return items
}

// IssuesOfKind filters the bill's issues by kind
func (b *Bill) IssuesOfKind(kind IssueKind) []ValidationIssue {
	var out []ValidationIssue
	for _, issue := range b.Issues {
		if issue.Kind == kind {
			out = append(out, issue)
		}
	}
	return out
}

func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}
