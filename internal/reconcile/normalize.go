package reconcile

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Normalize converts validated items of a page into line items
func Normalize(page int, items []RawItem) []LineItem {
	out := make([]LineItem, 0, len(items))
	for _, item := range items {
		desc := collapseSpaces(item.Description)
		out = append(out, LineItem{
			Description:     desc,
			Quantity:        item.Quantity,
			Rate:            item.Rate,
			Amount:          item.Amount,
			PageIndex:       page,
			SourceSignature: Signature(desc, item.Quantity, item.Rate),
		})
	}
	return out
}

// Signature builds the duplicate-detection key of a row.
// Amount is left out so that OCR drift on a re-scanned row still matches.
func Signature(description string, quantity, rate decimal.Decimal) string {
	return strings.ToLower(collapseSpaces(description)) +
		"|" + quantity.StringFixed(2) +
		"|" + rate.StringFixed(2)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
