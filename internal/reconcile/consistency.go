package reconcile

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type repair struct {
	field string
	from  decimal.Decimal
	to    decimal.Decimal
	apply func(*LineItem)
}

// Check verifies amount == rate × quantity for one item.
//
// A mismatching item is repaired only when exactly one field can be solved
// for a clean value that restores the equation: an integer-like quantity, a
// rate with at most two decimals, or an amount the model left at zero.
// Otherwise the item is returned unchanged with an arithmetic_mismatch issue.
func Check(item LineItem, cfg Config) (LineItem, *ValidationIssue) {
	expected := item.Rate.Mul(item.Quantity)
	if cfg.within(item.Amount, expected) {
		return item, nil
	}

	var candidates []repair

	if !item.Rate.IsZero() {
		q := item.Amount.Div(item.Rate)
		rounded := q.Round(0)
		if !rounded.IsZero() && cfg.within(q, rounded) && cfg.within(rounded.Mul(item.Rate), item.Amount) {
			candidates = append(candidates, repair{
				field: "quantity", from: item.Quantity, to: rounded,
				apply: func(l *LineItem) { l.Quantity = rounded },
			})
		}
	}

	if !item.Quantity.IsZero() {
		r := item.Amount.Div(item.Quantity)
		rounded := r.Round(2)
		if !rounded.IsZero() && r.Round(4).Equal(rounded) && cfg.within(rounded.Mul(item.Quantity), item.Amount) {
			candidates = append(candidates, repair{
				field: "rate", from: item.Rate, to: rounded,
				apply: func(l *LineItem) { l.Rate = rounded },
			})
		}
	}

	if item.Amount.IsZero() && !expected.IsZero() {
		rounded := expected.Round(2)
		candidates = append(candidates, repair{
			field: "amount", from: item.Amount, to: rounded,
			apply: func(l *LineItem) { l.Amount = rounded },
		})
	}

	if len(candidates) != 1 {
		return item, &ValidationIssue{
			Kind:          IssueArithmeticMismatch,
			PageIndex:     item.PageIndex,
			ItemSignature: item.SourceSignature,
			Detail: fmt.Sprintf("%q: rate %s x quantity %s = %s, but amount is %s",
				item.Description, item.Rate, item.Quantity, expected.StringFixed(2), item.Amount.StringFixed(2)),
		}
	}

	fix := candidates[0]
	repaired := item
	fix.apply(&repaired)
	repaired.SourceSignature = Signature(repaired.Description, repaired.Quantity, repaired.Rate)

	return repaired, &ValidationIssue{
		Kind:          IssueArithmeticRepaired,
		PageIndex:     item.PageIndex,
		ItemSignature: repaired.SourceSignature,
		Detail:        fmt.Sprintf("%q: %s corrected from %s to %s", item.Description, fix.field, fix.from, fix.to),
	}
}

// CheckPages runs Check over every item, preserving page order
func CheckPages(pages []PageItems, cfg Config) ([]PageItems, []ValidationIssue) {
	var issues []ValidationIssue
	out := make([]PageItems, len(pages))
	for i, p := range pages {
		items := make([]LineItem, len(p.LineItems))
		for j, item := range p.LineItems {
			checked, issue := Check(item, cfg)
			items[j] = checked
			if issue != nil {
				issues = append(issues, *issue)
			}
		}
		out[i] = PageItems{PageIndex: p.PageIndex, LineItems: items, Removed: p.Removed}
	}
	return out, issues
}
