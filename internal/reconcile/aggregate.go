package reconcile

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// StatedTotals collects the totals a document claims, keyed by page index
type StatedTotals map[int]PageTotals

// Aggregate sums the surviving items into a Bill and reconciles the computed
// totals against the stated ones. The computed total is always authoritative.
func Aggregate(pages []PageItems, stated StatedTotals, issues []ValidationIssue, cfg Config) *Bill {
	bill := &Bill{
		PagewiseLineItems: make([]PageItems, 0, len(pages)),
		FinalTotal:        decimal.Zero,
		Issues:            append([]ValidationIssue(nil), issues...),
	}

	var (
		statedSubtotal decimal.Decimal
		haveSubtotal   bool
		statedFinal    *decimal.Decimal
		finalPage      int
	)

	for _, p := range pages {
		items := p.LineItems
		if items == nil {
			items = []LineItem{}
		}
		bill.PagewiseLineItems = append(bill.PagewiseLineItems, PageItems{PageIndex: p.PageIndex, LineItems: items})
		bill.TotalItemCount += len(items)

		pageSum := decimal.Zero
		for _, item := range items {
			pageSum = pageSum.Add(item.Amount)
		}
		bill.FinalTotal = bill.FinalTotal.Add(pageSum)

		t, ok := stated[p.PageIndex]
		if !ok {
			continue
		}
		if t.Subtotal != nil {
			statedSubtotal = statedSubtotal.Add(*t.Subtotal)
			haveSubtotal = true
			printed := pageSum
			for _, item := range p.Removed {
				printed = printed.Add(item.Amount)
			}
			if len(items)+len(p.Removed) > 0 {
				if issue := compareTotal(p.PageIndex, "page subtotal", printed, *t.Subtotal, cfg); issue != nil {
					bill.Issues = append(bill.Issues, *issue)
				}
			}
		}
		// The last page that states a final total wins
		if t.FinalTotal != nil {
			statedFinal = t.FinalTotal
			finalPage = p.PageIndex
		}
	}

	if haveSubtotal {
		s := statedSubtotal
		bill.Subtotal = &s
	}

	if statedFinal != nil {
		if issue := compareTotal(finalPage, "final total", bill.FinalTotal, *statedFinal, cfg); issue != nil {
			bill.Issues = append(bill.Issues, *issue)
		}
	}

	return bill
}

func compareTotal(page int, label string, computed, stated decimal.Decimal, cfg Config) *ValidationIssue {
	tolerance := cfg.totalTolerance(stated)
	diff := computed.Sub(stated).Abs()
	if diff.LessThanOrEqual(tolerance) {
		return nil
	}
	return &ValidationIssue{
		Kind:      IssueTotalMismatch,
		PageIndex: page,
		Detail: fmt.Sprintf("stated %s %s differs from computed %s by %s (tolerance %s)",
			label, stated.StringFixed(2), computed.StringFixed(2), diff.StringFixed(2), tolerance.StringFixed(2)),
	}
}
