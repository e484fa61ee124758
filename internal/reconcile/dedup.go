package reconcile

import (
	"fmt"
)

// Deduplicate removes rows that a page re-photographed from the end of the
// previous page. Only pages whose indexes differ by one are compared.
//
// The head of the later page is scanned until DedupWindow rows have been
// kept; any scanned row whose signature and amount match a row in the last
// DedupWindow rows of the earlier page is dropped. Because the rows kept in
// that scan are exactly the head seen by a second pass, the operation is
// idempotent.
func Deduplicate(pages []PageItems, cfg Config) ([]PageItems, []ValidationIssue) {
	out := make([]PageItems, len(pages))
	for i, p := range pages {
		out[i] = PageItems{
			PageIndex: p.PageIndex,
			LineItems: append([]LineItem(nil), p.LineItems...),
			Removed:   append([]LineItem(nil), p.Removed...),
		}
	}
	if cfg.DedupWindow <= 0 {
		return out, nil
	}

	var issues []ValidationIssue
	for i := 0; i+1 < len(out); i++ {
		prev, next := &out[i], &out[i+1]
		if next.PageIndex-prev.PageIndex != 1 || len(prev.LineItems) == 0 || len(next.LineItems) == 0 {
			continue
		}

		tail := prev.LineItems[max(0, len(prev.LineItems)-cfg.DedupWindow):]
		kept := make([]LineItem, 0, len(next.LineItems))
		scanned := 0
		for j, item := range next.LineItems {
			if scanned >= cfg.DedupWindow {
				kept = append(kept, next.LineItems[j:]...)
				break
			}
			if orig, ok := findDuplicate(tail, item, cfg); ok {
				issues = append(issues, ValidationIssue{
					Kind:          IssueDuplicateRemoved,
					PageIndex:     next.PageIndex,
					ItemSignature: item.SourceSignature,
					Detail: fmt.Sprintf("%q (amount %s) repeats the last rows of page %d (amount %s)",
						item.Description, item.Amount.StringFixed(2), prev.PageIndex, orig.Amount.StringFixed(2)),
				})
				next.Removed = append(next.Removed, item)
				continue
			}
			kept = append(kept, item)
			scanned++
		}
		next.LineItems = kept
	}
	return out, issues
}

func findDuplicate(tail []LineItem, item LineItem, cfg Config) (LineItem, bool) {
	for _, t := range tail {
		if t.SourceSignature == item.SourceSignature && cfg.within(t.Amount, item.Amount) {
			return t, true
		}
	}
	return LineItem{}, false
}
