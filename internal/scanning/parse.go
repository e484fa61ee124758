package scanning

import (
	"fmt"

	"github.com/zombor/bill-reconciler/internal/reconcile"
)

// ToRawPages turns scanned page responses into reconciliation input.
// Pages whose scan failed become failed pages carrying the error for audit.
func ToRawPages(pages []PageText) []reconcile.RawPage {
	raw := make([]reconcile.RawPage, 0, len(pages))
	for _, p := range pages {
		if p.Err != nil {
			raw = append(raw, reconcile.FailedPage(p.Index, p.Text, fmt.Sprintf("scanning page: %v", p.Err)))
			continue
		}
		raw = append(raw, reconcile.ParsePage(p.Index, p.Text))
	}
	return raw
}
