// Package reconcile turns per-page extraction output into a single,
// internally consistent bill.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"
)

// maxAuditText bounds how much of a failed response is copied into an issue
const maxAuditText = 200

// Reconciler validates, deduplicates and aggregates the pages of one document.
// It holds no per-document state and is safe for concurrent use.
type Reconciler struct {
	cfg Config
}

// NewReconciler creates a Reconciler with the given policy
func NewReconciler(cfg Config) (*Reconciler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reconcile config: %w", err)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Reconciler{cfg: cfg}, nil
}

// pageResult is the output of the per-page stage
type pageResult struct {
	index  int
	items  []LineItem
	totals PageTotals
	issues []ValidationIssue
	usable bool
}

// Reconcile produces the Bill for a document's pages.
// It returns an *EmptyDocumentError when no page yields a valid line item.
func (r *Reconciler) Reconcile(ctx context.Context, pages []RawPage) (*Bill, error) {
	results := make([]pageResult, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i, page := range pages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = validatePage(page)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Boundary comparisons need original page order
	sort.SliceStable(results, func(a, b int) bool { return results[a].index < results[b].index })

	var (
		issues  []ValidationIssue
		ordered = make([]PageItems, 0, len(results))
		stated  = make(StatedTotals)
		found   int
	)
	for _, res := range results {
		issues = append(issues, res.issues...)
		ordered = append(ordered, PageItems{PageIndex: res.index, LineItems: res.items})
		if res.usable {
			stated[res.index] = res.totals
		}
		found += len(res.items)
	}

	if found == 0 {
		slog.Warn("Document has no usable line items", "pages", len(pages), "issues", len(issues))
		return nil, &EmptyDocumentError{Pages: len(pages), Issues: issues}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deduped, dupIssues := Deduplicate(ordered, r.cfg)
	issues = append(issues, dupIssues...)

	checked, mathIssues := CheckPages(deduped, r.cfg)
	issues = append(issues, mathIssues...)

	bill := Aggregate(checked, stated, issues, r.cfg)

	slog.Debug("Reconciled bill",
		"pages", len(pages),
		"items", bill.TotalItemCount,
		"duplicates_removed", len(dupIssues),
		"final_total", bill.FinalTotal.StringFixed(2),
		"issues", len(bill.Issues),
	)
	return bill, nil
}

// validatePage runs the schema validator and normalizer for one page
func validatePage(page RawPage) pageResult {
	res := pageResult{index: page.Index}

	if page.Failed {
		res.issues = append(res.issues, ValidationIssue{
			Kind:      IssuePageFailed,
			PageIndex: page.Index,
			Detail:    fmt.Sprintf("page could not be parsed (%s): %s", page.Reason, truncate(page.Text, maxAuditText)),
		})
		return res
	}

	raw, err := ValidatePage(page)
	if err != nil {
		var schemaErr *SchemaError
		detail := err.Error()
		if errors.As(err, &schemaErr) {
			detail = fmt.Sprintf("page excluded: %s", schemaErr.Error())
		}
		res.issues = append(res.issues, ValidationIssue{
			Kind:      IssueSchemaError,
			PageIndex: page.Index,
			Detail:    detail,
		})
		return res
	}

	totals, totalIssues := ReadStatedTotals(page)
	res.issues = append(res.issues, totalIssues...)
	res.totals = totals
	res.items = Normalize(page.Index, raw)
	res.usable = true
	return res
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
