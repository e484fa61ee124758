package reconcile

import (
	"errors"
	"fmt"
)

// IssueKind classifies a non-fatal finding
type IssueKind string

const (
	IssuePageFailed         IssueKind = "page_failed"
	IssueSchemaError        IssueKind = "schema_error"
	IssueDuplicateRemoved   IssueKind = "duplicate_removed"
	IssueArithmeticRepaired IssueKind = "arithmetic_repaired"
	IssueArithmeticMismatch IssueKind = "arithmetic_mismatch"
	IssueTotalMismatch      IssueKind = "total_mismatch"
)

// ValidationIssue is a non-fatal finding recorded while reconciling a bill
type ValidationIssue struct {
	Kind          IssueKind `json:"kind"`
	PageIndex     int       `json:"page_index"`
	ItemSignature string    `json:"item_signature,omitempty"`
	Detail        string    `json:"detail"`
}

// SchemaError reports page data that cannot be coerced to the line item contract.
// Item is -1 when the error concerns the page rather than a single item.
type SchemaError struct {
	Page   int
	Item   int
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Item < 0 {
		return fmt.Sprintf("page %d: %s: %s", e.Page, e.Field, e.Reason)
	}
	return fmt.Sprintf("page %d item %d: %s: %s", e.Page, e.Item, e.Field, e.Reason)
}

// ErrEmptyDocument is returned when no page yielded a usable line item
var ErrEmptyDocument = errors.New("document contains no usable line items")

// EmptyDocumentError carries the issues collected before reconciliation gave up
type EmptyDocumentError struct {
	Pages  int
	Issues []ValidationIssue
}

func (e *EmptyDocumentError) Error() string {
	return fmt.Sprintf("%s (%d pages, %d issues)", ErrEmptyDocument.Error(), e.Pages, len(e.Issues))
}

func (e *EmptyDocumentError) Unwrap() error {
	return ErrEmptyDocument
}
