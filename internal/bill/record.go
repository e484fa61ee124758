package bill

import (
	"errors"
	"time"

	"github.com/zombor/bill-reconciler/internal/reconcile"
)

// ErrNotFound is returned when a stored bill does not exist
var ErrNotFound = errors.New("bill not found")

// Record is a reconciled bill together with its source document
type Record struct {
	ID          string          `json:"id"`
	Filename    string          `json:"filename"`
	ContentType string          `json:"content_type"`
	SourceURL   string          `json:"source_url,omitempty"`
	PageCount   int             `json:"page_count"`
	Bill        *reconcile.Bill `json:"bill"`
	CreatedAt   time.Time       `json:"created_at"`
}
