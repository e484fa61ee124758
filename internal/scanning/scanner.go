package scanning

import (
	"context"
	"fmt"
	"net/http"
)

// Scanner extracts the line items of a single rendered bill page
type Scanner interface {
	// ScanPage sends one PNG page to the model and returns its raw response
	ScanPage(ctx context.Context, image []byte) (string, error)
	// Close closes the scanner and releases resources
	Close() error
}

// PageText is the raw model response for one page of a document
type PageText struct {
	Index int    `json:"page_index"`
	Text  string `json:"response"`
	Err   error  `json:"-"`
	// Error mirrors Err for diagnostics output
	Error string `json:"error,omitempty"`
}

// StatusError is a non-200 answer from a model API
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model API error (status %d): %s", e.Code, e.Body)
}

// Temporary reports whether retrying the request may succeed
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}
