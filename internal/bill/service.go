package bill

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/bill-reconciler/internal/reconcile"
	"github.com/zombor/bill-reconciler/internal/scanning"
)

// IDGenerator generates unique IDs for bills
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// Engine reconciles the raw pages of one document into a bill
type Engine interface {
	Reconcile(ctx context.Context, pages []reconcile.RawPage) (*reconcile.Bill, error)
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Options holds the optional collaborators of a Service
type Options struct {
	// Workers bounds concurrent page scans per document
	Workers int
	Fetcher Fetcher
	Metrics *Metrics
}

// Service handles bill operations
type Service struct {
	db          DB
	scanner     scanning.Scanner
	storage     Storage
	engine      Engine
	fetcher     Fetcher
	metrics     *Metrics
	workers     int
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, scanner scanning.Scanner, storage Storage, engine Engine, opts Options) *Service {
	return NewServiceWithDeps(db, scanner, storage, engine, opts, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage Storage, engine Engine, opts Options, idGen IDGenerator, timeSrc TimeSource) *Service {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Fetcher == nil {
		opts.Fetcher = NewDownloader(nil, DefaultMaxDownload)
	}
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		engine:      engine,
		fetcher:     opts.Fetcher,
		metrics:     opts.Metrics,
		workers:     opts.Workers,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	spaceRuns   = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	if unsafeChars.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeChars.ReplaceAllString(base, "")
	base = spaceRuns.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	// Phones produce very long names
	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}

	if base == "" {
		base = "bill"
	}

	return base + ext
}

// ProcessBill stores a bill document, scans every page and reconciles the result
func (s *Service) ProcessBill(ctx context.Context, filename string, data []byte, contentType string) (*Record, error) {
	return s.process(ctx, filename, data, contentType, "")
}

// ProcessURL downloads a bill document and processes it
func (s *Service) ProcessURL(ctx context.Context, rawURL string) (*Record, error) {
	doc, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		slog.Error("Failed to download bill", "url", rawURL, "error", err)
		return nil, fmt.Errorf("fetching document: %w", err)
	}
	return s.process(ctx, doc.Filename, doc.Data, doc.ContentType, rawURL)
}

func (s *Service) process(ctx context.Context, filename string, data []byte, contentType, sourceURL string) (*Record, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()
	start := time.Now()

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	b, pages, err := s.reconcile(ctx, filename, data, contentType)
	s.metrics.ObserveBill(b, err, time.Since(start))
	if err != nil {
		// Clean up the saved file since nothing will reference it
		s.storage.Delete(savedPath)
		return nil, err
	}

	record := &Record{
		ID:          id,
		Filename:    savedPath,
		ContentType: contentType,
		SourceURL:   sourceURL,
		PageCount:   len(pages),
		Bill:        b,
		CreatedAt:   now,
	}

	if err := s.db.SaveRecord(record); err != nil {
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("saving bill to database: %w", err)
	}
	if err := s.db.SaveRawPages(id, pages); err != nil {
		// The bill itself is usable without its audit trail
		slog.Warn("Failed to save raw pages", "id", id, "error", err)
	}

	slog.Info("Processed bill",
		"id", id,
		"filename", filename,
		"pages", len(pages),
		"items", b.TotalItemCount,
		"final_total", b.FinalTotal.StringFixed(2),
		"issues", len(b.Issues),
	)

	return record, nil
}

func (s *Service) reconcile(ctx context.Context, filename string, data []byte, contentType string) (*reconcile.Bill, []scanning.PageText, error) {
	pages, err := s.scan(ctx, filename, data, contentType)
	if err != nil {
		return nil, nil, err
	}

	b, err := s.engine.Reconcile(ctx, scanning.ToRawPages(pages))
	if err != nil {
		slog.Error("Failed to reconcile bill", "filename", filename, "pages", len(pages), "error", err)
		return nil, pages, fmt.Errorf("reconciling bill: %w", err)
	}
	return b, pages, nil
}

func (s *Service) scan(ctx context.Context, filename string, data []byte, contentType string) ([]scanning.PageText, error) {
	pages, err := scanning.ScanDocument(ctx, s.scanner, data, contentType, s.workers)
	if err != nil {
		slog.Error("Failed to scan bill",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("scanning bill: %w", err)
	}

	failed := 0
	for _, p := range pages {
		if p.Err != nil {
			failed++
		}
	}
	s.metrics.ObservePages(len(pages), failed)

	return pages, nil
}

// ExtractRaw scans a document and returns the unvalidated per-page responses
func (s *Service) ExtractRaw(ctx context.Context, filename string, data []byte, contentType string) ([]scanning.PageText, error) {
	return s.scan(ctx, filename, data, contentType)
}

// GetBill retrieves a bill by ID
func (s *Service) GetBill(id string) (*Record, error) {
	record, err := s.db.GetRecord(id)
	if err != nil {
		return nil, fmt.Errorf("getting bill: %w", err)
	}
	return record, nil
}

// ListBills returns all bills
func (s *Service) ListBills() ([]*Record, error) {
	records, err := s.db.ListRecords()
	if err != nil {
		return nil, fmt.Errorf("listing bills: %w", err)
	}
	return records, nil
}

// DeleteBill removes a bill and its file
func (s *Service) DeleteBill(id string) error {
	record, err := s.db.GetRecord(id)
	if err != nil {
		return fmt.Errorf("getting bill for deletion: %w", err)
	}

	if err := s.storage.Delete(record.Filename); err != nil {
		// Log error but continue with database deletion
		slog.Warn("Failed to delete file", "filename", record.Filename, "error", err)
	}

	if err := s.db.DeleteRecord(id); err != nil {
		return fmt.Errorf("deleting bill from database: %w", err)
	}
	return nil
}

// GetBillFile retrieves the original document of a bill
func (s *Service) GetBillFile(id string) ([]byte, string, error) {
	record, err := s.db.GetRecord(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting bill: %w", err)
	}

	data, err := s.storage.Get(record.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting bill file: %w", err)
	}

	return data, record.ContentType, nil
}

// ExportBill writes a stored bill as an XLSX workbook
func (s *Service) ExportBill(id string, w io.Writer) error {
	record, err := s.db.GetRecord(id)
	if err != nil {
		return fmt.Errorf("getting bill: %w", err)
	}
	if err := WriteXLSX(w, record); err != nil {
		return fmt.Errorf("exporting bill: %w", err)
	}
	return nil
}

// GetBillPages retrieves the raw per-page responses a bill was built from
func (s *Service) GetBillPages(id string) ([]scanning.PageText, error) {
	pages, err := s.db.GetRawPages(id)
	if err != nil {
		return nil, fmt.Errorf("getting bill pages: %w", err)
	}
	return pages, nil
}
