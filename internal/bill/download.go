package bill

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// DefaultMaxDownload caps remote documents at the same size as uploads
const DefaultMaxDownload = int64(50 << 20)

// ErrDocumentTooLarge is returned when a document exceeds the size cap
var ErrDocumentTooLarge = errors.New("document too large")

// Document is a fetched bill document
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Fetcher retrieves a bill document from a URL
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Document, error)
}

// Downloader fetches documents over HTTP(S)
type Downloader struct {
	client   *http.Client
	maxBytes int64
}

// NewDownloader creates a Downloader; a zero maxBytes uses DefaultMaxDownload
func NewDownloader(client *http.Client, maxBytes int64) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDownload
	}
	return &Downloader{client: client, maxBytes: maxBytes}
}

// Fetch downloads the document at rawURL
func (d *Downloader) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing document url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading document: unexpected status %d", resp.StatusCode)
	}
	if resp.ContentLength > d.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrDocumentTooLarge, resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	if int64(len(data)) > d.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrDocumentTooLarge, d.maxBytes)
	}

	filename := path.Base(u.Path)
	if filename == "/" || filename == "." {
		filename = "bill"
	}

	return &Document{
		Filename:    filename,
		ContentType: detectContentType(filename, resp.Header.Get("Content-Type"), data),
		Data:        data,
	}, nil
}

// detectContentType prefers a declared type, then the extension, then sniffing
func detectContentType(filename, declared string, data []byte) string {
	if declared != "" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil && mediaType != "application/octet-stream" {
			return strings.ToLower(mediaType)
		}
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}

	sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return sniffed
}
