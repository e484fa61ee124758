package bill

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Storage defines the interface for storing uploaded bill documents
type Storage interface {
	// Save stores a document and returns the name to retrieve it by
	Save(name string, data []byte) (string, error)

	// Get retrieves a document by name
	Get(name string) ([]byte, error)

	// Delete removes a document
	Delete(name string) error
}

// LocalStorage implements the Storage interface using local filesystem
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates the storage directory if needed
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// path resolves a stored name, refusing anything that would leave basePath
func (l *LocalStorage) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid document name %q", name)
	}
	return filepath.Join(l.basePath, name), nil
}

// Save writes a document to disk
func (l *LocalStorage) Save(name string, data []byte) (string, error) {
	p, err := l.path(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(p, data, 0644); err != nil {
		return "", fmt.Errorf("writing document: %w", err)
	}
	return name, nil
}

// Get reads a document from disk
func (l *LocalStorage) Get(name string) ([]byte, error) {
	p, err := l.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	return data, nil
}

// Delete removes a document from disk
func (l *LocalStorage) Delete(name string) error {
	p, err := l.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}
