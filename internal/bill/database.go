package bill

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/bill-reconciler/internal/scanning"
)

const (
	billsBucket = "bills"
	pagesBucket = "pages"
)

// DB defines the interface for bill persistence
type DB interface {
	// SaveRecord saves a reconciled bill
	SaveRecord(record *Record) error

	// GetRecord retrieves a bill by ID
	GetRecord(id string) (*Record, error)

	// ListRecords returns all bills, newest first
	ListRecords() ([]*Record, error)

	// DeleteRecord removes a bill and its raw pages
	DeleteRecord(id string) error

	// SaveRawPages stores the model's raw per-page responses for audit
	SaveRawPages(id string, pages []scanning.PageText) error

	// GetRawPages retrieves the raw per-page responses of a bill
	GetRawPages(id string) ([]scanning.PageText, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens the database and creates its buckets
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{billsBucket, pagesBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveRecord saves a reconciled bill
func (b *BoltDB) SaveRecord(record *Record) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshaling bill: %w", err)
		}
		return tx.Bucket([]byte(billsBucket)).Put([]byte(record.ID), data)
	})
}

// GetRecord retrieves a bill by ID
func (b *BoltDB) GetRecord(id string) (*Record, error) {
	var record *Record
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(billsBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListRecords returns all bills, newest first
func (b *BoltDB) ListRecords() ([]*Record, error) {
	records := make([]*Record, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(billsBucket)).ForEach(func(k, v []byte) error {
			var record Record
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("unmarshaling bill %s: %w", k, err)
			}
			records = append(records, &record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// DeleteRecord removes a bill and its raw pages
func (b *BoltDB) DeleteRecord(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket([]byte(billsBucket)).Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket([]byte(pagesBucket)).Delete([]byte(id))
	})
}

// SaveRawPages stores the model's raw per-page responses for audit
func (b *BoltDB) SaveRawPages(id string, pages []scanning.PageText) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(pages)
		if err != nil {
			return fmt.Errorf("marshaling pages: %w", err)
		}
		return tx.Bucket([]byte(pagesBucket)).Put([]byte(id), data)
	})
}

// GetRawPages retrieves the raw per-page responses of a bill
func (b *BoltDB) GetRawPages(id string) ([]scanning.PageText, error) {
	var pages []scanning.PageText
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(pagesBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &pages)
	})
	if err != nil {
		return nil, err
	}
	return pages, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
